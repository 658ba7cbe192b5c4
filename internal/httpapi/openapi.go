package httpapi

import (
	"net/http"
	"time"

	"github.com/Septimus4/Futurisys/internal/features"
	"github.com/Septimus4/Futurisys/internal/utils"
)

type object = map[string]any

func ref(name string) object {
	return object{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema object) object {
	return object{"application/json": object{"schema": schema}}
}

func errorResponses(codes map[string]string) object {
	out := object{}
	for code, desc := range codes {
		out[code] = object{"description": desc, "content": jsonContent(ref("ErrorResponse"))}
	}
	return out
}

// featureSchema derives the request schema from the feature constraint table.
func featureSchema(now time.Time) object {
	props := object{}
	var required []string
	for _, c := range features.Table {
		p := object{"type": c.Kind.String()}
		if c.Min != nil {
			if c.ExclusiveMin {
				p["exclusiveMinimum"] = *c.Min
			} else {
				p["minimum"] = *c.Min
			}
		}
		if c.Max != nil {
			p["maximum"] = *c.Max
		}
		if c.MaxCurrentYear {
			p["maximum"] = now.Year()
		}
		if c.MinLen > 0 {
			p["minLength"] = c.MinLen
		}
		if c.MaxLen > 0 {
			p["maxLength"] = c.MaxLen
		}
		if !c.Required {
			p["nullable"] = true
		}
		props[c.Field] = p
		if c.Required {
			required = append(required, c.Field)
		}
	}
	return object{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// OpenAPIDocument builds the OpenAPI 3 description of the service.
func OpenAPIDocument(version string, now time.Time) map[string]any {
	security := []object{{"ApiKeyHeader": []string{}}, {"BearerAuth": []string{}}}
	predictionProps := object{
		"request_id":                      object{"type": "string", "format": "uuid"},
		"predicted_source_eui_wn_kbtu_sf": object{"type": "number"},
		"model_name":                      object{"type": "string"},
		"model_version":                   object{"type": "string"},
		"inference_ms":                    object{"type": "number"},
		"audit_degraded":                  object{"type": "boolean"},
	}

	return object{
		"openapi": "3.0.3",
		"info": object{
			"title":       "Energy Use Prediction API",
			"description": "Predict building source energy use intensity (weather normalized, kBtu/sf)",
			"version":     version,
		},
		"paths": object{
			"/health": object{
				"get": object{
					"summary": "Readiness and loaded model",
					"responses": merge(
						object{"200": object{"description": "Model loaded", "content": jsonContent(ref("HealthResponse"))}},
						errorResponses(map[string]string{"503": "Model is not loaded"}),
					),
				},
			},
			"/predict-energy-eui": object{
				"post": object{
					"summary":     "Predict EUI for one building",
					"security":    security,
					"requestBody": object{"required": true, "content": jsonContent(ref("FeatureRecord"))},
					"responses": merge(
						object{"200": object{"description": "Prediction", "content": jsonContent(ref("PredictionResponse"))}},
						errorResponses(map[string]string{
							"400": "Malformed JSON",
							"401": "Missing or invalid API key",
							"413": "Request body too large",
							"422": "Validation error",
							"429": "Rate limited",
							"500": "Inference failure",
							"503": "Model not loaded or ledger unavailable",
							"504": "Prediction timeout",
						}),
					),
				},
			},
			"/predict-energy-eui/batch": object{
				"post": object{
					"summary":     "Predict EUI for several buildings",
					"security":    security,
					"requestBody": object{"required": true, "content": jsonContent(ref("BatchRequest"))},
					"responses": merge(
						object{"200": object{"description": "Per-item results in input order", "content": jsonContent(ref("BatchResponse"))}},
						errorResponses(map[string]string{
							"400": "Malformed JSON",
							"401": "Missing or invalid API key",
							"413": "Request body too large",
							"422": "Empty or oversized batch",
							"429": "Rate limited",
							"503": "Model not loaded",
						}),
					),
				},
			},
			"/requests/{request_id}": object{
				"get": object{
					"summary":  "Look up a recorded request",
					"security": security,
					"parameters": []object{{
						"name": "request_id", "in": "path", "required": true,
						"schema": object{"type": "string", "format": "uuid"},
					}},
					"responses": merge(
						object{"200": object{"description": "Ledger entry", "content": jsonContent(ref("LookupResponse"))}},
						errorResponses(map[string]string{
							"400": "Malformed request id",
							"401": "Missing or invalid API key",
							"404": "Request not found",
							"503": "Ledger unavailable",
						}),
					),
				},
			},
		},
		"components": object{
			"securitySchemes": object{
				"ApiKeyHeader": object{"type": "apiKey", "in": "header", "name": "X-API-Key"},
				"BearerAuth":   object{"type": "http", "scheme": "bearer"},
			},
			"schemas": object{
				"FeatureRecord": featureSchema(now),
				"BatchRequest": object{
					"type":     "object",
					"required": []string{"items"},
					"properties": object{
						"items": object{"type": "array", "minItems": 1, "items": ref("FeatureRecord")},
					},
					"additionalProperties": false,
				},
				"HealthResponse": object{
					"type": "object",
					"properties": object{
						"status":   object{"type": "string"},
						"model":    object{"type": "string"},
						"artifact": object{"type": "string"},
						"version":  object{"type": "string"},
					},
				},
				"PredictionResponse": object{"type": "object", "properties": predictionProps},
				"ItemError": object{
					"type": "object",
					"properties": object{
						"error":      object{"type": "string"},
						"message":    object{"type": "string"},
						"field":      object{"type": "string"},
						"constraint": object{"type": "string"},
					},
				},
				"BatchResponse": object{
					"type": "object",
					"properties": object{
						"results": object{"type": "array", "items": object{
							"type": "object",
							"properties": merge(predictionProps, object{
								"index": object{"type": "integer"},
								"error": ref("ItemError"),
							}),
						}},
						"succeeded": object{"type": "integer"},
						"failed":    object{"type": "integer"},
					},
				},
				"LookupResponse": object{
					"type": "object",
					"properties": object{
						"request_id":  object{"type": "string", "format": "uuid"},
						"received_at": object{"type": "string", "format": "date-time"},
						"features":    object{"type": "object"},
						"status":      object{"type": "string", "enum": []string{"pending", "succeeded", "failed"}},
						"result":      ref("PredictionResponse"),
						"error":       ref("ErrorResponse"),
					},
				},
				"ErrorResponse": object{
					"type":     "object",
					"required": []string{"error", "message"},
					"properties": object{
						"error":      object{"type": "string"},
						"message":    object{"type": "string"},
						"request_id": object{"type": "string"},
						"details":    object{"type": "object"},
					},
				},
			},
		},
	}
}

func merge(maps ...object) object {
	out := object{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// OpenAPIHandler serves the OpenAPI document.
func OpenAPIHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithJSON(w, http.StatusOK, OpenAPIDocument(version, time.Now()))
	}
}
