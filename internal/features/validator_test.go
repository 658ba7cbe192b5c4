package features

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedValidator() *Validator {
	return &Validator{Now: func() time.Time { return time.Date(2025, 8, 19, 0, 0, 0, 0, time.UTC) }}
}

func downtownOffice() Raw {
	return Raw{
		"ENERGYSTARScore":        json.Number("75"),
		"NumberofBuildings":      json.Number("1"),
		"NumberofFloors":         json.Number("12"),
		"PropertyGFATotal":       json.Number("350000"),
		"YearBuilt":              json.Number("1998"),
		"BuildingType":           "NonResidential",
		"PrimaryPropertyType":    "Office",
		"LargestPropertyUseType": "Office",
		"Neighborhood":           "DOWNTOWN",
	}
}

func TestValidate_ValidRecord(t *testing.T) {
	rec, err := fixedValidator().Validate(downtownOffice())
	require.NoError(t, err)

	score, ok := rec.EnergyStarScore()
	assert.True(t, ok)
	assert.Equal(t, 75.0, score)
	assert.Equal(t, 1, rec.NumberOfBuildings())
	assert.Equal(t, 12, rec.NumberOfFloors())
	assert.Equal(t, 350000.0, rec.PropertyGFATotal())
	assert.Equal(t, 1998, rec.YearBuilt())
	assert.Equal(t, "NonResidential", rec.BuildingType())
	assert.Equal(t, "Office", rec.Categorical(FieldPrimaryPropertyType))
	assert.Equal(t, "DOWNTOWN", rec.Neighborhood())
	assert.False(t, rec.IsZero())
}

func TestValidate_OptionalScore(t *testing.T) {
	for _, score := range []any{nil, "absent"} {
		raw := downtownOffice()
		if score == nil {
			raw["ENERGYSTARScore"] = nil
		} else {
			delete(raw, "ENERGYSTARScore")
		}

		rec, err := fixedValidator().Validate(raw)
		require.NoError(t, err)
		_, ok := rec.EnergyStarScore()
		assert.False(t, ok)
	}
}

func TestValidate_TrimsStrings(t *testing.T) {
	raw := downtownOffice()
	raw["Neighborhood"] = "  Capitol Hill \t"

	rec, err := fixedValidator().Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "Capitol Hill", rec.Neighborhood())
}

func TestValidate_AcceptsGoNumbers(t *testing.T) {
	raw := downtownOffice()
	raw["NumberofFloors"] = 3
	raw["PropertyGFATotal"] = 25000.5
	raw["YearBuilt"] = float64(2010)

	rec, err := fixedValidator().Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.NumberOfFloors())
	assert.Equal(t, 25000.5, rec.PropertyGFATotal())
	assert.Equal(t, 2010, rec.YearBuilt())
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		value      any
		remove     bool
		constraint string
	}{
		{name: "zero floors", field: FieldNumberOfFloors, value: json.Number("0"), constraint: ConstraintMinimum},
		{name: "fractional floors", field: FieldNumberOfFloors, value: json.Number("2.5"), constraint: ConstraintType},
		{name: "floors beyond int range", field: FieldNumberOfFloors, value: json.Number("1e20"), constraint: ConstraintMaximum},
		{name: "buildings beyond int range", field: FieldNumberOfBuildings, value: json.Number("2147483648"), constraint: ConstraintMaximum},
		{name: "floors as string", field: FieldNumberOfFloors, value: "12", constraint: ConstraintType},
		{name: "zero buildings", field: FieldNumberOfBuildings, value: json.Number("0"), constraint: ConstraintMinimum},
		{name: "missing buildings", field: FieldNumberOfBuildings, remove: true, constraint: ConstraintRequired},
		{name: "null gfa", field: FieldPropertyGFATotal, value: nil, constraint: ConstraintRequired},
		{name: "zero gfa", field: FieldPropertyGFATotal, value: json.Number("0"), constraint: ConstraintExclusiveMinimum},
		{name: "negative gfa", field: FieldPropertyGFATotal, value: json.Number("-10"), constraint: ConstraintExclusiveMinimum},
		{name: "year too old", field: FieldYearBuilt, value: json.Number("1700"), constraint: ConstraintMinimum},
		{name: "year in future", field: FieldYearBuilt, value: json.Number("2026"), constraint: ConstraintMaximum},
		{name: "score above range", field: FieldEnergyStarScore, value: json.Number("101"), constraint: ConstraintMaximum},
		{name: "negative score", field: FieldEnergyStarScore, value: json.Number("-1"), constraint: ConstraintMinimum},
		{name: "boolean score", field: FieldEnergyStarScore, value: true, constraint: ConstraintType},
		{name: "empty building type", field: FieldBuildingType, value: "", constraint: ConstraintMinLength},
		{name: "blank building type", field: FieldBuildingType, value: "   ", constraint: ConstraintMinLength},
		{name: "numeric neighborhood", field: FieldNeighborhood, value: json.Number("7"), constraint: ConstraintType},
		{name: "long use type", field: FieldLargestPropertyUseType, value: strings.Repeat("x", 101), constraint: ConstraintMaxLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := downtownOffice()
			if tt.remove {
				delete(raw, tt.field)
			} else {
				raw[tt.field] = tt.value
			}

			_, err := fixedValidator().Validate(raw)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.constraint, verr.Constraint)
			assert.Contains(t, verr.Error(), tt.field)
		})
	}
}

func TestValidate_BoundaryValuesPass(t *testing.T) {
	raw := downtownOffice()
	raw["ENERGYSTARScore"] = json.Number("100")
	raw["YearBuilt"] = json.Number("2025")
	raw["NumberofFloors"] = json.Number("3.0")
	raw["BuildingType"] = strings.Repeat("é", 100)

	rec, err := fixedValidator().Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, 2025, rec.YearBuilt())
	assert.Equal(t, 3, rec.NumberOfFloors())

	raw["YearBuilt"] = json.Number("1800")
	_, err = fixedValidator().Validate(raw)
	assert.NoError(t, err)
}

func TestValidate_ReportsFirstFieldInTableOrder(t *testing.T) {
	raw := downtownOffice()
	raw["Neighborhood"] = ""
	raw["NumberofFloors"] = json.Number("0")

	_, err := fixedValidator().Validate(raw)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldNumberOfFloors, verr.Field)
}

func TestValidate_IgnoresUnknownFields(t *testing.T) {
	raw := downtownOffice()
	raw["Color"] = "blue"

	_, err := fixedValidator().Validate(raw)
	assert.NoError(t, err)
	assert.Equal(t, []string{"Color"}, UnknownFields(raw))
	assert.Empty(t, UnknownFields(downtownOffice()))
}

func TestValidate_Deterministic(t *testing.T) {
	v := fixedValidator()
	a, err := v.Validate(downtownOffice())
	require.NoError(t, err)
	b, err := v.Validate(downtownOffice())
	require.NoError(t, err)

	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	assert.JSONEq(t, string(ja), string(jb))
}

func TestRecord_MarshalJSON(t *testing.T) {
	raw := downtownOffice()
	delete(raw, "ENERGYSTARScore")
	rec, err := fixedValidator().Validate(raw)
	require.NoError(t, err)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"ENERGYSTARScore": null,
		"NumberofBuildings": 1,
		"NumberofFloors": 12,
		"PropertyGFATotal": 350000,
		"YearBuilt": 1998,
		"BuildingType": "NonResidential",
		"PrimaryPropertyType": "Office",
		"LargestPropertyUseType": "Office",
		"Neighborhood": "DOWNTOWN"
	}`, string(data))
}

func TestDecode(t *testing.T) {
	raw, err := Decode([]byte(`{"NumberofFloors": 12, "PropertyGFATotal": 350000.25}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("12"), raw["NumberofFloors"])
	assert.Equal(t, json.Number("350000.25"), raw["PropertyGFATotal"])

	for _, input := range []string{`[1,2]`, `null`, `"text"`} {
		_, err := Decode([]byte(input))
		assert.ErrorIs(t, err, ErrNotObject, input)
	}

	_, err = Decode([]byte(`{"a":`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotObject)
}

func TestTableHelpers(t *testing.T) {
	assert.Equal(t, []string{
		FieldEnergyStarScore, FieldNumberOfBuildings, FieldNumberOfFloors, FieldPropertyGFATotal, FieldYearBuilt,
	}, NumericFields())
	assert.Equal(t, []string{
		FieldBuildingType, FieldPrimaryPropertyType, FieldLargestPropertyUseType, FieldNeighborhood,
	}, CategoricalFields())
	assert.True(t, IsKnownField("YearBuilt"))
	assert.False(t, IsKnownField("yearbuilt"))
}
