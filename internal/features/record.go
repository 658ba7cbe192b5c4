package features

import (
	"encoding/json"
)

// Record is a validated set of building attributes. The zero value is not a
// valid record; records are only produced by Validator.Validate.
type Record struct {
	numbers      map[string]float64
	categoricals map[string]string
}

// Numeric returns the value of a number or integer field. ok is false for
// absent optional fields and unknown names.
func (r Record) Numeric(name string) (value float64, ok bool) {
	value, ok = r.numbers[name]
	return value, ok
}

// Categorical returns the trimmed value of a string field.
func (r Record) Categorical(name string) string {
	return r.categoricals[name]
}

// EnergyStarScore returns the optional ENERGY STAR score.
func (r Record) EnergyStarScore() (float64, bool) { return r.Numeric(FieldEnergyStarScore) }

func (r Record) NumberOfBuildings() int { return int(r.numbers[FieldNumberOfBuildings]) }

func (r Record) NumberOfFloors() int { return int(r.numbers[FieldNumberOfFloors]) }

func (r Record) PropertyGFATotal() float64 { return r.numbers[FieldPropertyGFATotal] }

func (r Record) YearBuilt() int { return int(r.numbers[FieldYearBuilt]) }

func (r Record) BuildingType() string { return r.categoricals[FieldBuildingType] }

func (r Record) Neighborhood() string { return r.categoricals[FieldNeighborhood] }

// IsZero reports whether r was not produced by a validator.
func (r Record) IsZero() bool {
	return r.numbers == nil && r.categoricals == nil
}

// wireRecord fixes the JSON field order of a record.
type wireRecord struct {
	EnergyStarScore        *float64 `json:"ENERGYSTARScore"`
	NumberOfBuildings      int      `json:"NumberofBuildings"`
	NumberOfFloors         int      `json:"NumberofFloors"`
	PropertyGFATotal       float64  `json:"PropertyGFATotal"`
	YearBuilt              int      `json:"YearBuilt"`
	BuildingType           string   `json:"BuildingType"`
	PrimaryPropertyType    string   `json:"PrimaryPropertyType"`
	LargestPropertyUseType string   `json:"LargestPropertyUseType"`
	Neighborhood           string   `json:"Neighborhood"`
}

// MarshalJSON encodes the record in its canonical wire shape. An absent
// ENERGYSTARScore is written as null.
func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{
		NumberOfBuildings:      r.NumberOfBuildings(),
		NumberOfFloors:         r.NumberOfFloors(),
		PropertyGFATotal:       r.PropertyGFATotal(),
		YearBuilt:              r.YearBuilt(),
		BuildingType:           r.BuildingType(),
		PrimaryPropertyType:    r.Categorical(FieldPrimaryPropertyType),
		LargestPropertyUseType: r.Categorical(FieldLargestPropertyUseType),
		Neighborhood:           r.Neighborhood(),
	}
	if score, ok := r.EnergyStarScore(); ok {
		w.EnergyStarScore = &score
	}
	return json.Marshal(w)
}
