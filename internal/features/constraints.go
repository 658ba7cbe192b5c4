package features

import "math"

// Wire names of the building attributes accepted by the prediction API.
const (
	FieldEnergyStarScore        = "ENERGYSTARScore"
	FieldNumberOfBuildings      = "NumberofBuildings"
	FieldNumberOfFloors         = "NumberofFloors"
	FieldPropertyGFATotal       = "PropertyGFATotal"
	FieldYearBuilt              = "YearBuilt"
	FieldBuildingType           = "BuildingType"
	FieldPrimaryPropertyType    = "PrimaryPropertyType"
	FieldLargestPropertyUseType = "LargestPropertyUseType"
	FieldNeighborhood           = "Neighborhood"
)

// MinYearBuilt is the oldest construction year accepted.
const MinYearBuilt = 1800

// MaxCount caps building and floor counts so they convert to int exactly.
const MaxCount = math.MaxInt32

// Kind is the value type a field must carry.
type Kind int

const (
	KindNumber Kind = iota
	KindInteger
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Constraint names reported in ValidationError.Constraint.
const (
	ConstraintRequired         = "required"
	ConstraintType             = "type"
	ConstraintMinimum          = "minimum"
	ConstraintExclusiveMinimum = "exclusive_minimum"
	ConstraintMaximum          = "maximum"
	ConstraintMinLength        = "min_length"
	ConstraintMaxLength        = "max_length"
	ConstraintUnknownField     = "unknown_field"
)

// Constraint describes one field of the feature table.
//
// Numeric bounds are inclusive unless ExclusiveMin is set. MaxCurrentYear
// replaces Max with the validator's current calendar year. String lengths are
// counted in runes after surrounding whitespace is trimmed.
type Constraint struct {
	Field          string
	Kind           Kind
	Required       bool
	Min            *float64
	Max            *float64
	ExclusiveMin   bool
	MaxCurrentYear bool
	MinLen         int
	MaxLen         int
}

func bound(v float64) *float64 { return &v }

// Table lists the feature constraints in the order they are evaluated and in
// the order the model consumes them.
var Table = []Constraint{
	{Field: FieldEnergyStarScore, Kind: KindNumber, Min: bound(0), Max: bound(100)},
	{Field: FieldNumberOfBuildings, Kind: KindInteger, Required: true, Min: bound(1), Max: bound(MaxCount)},
	{Field: FieldNumberOfFloors, Kind: KindInteger, Required: true, Min: bound(1), Max: bound(MaxCount)},
	{Field: FieldPropertyGFATotal, Kind: KindNumber, Required: true, Min: bound(0), ExclusiveMin: true},
	{Field: FieldYearBuilt, Kind: KindInteger, Required: true, Min: bound(MinYearBuilt), MaxCurrentYear: true},
	{Field: FieldBuildingType, Kind: KindString, Required: true, MinLen: 1, MaxLen: 100},
	{Field: FieldPrimaryPropertyType, Kind: KindString, Required: true, MinLen: 1, MaxLen: 100},
	{Field: FieldLargestPropertyUseType, Kind: KindString, Required: true, MinLen: 1, MaxLen: 100},
	{Field: FieldNeighborhood, Kind: KindString, Required: true, MinLen: 1, MaxLen: 100},
}

// NumericFields returns the names of the number and integer fields in table order.
func NumericFields() []string {
	return fieldsWhere(func(c Constraint) bool { return c.Kind != KindString })
}

// CategoricalFields returns the names of the string fields in table order.
func CategoricalFields() []string {
	return fieldsWhere(func(c Constraint) bool { return c.Kind == KindString })
}

func fieldsWhere(keep func(Constraint) bool) []string {
	var names []string
	for _, c := range Table {
		if keep(c) {
			names = append(names, c.Field)
		}
	}
	return names
}

// IsKnownField reports whether name is a field of the feature table.
func IsKnownField(name string) bool {
	for _, c := range Table {
		if c.Field == name {
			return true
		}
	}
	return false
}
