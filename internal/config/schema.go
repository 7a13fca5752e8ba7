package config

import (
	"fmt"
	"sort"
)

// FieldType is the declared JSON type of a schema field, per spec.md §4.1
// ("check declared types (string, array, object)").
type FieldType string

const (
	TypeString FieldType = "string"
	TypeArray  FieldType = "array"
	TypeObject FieldType = "object"
)

// FieldSpec describes one required or optional property of a document.
type FieldSpec struct {
	Type     FieldType
	Required bool
}

// Schema maps JSON property names to field specs. The map is unordered;
// Validate visits the properties in sorted name order.
type Schema map[string]FieldSpec

var deviceProfileSchema = Schema{
	"deviceId":        {Type: TypeString, Required: true},
	"supportedOS":     {Type: TypeArray, Required: true},
	"driverFamilyIds": {Type: TypeArray, Required: true},
}

var buildConfigSchema = Schema{
	"name":       {Type: TypeString, Required: true},
	"mountPoint": {Type: TypeString, Required: true},
	"exportPath": {Type: TypeString, Required: true},
	"tempPath":   {Type: TypeString, Required: true},
	"driverRoot": {Type: TypeString, Required: true},
	"updateRoot": {Type: TypeString, Required: true},
	"yunonaPath": {Type: TypeString, Required: true},
	"osWimMap":   {Type: TypeObject, Required: true},
}

// Validate checks doc against schema and returns every violation found —
// spec §4.1 requires a single aggregated error enumerating ALL violations,
// not the first one encountered.
func Validate(doc map[string]interface{}, schema Schema) []string {
	var violations []string

	// Deterministic order makes the aggregated error (and its tests)
	// reproducible across runs.
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		spec := schema[name]
		val, present := doc[name]
		if !present || val == nil {
			if spec.Required {
				violations = append(violations, fmt.Sprintf("missing required property %q", name))
			}
			continue
		}
		if !matchesType(val, spec.Type) {
			violations = append(violations, fmt.Sprintf("property %q must be of type %q", name, spec.Type))
		}
	}
	return violations
}

func matchesType(val interface{}, t FieldType) bool {
	switch t {
	case TypeString:
		_, ok := val.(string)
		return ok
	case TypeArray:
		_, ok := val.([]interface{})
		return ok
	case TypeObject:
		_, ok := val.(map[string]interface{})
		return ok
	default:
		return true
	}
}
