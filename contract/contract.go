// Package contract implements the coordinator's Contract Model: parsing a
// candidate's JSON-schema input/output declarations, deriving the effective
// required field set, and transforming a schema to tolerate null values for
// parameter extraction.
//
// Grounded on original_source/coordinator_agent/utils.go's allow_nulls and
// is_resolvable functions, translated into a typed Go representation instead
// of dict-walking.
package contract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Schema is a minimal JSON-schema representation: an object schema with
// named properties and an optional required list. Only the subset of JSON
// Schema the coordinator's candidates actually use is modeled.
type Schema struct {
	Type       string                    `json:"type,omitempty"`
	Properties map[string]PropertySchema `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
}

// PropertySchema describes a single property. Type may be a bare string
// ("string", "integer", ...) or, once nulls are allowed, a list such as
// ["string", "null"]. Both shapes are handled by widenType/isNullableType.
type PropertySchema struct {
	Type       json.RawMessage           `json:"type,omitempty"`
	Properties map[string]PropertySchema `json:"properties,omitempty"` // nested object
	Items      *PropertySchema           `json:"items,omitempty"`      // array element schema
	Required   []string                  `json:"required,omitempty"`   // nested object required
}

// ParseInputSchema parses a candidate's contract_input string. A malformed
// or empty schema degrades to an empty schema (no properties, nothing
// required), the service becomes trivially resolvable but contributes
// nothing to the merged extraction schema, matching the original's lenient
// treatment of bad per-candidate data.
func ParseInputSchema(raw string) Schema {
	return parseSchema(raw)
}

// ParseOutputSchema parses a candidate's contract_output string. Only the
// property key set is meaningful for output contracts; Required is ignored
// by callers.
func ParseOutputSchema(raw string) Schema {
	return parseSchema(raw)
}

func parseSchema(raw string) Schema {
	if raw == "" {
		return Schema{Properties: map[string]PropertySchema{}}
	}
	var s Schema
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Schema{Properties: map[string]PropertySchema{}}
	}
	if s.Properties == nil {
		s.Properties = map[string]PropertySchema{}
	}
	return s
}

// EffectiveRequired returns the contract's effective required set (§3):
// the declared `required` list when non-empty, otherwise every property
// whose type is not a nullable list.
func (s Schema) EffectiveRequired() []string {
	if len(s.Required) > 0 {
		return append([]string(nil), s.Required...)
	}

	required := make([]string, 0, len(s.Properties))
	for name, prop := range s.Properties {
		if !prop.isNullableType() {
			required = append(required, name)
		}
	}
	return required
}

// OutputKeys returns the output contract's property names.
func (s Schema) OutputKeys() []string {
	keys := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		keys = append(keys, name)
	}
	return keys
}

// isNullableType reports whether the property's declared type already
// includes "null", i.e. whether it is a list type containing "null".
func (p PropertySchema) isNullableType() bool {
	if len(p.Type) == 0 {
		return false
	}

	var list []string
	if err := json.Unmarshal(p.Type, &list); err == nil {
		for _, t := range list {
			if t == "null" {
				return true
			}
		}
		return false
	}

	// Scalar type strings are never nullable on their own.
	return false
}

// AllowNulls returns a copy of the schema with every property's type
// widened to accept null, recursing into nested objects and array item
// schemas. Applied only to the merged extraction schema (§4.1), never to
// the authoritative per-service required check.
func AllowNulls(s Schema) Schema {
	out := Schema{Type: s.Type, Required: s.Required}
	if s.Properties == nil {
		return out
	}

	out.Properties = make(map[string]PropertySchema, len(s.Properties))
	for name, prop := range s.Properties {
		out.Properties[name] = allowNullsProperty(prop)
	}
	return out
}

func allowNullsProperty(p PropertySchema) PropertySchema {
	out := p
	out.Type = widenType(p.Type)

	if p.Properties != nil {
		out.Properties = make(map[string]PropertySchema, len(p.Properties))
		for name, nested := range p.Properties {
			out.Properties[name] = allowNullsProperty(nested)
		}
	}

	if p.Items != nil {
		widened := allowNullsProperty(*p.Items)
		out.Items = &widened
	}

	return out
}

// widenType appends "null" to a type declaration, converting a bare scalar
// type string into a two-element list if necessary.
func widenType(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}

	var scalar string
	if err := json.Unmarshal(raw, &scalar); err == nil {
		widened, _ := json.Marshal([]string{scalar, "null"})
		return widened
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, t := range list {
			if t == "null" {
				return raw
			}
		}
		widened, _ := json.Marshal(append(list, "null"))
		return widened
	}

	return raw
}

// MergedProperties returns the union of properties.For each of the given
// input schemas, in order. When two schemas declare the same property name,
// the later schema's declaration wins, matching the original's dict
// overwrite semantics when building the combined extraction schema.
func MergedProperties(schemas []Schema) map[string]PropertySchema {
	merged := make(map[string]PropertySchema)
	for _, s := range schemas {
		for name, prop := range s.Properties {
			merged[name] = prop
		}
	}
	return merged
}

// Merge builds the combined object schema used to drive parameter
// extraction: the union of properties from every given input schema. The
// caller is expected to apply AllowNulls to the result before sending it to
// the extractor.
func Merge(schemas []Schema) Schema {
	return Schema{
		Type:       "object",
		Properties: MergedProperties(schemas),
	}
}

// Validate reports whether value satisfies schema's effective required set,
// using the Present rule (§3): null, "null" (any case), and empty/whitespace
// count as absent. It does not perform full JSON-Schema type validation;
// the extractor's degrade-to-null behavior makes type checking unnecessary
// beyond presence.
func (s Schema) Validate(value map[string]any) error {
	for _, name := range s.EffectiveRequired() {
		v, ok := value[name]
		if !ok || !Present(v) {
			return fmt.Errorf("missing required field %q", name)
		}
	}
	return nil
}

// Present implements the coordinator-wide truthiness convention: nil, the
// string "null" (any case), and empty/whitespace strings are absent.
func Present(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return false
		}
		return !strings.EqualFold(trimmed, "null")
	default:
		return true
	}
}
