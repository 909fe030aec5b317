package cohort

import (
	"encoding/json"
	"fmt"
	"time"
)

// InstancePropertyCategory identifies the variant of an InstancePropertyValue.
type InstancePropertyCategory string

const (
	PropertyCategoryUnknown   InstancePropertyCategory = "unknown"
	PropertyCategoryPrimitive InstancePropertyCategory = "primitive"
	PropertyCategoryEnum      InstancePropertyCategory = "enum"
	PropertyCategoryStruct    InstancePropertyCategory = "struct"
	PropertyCategoryArray     InstancePropertyCategory = "array"
	PropertyCategoryMap       InstancePropertyCategory = "map"
)

// PrimitiveCategory identifies the concrete type of a primitive property value.
type PrimitiveCategory string

const (
	PrimitiveUnknown    PrimitiveCategory = "unknown"
	PrimitiveString     PrimitiveCategory = "string"
	PrimitiveInt        PrimitiveCategory = "int"
	PrimitiveLong       PrimitiveCategory = "long"
	PrimitiveShort      PrimitiveCategory = "short"
	PrimitiveByte       PrimitiveCategory = "byte"
	PrimitiveChar       PrimitiveCategory = "char"
	PrimitiveBoolean    PrimitiveCategory = "boolean"
	PrimitiveFloat      PrimitiveCategory = "float"
	PrimitiveDouble     PrimitiveCategory = "double"
	PrimitiveDate       PrimitiveCategory = "date"
	PrimitiveBigDecimal PrimitiveCategory = "bigdecimal"
	PrimitiveBigInteger PrimitiveCategory = "biginteger"
)

// InstancePropertyValue is the closed tagged union over the value variants a
// metadata instance property can take. The variant set is fixed: Primitive,
// Enum, Struct, Array and Map. Accessors dispatch on Category with an
// exhaustive switch rather than speculative casting.
type InstancePropertyValue interface {
	Category() InstancePropertyCategory
}

// PrimitivePropertyValue carries a single primitive value plus the
// discriminator that says how to interpret it.
type PrimitivePropertyValue struct {
	PrimitiveCategory PrimitiveCategory `json:"kind"`
	Value             any               `json:"value"`
}

func (*PrimitivePropertyValue) Category() InstancePropertyCategory { return PropertyCategoryPrimitive }

// EnumPropertyValue carries one symbol from an open enum definition.
type EnumPropertyValue struct {
	Ordinal      int    `json:"ordinal"`
	SymbolicName string `json:"symbolicName"`
	Description  string `json:"description,omitempty"`
}

func (*EnumPropertyValue) Category() InstancePropertyCategory { return PropertyCategoryEnum }

// StructPropertyValue carries a fixed set of named attributes.
type StructPropertyValue struct {
	Attributes *InstanceProperties `json:"attributes,omitempty"`
}

func (*StructPropertyValue) Category() InstancePropertyCategory { return PropertyCategoryStruct }

// ArrayPropertyValue carries an ordered sequence of values. Elements are
// stored in a nested InstanceProperties keyed by string ordinal ("0", "1", …).
type ArrayPropertyValue struct {
	Count  int                 `json:"count"`
	Values *InstanceProperties `json:"values,omitempty"`
}

func (*ArrayPropertyValue) Category() InstancePropertyCategory { return PropertyCategoryArray }

// SetValue stores an element at the given ordinal.
func (a *ArrayPropertyValue) SetValue(ordinal int, value InstancePropertyValue) {
	if a.Values == nil {
		a.Values = &InstanceProperties{}
	}
	a.Values.SetProperty(fmt.Sprintf("%d", ordinal), value)
}

// MapPropertyValue carries a nested property set keyed by arbitrary names.
type MapPropertyValue struct {
	Values *InstanceProperties `json:"values,omitempty"`
}

func (*MapPropertyValue) Category() InstancePropertyCategory { return PropertyCategoryMap }

// InstanceProperties is a named, typed bag of property values on a metadata
// instance. The effectivity window applies uniformly to the whole set.
type InstanceProperties struct {
	PropertyValues    map[string]InstancePropertyValue `json:"propertyValues,omitempty"`
	EffectiveFromTime *time.Time                       `json:"effectiveFromTime,omitempty"`
	EffectiveToTime   *time.Time                       `json:"effectiveToTime,omitempty"`
}

// GetPropertyValue returns the value stored under the property name, or nil.
// Safe on a nil receiver.
func (p *InstanceProperties) GetPropertyValue(name string) InstancePropertyValue {
	if p == nil || p.PropertyValues == nil {
		return nil
	}
	return p.PropertyValues[name]
}

// SetProperty stores a value under the property name.
func (p *InstanceProperties) SetProperty(name string, value InstancePropertyValue) {
	if p.PropertyValues == nil {
		p.PropertyValues = make(map[string]InstancePropertyValue)
	}
	p.PropertyValues[name] = value
}

// DeleteProperty removes the named property if present. Safe on nil.
func (p *InstanceProperties) DeleteProperty(name string) {
	if p == nil || p.PropertyValues == nil {
		return
	}
	delete(p.PropertyValues, name)
}

// PropertyCount returns the number of stored properties. Safe on nil.
func (p *InstanceProperties) PropertyCount() int {
	if p == nil {
		return 0
	}
	return len(p.PropertyValues)
}

// PropertyNames returns the stored property names in no particular order.
func (p *InstanceProperties) PropertyNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.PropertyValues))
	for name := range p.PropertyValues {
		names = append(names, name)
	}
	return names
}

// Clone returns a deep copy. Safe on nil.
func (p *InstanceProperties) Clone() *InstanceProperties {
	if p == nil {
		return nil
	}
	clone := &InstanceProperties{}
	if p.EffectiveFromTime != nil {
		t := *p.EffectiveFromTime
		clone.EffectiveFromTime = &t
	}
	if p.EffectiveToTime != nil {
		t := *p.EffectiveToTime
		clone.EffectiveToTime = &t
	}
	if p.PropertyValues != nil {
		clone.PropertyValues = make(map[string]InstancePropertyValue, len(p.PropertyValues))
		for name, value := range p.PropertyValues {
			clone.PropertyValues[name] = clonePropertyValue(value)
		}
	}
	return clone
}

func clonePropertyValue(value InstancePropertyValue) InstancePropertyValue {
	switch v := value.(type) {
	case *PrimitivePropertyValue:
		c := *v
		return &c
	case *EnumPropertyValue:
		c := *v
		return &c
	case *StructPropertyValue:
		return &StructPropertyValue{Attributes: v.Attributes.Clone()}
	case *ArrayPropertyValue:
		return &ArrayPropertyValue{Count: v.Count, Values: v.Values.Clone()}
	case *MapPropertyValue:
		return &MapPropertyValue{Values: v.Values.Clone()}
	default:
		return value
	}
}

// ----------------------------------------------------------------------------
// JSON encoding. Each variant is wrapped with a "cat" discriminator so that a
// property bag can round-trip through the cohort topic.
// ----------------------------------------------------------------------------

type propertyValueEnvelope struct {
	Cat InstancePropertyCategory `json:"cat"`
}

// MarshalJSON encodes the property bag with per-value category discriminators.
func (p InstanceProperties) MarshalJSON() ([]byte, error) {
	type alias struct {
		PropertyValues    map[string]json.RawMessage `json:"propertyValues,omitempty"`
		EffectiveFromTime *time.Time                 `json:"effectiveFromTime,omitempty"`
		EffectiveToTime   *time.Time                 `json:"effectiveToTime,omitempty"`
	}
	out := alias{
		EffectiveFromTime: p.EffectiveFromTime,
		EffectiveToTime:   p.EffectiveToTime,
	}
	if p.PropertyValues != nil {
		out.PropertyValues = make(map[string]json.RawMessage, len(p.PropertyValues))
		for name, value := range p.PropertyValues {
			raw, err := marshalPropertyValue(value)
			if err != nil {
				return nil, err
			}
			out.PropertyValues[name] = raw
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the property bag, turning each entry into the
// concrete variant named by its discriminator.
func (p *InstanceProperties) UnmarshalJSON(data []byte) error {
	type alias struct {
		PropertyValues    map[string]json.RawMessage `json:"propertyValues"`
		EffectiveFromTime *time.Time                 `json:"effectiveFromTime"`
		EffectiveToTime   *time.Time                 `json:"effectiveToTime"`
	}
	var in alias
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.EffectiveFromTime = in.EffectiveFromTime
	p.EffectiveToTime = in.EffectiveToTime
	p.PropertyValues = nil
	if len(in.PropertyValues) == 0 {
		return nil
	}
	p.PropertyValues = make(map[string]InstancePropertyValue, len(in.PropertyValues))
	for name, raw := range in.PropertyValues {
		value, err := unmarshalPropertyValue(raw)
		if err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
		p.PropertyValues[name] = value
	}
	return nil
}

func marshalPropertyValue(value InstancePropertyValue) (json.RawMessage, error) {
	if value == nil {
		return json.RawMessage("null"), nil
	}
	body, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	envelope, err := json.Marshal(propertyValueEnvelope{Cat: value.Category()})
	if err != nil {
		return nil, err
	}
	if string(body) == "{}" {
		return envelope, nil
	}
	// splice "cat" into the variant's own object
	merged := append(envelope[:len(envelope)-1], ',')
	merged = append(merged, body[1:]...)
	return merged, nil
}

// unmarshalPropertyValue inspects the discriminator and instantiates the
// matching concrete variant.
func unmarshalPropertyValue(data []byte) (InstancePropertyValue, error) {
	if string(data) == "null" {
		return nil, nil
	}
	var envelope propertyValueEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	switch envelope.Cat {
	case PropertyCategoryPrimitive:
		var v PrimitivePropertyValue
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case PropertyCategoryEnum:
		var v EnumPropertyValue
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case PropertyCategoryStruct:
		var v StructPropertyValue
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case PropertyCategoryArray:
		var v ArrayPropertyValue
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	case PropertyCategoryMap:
		var v MapPropertyValue
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("unknown property value category: %q", envelope.Cat)
	}
}
