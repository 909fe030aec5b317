package cohort

import (
	"go.uber.org/zap"
)

// AttributeDescriptor tells the mapper how to encode one attribute.
type AttributeDescriptor struct {
	Category  InstancePropertyCategory `json:"category"`
	Primitive PrimitiveCategory        `json:"primitive,omitempty"`
}

// TypeDescriptor is the runtime description of a metadata type's attribute
// layout. It replaces per-type generated mapping code: one generic mapper
// driven by the descriptor covers every type the registry knows about.
type TypeDescriptor struct {
	TypeName   string                         `json:"typeName"`
	Attributes map[string]AttributeDescriptor `json:"attributes"`
}

// DescriptorForTypeDef derives a TypeDescriptor from a stored TypeDef.
// Non-primitive attribute categories map onto the collection variants.
func DescriptorForTypeDef(td *TypeDef) *TypeDescriptor {
	if td == nil {
		return nil
	}
	desc := &TypeDescriptor{
		TypeName:   td.Name,
		Attributes: make(map[string]AttributeDescriptor, len(td.AttributeDefs)),
	}
	for _, attr := range td.AttributeDefs {
		if attr.Name == "" {
			continue
		}
		switch attr.Type.Category {
		case AttributeTypePrimitive:
			desc.Attributes[attr.Name] = AttributeDescriptor{
				Category:  PropertyCategoryPrimitive,
				Primitive: attr.Type.PrimitiveCategory,
			}
		case AttributeTypeEnum:
			desc.Attributes[attr.Name] = AttributeDescriptor{Category: PropertyCategoryEnum}
		case AttributeTypeCollection:
			desc.Attributes[attr.Name] = AttributeDescriptor{Category: PropertyCategoryMap}
		default:
			desc.Attributes[attr.Name] = AttributeDescriptor{Category: PropertyCategoryUnknown}
		}
	}
	return desc
}

// InstanceMapper converts between plain Go maps and typed property bags
// using a TypeDescriptor. Attributes the descriptor does not name are logged
// and skipped rather than failing the whole conversion.
type InstanceMapper struct {
	sourceName string
}

// NewInstanceMapper creates a mapper. sourceName identifies the caller in
// diagnostic logs.
func NewInstanceMapper(sourceName string) *InstanceMapper {
	return &InstanceMapper{sourceName: sourceName}
}

// ToProperties builds an InstanceProperties from a raw attribute map using
// the descriptor to choose each value's variant and primitive kind.
func (m *InstanceMapper) ToProperties(desc *TypeDescriptor, raw map[string]any) *InstanceProperties {
	if desc == nil || len(raw) == 0 {
		return nil
	}
	var props *InstanceProperties
	for name, value := range raw {
		attr, known := desc.Attributes[name]
		if !known {
			zap.S().Warnw("skipping attribute not present in type descriptor",
				"source", m.sourceName, "type", desc.TypeName, "attribute", name)
			continue
		}
		switch attr.Category {
		case PropertyCategoryPrimitive:
			props = AddPropertyMapToInstance(m.sourceName, props,
				map[string]any{name: value}, "ToProperties")
		case PropertyCategoryEnum:
			if symbol, ok := value.(string); ok {
				props = AddEnumPropertyToInstance(m.sourceName, props, name, 0, symbol, "", "ToProperties")
			} else {
				zap.S().Warnw("enum attribute value is not a string",
					"source", m.sourceName, "type", desc.TypeName, "attribute", name)
			}
		case PropertyCategoryMap:
			if nested, ok := value.(map[string]any); ok {
				props = AddMapPropertyToInstance(m.sourceName, props, name, nested, "ToProperties")
			} else {
				zap.S().Warnw("collection attribute value is not a map",
					"source", m.sourceName, "type", desc.TypeName, "attribute", name)
			}
		default:
			zap.S().Warnw("attribute has unmappable category",
				"source", m.sourceName, "type", desc.TypeName,
				"attribute", name, "category", string(attr.Category))
		}
	}
	return props
}

// FromProperties flattens a typed property bag back to a raw attribute map.
// Enums come back as their symbolic name, maps as nested maps. Attributes
// outside the descriptor are skipped.
func (m *InstanceMapper) FromProperties(desc *TypeDescriptor, props *InstanceProperties) map[string]any {
	if desc == nil || props.PropertyCount() == 0 {
		return nil
	}
	out := make(map[string]any)
	for name, value := range props.PropertyValues {
		if _, known := desc.Attributes[name]; !known {
			zap.S().Warnw("skipping stored property not present in type descriptor",
				"source", m.sourceName, "type", desc.TypeName, "attribute", name)
			continue
		}
		switch v := value.(type) {
		case *PrimitivePropertyValue:
			out[name] = v.Value
		case *EnumPropertyValue:
			out[name] = v.SymbolicName
		case *MapPropertyValue:
			out[name] = GetMapPropertyAsAnyMap(m.sourceName, name, props, "FromProperties")
		default:
			zap.S().Warnw("skipping property with unmappable variant",
				"source", m.sourceName, "type", desc.TypeName, "attribute", name)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
