package cohort

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DescriptorForTypeDef
// =============================================================================

func TestDescriptorForTypeDef(t *testing.T) {
	td := newEntityTypeDef()
	td.AttributeDefs = append(td.AttributeDefs,
		TypeDefAttribute{
			Name: "zone",
			Type: AttributeTypeDef{Name: "OperationalZone", Category: AttributeTypeEnum},
		},
		TypeDefAttribute{
			Name: "labels",
			Type: AttributeTypeDef{Name: "map<string,string>", Category: AttributeTypeCollection},
		},
	)

	desc := DescriptorForTypeDef(td)
	require.NotNil(t, desc)
	assert.Equal(t, "Asset", desc.TypeName)
	require.Len(t, desc.Attributes, 4)

	assert.Equal(t, PropertyCategoryPrimitive, desc.Attributes["displayName"].Category)
	assert.Equal(t, PrimitiveString, desc.Attributes["displayName"].Primitive)
	assert.Equal(t, PrimitiveInt, desc.Attributes["size"].Primitive)
	assert.Equal(t, PropertyCategoryEnum, desc.Attributes["zone"].Category)
	assert.Equal(t, PropertyCategoryMap, desc.Attributes["labels"].Category)
}

func TestDescriptorForTypeDef_Nil(t *testing.T) {
	assert.Nil(t, DescriptorForTypeDef(nil))
}

// =============================================================================
// InstanceMapper
// =============================================================================

func testDescriptor() *TypeDescriptor {
	return &TypeDescriptor{
		TypeName: "Asset",
		Attributes: map[string]AttributeDescriptor{
			"displayName": {Category: PropertyCategoryPrimitive, Primitive: PrimitiveString},
			"size":        {Category: PropertyCategoryPrimitive, Primitive: PrimitiveInt},
			"zone":        {Category: PropertyCategoryEnum},
			"labels":      {Category: PropertyCategoryMap},
		},
	}
}

func TestInstanceMapper_ToProperties(t *testing.T) {
	mapper := NewInstanceMapper(testSource)

	props := mapper.ToProperties(testDescriptor(), map[string]any{
		"displayName": "orders-db",
		"size":        42,
		"zone":        "production",
		"labels":      map[string]any{"env": "prod"},
	})

	require.NotNil(t, props)
	assert.Equal(t, 4, props.PropertyCount())
	assert.Equal(t, "orders-db", GetStringProperty(testSource, "displayName", props, "test"))
	assert.Equal(t, 42, GetIntProperty(testSource, "size", props, "test"))
	assert.Equal(t, "production", GetEnumPropertySymbolicName(testSource, "zone", props, "test"))

	labels := GetStringMapProperty(testSource, "labels", props, "test")
	assert.Equal(t, map[string]string{"env": "prod"}, labels)
}

func TestInstanceMapper_ToProperties_SkipsUnknownAttributes(t *testing.T) {
	mapper := NewInstanceMapper(testSource)

	props := mapper.ToProperties(testDescriptor(), map[string]any{
		"displayName": "ok",
		"notInSchema": "dropped",
	})

	require.NotNil(t, props)
	assert.Equal(t, 1, props.PropertyCount())
	assert.Nil(t, props.GetPropertyValue("notInSchema"))
}

func TestInstanceMapper_ToProperties_EmptyInputs(t *testing.T) {
	mapper := NewInstanceMapper(testSource)

	assert.Nil(t, mapper.ToProperties(nil, map[string]any{"a": 1}))
	assert.Nil(t, mapper.ToProperties(testDescriptor(), nil))
}

func TestInstanceMapper_RoundTrip(t *testing.T) {
	mapper := NewInstanceMapper(testSource)
	desc := testDescriptor()

	input := map[string]any{
		"displayName": "orders-db",
		"size":        42,
		"zone":        "production",
	}
	props := mapper.ToProperties(desc, input)
	require.NotNil(t, props)

	back := mapper.FromProperties(desc, props)
	require.NotNil(t, back)
	assert.Equal(t, "orders-db", back["displayName"])
	assert.Equal(t, 42, back["size"])
	assert.Equal(t, "production", back["zone"])
}

func TestInstanceMapper_FromProperties_SkipsUnknownAttributes(t *testing.T) {
	mapper := NewInstanceMapper(testSource)

	props := AddStringPropertyToInstance(testSource, nil, "displayName", "keep", "test")
	props = AddStringPropertyToInstance(testSource, props, "stray", "drop", "test")

	back := mapper.FromProperties(testDescriptor(), props)
	require.NotNil(t, back)
	assert.Equal(t, "keep", back["displayName"])
	_, present := back["stray"]
	assert.False(t, present)
}
