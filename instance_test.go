package cohort

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// InstanceProperties Basics
// =============================================================================

func TestInstanceProperties_NilSafety(t *testing.T) {
	var props *InstanceProperties

	assert.Nil(t, props.GetPropertyValue("anything"))
	assert.Equal(t, 0, props.PropertyCount())
	assert.Nil(t, props.PropertyNames())
	assert.Nil(t, props.Clone())
	// must not panic
	props.DeleteProperty("anything")
}

func TestInstanceProperties_SetGetDelete(t *testing.T) {
	props := &InstanceProperties{}
	props.SetProperty("displayName", &PrimitivePropertyValue{
		PrimitiveCategory: PrimitiveString,
		Value:             "my asset",
	})

	value := props.GetPropertyValue("displayName")
	require.NotNil(t, value)
	assert.Equal(t, PropertyCategoryPrimitive, value.Category())
	assert.Equal(t, 1, props.PropertyCount())

	props.DeleteProperty("displayName")
	assert.Nil(t, props.GetPropertyValue("displayName"))
	assert.Equal(t, 0, props.PropertyCount())
}

func TestInstanceProperties_Clone_IsDeep(t *testing.T) {
	nested := &InstanceProperties{}
	nested.SetProperty("inner", &PrimitivePropertyValue{
		PrimitiveCategory: PrimitiveInt,
		Value:             7,
	})

	original := &InstanceProperties{}
	original.SetProperty("outer", &MapPropertyValue{Values: nested})

	clone := original.Clone()
	require.NotNil(t, clone)

	// mutate the clone's nested bag; the original must be untouched
	cloneMap, ok := clone.GetPropertyValue("outer").(*MapPropertyValue)
	require.True(t, ok)
	cloneMap.Values.SetProperty("extra", &PrimitivePropertyValue{
		PrimitiveCategory: PrimitiveString,
		Value:             "added",
	})

	originalMap := original.GetPropertyValue("outer").(*MapPropertyValue)
	assert.Equal(t, 1, originalMap.Values.PropertyCount())
	assert.Equal(t, 2, cloneMap.Values.PropertyCount())
}

// =============================================================================
// JSON Round Trip
// =============================================================================

func TestInstanceProperties_JSONRoundTrip(t *testing.T) {
	from := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

	array := &ArrayPropertyValue{Count: 2}
	array.SetValue(0, &PrimitivePropertyValue{PrimitiveCategory: PrimitiveString, Value: "first"})
	array.SetValue(1, &PrimitivePropertyValue{PrimitiveCategory: PrimitiveString, Value: "second"})

	nested := &InstanceProperties{}
	nested.SetProperty("threshold", &PrimitivePropertyValue{PrimitiveCategory: PrimitiveDouble, Value: 0.75})

	props := &InstanceProperties{
		EffectiveFromTime: &from,
		EffectiveToTime:   &to,
	}
	props.SetProperty("name", &PrimitivePropertyValue{PrimitiveCategory: PrimitiveString, Value: "server1"})
	props.SetProperty("port", &PrimitivePropertyValue{PrimitiveCategory: PrimitiveInt, Value: 9443})
	props.SetProperty("zone", &EnumPropertyValue{Ordinal: 2, SymbolicName: "production"})
	props.SetProperty("tags", array)
	props.SetProperty("limits", &MapPropertyValue{Values: nested})
	props.SetProperty("address", &StructPropertyValue{Attributes: nested.Clone()})

	data, err := json.Marshal(props)
	require.NoError(t, err)

	var decoded InstanceProperties
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, 6, decoded.PropertyCount())
	require.NotNil(t, decoded.EffectiveFromTime)
	assert.True(t, from.Equal(*decoded.EffectiveFromTime))
	require.NotNil(t, decoded.EffectiveToTime)
	assert.True(t, to.Equal(*decoded.EffectiveToTime))

	name, ok := decoded.GetPropertyValue("name").(*PrimitivePropertyValue)
	require.True(t, ok)
	assert.Equal(t, PrimitiveString, name.PrimitiveCategory)
	assert.Equal(t, "server1", name.Value)

	zone, ok := decoded.GetPropertyValue("zone").(*EnumPropertyValue)
	require.True(t, ok)
	assert.Equal(t, 2, zone.Ordinal)
	assert.Equal(t, "production", zone.SymbolicName)

	tags, ok := decoded.GetPropertyValue("tags").(*ArrayPropertyValue)
	require.True(t, ok)
	assert.Equal(t, 2, tags.Count)
	assert.Equal(t, 2, tags.Values.PropertyCount())

	limits, ok := decoded.GetPropertyValue("limits").(*MapPropertyValue)
	require.True(t, ok)
	assert.Equal(t, 1, limits.Values.PropertyCount())

	address, ok := decoded.GetPropertyValue("address").(*StructPropertyValue)
	require.True(t, ok)
	assert.Equal(t, 1, address.Attributes.PropertyCount())
}

func TestInstanceProperties_UnmarshalUnknownCategory(t *testing.T) {
	data := []byte(`{"propertyValues":{"x":{"cat":"mystery","value":1}}}`)

	var decoded InstanceProperties
	err := json.Unmarshal(data, &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown property value category")
}

func TestInstanceProperties_UnmarshalNullValue(t *testing.T) {
	data := []byte(`{"propertyValues":{"gone":null}}`)

	var decoded InstanceProperties
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded.GetPropertyValue("gone"))
}

// =============================================================================
// Variant Categories
// =============================================================================

func TestPropertyValue_Categories(t *testing.T) {
	tests := []struct {
		name  string
		value InstancePropertyValue
		want  InstancePropertyCategory
	}{
		{"primitive", &PrimitivePropertyValue{}, PropertyCategoryPrimitive},
		{"enum", &EnumPropertyValue{}, PropertyCategoryEnum},
		{"struct", &StructPropertyValue{}, PropertyCategoryStruct},
		{"array", &ArrayPropertyValue{}, PropertyCategoryArray},
		{"map", &MapPropertyValue{}, PropertyCategoryMap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.Category())
		})
	}
}
