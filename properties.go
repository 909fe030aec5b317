package cohort

import (
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Property helper: generic typed accessors over an InstanceProperties bag.
//
// The accessors are total for user-level conditions. A missing property, a
// category mismatch or a primitive-kind mismatch all read as absence and
// return the zero value; schema drift between cohort members must never fail
// a read. Only an internal invariant violation (a primitive entry whose
// stored value cannot be interpreted as its declared kind) is surfaced, and
// then only to the logs at error severity because it indicates an engine or
// caller bug rather than bad user data.

// GetStringProperty returns the named string property or "" if it is absent
// or not a string primitive.
func GetStringProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) string {
	v, _ := primitiveValue[string](sourceName, propertyName, properties, PrimitiveString, methodName, "GetStringProperty")
	return v
}

// GetIntProperty returns the named int property or 0.
func GetIntProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) int {
	v, _ := primitiveValue[int](sourceName, propertyName, properties, PrimitiveInt, methodName, "GetIntProperty")
	return v
}

// GetLongProperty returns the named long property or 0.
func GetLongProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) int64 {
	v, _ := primitiveValue[int64](sourceName, propertyName, properties, PrimitiveLong, methodName, "GetLongProperty")
	return v
}

// GetFloatProperty returns the named float property or 0.
func GetFloatProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) float32 {
	v, _ := primitiveValue[float32](sourceName, propertyName, properties, PrimitiveFloat, methodName, "GetFloatProperty")
	return v
}

// GetDoubleProperty returns the named double property or 0.
func GetDoubleProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) float64 {
	v, _ := primitiveValue[float64](sourceName, propertyName, properties, PrimitiveDouble, methodName, "GetDoubleProperty")
	return v
}

// GetBooleanProperty returns the named boolean property or false.
func GetBooleanProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) bool {
	v, _ := primitiveValue[bool](sourceName, propertyName, properties, PrimitiveBoolean, methodName, "GetBooleanProperty")
	return v
}

// GetDateProperty returns the named date property or nil.
func GetDateProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) *time.Time {
	v, ok := primitiveValue[time.Time](sourceName, propertyName, properties, PrimitiveDate, methodName, "GetDateProperty")
	if !ok {
		return nil
	}
	return &v
}

// GetEnumPropertySymbolicName returns the symbolic name of the named enum
// property or "" if it is absent or not an enum.
func GetEnumPropertySymbolicName(sourceName, propertyName string, properties *InstanceProperties, methodName string) string {
	value := properties.GetPropertyValue(propertyName)
	if enumValue, ok := value.(*EnumPropertyValue); ok {
		return enumValue.SymbolicName
	}
	return ""
}

// GetMapProperty returns the nested property set of the named map property,
// or nil if the property is absent or not a map.
func GetMapProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) *InstanceProperties {
	value := properties.GetPropertyValue(propertyName)
	if mapValue, ok := value.(*MapPropertyValue); ok {
		return mapValue.Values
	}
	zap.S().Debugw("map property not present", "source", sourceName, "property", propertyName, "caller", methodName)
	return nil
}

// GetMapPropertyAsAnyMap locates the named map property and flattens its
// nested property set: primitives reduce to their raw value, enums to their
// symbolic name, everything else is kept as the variant itself.
func GetMapPropertyAsAnyMap(sourceName, propertyName string, properties *InstanceProperties, methodName string) map[string]any {
	nested := GetMapProperty(sourceName, propertyName, properties, methodName)
	if nested == nil {
		return nil
	}
	return InstancePropertiesAsMap(nested)
}

// GetStringMapProperty locates the named map property and flattens it into a
// string-to-string map. Returns nil when the result would be empty.
func GetStringMapProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) map[string]string {
	flattened := GetMapPropertyAsAnyMap(sourceName, propertyName, properties, methodName)
	if flattened == nil {
		return nil
	}
	result := make(map[string]string)
	for name, value := range flattened {
		if value == nil {
			continue
		}
		result[name] = stringify(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// InstancePropertiesAsMap flattens a property bag into a plain map. Enum
// entries reduce to their symbolic name, primitives to their raw value.
func InstancePropertiesAsMap(properties *InstanceProperties) map[string]any {
	if properties == nil {
		return nil
	}
	result := make(map[string]any, properties.PropertyCount())
	for _, name := range properties.PropertyNames() {
		switch v := properties.GetPropertyValue(name).(type) {
		case nil:
			// skip
		case *PrimitivePropertyValue:
			result[name] = v.Value
		case *EnumPropertyValue:
			result[name] = v.SymbolicName
		default:
			result[name] = v
		}
	}
	return result
}

// GetStringArrayProperty locates the named array property and maps its
// string-ordinal entries into an ordered slice. Non-primitive and nil
// elements are skipped with a log record rather than failing the read.
func GetStringArrayProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) []string {
	value := properties.GetPropertyValue(propertyName)
	arrayValue, ok := value.(*ArrayPropertyValue)
	if !ok || arrayValue.Values.PropertyCount() == 0 {
		zap.S().Debugw("array property not present", "source", sourceName, "property", propertyName, "caller", methodName)
		return nil
	}
	return InstancePropertiesAsStringArray(sourceName, arrayValue.Values, methodName)
}

// InstancePropertiesAsStringArray converts an array property's nested bag,
// keyed by string ordinal, into an ordered slice of strings.
func InstancePropertiesAsStringArray(sourceName string, elements *InstanceProperties, methodName string) []string {
	if elements == nil {
		return nil
	}
	type element struct {
		ordinal int
		value   string
	}
	ordered := make([]element, 0, elements.PropertyCount())
	for _, ordinalName := range elements.PropertyNames() {
		ordinal, err := strconv.Atoi(ordinalName)
		if err != nil {
			zap.S().Errorw("skipping array element with non-numeric ordinal",
				"source", sourceName, "ordinal", ordinalName, "caller", methodName)
			continue
		}
		switch v := elements.GetPropertyValue(ordinalName).(type) {
		case *PrimitivePropertyValue:
			ordered = append(ordered, element{ordinal: ordinal, value: stringify(v.Value)})
		case nil:
			zap.S().Errorw("skipping nil array element",
				"source", sourceName, "ordinal", ordinalName, "caller", methodName)
		default:
			zap.S().Errorw("skipping non-primitive array element",
				"source", sourceName, "ordinal", ordinalName, "category", v.Category(), "caller", methodName)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ordinal < ordered[j].ordinal })
	result := make([]string, len(ordered))
	for i, e := range ordered {
		result[i] = e.value
	}
	return result
}

// ----------------------------------------------------------------------------
// Add operations. All of them return a new-or-updated bag; nil and empty
// input values are no-ops that return the input unchanged, so an absent value
// never materializes an empty container.
// ----------------------------------------------------------------------------

// AddStringPropertyToInstance adds a string property, allocating the bag on
// first use. An empty value is a no-op.
func AddStringPropertyToInstance(sourceName string, properties *InstanceProperties, propertyName, propertyValue, methodName string) *InstanceProperties {
	if propertyValue == "" {
		return properties
	}
	return addPrimitive(properties, propertyName, PrimitiveString, propertyValue)
}

// AddIntPropertyToInstance adds an int property, allocating the bag on first use.
func AddIntPropertyToInstance(sourceName string, properties *InstanceProperties, propertyName string, propertyValue int, methodName string) *InstanceProperties {
	return addPrimitive(properties, propertyName, PrimitiveInt, propertyValue)
}

// AddLongPropertyToInstance adds a long property, allocating the bag on first use.
func AddLongPropertyToInstance(sourceName string, properties *InstanceProperties, propertyName string, propertyValue int64, methodName string) *InstanceProperties {
	return addPrimitive(properties, propertyName, PrimitiveLong, propertyValue)
}

// AddFloatPropertyToInstance adds a float property, allocating the bag on first use.
func AddFloatPropertyToInstance(sourceName string, properties *InstanceProperties, propertyName string, propertyValue float32, methodName string) *InstanceProperties {
	return addPrimitive(properties, propertyName, PrimitiveFloat, propertyValue)
}

// AddDoublePropertyToInstance adds a double property, allocating the bag on first use.
func AddDoublePropertyToInstance(sourceName string, properties *InstanceProperties, propertyName string, propertyValue float64, methodName string) *InstanceProperties {
	return addPrimitive(properties, propertyName, PrimitiveDouble, propertyValue)
}

// AddBooleanPropertyToInstance adds a boolean property, allocating the bag on first use.
func AddBooleanPropertyToInstance(sourceName string, properties *InstanceProperties, propertyName string, propertyValue bool, methodName string) *InstanceProperties {
	return addPrimitive(properties, propertyName, PrimitiveBoolean, propertyValue)
}

// AddDatePropertyToInstance adds a date property. A nil value is a no-op.
func AddDatePropertyToInstance(sourceName string, properties *InstanceProperties, propertyName string, propertyValue *time.Time, methodName string) *InstanceProperties {
	if propertyValue == nil {
		return properties
	}
	return addPrimitive(properties, propertyName, PrimitiveDate, *propertyValue)
}

// AddEnumPropertyToInstance adds an enum property. An empty symbolic name is
// a no-op.
func AddEnumPropertyToInstance(sourceName string, properties *InstanceProperties, propertyName string, ordinal int, symbolicName, description, methodName string) *InstanceProperties {
	if symbolicName == "" {
		return properties
	}
	resulting := ensureProperties(properties)
	resulting.SetProperty(propertyName, &EnumPropertyValue{
		Ordinal:      ordinal,
		SymbolicName: symbolicName,
		Description:  description,
	})
	return resulting
}

// AddStringArrayPropertyToInstance adds an ordered string array property.
// A nil or empty slice is a no-op.
func AddStringArrayPropertyToInstance(sourceName string, properties *InstanceProperties, propertyName string, arrayValues []string, methodName string) *InstanceProperties {
	if len(arrayValues) == 0 {
		return properties
	}
	arrayValue := &ArrayPropertyValue{Count: len(arrayValues)}
	for i, v := range arrayValues {
		arrayValue.SetValue(i, &PrimitivePropertyValue{PrimitiveCategory: PrimitiveString, Value: v})
	}
	resulting := ensureProperties(properties)
	resulting.SetProperty(propertyName, arrayValue)
	return resulting
}

// AddMapPropertyToInstance adds the supplied map as a single map-category
// property whose values are typed from their Go representation. A nil or
// empty map is a no-op.
func AddMapPropertyToInstance(sourceName string, properties *InstanceProperties, propertyName string, mapValues map[string]any, methodName string) *InstanceProperties {
	if len(mapValues) == 0 {
		return properties
	}
	nested := AddPropertyMapToInstance(sourceName, nil, mapValues, methodName)
	if nested == nil {
		return properties
	}
	resulting := ensureProperties(properties)
	resulting.SetProperty(propertyName, &MapPropertyValue{Values: nested})
	return resulting
}

// AddStringMapPropertyToInstance adds the supplied string map as a single
// map-category property. A nil or empty map is a no-op.
func AddStringMapPropertyToInstance(sourceName string, properties *InstanceProperties, propertyName string, mapValues map[string]string, methodName string) *InstanceProperties {
	if len(mapValues) == 0 {
		return properties
	}
	nested := &InstanceProperties{}
	for name, value := range mapValues {
		nested.SetProperty(name, &PrimitivePropertyValue{PrimitiveCategory: PrimitiveString, Value: value})
	}
	resulting := ensureProperties(properties)
	resulting.SetProperty(propertyName, &MapPropertyValue{Values: nested})
	return resulting
}

// AddPropertyMapToInstance adds each entry of the supplied map as a separate
// property, inferring the primitive kind from the Go value. Entries with
// unsupported value types are skipped with a log record.
func AddPropertyMapToInstance(sourceName string, properties *InstanceProperties, mapValues map[string]any, methodName string) *InstanceProperties {
	if len(mapValues) == 0 {
		return properties
	}
	resulting := properties
	for name, value := range mapValues {
		kind, ok := primitiveKindOf(value)
		if !ok {
			zap.S().Warnw("skipping map entry with unsupported value type",
				"source", sourceName, "property", name, "caller", methodName)
			continue
		}
		resulting = addPrimitive(resulting, name, kind, value)
	}
	return resulting
}

// ----------------------------------------------------------------------------
// Remove operations: get, then delete the entry if it was found.
// ----------------------------------------------------------------------------

// RemoveStringProperty returns the named string property and deletes it from
// the bag if present.
func RemoveStringProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) string {
	v, ok := primitiveValue[string](sourceName, propertyName, properties, PrimitiveString, methodName, "RemoveStringProperty")
	if ok {
		properties.DeleteProperty(propertyName)
	}
	return v
}

// RemoveIntProperty returns the named int property and deletes it if present.
func RemoveIntProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) int {
	v, ok := primitiveValue[int](sourceName, propertyName, properties, PrimitiveInt, methodName, "RemoveIntProperty")
	if ok {
		properties.DeleteProperty(propertyName)
	}
	return v
}

// RemoveBooleanProperty returns the named boolean property and deletes it if present.
func RemoveBooleanProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) bool {
	v, ok := primitiveValue[bool](sourceName, propertyName, properties, PrimitiveBoolean, methodName, "RemoveBooleanProperty")
	if ok {
		properties.DeleteProperty(propertyName)
	}
	return v
}

// RemoveDateProperty returns the named date property and deletes it if present.
func RemoveDateProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) *time.Time {
	v, ok := primitiveValue[time.Time](sourceName, propertyName, properties, PrimitiveDate, methodName, "RemoveDateProperty")
	if !ok {
		return nil
	}
	properties.DeleteProperty(propertyName)
	return &v
}

// RemoveStringArrayProperty returns the named string array property and
// deletes it if present.
func RemoveStringArrayProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) []string {
	v := GetStringArrayProperty(sourceName, propertyName, properties, methodName)
	if v != nil {
		properties.DeleteProperty(propertyName)
	}
	return v
}

// RemoveStringMapProperty returns the named string map property and deletes
// it if present.
func RemoveStringMapProperty(sourceName, propertyName string, properties *InstanceProperties, methodName string) map[string]string {
	v := GetStringMapProperty(sourceName, propertyName, properties, methodName)
	if v != nil {
		properties.DeleteProperty(propertyName)
	}
	return v
}

// ----------------------------------------------------------------------------
// internals
// ----------------------------------------------------------------------------

func ensureProperties(properties *InstanceProperties) *InstanceProperties {
	if properties == nil {
		return &InstanceProperties{}
	}
	return properties
}

func addPrimitive(properties *InstanceProperties, propertyName string, kind PrimitiveCategory, value any) *InstanceProperties {
	resulting := ensureProperties(properties)
	resulting.SetProperty(propertyName, &PrimitivePropertyValue{
		PrimitiveCategory: kind,
		Value:             value,
	})
	return resulting
}

// primitiveValue matches a Primitive entry of the requested kind and coerces
// its stored value to T. Absence or category/kind mismatch returns (zero,
// false). A kind match whose value cannot be coerced is an invariant
// violation and is logged at error severity.
func primitiveValue[T any](sourceName, propertyName string, properties *InstanceProperties, kind PrimitiveCategory, methodName, localMethod string) (T, bool) {
	var zero T
	value := properties.GetPropertyValue(propertyName)
	if value == nil {
		return zero, false
	}
	primitive, ok := value.(*PrimitivePropertyValue)
	if !ok || primitive.PrimitiveCategory != kind || primitive.Value == nil {
		zap.S().Debugw("property kind mismatch treated as absence",
			"source", sourceName, "property", propertyName, "wanted", kind, "caller", methodName)
		return zero, false
	}
	coerced, ok := coercePrimitive(primitive.Value, kind)
	if !ok {
		logicErr := NewHelperLogicError(sourceName, localMethod, methodName)
		zap.S().Errorw("primitive value does not match its declared kind",
			"source", sourceName, "property", propertyName, "kind", kind, "error", logicErr)
		return zero, false
	}
	typed, ok := coerced.(T)
	if !ok {
		logicErr := NewHelperLogicError(sourceName, localMethod, methodName)
		zap.S().Errorw("coerced primitive has unexpected type",
			"source", sourceName, "property", propertyName, "kind", kind, "error", logicErr)
		return zero, false
	}
	return typed, true
}

// coercePrimitive normalizes a stored primitive value to the canonical Go
// type for its kind. Values that arrived over JSON decode as float64 or
// string, so each numeric kind accepts the widened forms.
func coercePrimitive(value any, kind PrimitiveCategory) (any, bool) {
	switch kind {
	case PrimitiveString, PrimitiveChar, PrimitiveBigDecimal, PrimitiveBigInteger:
		s, ok := value.(string)
		return s, ok
	case PrimitiveBoolean:
		b, ok := value.(bool)
		return b, ok
	case PrimitiveInt:
		switch v := value.(type) {
		case int:
			return v, true
		case int32:
			return int(v), true
		case int64:
			return int(v), true
		case float64:
			return int(v), true
		}
		return 0, false
	case PrimitiveShort, PrimitiveByte:
		switch v := value.(type) {
		case int:
			return v, true
		case float64:
			return int(v), true
		}
		return 0, false
	case PrimitiveLong:
		switch v := value.(type) {
		case int64:
			return v, true
		case int:
			return int64(v), true
		case float64:
			return int64(v), true
		}
		return int64(0), false
	case PrimitiveFloat:
		switch v := value.(type) {
		case float32:
			return v, true
		case float64:
			return float32(v), true
		}
		return float32(0), false
	case PrimitiveDouble:
		switch v := value.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		}
		return float64(0), false
	case PrimitiveDate:
		switch v := value.(type) {
		case time.Time:
			return v, true
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return time.Time{}, false
			}
			return t, true
		}
		return time.Time{}, false
	default:
		return nil, false
	}
}

// primitiveKindOf infers the primitive kind for a raw Go value.
func primitiveKindOf(value any) (PrimitiveCategory, bool) {
	switch value.(type) {
	case string:
		return PrimitiveString, true
	case bool:
		return PrimitiveBoolean, true
	case int, int32:
		return PrimitiveInt, true
	case int64:
		return PrimitiveLong, true
	case float32:
		return PrimitiveFloat, true
	case float64:
		return PrimitiveDouble, true
	case time.Time:
		return PrimitiveDate, true
	default:
		return PrimitiveUnknown, false
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return ""
	}
}
