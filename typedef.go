package cohort

import (
	"time"
)

// TypeDefCategory identifies what kind of metadata instance a TypeDef
// describes.
type TypeDefCategory string

const (
	TypeDefCategoryUnknown        TypeDefCategory = "unknown"
	TypeDefCategoryEntity         TypeDefCategory = "entity_def"
	TypeDefCategoryRelationship   TypeDefCategory = "relationship_def"
	TypeDefCategoryClassification TypeDefCategory = "classification_def"
)

// InstanceStatus is the lifecycle state of a metadata instance.
type InstanceStatus string

const (
	InstanceStatusUnknown  InstanceStatus = ""
	InstanceStatusProposed InstanceStatus = "proposed"
	InstanceStatusDraft    InstanceStatus = "draft"
	InstanceStatusPrepared InstanceStatus = "prepared"
	InstanceStatusActive   InstanceStatus = "active"
	InstanceStatusDeleted  InstanceStatus = "deleted"
)

// AttributeCardinality describes how many values an attribute may hold.
type AttributeCardinality string

const (
	CardinalityUnknown            AttributeCardinality = "unknown"
	CardinalityAtMostOne          AttributeCardinality = "at_most_one"
	CardinalityOneOnly            AttributeCardinality = "one_only"
	CardinalityAtLeastOneOrdered  AttributeCardinality = "at_least_one_ordered"
	CardinalityAnyNumberOrdered   AttributeCardinality = "any_number_ordered"
	CardinalityAnyNumberUnordered AttributeCardinality = "any_number_unordered"
)

// AttributeTypeCategory identifies the shape of an attribute's value type.
type AttributeTypeCategory string

const (
	AttributeTypePrimitive  AttributeTypeCategory = "primitive"
	AttributeTypeCollection AttributeTypeCategory = "collection"
	AttributeTypeEnum       AttributeTypeCategory = "enum_def"
)

// AttributeTypeDef is the value-type reference carried by a TypeDefAttribute.
// It is the part of an attribute definition that is immutable across patches.
type AttributeTypeDef struct {
	GUID              string                `json:"guid,omitempty"`
	Name              string                `json:"name"`
	Category          AttributeTypeCategory `json:"category"`
	PrimitiveCategory PrimitiveCategory     `json:"primitiveCategory,omitempty"`
}

// Equal reports whether two attribute type references describe the same
// value type. GUIDs are compared only when both sides carry one, so archive
// entries without GUIDs still compare by name and category.
func (a AttributeTypeDef) Equal(b AttributeTypeDef) bool {
	if a.Category != b.Category || a.Name != b.Name || a.PrimitiveCategory != b.PrimitiveCategory {
		return false
	}
	if a.GUID != "" && b.GUID != "" && a.GUID != b.GUID {
		return false
	}
	return true
}

// TypeDefAttribute defines a single attribute owned by one TypeDef version.
// Only the value type is frozen; name-level metadata such as description and
// cardinality may change through patches.
type TypeDefAttribute struct {
	Name            string               `json:"name"`
	Type            AttributeTypeDef     `json:"type"`
	Description     string               `json:"description,omitempty"`
	DescriptionGUID string               `json:"descriptionGUID,omitempty"`
	Cardinality     AttributeCardinality `json:"cardinality,omitempty"`
	ValuesMinCount  int                  `json:"valuesMinCount,omitempty"`
	ValuesMaxCount  int                  `json:"valuesMaxCount,omitempty"`
	Unique          bool                 `json:"unique,omitempty"`
	Indexable       bool                 `json:"indexable,omitempty"`
	DefaultValue    string               `json:"defaultValue,omitempty"`
}

// TypeDefLink is a lightweight reference to another TypeDef.
type TypeDefLink struct {
	GUID string `json:"guid"`
	Name string `json:"name"`
}

// RelationshipEndDef describes one end of a relationship TypeDef.
type RelationshipEndDef struct {
	EntityType      TypeDefLink          `json:"entityType"`
	AttributeName   string               `json:"attributeName"`
	Description     string               `json:"description,omitempty"`
	DescriptionGUID string               `json:"descriptionGUID,omitempty"`
	Cardinality     AttributeCardinality `json:"cardinality,omitempty"`
}

// ExternalStandardMapping correlates a TypeDef with an equivalent type in an
// external metadata standard.
type ExternalStandardMapping struct {
	StandardName         string `json:"standardName,omitempty"`
	StandardOrganization string `json:"standardOrganization,omitempty"`
	StandardTypeName     string `json:"standardTypeName"`
}

// TypeDef is one immutable version of a schema definition for an entity,
// relationship or classification kind. (GUID, Version) uniquely identifies a
// snapshot; evolution happens only by applying a TypeDefPatch, which produces
// a new version object and never mutates an existing one. Old versions are
// retained indefinitely so historical instances stay readable.
//
// Category-specific fields are populated according to Category: EndDef1 and
// EndDef2 for relationships, ValidEntityDefs for classifications.
type TypeDef struct {
	GUID     string          `json:"guid"`
	Name     string          `json:"name"`
	Category TypeDefCategory `json:"category"`

	Version     int64  `json:"version"`
	VersionName string `json:"versionName,omitempty"`

	Description     string       `json:"description,omitempty"`
	DescriptionGUID string       `json:"descriptionGUID,omitempty"`
	SuperType       *TypeDefLink `json:"superType,omitempty"`

	Options                  map[string]string         `json:"options,omitempty"`
	ExternalStandardMappings []ExternalStandardMapping `json:"externalStandardMappings,omitempty"`
	ValidInstanceStatusList  []InstanceStatus          `json:"validInstanceStatusList,omitempty"`
	InitialStatus            InstanceStatus            `json:"initialStatus,omitempty"`

	AttributeDefs []TypeDefAttribute `json:"attributeDefs,omitempty"`

	CreatedBy  string     `json:"createdBy,omitempty"`
	UpdatedBy  string     `json:"updatedBy,omitempty"`
	CreateTime *time.Time `json:"createTime,omitempty"`
	UpdateTime *time.Time `json:"updateTime,omitempty"`

	// relationship only
	EndDef1 *RelationshipEndDef `json:"endDef1,omitempty"`
	EndDef2 *RelationshipEndDef `json:"endDef2,omitempty"`

	// classification only
	ValidEntityDefs []TypeDefLink `json:"validEntityDefs,omitempty"`
}

// Clone returns a deep copy of the TypeDef.
func (t *TypeDef) Clone() *TypeDef {
	if t == nil {
		return nil
	}
	clone := *t
	if t.SuperType != nil {
		link := *t.SuperType
		clone.SuperType = &link
	}
	if t.Options != nil {
		clone.Options = make(map[string]string, len(t.Options))
		for k, v := range t.Options {
			clone.Options[k] = v
		}
	}
	if t.ExternalStandardMappings != nil {
		clone.ExternalStandardMappings = append([]ExternalStandardMapping(nil), t.ExternalStandardMappings...)
	}
	if t.ValidInstanceStatusList != nil {
		clone.ValidInstanceStatusList = append([]InstanceStatus(nil), t.ValidInstanceStatusList...)
	}
	if t.AttributeDefs != nil {
		clone.AttributeDefs = append([]TypeDefAttribute(nil), t.AttributeDefs...)
	}
	if t.CreateTime != nil {
		ts := *t.CreateTime
		clone.CreateTime = &ts
	}
	if t.UpdateTime != nil {
		ts := *t.UpdateTime
		clone.UpdateTime = &ts
	}
	if t.EndDef1 != nil {
		end := *t.EndDef1
		clone.EndDef1 = &end
	}
	if t.EndDef2 != nil {
		end := *t.EndDef2
		clone.EndDef2 = &end
	}
	if t.ValidEntityDefs != nil {
		clone.ValidEntityDefs = append([]TypeDefLink(nil), t.ValidEntityDefs...)
	}
	return &clone
}

// AttributeByName returns the attribute definition with the given name, or
// nil if the TypeDef does not define it.
func (t *TypeDef) AttributeByName(name string) *TypeDefAttribute {
	if t == nil {
		return nil
	}
	for i := range t.AttributeDefs {
		if t.AttributeDefs[i].Name == name {
			return &t.AttributeDefs[i]
		}
	}
	return nil
}

// TypeDefPatch describes the evolution of a TypeDef from ApplyToVersion to
// UpdateToVersion. Optional fields are pointers (or nil collections) so that
// an absent field never overwrites existing state during overlay.
type TypeDefPatch struct {
	TypeDefGUID string `json:"typeDefGUID"`
	TypeDefName string `json:"typeDefName,omitempty"`

	ApplyToVersion  int64  `json:"applyToVersion"`
	UpdateToVersion int64  `json:"updateToVersion"`
	NewVersionName  string `json:"newVersionName,omitempty"`

	UpdatedBy  string     `json:"updatedBy,omitempty"`
	UpdateTime *time.Time `json:"updateTime,omitempty"`

	Description     *string `json:"description,omitempty"`
	DescriptionGUID *string `json:"descriptionGUID,omitempty"`

	AttributeDefs            []TypeDefAttribute        `json:"attributeDefs,omitempty"`
	Options                  map[string]string         `json:"options,omitempty"`
	ExternalStandardMappings []ExternalStandardMapping `json:"externalStandardMappings,omitempty"`
	ValidInstanceStatusList  []InstanceStatus          `json:"validInstanceStatusList,omitempty"`
	InitialStatus            *InstanceStatus           `json:"initialStatus,omitempty"`

	// relationship only
	EndDef1 *RelationshipEndDef `json:"endDef1,omitempty"`
	EndDef2 *RelationshipEndDef `json:"endDef2,omitempty"`

	// classification only
	ValidEntityDefs []TypeDefLink `json:"validEntityDefs,omitempty"`
}
