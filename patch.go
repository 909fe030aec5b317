package cohort

import (
	"fmt"
)

const patchEngineComponent = "typedef-patch-engine"

// PatchEngine validates and applies TypeDefPatch objects. It holds no state
// beyond its identity and audit sink and performs no locking: the surrounding
// connector must serialize concurrent patches against the same TypeDef GUID.
// Patches against distinct GUIDs are independent.
type PatchEngine struct {
	sourceName string
	audit      AuditLog
}

// NewPatchEngine creates a patch engine. sourceName identifies the calling
// repository in errors and audit records. A nil audit log is replaced with a
// no-op sink.
func NewPatchEngine(sourceName string, audit AuditLog) *PatchEngine {
	if audit == nil {
		audit = NopAuditLog{}
	}
	return &PatchEngine{sourceName: sourceName, audit: audit}
}

// ValidateTypeDefPatch checks that a patch is well formed. A nil patch is an
// invalid parameter; a version ordering violation is a patch error. Missing
// newVersionName, updatedBy or updateTime are mandatory in a well-behaved
// cohort but historically arrive absent from some members, so they produce a
// warning audit record rather than a failure.
func (e *PatchEngine) ValidateTypeDefPatch(patch *TypeDefPatch) error {
	if patch == nil {
		return NewInvalidParameterError(ErrCodeNullTypeDefPatch,
			fmt.Sprintf("%s received a nil TypeDefPatch", e.sourceName))
	}

	if patch.UpdateToVersion <= patch.ApplyToVersion {
		return NewPatchError(ErrCodeInvalidPatchVersion,
			fmt.Sprintf("%s received a patch whose updateToVersion %d is not greater than its applyToVersion %d",
				e.sourceName, patch.UpdateToVersion, patch.ApplyToVersion))
	}

	if patch.NewVersionName == "" {
		e.warnMissingPatchField(patch, "newVersionName")
	}
	if patch.UpdatedBy == "" {
		e.warnMissingPatchField(patch, "updatedBy")
	}
	if patch.UpdateTime == nil {
		e.warnMissingPatchField(patch, "updateTime")
	}
	return nil
}

func (e *PatchEngine) warnMissingPatchField(patch *TypeDefPatch, fieldName string) {
	e.audit.LogRecord(AuditRecord{
		ComponentName: patchEngineComponent,
		Severity:      AuditSeverityWarning,
		MessageID:     AuditPatchFieldMissing,
		Message:       fmt.Sprintf("TypeDefPatch for %s is missing mandatory field %s", patch.TypeDefGUID, fieldName),
		SystemAction:  "The patch is applied without the missing field.",
		UserAction:    "Ask the originating cohort member to populate all mandatory patch fields.",
		Details: map[string]any{
			"typeDefGUID":     patch.TypeDefGUID,
			"applyToVersion":  patch.ApplyToVersion,
			"updateToVersion": patch.UpdateToVersion,
		},
	})
}

// ApplyPatch returns a new TypeDef version with the patch applied, or the
// unchanged original when the patch targets an already superseded version.
// The original is never mutated; either a fully valid new version is
// returned or an error is, with no partial state in between.
//
// Version handling follows the cohort broadcast contract: every member
// rebroadcasts new types, so the same patch routinely arrives more than
// once and possibly out of order.
//
//   - original.Version == patch.ApplyToVersion: apply and return the new version.
//   - original.Version >  patch.ApplyToVersion: already applied, return original.
//   - original.Version <  patch.ApplyToVersion: the local copy lags; the caller
//     must fetch and apply the intermediate versions first.
func (e *PatchEngine) ApplyPatch(original *TypeDef, patch *TypeDefPatch) (*TypeDef, error) {
	if err := e.ValidateTypeDefPatch(patch); err != nil {
		return nil, err
	}
	if original == nil {
		return nil, NewInvalidParameterError(ErrCodeNullTypeDef,
			fmt.Sprintf("%s received a nil TypeDef for patch application", e.sourceName))
	}

	if original.Version > patch.ApplyToVersion {
		e.audit.LogRecord(AuditRecord{
			ComponentName: patchEngineComponent,
			Severity:      AuditSeverityInfo,
			MessageID:     AuditPatchSuperseded,
			Message:       fmt.Sprintf("ignoring patch for %s targeting superseded version %d (current %d)", original.GUID, patch.ApplyToVersion, original.Version),
			SystemAction:  "The duplicate patch is ignored and the stored TypeDef is unchanged.",
			UserAction:    "No action required; this is expected under cohort rebroadcast.",
		})
		return original, nil
	}

	if original.Version < patch.ApplyToVersion {
		return nil, NewPatchError(ErrCodeIncompatiblePatchVersion,
			fmt.Sprintf("%s holds version %d of typedef %s but the patch applies to version %d; fetch the intermediate versions first",
				e.sourceName, original.Version, original.GUID, patch.ApplyToVersion))
	}

	updated := original.Clone()
	updated.Version = patch.UpdateToVersion
	updated.VersionName = patch.NewVersionName
	updated.UpdatedBy = patch.UpdatedBy
	updated.UpdateTime = patch.UpdateTime

	// Partial overlay: absent patch fields never null out existing state.
	if patch.Description != nil {
		updated.Description = *patch.Description
	}
	if patch.DescriptionGUID != nil {
		updated.DescriptionGUID = *patch.DescriptionGUID
	}
	if patch.Options != nil {
		updated.Options = patch.Options
	}
	if patch.ExternalStandardMappings != nil {
		updated.ExternalStandardMappings = patch.ExternalStandardMappings
	}
	if patch.ValidInstanceStatusList != nil {
		updated.ValidInstanceStatusList = patch.ValidInstanceStatusList
	}
	if patch.InitialStatus != nil {
		updated.InitialStatus = *patch.InitialStatus
	}

	if patch.AttributeDefs != nil {
		merged, err := e.mergeAttributes(original, patch)
		if err != nil {
			return nil, err
		}
		updated.AttributeDefs = merged
	}

	if err := e.applyCategoryExtras(original, patch, updated); err != nil {
		return nil, err
	}

	return updated, nil
}

// mergeAttributes merges the patch's attribute definitions over the
// original's, keyed by attribute name. Attributes the patch does not name
// are kept as-is; named ones are overwritten, except that an attribute's
// value type is immutable across patches.
func (e *PatchEngine) mergeAttributes(original *TypeDef, patch *TypeDefPatch) ([]TypeDefAttribute, error) {
	if original.AttributeDefs == nil {
		return append([]TypeDefAttribute(nil), patch.AttributeDefs...), nil
	}

	merged := make([]TypeDefAttribute, 0, len(original.AttributeDefs)+len(patch.AttributeDefs))
	index := make(map[string]int)
	for _, attr := range original.AttributeDefs {
		if attr.Name == "" {
			continue
		}
		index[attr.Name] = len(merged)
		merged = append(merged, attr)
	}

	for _, newAttr := range patch.AttributeDefs {
		if newAttr.Name == "" {
			// defensive: a patch from a misbehaving member may carry
			// unnamed attribute entries
			continue
		}
		if pos, exists := index[newAttr.Name]; exists {
			// We trust the stored type but not the patch.
			if !merged[pos].Type.Equal(newAttr.Type) {
				return nil, NewPatchError(ErrCodeIncompatibleAttributeType,
					fmt.Sprintf("%s rejected a patch for typedef %s that changes the value type of attribute %q from %s to %s",
						e.sourceName, original.GUID, newAttr.Name, merged[pos].Type.Name, newAttr.Type.Name))
			}
			merged[pos] = newAttr
		} else {
			index[newAttr.Name] = len(merged)
			merged = append(merged, newAttr)
		}
	}
	return merged, nil
}

// applyCategoryExtras overlays relationship end definitions and
// classification valid-entity lists. A patch carrying extras for the wrong
// category signals an internal invariant violation, not a user error.
func (e *PatchEngine) applyCategoryExtras(original *TypeDef, patch *TypeDefPatch, updated *TypeDef) error {
	switch original.Category {
	case TypeDefCategoryEntity:
		// no category-specific extras
	case TypeDefCategoryRelationship:
		if patch.EndDef1 != nil {
			end := *patch.EndDef1
			updated.EndDef1 = &end
		}
		if patch.EndDef2 != nil {
			end := *patch.EndDef2
			updated.EndDef2 = &end
		}
	case TypeDefCategoryClassification:
		if patch.ValidEntityDefs != nil {
			updated.ValidEntityDefs = append([]TypeDefLink(nil), patch.ValidEntityDefs...)
		}
	default:
		return NewHelperLogicError(e.sourceName, "applyCategoryExtras", "ApplyPatch").
			WithDetail("category", string(original.Category))
	}

	if original.Category != TypeDefCategoryRelationship && (patch.EndDef1 != nil || patch.EndDef2 != nil) {
		return NewHelperLogicError(e.sourceName, "applyCategoryExtras", "ApplyPatch").
			WithDetail("category", string(original.Category)).
			WithDetail("reason", "relationship end definitions supplied for a non-relationship typedef")
	}
	if original.Category != TypeDefCategoryClassification && patch.ValidEntityDefs != nil {
		return NewHelperLogicError(e.sourceName, "applyCategoryExtras", "ApplyPatch").
			WithDetail("category", string(original.Category)).
			WithDetail("reason", "valid entity definitions supplied for a non-classification typedef")
	}
	return nil
}
