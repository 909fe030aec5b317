package cohort

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// TypeDefStore is the persistence contract for the typedef registry. Every
// version of every TypeDef is retained; nothing is ever deleted or mutated
// in place.
//
// Implementations guard their own internal structures, but callers must
// serialize concurrent patch application against the same TypeDef GUID:
// the store cannot distinguish two racing AddTypeDefVersion calls from a
// legitimate version sequence.
type TypeDefStore interface {
	// AddTypeDef registers a brand new TypeDef at its initial version.
	// Registering a GUID that already exists returns a conflict error.
	AddTypeDef(ctx context.Context, td *TypeDef) error

	// AddTypeDefVersion stores a new version of an existing TypeDef.
	AddTypeDefVersion(ctx context.Context, td *TypeDef) error

	// GetLatestTypeDef returns the highest stored version for the GUID.
	GetLatestTypeDef(ctx context.Context, guid string) (*TypeDef, error)

	// GetTypeDefVersion returns one specific stored version.
	GetTypeDefVersion(ctx context.Context, guid string, version int64) (*TypeDef, error)

	// GetTypeDefByName returns the latest version of the TypeDef with the
	// given unique name.
	GetTypeDefByName(ctx context.Context, name string) (*TypeDef, error)

	// ListTypeDefs returns the latest version of every stored TypeDef.
	ListTypeDefs(ctx context.Context) ([]*TypeDef, error)
}

// TypeDefCatalog is the in-memory TypeDefStore. It keeps every version of
// every TypeDef, ordered ascending by version number. The mutex protects the
// maps only; cross-call sequencing of patches is still the caller's job.
type TypeDefCatalog struct {
	mu         sync.RWMutex
	byGUID     map[string][]*TypeDef
	nameToGUID map[string]string
}

// NewTypeDefCatalog creates an empty in-memory typedef catalog.
func NewTypeDefCatalog() *TypeDefCatalog {
	return &TypeDefCatalog{
		byGUID:     make(map[string][]*TypeDef),
		nameToGUID: make(map[string]string),
	}
}

func (c *TypeDefCatalog) AddTypeDef(_ context.Context, td *TypeDef) error {
	if td == nil {
		return NewInvalidParameterError(ErrCodeNullTypeDef, "cannot register a nil TypeDef")
	}
	if td.GUID == "" || td.Name == "" {
		return NewInvalidParameterError(ErrCodeNullTypeDef,
			fmt.Sprintf("TypeDef %q must carry both a GUID and a name", td.Name))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byGUID[td.GUID]; exists {
		return NewTypeDefAlreadyExistsError(td.GUID, td.Name)
	}
	if existingGUID, exists := c.nameToGUID[td.Name]; exists && existingGUID != td.GUID {
		return NewTypeDefAlreadyExistsError(existingGUID, td.Name)
	}

	c.byGUID[td.GUID] = []*TypeDef{td.Clone()}
	c.nameToGUID[td.Name] = td.GUID
	zap.S().Debugw("registered typedef", "guid", td.GUID, "name", td.Name, "version", td.Version)
	return nil
}

func (c *TypeDefCatalog) AddTypeDefVersion(_ context.Context, td *TypeDef) error {
	if td == nil {
		return NewInvalidParameterError(ErrCodeNullTypeDef, "cannot store a nil TypeDef version")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	versions, exists := c.byGUID[td.GUID]
	if !exists {
		return NewTypeDefNotFoundError(td.GUID)
	}
	latest := versions[len(versions)-1]
	if td.Version <= latest.Version {
		return NewPatchError(ErrCodeInvalidPatchVersion,
			fmt.Sprintf("typedef %s already holds version %d; refusing to store version %d",
				td.GUID, latest.Version, td.Version))
	}

	c.byGUID[td.GUID] = append(versions, td.Clone())
	if td.Name != "" && td.Name != latest.Name {
		// name changed through a patch; keep the old name resolvable too
		c.nameToGUID[td.Name] = td.GUID
	}
	zap.S().Debugw("stored typedef version", "guid", td.GUID, "name", td.Name, "version", td.Version)
	return nil
}

func (c *TypeDefCatalog) GetLatestTypeDef(_ context.Context, guid string) (*TypeDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	versions, exists := c.byGUID[guid]
	if !exists {
		return nil, NewTypeDefNotFoundError(guid)
	}
	return versions[len(versions)-1].Clone(), nil
}

func (c *TypeDefCatalog) GetTypeDefVersion(_ context.Context, guid string, version int64) (*TypeDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	versions, exists := c.byGUID[guid]
	if !exists {
		return nil, NewTypeDefNotFoundError(guid)
	}
	for _, td := range versions {
		if td.Version == version {
			return td.Clone(), nil
		}
	}
	return nil, NewTypeDefNotFoundError(guid).
		WithDetail("version", version)
}

func (c *TypeDefCatalog) GetTypeDefByName(ctx context.Context, name string) (*TypeDef, error) {
	c.mu.RLock()
	guid, exists := c.nameToGUID[name]
	c.mu.RUnlock()

	if !exists {
		return nil, NewTypeDefNotFoundError(name)
	}
	return c.GetLatestTypeDef(ctx, guid)
}

func (c *TypeDefCatalog) ListTypeDefs(_ context.Context) ([]*TypeDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*TypeDef, 0, len(c.byGUID))
	for _, versions := range c.byGUID {
		out = append(out, versions[len(versions)-1].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// VersionHistory returns every stored version of a TypeDef in ascending
// version order.
func (c *TypeDefCatalog) VersionHistory(guid string) ([]*TypeDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	versions, exists := c.byGUID[guid]
	if !exists {
		return nil, NewTypeDefNotFoundError(guid)
	}
	out := make([]*TypeDef, len(versions))
	for i, td := range versions {
		out[i] = td.Clone()
	}
	return out, nil
}
