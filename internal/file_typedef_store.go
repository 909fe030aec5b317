package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/lychee-technology/cohort"
	"go.uber.org/zap"
)

// LoadTypeDefArchive reads every *.json typedef archive file in dir and
// registers its contents with the store. An archive file holds either a
// single TypeDef object or an array of them.
//
// Archives seed a fresh member with the cohort's baseline types before any
// broadcast traffic arrives. A typedef already present in the store is
// skipped, so reloading an archive on restart is harmless.
func LoadTypeDefArchive(ctx context.Context, store cohort.TypeDefStore, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, archiveError(fmt.Sprintf("cannot read archive directory %s", dir), err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && filepath.Ext(name) == ".json" {
			names = append(names, name)
		}
	}
	// deterministic load order
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return loaded, archiveError(fmt.Sprintf("cannot read archive file %s", path), err)
		}

		typeDefs, err := decodeArchiveFile(data)
		if err != nil {
			return loaded, archiveError(fmt.Sprintf("cannot parse archive file %s", path), err)
		}

		for _, td := range typeDefs {
			if td.GUID == "" || td.Name == "" {
				return loaded, archiveError(
					fmt.Sprintf("archive file %s holds a typedef without guid or name", path), nil)
			}
			err := store.AddTypeDef(ctx, td)
			switch {
			case err == nil:
				loaded++
			case cohort.IsConflictError(err):
				zap.S().Debugw("archive typedef already registered",
					"guid", td.GUID, "name", td.Name, "file", name)
			default:
				return loaded, err
			}
		}
	}

	if loaded > 0 {
		zap.S().Infow("loaded typedef archive", "dir", dir, "typedefs", loaded)
	}
	return loaded, nil
}

// decodeArchiveFile accepts both a bare TypeDef object and an array of them.
func decodeArchiveFile(data []byte) ([]*cohort.TypeDef, error) {
	var many []*cohort.TypeDef
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one cohort.TypeDef
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []*cohort.TypeDef{&one}, nil
}

func archiveError(message string, cause error) error {
	err := cohort.NewInvalidParameterError(cohort.ErrCodeArchiveLoadFailed, message)
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}
