package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/cohort"
)

// handleTypeDefs serves GET (list) and POST (register new) on /api/v1/typedefs.
func (s *Server) handleTypeDefs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTypeDefs(w, r)
	case http.MethodPost:
		s.createTypeDef(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listTypeDefs(w http.ResponseWriter, r *http.Request) {
	typeDefs, err := s.store.ListTypeDefs(r.Context())
	if err != nil {
		writeCohortError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, typeDefs)
}

func (s *Server) createTypeDef(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	var td cohort.TypeDef
	if err := readJSONBody(r, &td); err != nil {
		writeError(w, http.StatusBadRequest, "invalid typedef body: "+err.Error())
		return
	}
	if td.GUID == "" {
		td.GUID = uuid.NewString()
	}
	if td.Version == 0 {
		td.Version = 1
	}
	if td.CreateTime == nil {
		now := time.Now().UTC()
		td.CreateTime = &now
	}

	if err := s.security.VerifyTypeDefAccess(r.Context(), userID, cohort.AccessOperationCreate, &td); err != nil {
		writeCohortError(w, err)
		return
	}
	if err := s.store.AddTypeDef(r.Context(), &td); err != nil {
		writeCohortError(w, err)
		return
	}
	if err := s.sync.BroadcastNewTypeDef(&td); err != nil {
		writeCohortError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, &td)
}

// handleTypeDefByGUID serves /api/v1/typedefs/{guid} and
// /api/v1/typedefs/{guid}/patch.
func (s *Server) handleTypeDefByGUID(w http.ResponseWriter, r *http.Request) {
	guid, action, err := parseTypeDefPath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getTypeDef(w, r, guid)
	case action == "patch" && r.Method == http.MethodPost:
		s.patchTypeDef(w, r, guid)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) getTypeDef(w http.ResponseWriter, r *http.Request, guid string) {
	td, err := s.store.GetLatestTypeDef(r.Context(), guid)
	if err != nil {
		writeCohortError(w, err)
		return
	}
	if err := s.security.VerifyTypeDefAccess(r.Context(), requestUser(r), cohort.AccessOperationRead, td); err != nil {
		writeCohortError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, td)
}

func (s *Server) patchTypeDef(w http.ResponseWriter, r *http.Request, guid string) {
	userID := requestUser(r)
	var patch cohort.TypeDefPatch
	if err := readJSONBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid patch body: "+err.Error())
		return
	}
	if patch.TypeDefGUID == "" {
		patch.TypeDefGUID = guid
	} else if patch.TypeDefGUID != guid {
		writeError(w, http.StatusBadRequest, "patch typeDefGUID does not match URL")
		return
	}

	current, err := s.store.GetLatestTypeDef(r.Context(), guid)
	if err != nil {
		writeCohortError(w, err)
		return
	}
	if err := s.security.VerifyTypeDefAccess(r.Context(), userID, cohort.AccessOperationUpdate, current); err != nil {
		writeCohortError(w, err)
		return
	}

	updated, err := s.engine.ApplyPatch(current, &patch)
	if err != nil {
		writeCohortError(w, err)
		return
	}
	if updated.Version == current.Version {
		// superseded patch, nothing stored
		writeSuccess(w, http.StatusOK, updated)
		return
	}
	if err := s.store.AddTypeDefVersion(r.Context(), updated); err != nil {
		writeCohortError(w, err)
		return
	}
	if err := s.sync.BroadcastTypeDefPatch(&patch); err != nil {
		writeCohortError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, updated)
}

// handleTypeDefByName serves GET /api/v1/typedef-by-name/{name}.
func (s *Server) handleTypeDefByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/typedef-by-name/"), "/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "typedef name missing from path")
		return
	}
	td, err := s.store.GetTypeDefByName(r.Context(), name)
	if err != nil {
		writeCohortError(w, err)
		return
	}
	if err := s.security.VerifyTypeDefAccess(r.Context(), requestUser(r), cohort.AccessOperationRead, td); err != nil {
		writeCohortError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, td)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}
