package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tracker/internal/core"
	"tracker/internal/store"
)

const maxBodyBytes = 1 << 20

type recordsResponse struct {
	Kind    core.Kind     `json:"kind"`
	Records []core.Record `json:"records"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return badParam("body", err)
	}
	return nil
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := store.Filter{Field: strings.TrimSpace(q.Get("field")), Value: q.Get("value")}

	records, err := s.records.List(r.Context(), kind, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []core.Record{}
	}
	writeJSON(w, http.StatusOK, recordsResponse{Kind: kind, Records: records})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var rec core.Record
	if err := decodeBody(w, r, &rec); err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := core.ParseKind(string(rec.Kind))
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec.Kind = kind
	rec.ID = ""
	if rec.Payload == nil {
		rec.Payload = core.Payload{}
	}
	sanitizePayload(rec.Payload)

	created, err := s.records.Create(r.Context(), rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/records/%s?kind=%s", created.ID, created.Kind))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch store.Patch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.Date == nil && len(patch.Fields) == 0 {
		writeError(w, r, badParam("body", errors.New("nothing to update")))
		return
	}
	sanitizePayload(patch.Fields)

	updated, err := s.records.Update(r.Context(), kind, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	kind, err := parseKind(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.records.Delete(r.Context(), kind, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
