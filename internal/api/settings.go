package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/solar-control-core/internal/settings"
)

// inverterTypeRequest is the body of the inverter type and selection
// endpoints.
type inverterTypeRequest struct {
	Type     string       `json:"type"`
	Settings settings.Set `json:"settings"`
}

// handleGetUniversal returns the universal settings.
func (s *Server) handleGetUniversal(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Universal())
}

// handleUpdateUniversal merges the body into the universal settings,
// responds with the merged set and then publishes every key.
func (s *Server) handleUpdateUniversal(w http.ResponseWriter, r *http.Request) {
	var patch settings.Set
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	merged, err := s.settings.MergeUniversal(r.Context(), patch)
	if err != nil {
		s.logger.Error("saving universal settings failed", "error", err)
		writeInternalError(w, "failed to save universal settings")
		return
	}

	writeJSON(w, http.StatusOK, merged)
	s.publishAfterResponse(w, r, merged, s.topics.Universal)
}

// handleListInverterTypes returns the configured inverter type names.
func (s *Server) handleListInverterTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Types())
}

// handleCreateInverterType adds an inverter type.
func (s *Server) handleCreateInverterType(w http.ResponseWriter, r *http.Request) {
	var req inverterTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.settings.AddType(r.Context(), req.Type, req.Settings); err != nil {
		switch {
		case errors.Is(err, settings.ErrInvalidType):
			writeBadRequest(w, "type is required")
		case errors.Is(err, settings.ErrTypeExists):
			writeBadRequest(w, "inverter type already exists")
		default:
			s.logger.Error("adding inverter type failed", "type", req.Type, "error", err)
			writeInternalError(w, "failed to add inverter type")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "inverter type added",
		"type":     req.Type,
		"settings": req.Settings,
	})
}

// handleUpdateInverterType merges the body's settings into an inverter
// type's configuration.
func (s *Server) handleUpdateInverterType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "type")

	var req inverterTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	merged, err := s.settings.UpdateType(r.Context(), name, req.Settings)
	if err != nil {
		if errors.Is(err, settings.ErrUnknownType) {
			writeNotFound(w, "inverter type not found")
			return
		}
		s.logger.Error("updating inverter type failed", "type", name, "error", err)
		writeInternalError(w, "failed to update inverter type")
		return
	}

	writeJSON(w, http.StatusOK, settings.InverterType{Name: name, Settings: merged})
}

// handleDeleteInverterType removes an inverter type.
func (s *Server) handleDeleteInverterType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "type")

	if err := s.settings.DeleteType(r.Context(), name); err != nil {
		if errors.Is(err, settings.ErrUnknownType) {
			writeNotFound(w, "inverter type not found")
			return
		}
		s.logger.Error("deleting inverter type failed", "type", name, "error", err)
		writeInternalError(w, "failed to delete inverter type")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetInverterSettings returns the current inverter type and settings.
func (s *Server) handleGetInverterSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Current())
}

// handleSelectInverter selects an inverter type, merges the body's settings
// over its configuration, responds and then publishes every key.
func (s *Server) handleSelectInverter(w http.ResponseWriter, r *http.Request) {
	var req inverterTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	current, err := s.settings.Select(r.Context(), req.Type, req.Settings)
	if err != nil {
		if errors.Is(err, settings.ErrUnknownType) {
			writeBadRequest(w, "invalid inverter type")
			return
		}
		s.logger.Error("selecting inverter type failed", "type", req.Type, "error", err)
		writeInternalError(w, "failed to save inverter settings")
		return
	}

	writeJSON(w, http.StatusOK, current)
	s.publishAfterResponse(w, r, current.Settings, s.topics.Inverter)
}

// publishAfterResponse flushes the response already written to w and then
// publishes every key of set. The publishes outlive the request context.
func (s *Server) publishAfterResponse(w http.ResponseWriter, r *http.Request, set settings.Set, topic func(string) string) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	if s.publisher == nil {
		s.logger.Warn("no publisher configured, settings not sent", "keys", set.Len())
		return
	}
	settings.PublishAll(context.WithoutCancel(r.Context()), s.publisher, set, topic, s.logger)
}
