package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/solar-control-core/internal/automation"
)

// maxIDLen limits path ID length.
const maxIDLen = 100

// handleListRules returns every automation rule in stored order.
func (s *Server) handleListRules(w http.ResponseWriter, _ *http.Request) {
	rules := s.registry.Rules()
	if rules == nil {
		rules = []automation.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// handleGetRule returns a single rule by ID.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxIDLen {
		writeBadRequest(w, "invalid rule ID")
		return
	}

	rule, err := s.registry.GetRule(id)
	if err != nil {
		writeNotFound(w, "rule not found")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// handleCreateRule creates a rule. The server assigns the ID.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule automation.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.registry.CreateRule(r.Context(), &rule); err != nil {
		s.logger.Error("creating rule failed", "name", rule.Name, "error", err)
		writeInternalError(w, "failed to create rule")
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

// rulePatch is a PUT body. Fields left out keep their stored value; a
// list that is present replaces the stored list whole.
type rulePatch struct {
	Name       *string                 `json:"name"`
	Conditions *[]automation.Condition `json:"conditions"`
	Actions    *[]automation.Action    `json:"actions"`
	Days       *[]string               `json:"days"`
}

func (p rulePatch) apply(rule *automation.Rule) {
	if p.Name != nil {
		rule.Name = *p.Name
	}
	if p.Conditions != nil {
		rule.Conditions = *p.Conditions
	}
	if p.Actions != nil {
		rule.Actions = *p.Actions
	}
	if p.Days != nil {
		rule.Days = *p.Days
	}
}

// handleUpdateRule merges the body's fields over the stored rule. The ID in
// the path always wins.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxIDLen {
		writeBadRequest(w, "invalid rule ID")
		return
	}

	rule, err := s.registry.GetRule(id)
	if err != nil {
		writeNotFound(w, "rule not found")
		return
	}

	var patch rulePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	patch.apply(rule)

	if err := s.registry.UpdateRule(r.Context(), rule); err != nil {
		if errors.Is(err, automation.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		s.logger.Error("updating rule failed", "id", id, "error", err)
		writeInternalError(w, "failed to update rule")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteRule removes a rule. Unknown IDs still return 204.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.DeleteRule(r.Context(), id); err != nil {
		s.logger.Error("deleting rule failed", "id", id, "error", err)
		writeInternalError(w, "failed to delete rule")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListSchedules returns every scheduled setting in stored order.
func (s *Server) handleListSchedules(w http.ResponseWriter, _ *http.Request) {
	schedules := s.registry.Schedules()
	if schedules == nil {
		schedules = []automation.ScheduledSetting{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

// handleGetSchedule returns a single scheduled setting by ID.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxIDLen {
		writeBadRequest(w, "invalid scheduled setting ID")
		return
	}

	setting, err := s.registry.GetSchedule(id)
	if err != nil {
		writeNotFound(w, "scheduled setting not found")
		return
	}

	writeJSON(w, http.StatusOK, setting)
}

// handleCreateSchedule creates a scheduled setting. The server assigns the
// ID.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var setting automation.ScheduledSetting
	if err := json.NewDecoder(r.Body).Decode(&setting); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.registry.CreateSchedule(r.Context(), &setting); err != nil {
		s.logger.Error("creating scheduled setting failed", "key", setting.Key, "error", err)
		writeInternalError(w, "failed to create scheduled setting")
		return
	}

	writeJSON(w, http.StatusCreated, setting)
}

// handleUpdateSchedule merges the body's fields over the stored setting.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxIDLen {
		writeBadRequest(w, "invalid scheduled setting ID")
		return
	}

	setting, err := s.registry.GetSchedule(id)
	if err != nil {
		writeNotFound(w, "scheduled setting not found")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(setting); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	setting.ID = id

	if err := s.registry.UpdateSchedule(r.Context(), setting); err != nil {
		if errors.Is(err, automation.ErrScheduleNotFound) {
			writeNotFound(w, "scheduled setting not found")
			return
		}
		s.logger.Error("updating scheduled setting failed", "id", id, "error", err)
		writeInternalError(w, "failed to update scheduled setting")
		return
	}

	writeJSON(w, http.StatusOK, setting)
}

// handleDeleteSchedule removes a scheduled setting. Unknown IDs still
// return 204.
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.DeleteSchedule(r.Context(), id); err != nil {
		s.logger.Error("deleting scheduled setting failed", "id", id, "error", err)
		writeInternalError(w, "failed to delete scheduled setting")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
