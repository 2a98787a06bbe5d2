package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/solar-control-core/internal/command"
	"github.com/nerrad567/solar-control-core/internal/value"
)

// publishRequest is the body of POST /api/v1/mqtt.
type publishRequest struct {
	Topic   string      `json:"topic"`
	Message value.Value `json:"message"`
}

// handlePublish sends one message to an arbitrary topic.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Topic == "" {
		writeBadRequest(w, "topic is required")
		return
	}
	if s.publisher == nil {
		writeUnavailable(w, "MQTT not available")
		return
	}

	if err := s.publisher.Publish(r.Context(), req.Topic, req.Message); err != nil {
		switch {
		case errors.Is(err, command.ErrNaNValue), errors.Is(err, command.ErrEmptyTopic):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Warn("raw publish failed", "topic", req.Topic, "error", err)
			writeUnavailable(w, "publish failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "published"})
}
