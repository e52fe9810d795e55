package statusserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/GoCodeAlone/sage"
	"github.com/GoCodeAlone/sage/eventbus"
	"github.com/GoCodeAlone/sage/modules/system"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Health  system.HealthReport `json:"health"`
	Modules []sage.ModuleStatus `json:"modules"`
}

// UtteranceRequest is the body of POST /utterances and of websocket messages.
type UtteranceRequest struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *StatusServer) healthz(w http.ResponseWriter, _ *http.Request) {
	report := system.Evaluate(s.app.Modules(), s.app.Bus().Stats())
	code := http.StatusOK
	if report.Status == system.HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func (s *StatusServer) status(w http.ResponseWriter, _ *http.Request) {
	modules := s.app.Modules()
	writeJSON(w, http.StatusOK, StatusResponse{
		Health:  system.Evaluate(modules, s.app.Bus().Stats()),
		Modules: modules,
	})
}

func (s *StatusServer) events(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.EventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, s.cfg.EventLimit)
	}
	typ := r.URL.Query().Get("type")
	if typ == "" {
		writeJSON(w, http.StatusOK, s.app.Bus().Recent(limit))
		return
	}
	// filter the whole history first so older matches are not hidden by newer events
	var events []eventbus.Event
	for _, e := range s.app.Bus().Recent(0) {
		if string(e.Type) == typ {
			events = append(events, e)
		}
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	if events == nil {
		events = []eventbus.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *StatusServer) utterance(w http.ResponseWriter, r *http.Request) {
	var req UtteranceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	payload, err := req.speech()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.app.Bus().Emit(r.Context(), ModuleName, payload); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (u UtteranceRequest) speech() (eventbus.SpeechRecognized, error) {
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return eventbus.SpeechRecognized{}, ErrEmptyUtterance
	}
	confidence := 1.0
	if u.Confidence != nil {
		confidence = *u.Confidence
	}
	if confidence < 0 || confidence > 1 {
		return eventbus.SpeechRecognized{}, ErrInvalidConfidence
	}
	return eventbus.SpeechRecognized{Text: text, Confidence: confidence}, nil
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
