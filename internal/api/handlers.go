package api

import (
	"encoding/json"
	"maps"
	"net/http"
	"strconv"
	"strings"

	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

const (
	defaultHistoryLimit = 100
	defaultLogLines     = 100
)

type healthResponse struct {
	Status string `json:"status"`
}

type errorsResponse struct {
	Halted bool   `json:"halted"`
	Error  string `json:"error,omitempty"`
}

type queueResponse struct {
	Current *task.Record  `json:"current,omitempty"`
	Pending []task.Record `json:"pending"`
}

type logsResponse struct {
	Services string   `json:"services"`
	Stdout   []string `json:"stdout"`
	Stderr   []string `json:"stderr"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleMachine(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.machine.Snapshot())
}

// handleEnv returns only the DOCKER_* variables; the rest of the task
// environment is inherited from this process and may hold credentials.
func (s *Server) handleEnv(w http.ResponseWriter, r *http.Request) {
	env := s.machine.Env()
	maps.DeleteFunc(env, func(k, _ string) bool {
		return !strings.HasPrefix(k, "DOCKER_")
	})
	s.writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultHistoryLimit)

	if s.history == nil {
		s.writeJSON(w, http.StatusOK, lastN(s.machine.Records(), limit))
		return
	}

	records, err := s.history.List(r.Context(), s.machine.Name(), limit)
	if err != nil {
		s.logger.Error("list history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if records == nil {
		records = []task.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.errorsResponse())
}

func (s *Server) handleClearErrors(w http.ResponseWriter, r *http.Request) {
	s.machine.ClearErrors()
	s.logger.Info("errors_cleared_via_api")
	s.writeJSON(w, http.StatusOK, s.errorsResponse())
}

func (s *Server) errorsResponse() errorsResponse {
	err := s.machine.Errors()
	if err == nil {
		return errorsResponse{}
	}
	return errorsResponse{Halted: true, Error: err.Error()}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := parseIntQuery(r, "lines", defaultLogLines)
	s.writeJSON(w, http.StatusOK, logsResponse{
		Services: s.machine.Logs(),
		Stdout:   lastN(s.machine.Stdout().Snapshot(), n),
		Stderr:   lastN(s.machine.Stderr().Snapshot(), n),
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	resp := queueResponse{Pending: s.machine.Pending()}
	if rec, ok := s.machine.Current(); ok {
		resp.Current = &rec
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return defaultVal
	}
	return v
}

// lastN returns the trailing n items, never nil. n <= 0 returns all.
func lastN[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		items = items[len(items)-n:]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
