package observe

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const checkTimeout = 2 * time.Second

// Checker is one named readiness probe.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health serves /healthz (always ok while the process serves HTTP) and
// /readyz (ok only when every checker passes).
type Health struct {
	checkers []Checker
}

func NewHealth(checkers ...Checker) *Health {
	return &Health{checkers: append([]Checker(nil), checkers...)}
}

func (h *Health) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResult{Status: "ok"})
}

func (h *Health) Readyz(w http.ResponseWriter, r *http.Request) {
	res := healthResult{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}

	writeJSON(w, status, res)
}

// Register mounts both probes on mux.
func (h *Health) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
