package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/askdocs/askdocs-go/internal/logging"
)

// probeTimeout bounds each dependency probe during a readiness check, so
// /api/ready answers quickly even when a dependency hangs instead of
// refusing the connection.
const probeTimeout = 5 * time.Second

// Pinger reports the reachability of one named dependency. Ping returns
// nil when the dependency is healthy. Implementations must be safe to call
// from multiple goroutines.
type Pinger interface {
	Ping(ctx context.Context) error

	// Name is the short label shown in readiness responses (e.g.
	// "vectors", "embedder").
	Name() string
}

// readyCheck is the per-dependency result of a readiness probe.
type readyCheck struct {
	// Name is the dependency label.
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Error holds the failure reason when OK is false.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every dependency probe succeeded.
	Ready bool `json:"ready"`
	// Checks contains the per-dependency probe results.
	Checks []readyCheck `json:"checks"`
}

// handleReady probes every registered Pinger with a short timeout and
// answers 200 when all dependencies are reachable, 503 otherwise. Unlike
// /api/health (liveness), this reflects actual dependency state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true}

	for _, p := range s.pingers {
		probeCtx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Ping(probeCtx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
