package http

import (
	"net/http"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/store"
	"github.com/caseloop/twofactor/pkg/httpx"
	"github.com/caseloop/twofactor/pkg/twofasdk"
)

// ReadyzHandler is the readiness probe; it fails when the store is
// unreachable.
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &twofasdk.HealthChecks{Database: "ok"}
		status := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, statusCode, twofasdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
