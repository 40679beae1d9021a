package http

import (
	"net/http"
	"time"

	"github.com/caseloop/twofactor/pkg/httpx"
	"github.com/caseloop/twofactor/pkg/twofasdk"
)

// LivezHandler is the liveness probe. It returns 200 whenever the process is
// serving requests.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, twofasdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}
