package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/caseloop/twofactor/internal/twofactor/service"
	"github.com/caseloop/twofactor/pkg/twofasdk"
)

// writeServiceError maps the service error taxonomy to wire errors. Anything
// outside the taxonomy is infrastructure trouble: logged server-side, and
// reported to the caller only as the store being unavailable.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrNotEnrolled):
		twofasdk.ErrNotEnrolled.WriteError(w)
	case errors.Is(err, service.ErrAlreadyEnrolled):
		twofasdk.ErrAlreadyEnrolled.WriteError(w)
	case errors.Is(err, service.ErrSessionExpired):
		twofasdk.ErrSessionExpired.WriteError(w)
	case errors.Is(err, service.ErrInvalidCode):
		twofasdk.ErrInvalidCode.WriteError(w)
	case errors.Is(err, service.ErrInvalidRecoveryCode):
		twofasdk.ErrInvalidRecoveryCode.WriteError(w)
	case errors.Is(err, service.ErrCodeAlreadyUsed):
		twofasdk.ErrCodeAlreadyUsed.WriteError(w)
	case errors.Is(err, service.ErrTooManyAttempts):
		twofasdk.ErrTooManyAttempts.WriteError(w)
	case errors.Is(err, service.ErrDeviceNotFound):
		twofasdk.ErrDeviceNotFound.WriteError(w)
	case errors.Is(err, service.ErrDeviceRevoked):
		twofasdk.ErrDeviceRevoked.WriteError(w)
	case errors.Is(err, service.ErrDeviceExpired):
		twofasdk.ErrDeviceExpired.WriteError(w)
	default:
		log.Error("unexpected service error", "err", err)
		twofasdk.ErrStoreUnavailable.WriteError(w)
	}
}
