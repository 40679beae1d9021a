package http

import (
	"encoding/json"
	"net/http"

	"github.com/caseloop/twofactor/internal/twofactor/service"
	"github.com/caseloop/twofactor/pkg/httpx"
	"github.com/caseloop/twofactor/pkg/slogx"
	"github.com/caseloop/twofactor/pkg/twofasdk"
)

// EnrollmentHandler handles the provisioning lifecycle endpoints.
type EnrollmentHandler struct {
	Enrollment *service.EnrollmentService
}

// HandleBegin handles POST /v1/2fa/enrollment.
func (h *EnrollmentHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		twofasdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req twofasdk.BeginEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountName == "" {
		twofasdk.ErrInvalidRequest.WriteError(w)
		return
	}

	offer, err := h.Enrollment.Begin(ctx, userID, req.AccountName)
	if err != nil {
		log.Warn("enrollment begin refused", "user_id", userID, "err", err)
		writeServiceError(w, log, err)
		return
	}

	// The offer carries the raw secret and recovery codes; it must never be
	// cached by any intermediary.
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, twofasdk.EnrollmentOfferResponse{
		Secret:          offer.Secret,
		ProvisioningURI: offer.ProvisioningURI,
		QRCodePNG:       offer.QRCodePNG,
		RecoveryCodes:   offer.RecoveryCodes,
	})
}

// HandleConfirm handles POST /v1/2fa/enrollment/confirm.
func (h *EnrollmentHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		twofasdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req twofasdk.ConfirmEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.Secret == "" || req.Code == "" || len(req.RecoveryCodes) == 0 {
		twofasdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Enrollment.Confirm(ctx, userID, req.Secret, req.RecoveryCodes, req.Code); err != nil {
		log.Warn("enrollment confirm failed", "user_id", userID, "err", err)
		writeServiceError(w, log, err)
		return
	}

	log.Info("two-factor enabled", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleDisable handles DELETE /v1/2fa.
func (h *EnrollmentHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		twofasdk.ErrInvalidToken.WriteError(w)
		return
	}

	if err := h.Enrollment.Disable(ctx, userID); err != nil {
		log.Error("failed to disable two-factor", "user_id", userID, "err", err)
		writeServiceError(w, log, err)
		return
	}

	log.Info("two-factor disabled", "user_id", userID)
	clearTrustCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleRegenerateRecoveryCodes handles POST /v1/2fa/recovery-codes.
func (h *EnrollmentHandler) HandleRegenerateRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		twofasdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req twofasdk.RegenerateRecoveryCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		twofasdk.ErrInvalidRequest.WriteError(w)
		return
	}

	codes, err := h.Enrollment.RegenerateRecoveryCodes(ctx, userID, req.Code)
	if err != nil {
		log.Warn("recovery code regeneration refused", "user_id", userID, "err", err)
		writeServiceError(w, log, err)
		return
	}

	log.Info("recovery codes regenerated", "user_id", userID)
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, twofasdk.RecoveryCodesResponse{RecoveryCodes: codes})
}
