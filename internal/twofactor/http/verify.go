package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/service"
	"github.com/caseloop/twofactor/pkg/httpx"
	"github.com/caseloop/twofactor/pkg/slogx"
	"github.com/caseloop/twofactor/pkg/twofasdk"
)

// VerifyHandler handles the challenge/verify endpoints of a login flow.
type VerifyHandler struct {
	Verification *service.VerificationService
	DeviceTrust  *service.DeviceTrustService
}

// HandleChallenge handles POST /v1/2fa/challenge.
func (h *VerifyHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		twofasdk.ErrInvalidToken.WriteError(w)
		return
	}

	nonce, expires, err := h.Verification.IssueNonce(ctx, userID)
	if err != nil {
		log.Warn("challenge refused", "user_id", userID, "err", err)
		writeServiceError(w, log, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, twofasdk.ChallengeResponse{
		Nonce:     nonce,
		ExpiresAt: expires,
	})
}

// HandleVerify handles POST /v1/2fa/verify.
func (h *VerifyHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req twofasdk.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Nonce == "" || req.Code == "" {
		twofasdk.ErrInvalidRequest.WriteError(w)
		return
	}

	userID, err := h.Verification.Verify(ctx, req.Nonce, req.Code)
	if err != nil {
		log.Warn("verification failed", "err", err)
		writeServiceError(w, log, err)
		return
	}

	log.Info("verification succeeded", "user_id", userID)
	resp := twofasdk.VerifyResponse{UserID: userID}
	h.maybeTrust(ctx, log, w, &resp.TrustToken, &resp.TrustExpiresAt, userID, req.TrustDevice, req.DeviceName, r)

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerifyRecovery handles POST /v1/2fa/verify/recovery.
func (h *VerifyHandler) HandleVerifyRecovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req twofasdk.VerifyRecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Nonce == "" || req.RecoveryCode == "" {
		twofasdk.ErrInvalidRequest.WriteError(w)
		return
	}

	userID, remaining, err := h.Verification.VerifyRecovery(ctx, req.Nonce, req.RecoveryCode)
	if err != nil {
		log.Warn("recovery verification failed", "err", err)
		writeServiceError(w, log, err)
		return
	}

	log.Info("recovery verification succeeded", "user_id", userID, "remaining_codes", remaining)
	resp := twofasdk.VerifyRecoveryResponse{UserID: userID, RemainingCodes: remaining}
	h.maybeTrust(ctx, log, w, &resp.TrustToken, &resp.TrustExpiresAt, userID, req.TrustDevice, req.DeviceName, r)

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// maybeTrust mints a device-trust grant after a successful verification when
// the request asked for one. Trust is best effort: a failure here must not
// undo the verification, so it only logs.
func (h *VerifyHandler) maybeTrust(
	ctx context.Context, log *slog.Logger, w http.ResponseWriter,
	token *string, expires **time.Time,
	userID string, wanted bool, name string, r *http.Request,
) {
	if !wanted {
		return
	}

	if name == "" {
		name = "unnamed device"
	}
	grant, err := h.DeviceTrust.Trust(ctx, userID, name, clientIP(r), r.UserAgent())
	if err != nil {
		log.Error("failed to mint device trust", "user_id", userID, "err", err)
		return
	}

	*token = grant.Token
	exp := grant.Expires
	*expires = &exp
	setTrustCookie(w, grant.Token, grant.Expires)
}
