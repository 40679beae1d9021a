package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/caseloop/twofactor/internal/twofactor/domain"
	"github.com/caseloop/twofactor/internal/twofactor/service"
	"github.com/caseloop/twofactor/pkg/httpx"
	"github.com/caseloop/twofactor/pkg/slogx"
	"github.com/caseloop/twofactor/pkg/twofasdk"
)

// DevicesHandler handles device-trust endpoints.
type DevicesHandler struct {
	DeviceTrust *service.DeviceTrustService
}

// HandleCheck handles POST /v1/devices/check. The token comes from the
// request body or, failing that, the trust cookie. A grant due for rotation
// is rotated transparently; the caller just sees a fresh Set-Cookie.
func (h *DevicesHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		twofasdk.ErrInvalidToken.WriteError(w)
		return
	}

	var req twofasdk.DeviceCheckRequest
	if r.Body != nil {
		// An empty body is fine; the cookie carries the token then.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	token := req.Token
	if token == "" {
		token = trustCookieToken(r)
	}
	if token == "" {
		twofasdk.ErrDeviceNotFound.WriteError(w)
		return
	}

	check, err := h.DeviceTrust.Check(ctx, token, clientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, service.ErrDeviceRevoked) || errors.Is(err, service.ErrDeviceExpired) {
			clearTrustCookie(w)
		}
		log.Info("device check refused", "user_id", userID, "err", err)
		writeServiceError(w, log, err)
		return
	}

	// The grant must belong to the acting user; a stolen cookie presented
	// under another account reveals nothing.
	if check.Device.UserID != userID {
		log.Warn("device token user mismatch", "user_id", userID)
		twofasdk.ErrDeviceNotFound.WriteError(w)
		return
	}

	resp := twofasdk.DeviceCheckResponse{
		Valid:  true,
		UserID: check.Device.UserID,
		Device: deviceInfo(*check.Device),
	}

	if check.NeedsRotation {
		grant, err := h.DeviceTrust.Rotate(ctx, token, clientIP(r), r.UserAgent())
		if err != nil {
			// The check already passed; stale-but-live tokens keep working
			// until the next visit.
			log.Error("failed to rotate device trust", "user_id", userID, "err", err)
		} else {
			resp.Rotated = true
			resp.TrustToken = grant.Token
			resp.Device = deviceInfo(grant.Device)
			setTrustCookie(w, grant.Token, grant.Expires)
		}
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleList handles GET /v1/devices.
func (h *DevicesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		twofasdk.ErrInvalidToken.WriteError(w)
		return
	}

	devices, err := h.DeviceTrust.List(ctx, userID)
	if err != nil {
		log.Error("failed to list trusted devices", "user_id", userID, "err", err)
		writeServiceError(w, log, err)
		return
	}

	out := make([]twofasdk.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		out = append(out, *deviceInfo(d))
	}
	httpx.WriteJSON(w, http.StatusOK, twofasdk.DevicesResponse{Devices: out})
}

// HandleRevoke handles DELETE /v1/devices/{id}.
func (h *DevicesHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		twofasdk.ErrInvalidToken.WriteError(w)
		return
	}

	deviceID := r.PathValue("id")
	if deviceID == "" {
		twofasdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.DeviceTrust.Revoke(ctx, userID, deviceID); err != nil {
		log.Warn("device revoke refused", "user_id", userID, "device_id", deviceID, "err", err)
		writeServiceError(w, log, err)
		return
	}

	log.Info("trusted device revoked", "user_id", userID, "device_id", deviceID)
	w.WriteHeader(http.StatusNoContent)
}

func deviceInfo(d domain.TrustedDevice) *twofasdk.DeviceInfo {
	return &twofasdk.DeviceInfo{
		ID:         d.ID,
		Name:       d.Name,
		FirstIP:    d.FirstIP,
		LastIP:     d.LastIP,
		CreatedAt:  d.CreatedAt,
		LastSeenAt: d.LastSeenAt,
		ExpiresAt:  d.ExpiresAt,
	}
}
