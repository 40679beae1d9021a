package twofasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the Caseloop second-factor service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new second-factor service client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// BeginEnrollment starts an enrollment for the acting user and returns the
// offer to display. Nothing is stored until ConfirmEnrollment succeeds.
func (c *Client) BeginEnrollment(ctx context.Context, serviceToken string, req BeginEnrollmentRequest) (*EnrollmentOfferResponse, error) {
	var out EnrollmentOfferResponse
	if err := c.do(ctx, http.MethodPost, "/v1/2fa/enrollment", serviceToken, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmEnrollment proves possession of the offered secret and turns 2FA on.
func (c *Client) ConfirmEnrollment(ctx context.Context, serviceToken string, req ConfirmEnrollmentRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/2fa/enrollment/confirm", serviceToken, req, nil)
}

// Disable turns 2FA off for the acting user, deleting the secret and
// recovery codes and revoking all trusted devices.
func (c *Client) Disable(ctx context.Context, serviceToken string) error {
	return c.do(ctx, http.MethodDelete, "/v1/2fa", serviceToken, nil, nil)
}

// RegenerateRecoveryCodes replaces the recovery set after verifying a code.
func (c *Client) RegenerateRecoveryCodes(ctx context.Context, serviceToken string, req RegenerateRecoveryCodesRequest) (*RecoveryCodesResponse, error) {
	var out RecoveryCodesResponse
	if err := c.do(ctx, http.MethodPost, "/v1/2fa/recovery-codes", serviceToken, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IssueChallenge creates a verification nonce for the acting user. Call this
// after the primary credentials pass, then Verify or VerifyRecovery.
func (c *Client) IssueChallenge(ctx context.Context, serviceToken string) (*ChallengeResponse, error) {
	var out ChallengeResponse
	if err := c.do(ctx, http.MethodPost, "/v1/2fa/challenge", serviceToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify submits a TOTP code against a challenge nonce.
func (c *Client) Verify(ctx context.Context, serviceToken string, req VerifyRequest) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.do(ctx, http.MethodPost, "/v1/2fa/verify", serviceToken, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyRecovery submits a recovery code against a challenge nonce.
func (c *Client) VerifyRecovery(ctx context.Context, serviceToken string, req VerifyRecoveryRequest) (*VerifyRecoveryResponse, error) {
	var out VerifyRecoveryResponse
	if err := c.do(ctx, http.MethodPost, "/v1/2fa/verify/recovery", serviceToken, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckDevice asks whether the presented trust token lets the acting user
// skip the second factor. Pass the token explicitly; browser flows use the
// cookie instead and never call through the SDK.
func (c *Client) CheckDevice(ctx context.Context, serviceToken string, req DeviceCheckRequest) (*DeviceCheckResponse, error) {
	var out DeviceCheckResponse
	if err := c.do(ctx, http.MethodPost, "/v1/devices/check", serviceToken, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDevices returns the acting user's live trusted devices.
func (c *Client) ListDevices(ctx context.Context, serviceToken string) (*DevicesResponse, error) {
	var out DevicesResponse
	if err := c.do(ctx, http.MethodGet, "/v1/devices", serviceToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeDevice withdraws one trusted device by id.
func (c *Client) RevokeDevice(ctx context.Context, serviceToken, deviceID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/devices/"+deviceID, serviceToken, nil, nil)
}

// GetLiveness checks the service is up.
func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/livez", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReadiness checks the service can reach its store.
func (c *Client) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/readyz", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one JSON round trip. A nil in skips the request body; a nil
// out discards the response body. Non-2xx responses decode into *Error.
func (c *Client) do(ctx context.Context, method, path, serviceToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+serviceToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
