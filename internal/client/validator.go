// Package client implements the cross-service credential validation
// protocol: a front-facing instance delegates username/password checks to a
// remote authentication service and normalizes every remote failure shape
// into the local error taxonomy before it can leak further.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"auth-service/internal/domain"
	"auth-service/internal/service"
)

// Validator delegates credential verification to a remote auth service.
type Validator struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewValidator builds a validator against the given base URL. The timeout
// bounds the whole exchange; on expiry the outcome is ErrAuthUnavailable,
// never an indefinite hang.
func NewValidator(baseURL string, timeout time.Duration, logger *logrus.Logger) *Validator {
	return &Validator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type validateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type validateResponse struct {
	Valid    bool     `json:"valid"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// Validate verifies credentials against the remote service and returns a
// local user representation carrying the remote role set.
//
// Remote outcomes map onto the local taxonomy as follows: an explicit
// {valid:false} body and an unauthorized or not-found status are all
// ErrInvalidCredentials, so the caller cannot tell an unknown user from a
// wrong password; transport failures, timeouts and unexpected statuses are
// ErrAuthUnavailable. A single attempt is made; retrying is the caller's
// decision.
func (v *Validator) Validate(ctx context.Context, username, password string) (*domain.User, error) {
	body, err := json.Marshal(validateRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("encode validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/api/v1/auth/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.WithError(err).Warn("remote credential validation unreachable")
		return nil, service.ErrAuthUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// verified or explicit negative verdict; decode to find out
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusNotFound:
		v.logger.WithField("username", username).Info("remote rejected credentials")
		return nil, service.ErrInvalidCredentials
	default:
		v.logger.WithField("status", resp.StatusCode).Warn("unexpected remote validation status")
		return nil, service.ErrAuthUnavailable
	}

	var verdict validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		v.logger.WithError(err).Warn("malformed remote validation response")
		return nil, service.ErrAuthUnavailable
	}
	if !verdict.Valid {
		return nil, service.ErrInvalidCredentials
	}

	user := &domain.User{
		Username: verdict.Username,
		Enabled:  true,
	}
	for _, role := range verdict.Roles {
		user.AddRole(role)
	}
	return user, nil
}
