// Package auth maps connection tokens to the identities that sign table
// operations.
package auth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrInvalidToken indicates the token is definitively invalid.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnavailable indicates the auth service is unreachable or unavailable.
	// Callers may choose to fail open (allow) or fail closed (reject).
	ErrUnavailable = errors.New("auth: unavailable")
)

// Identity is who a token speaks for.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Validator validates authentication tokens.
type Validator interface {
	// Validate checks if a token is valid and returns the identity.
	// Returns:
	//   - (*Identity, nil) if token is valid
	//   - (nil, ErrInvalidToken) if token is definitively invalid
	//   - (nil, ErrUnavailable) if auth service is unavailable
	Validate(ctx context.Context, token string) (*Identity, error)
}

// StaticValidator checks tokens against a fixed token → identity table.
type StaticValidator struct {
	tokens map[string]string
}

// NewStaticValidator creates a validator from a token → identity map.
func NewStaticValidator(tokens map[string]string) *StaticValidator {
	copied := make(map[string]string, len(tokens))
	for token, id := range tokens {
		copied[token] = id
	}
	return &StaticValidator{tokens: copied}
}

func (v *StaticValidator) Validate(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	for known, id := range v.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return &Identity{ID: id}, nil
		}
	}
	return nil, ErrInvalidToken
}

// HTTPValidator validates tokens via HTTP callback to external service.
type HTTPValidator struct {
	url         string
	client      *http.Client
	adminSecret string
}

// NewHTTPValidator creates a validator that calls an external HTTP endpoint.
func NewHTTPValidator(url string, adminSecret string) *HTTPValidator {
	return &HTTPValidator{
		url:         url,
		adminSecret: adminSecret,
		client: &http.Client{
			Timeout: 500 * time.Millisecond, // Align with context timeout
		},
	}
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid    bool   `json:"valid"`
	Identity string `json:"identity,omitempty"`
	Name     string `json:"name,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (v *HTTPValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	// Empty token is invalid when auth is enabled
	if token == "" {
		return nil, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	reqBody, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if v.adminSecret != "" {
		req.Header.Set("X-Admin-Secret", v.adminSecret)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		// Network errors, timeouts, etc. = unavailable
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidToken
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var authResp validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&authResp); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrUnavailable, err)
	}
	if !authResp.Valid || authResp.Identity == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{ID: authResp.Identity, Name: authResp.Name}, nil
}

// NoopValidator trusts the token as the identity itself (dev mode). Reserved
// identities, such as the table admin and the oracle, can never be claimed
// this way.
type NoopValidator struct {
	reserved map[string]bool
}

// NewNoopValidator creates a validator that accepts any non-empty token that
// is not one of the reserved identities.
func NewNoopValidator(reserved ...string) *NoopValidator {
	v := &NoopValidator{reserved: make(map[string]bool, len(reserved))}
	for _, id := range reserved {
		if id != "" {
			v.reserved[id] = true
		}
	}
	return v
}

func (v *NoopValidator) Validate(_ context.Context, token string) (*Identity, error) {
	if token == "" || v.reserved[token] {
		return nil, ErrInvalidToken
	}
	return &Identity{ID: token}, nil
}
