package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const defaultEmailCheckTimeout = 4 * time.Second

// EmailVerdict is the typed outcome of an email-validation call. The
// fail-open policy is an explicit branch on these values, not a side
// effect of swallowed errors.
type EmailVerdict int

const (
	// EmailValid: the validator confirmed the address.
	EmailValid EmailVerdict = iota
	// EmailInvalid: the validator explicitly rejected the address. This is
	// the only verdict that blocks lead creation.
	EmailInvalid
	// EmailUnreachable: timeout, transport error, non-2xx, or a garbled
	// response. Callers proceed as if validation were skipped.
	EmailUnreachable
)

func (v EmailVerdict) String() string {
	switch v {
	case EmailValid:
		return "valid"
	case EmailInvalid:
		return "invalid"
	default:
		return "unreachable"
	}
}

// EmailChecker calls the external syntax-validation service.
type EmailChecker struct {
	url        string
	httpClient *http.Client
	log        *slog.Logger
}

// NewEmailChecker builds a checker with its own short-timeout client. An
// empty URL disables checking entirely (every call is Unreachable).
func NewEmailChecker(url string, timeout time.Duration, log *slog.Logger) *EmailChecker {
	if timeout <= 0 {
		timeout = defaultEmailCheckTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &EmailChecker{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type emailCheckRequest struct {
	Email string `json:"email"`
}

type emailCheckResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email,omitempty"`
	Error string `json:"error,omitempty"`
}

// Check returns the verdict for one address. It never returns an error:
// every failure mode collapses into EmailUnreachable, logged at warn.
func (c *EmailChecker) Check(ctx context.Context, email string) EmailVerdict {
	if c.url == "" {
		return EmailUnreachable
	}

	body, err := json.Marshal(emailCheckRequest{Email: email})
	if err != nil {
		c.log.Warn("email check: marshal request", "error", err)
		return EmailUnreachable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.log.Warn("email check: build request", "error", err)
		return EmailUnreachable
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("email check: transport error, failing open", "error", err)
		return EmailUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("email check: non-2xx, failing open", "status", resp.StatusCode)
		return EmailUnreachable
	}

	var result emailCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.log.Warn("email check: invalid response, failing open", "error", fmt.Errorf("decode: %w", err))
		return EmailUnreachable
	}

	if !result.Valid {
		return EmailInvalid
	}
	return EmailValid
}
