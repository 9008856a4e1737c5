package soc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/said46/autoSOC/internal/observability/metrics"
	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

// Outcome classifies a submission attempt.
type Outcome string

const (
	OutcomeSubmitted        Outcome = "submitted"
	OutcomeRejected         Outcome = "rejected"
	OutcomeTransportFailure Outcome = "transport_failure"
)

// Result is the classified response of one submission request.
type Result struct {
	AttemptID  string
	Outcome    Outcome
	StatusCode int
	Body       []byte
	Cause      error
}

// Retryable reports whether the identical request may be sent again.
func (r Result) Retryable() bool {
	return r.Outcome == OutcomeTransportFailure
}

// Err converts a non-success result into an error.
func (r Result) Err() error {
	switch r.Outcome {
	case OutcomeSubmitted:
		return nil
	case OutcomeRejected:
		return &RejectedError{StatusCode: r.StatusCode, Body: r.Body}
	default:
		return &TransportError{Cause: r.Cause}
	}
}

// RejectedError carries the verbatim remote rejection.
type RejectedError struct {
	StatusCode int
	Body       []byte
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("soc: submission rejected: http %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

func (e *RejectedError) Unwrap() error { return overrides.ErrRejected }

// TransportError means no response was received.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("soc: submission transport failure: %v", e.Cause)
}

func (e *TransportError) Unwrap() []error {
	return []error{overrides.ErrTransportFailure, e.Cause}
}

// Submit posts set in one request and classifies the response. It never
// retries. The error return covers local failures only.
func (c *Client) Submit(ctx context.Context, set *overrides.CertificateOverrideSet, cred Credential) (Result, error) {
	form, err := EncodeForm(set, cred.RequestToken, c.emptyAsNull)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.SubmitURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("soc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if cred.RequestToken != "" {
		req.Header.Set("RequestVerificationToken", cred.RequestToken)
	}
	applyCredential(req, cred)

	attemptID := uuid.NewString()
	log := c.logger.With("attempt_id", attemptID, "certificate_id", set.CertificateID, "records", set.Len())
	started := time.Now()

	result := Result{AttemptID: attemptID}
	resp, err := c.client.Do(req)
	if err != nil {
		result.Outcome = OutcomeTransportFailure
		result.Cause = err
		metrics.ObserveSubmission(string(result.Outcome), set.Len(), time.Since(started))
		log.Warn("submission transport failure", "error", err)
		return result, nil
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	result.StatusCode = resp.StatusCode
	result.Body = body
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if readErr != nil {
			log.Warn("submission response body unreadable", "error", readErr)
		}
		result.Outcome = OutcomeSubmitted
		log.Info("submission accepted", "status", resp.StatusCode)
	default:
		result.Outcome = OutcomeRejected
		log.Error("submission rejected", "status", resp.StatusCode, "body", string(body))
	}
	metrics.ObserveSubmission(string(result.Outcome), set.Len(), time.Since(started))
	return result, nil
}
