package telephony

import (
	"context"
	"errors"
)

// Provider defines the provider-agnostic call-initiation interface used by the
// call orchestrator.
//
// Rules:
// - No provider SDK/HTTP calls outside telephony adapters.
// - Numbers are digits-only on both legs.
// - Keep request/response types provider-agnostic; adapters may stash raw
//   payloads in their own logs if needed.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// InitiateCall dials the interviewer leg first, then bridges the
	// respondent. A non-success provider status, an explicit error payload, or
	// a timeout all surface as an error wrapping ErrTransport with the most
	// specific message the adapter could extract.
	InitiateCall(ctx context.Context, req CallRequest) (CallResult, error)
}

// ErrTransport marks telephony adapter failures: unreachable provider,
// timeout, or an explicit error response.
var ErrTransport = errors.New("telephony: transport failure")

type CallRequest struct {
	// From is the interviewer's number, digits only.
	From string `json:"from"`
	// To is the respondent's number, digits only.
	To string `json:"to"`

	FromType string `json:"from_type"`
	ToType   string `json:"to_type"`

	// Ring budgets per leg, in seconds.
	FromRingSeconds int `json:"from_ring_seconds"`
	ToRingSeconds   int `json:"to_ring_seconds"`
}

type CallResult struct {
	// ProviderCallID is the provider's unique identifier for this call.
	ProviderCallID string `json:"provider_call_id"`
	// Status is the provider-reported initial status, adapter-specific.
	Status string `json:"status,omitempty"`
}
