package domain

import "context"

// Provider is a chat completion backend. Adapters translate the
// canonical Request and Result to and from each backend's wire format.
type Provider interface {
	// Name returns the provider name, e.g. "openai".
	Name() string

	// Complete performs a single chat completion. Errors are returned
	// as *APIError whenever the failure class is known.
	Complete(ctx context.Context, req *Request) (*Result, error)
}
