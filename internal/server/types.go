// Package server provides the HTTP server for the generation studio API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// SelectModeRequest is the HTTP request body for switching the generation mode.
type SelectModeRequest struct {
	// Mode is either "image" or "video".
	Mode string `json:"mode" validate:"required,oneof=image video"`
}

// GenerateRequest is the HTTP request body for starting a generation.
// Empty options fall back to the defaults of the selected mode; the prompt is
// checked by the session so that its validation message is recorded.
type GenerateRequest struct {
	// Mode is either "image" or "video".
	Mode string `json:"mode" validate:"required,oneof=image video"`
	// Prompt is the text description of the artifact to generate.
	Prompt string `json:"prompt" validate:"max=10000"`
	// AspectRatio is one of the ratios supported by the mode.
	AspectRatio string `json:"aspect_ratio,omitempty"`
	// Resolution is "720p" or "1080p" (video only).
	Resolution string `json:"resolution,omitempty"`
}

// SelectCredentialRequest is the optional HTTP request body for credential selection.
type SelectCredentialRequest struct {
	// APIKey is staged and committed by the selection flow when the server
	// accepts keys over HTTP.
	APIKey string `json:"api_key,omitempty" validate:"omitempty,min=8,max=512"`
}

// SessionResponse is the HTTP response describing a session.
type SessionResponse struct {
	// ID is the unique identifier for the session.
	ID string `json:"id"`
	// Mode is the selected generation mode.
	Mode string `json:"mode"`
	// Status is one of IDLE, GENERATING, SUCCEEDED, FAILED.
	Status string `json:"status"`
	// ProgressMessage is the latest progress text while generating.
	ProgressMessage string `json:"progress_message,omitempty"`
	// ResultReference is the data URI, blob reference, or published URL of the result.
	ResultReference string `json:"result_reference,omitempty"`
	// ResultURL is where a video result can be fetched over HTTP.
	ResultURL string `json:"result_url,omitempty"`
	// Error is the message of the last failed generation.
	Error string `json:"error,omitempty"`
	// ValidationError is the message of the last rejected request.
	ValidationError string `json:"validation_error,omitempty"`
	// CredentialState is UNKNOWN, USABLE, or UNUSABLE.
	CredentialState string `json:"credential_state"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the session last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialResponse is the HTTP response describing a session's credential gate.
type CredentialResponse struct {
	// State is UNKNOWN, USABLE, or UNUSABLE.
	State string `json:"state"`
	// SelectionAvailable reports whether a selection flow exists in this environment.
	SelectionAvailable bool `json:"selection_available"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
