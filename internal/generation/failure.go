package generation

import (
	"errors"
	"strings"
)

// Kind classifies why a generation attempt did not produce an artifact.
type Kind string

const (
	KindValidation             Kind = "VALIDATION"
	KindCredentialMissing      Kind = "CREDENTIAL_MISSING"
	KindCredentialNotSelected  Kind = "CREDENTIAL_NOT_SELECTED"
	KindCredentialInvalidated  Kind = "CREDENTIAL_INVALIDATED"
	KindNoOutputProduced       Kind = "NO_OUTPUT_PRODUCED"
	KindDownloadFailed         Kind = "DOWNLOAD_FAILED"
	KindTransientProviderError Kind = "TRANSIENT_PROVIDER_ERROR"
	KindEnvironmentUnsupported Kind = "ENVIRONMENT_UNSUPPORTED"
	KindTimedOut               Kind = "TIMED_OUT"
)

// IsCredential reports whether the kind means the credential must be re-selected.
func (k Kind) IsCredential() bool {
	switch k {
	case KindCredentialMissing, KindCredentialNotSelected, KindCredentialInvalidated:
		return true
	default:
		return false
	}
}

// User-facing messages.
const (
	MsgEmptyPrompt           = "Please enter a prompt."
	MsgVideoNeedsCredential  = "Please select an API key before generating a video."
	MsgCredentialMissing     = "API key is not configured. Please set the GEMINI_API_KEY environment variable."
	MsgCredentialNotSelected = "API key not selected. Please select an API key to generate videos."
	MsgCredentialInvalidated = "API key error. Please re-select your API key and try again."
	MsgNoImage               = "Image generation failed or returned no images."
	MsgNoVideoLink           = "Video generation completed, but no download link was found."
	MsgSelectionUnsupported  = "API key selection is not available in this environment."
	MsgUnknown               = "An unknown error occurred."
)

// Failure is a classified generation error carrying a human-readable message.
type Failure struct {
	Kind    Kind
	Message string
	Err     error
}

// NewFailure creates a Failure of the given kind.
func NewFailure(kind Kind, message string, err error) *Failure {
	return &Failure{Kind: kind, Message: message, Err: err}
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return f.Message
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return string(f.Kind)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf returns the kind of err if it wraps a Failure, and
// KindTransientProviderError otherwise.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindTransientProviderError
}

// Message returns the text shown to the user for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if msg == "" {
		return MsgUnknown
	}
	return msg
}

// IsCredentialFailure reports whether err indicates an API-key problem.
// Typed failures are judged by kind; anything else by its message text.
func IsCredentialFailure(err error) bool {
	if err == nil {
		return false
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind.IsCredential()
	}
	return strings.Contains(err.Error(), "API key error")
}
