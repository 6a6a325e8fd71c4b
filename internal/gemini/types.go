// Package gemini provides the generation service boundary: Imagen image
// generation and Veo video operations on the Gemini API.
package gemini

// Default model identifiers.
const (
	DefaultImageModel = "imagen-4.0-generate-001"
	DefaultVideoModel = "veo-3.1-fast-generate-preview"
)

// ImageOutputMIMEType is the lossless raster format requested for images.
const ImageOutputMIMEType = "image/png"

// ImageOptions are the parameters of a single image generation call.
type ImageOptions struct {
	Prompt      string
	AspectRatio string
}

// VideoOptions are the parameters of a video job submission.
type VideoOptions struct {
	Prompt      string
	AspectRatio string
	Resolution  string
}

// OperationHandle identifies a submitted video job.
type OperationHandle struct {
	// Name is the provider operation name used to re-query status.
	Name string
	// Done is true once the provider reports completion.
	Done bool
	// VideoURI is the download locator of the first generated video (only set when Done).
	VideoURI string
	// Error is the provider error message when the operation finished unsuccessfully.
	Error string
}
