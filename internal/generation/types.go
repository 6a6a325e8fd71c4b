// Package generation provides the domain types shared by the credential gate,
// the request executor and the session state machine: generation modes,
// per-mode parameters, and the failure taxonomy.
package generation

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Mode selects which kind of artifact a request produces.
type Mode string

const (
	// ModeImage produces a single still image in one round trip.
	ModeImage Mode = "image"
	// ModeVideo submits a long-running video job and polls it to completion.
	ModeVideo Mode = "video"
)

// IsValid returns true if the mode is one of the supported modes.
func (m Mode) IsValid() bool {
	return m == ModeImage || m == ModeVideo
}

// Supported option values. The first entry of each list is the default.
var (
	ImageAspectRatios = []string{"1:1", "3:4", "4:3", "9:16", "16:9"}
	VideoAspectRatios = []string{"16:9", "9:16"}
	VideoResolutions  = []string{"720p", "1080p"}
)

// ErrEmptyPrompt is returned when the prompt is empty after trimming whitespace.
var ErrEmptyPrompt = errors.New("generation: prompt is required")

// ImageParameters are the user-chosen options for an image request.
type ImageParameters struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio" validate:"oneof=1:1 3:4 4:3 9:16 16:9"`
}

// VideoParameters are the user-chosen options for a video request.
type VideoParameters struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio" validate:"oneof=16:9 9:16"`
	Resolution  string `json:"resolution" validate:"oneof=720p 1080p"`
}

// DefaultImageParameters returns image parameters with the default aspect ratio.
func DefaultImageParameters(prompt string) ImageParameters {
	return ImageParameters{Prompt: prompt, AspectRatio: ImageAspectRatios[0]}
}

// DefaultVideoParameters returns video parameters with the default aspect ratio and resolution.
func DefaultVideoParameters(prompt string) VideoParameters {
	return VideoParameters{Prompt: prompt, AspectRatio: VideoAspectRatios[0], Resolution: VideoResolutions[0]}
}

// Request carries the mode and the parameters for that mode.
// Only the parameters matching Mode are read.
type Request struct {
	Mode  Mode
	Image ImageParameters
	Video VideoParameters
}

// Prompt returns the prompt of the parameters selected by the request mode.
func (r Request) Prompt() string {
	if r.Mode == ModeVideo {
		return r.Video.Prompt
	}
	return r.Image.Prompt
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func paramValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the prompt and the enumerated options of the selected mode.
// It returns ErrEmptyPrompt for a blank prompt, or the validator error for a
// value outside the supported set.
func (r Request) Validate() error {
	if !r.Mode.IsValid() {
		return errors.New("generation: unsupported mode " + string(r.Mode))
	}
	if strings.TrimSpace(r.Prompt()) == "" {
		return ErrEmptyPrompt
	}
	if r.Mode == ModeVideo {
		return paramValidator().Struct(r.Video)
	}
	return paramValidator().Struct(r.Image)
}
