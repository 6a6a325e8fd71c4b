// Package executor turns a validated generation request into a result
// reference: one provider call for images, or a submit-then-poll loop followed
// by a download for videos.
package executor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/genstudio-api/internal/credential"
	"github.com/maauso/genstudio-api/internal/download"
	"github.com/maauso/genstudio-api/internal/gemini"
	"github.com/maauso/genstudio-api/internal/generation"
	"github.com/maauso/genstudio-api/internal/storage"
)

// DefaultPollInterval is the wait between video status queries.
const DefaultPollInterval = 10 * time.Second

// ImageDataURIPrefix prefixes inline image results.
const ImageDataURIPrefix = "data:" + gemini.ImageOutputMIMEType + ";base64,"

// Failure messages owned by the executor.
const (
	MsgCancelled = "Video generation was cancelled."
	MsgTimedOut  = "Video generation took too long and was stopped."
)

// ErrServiceRequired is returned by New when no generation service is given.
var ErrServiceRequired = errors.New("executor: generation service is required")

// CredentialState reports whether the credential may be used for video work.
type CredentialState interface {
	Usable() bool
}

// Executor runs generation requests against the provider.
// It classifies failures but never revokes the credential.
type Executor struct {
	service      gemini.Service
	fetcher      download.Fetcher
	store        storage.BlobStore
	keys         credential.KeySource
	classifier   generation.Classifier
	pollInterval time.Duration
	maxWait      time.Duration
	logger       *slog.Logger
}

// Option is a function that configures an Executor.
type Option func(*Executor)

// WithPollInterval sets the wait between status queries (useful for testing).
func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithClassifier replaces the rule that maps poll errors to failure kinds.
func WithClassifier(c generation.Classifier) Option {
	return func(e *Executor) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithMaxWait bounds the total time spent polling a video job. Zero disables the bound.
func WithMaxWait(d time.Duration) Option {
	return func(e *Executor) {
		e.maxWait = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Executor.
func New(service gemini.Service, fetcher download.Fetcher, store storage.BlobStore, keys credential.KeySource, opts ...Option) (*Executor, error) {
	if service == nil {
		return nil, ErrServiceRequired
	}

	e := &Executor{
		service:      service,
		fetcher:      fetcher,
		store:        store,
		keys:         keys,
		classifier:   generation.NotFoundClassifier,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute dispatches req to the image or video path.
func (e *Executor) Execute(ctx context.Context, req generation.Request, gate CredentialState, progress ProgressFunc) (string, error) {
	if req.Mode == generation.ModeVideo {
		return e.ExecuteVideo(ctx, gate, req.Video, progress)
	}
	return e.ExecuteImage(ctx, req.Image)
}

// ExecuteImage issues a single image call and returns the result as a PNG data URI.
func (e *Executor) ExecuteImage(ctx context.Context, params generation.ImageParameters) (string, error) {
	if !e.hasKey() {
		return "", generation.NewFailure(generation.KindCredentialMissing, generation.MsgCredentialMissing, gemini.ErrAPIKeyNotSet)
	}

	images, err := e.service.GenerateImage(ctx, gemini.ImageOptions{
		Prompt:      params.Prompt,
		AspectRatio: params.AspectRatio,
	})
	if err != nil {
		e.logger.Error("image generation failed",
			slog.String("error", err.Error()),
		)
		return "", generation.NewFailure(generation.KindTransientProviderError, err.Error(), err)
	}
	if len(images) == 0 {
		return "", generation.NewFailure(generation.KindNoOutputProduced, generation.MsgNoImage, nil)
	}

	e.logger.Info("image generated",
		slog.Int("bytes", len(images[0])),
		slog.String("aspect_ratio", params.AspectRatio),
	)
	return ImageDataURIPrefix + base64.StdEncoding.EncodeToString(images[0]), nil
}

// ExecuteVideo submits a video job, polls it until the provider reports
// completion, downloads the first video and stores it.
func (e *Executor) ExecuteVideo(ctx context.Context, gate CredentialState, params generation.VideoParameters, progress ProgressFunc) (string, error) {
	if progress == nil {
		progress = func(Progress) {}
	}

	if gate == nil || !gate.Usable() {
		return "", generation.NewFailure(generation.KindCredentialNotSelected, generation.MsgCredentialNotSelected, nil)
	}
	if !e.hasKey() {
		return "", generation.NewFailure(generation.KindCredentialMissing, generation.MsgCredentialMissing, gemini.ErrAPIKeyNotSet)
	}

	progress(Progress{Phase: PhaseSubmitting, Message: MsgSubmitting})

	handle, err := e.service.SubmitVideo(ctx, gemini.VideoOptions{
		Prompt:      params.Prompt,
		AspectRatio: params.AspectRatio,
		Resolution:  params.Resolution,
	})
	if err != nil {
		e.logger.Error("video submission failed",
			slog.String("error", err.Error()),
		)
		return "", generation.NewFailure(generation.KindTransientProviderError, err.Error(), err)
	}

	e.logger.Info("video job submitted",
		slog.String("operation", handle.Name),
		slog.String("aspect_ratio", params.AspectRatio),
		slog.String("resolution", params.Resolution),
	)

	handle, err = e.poll(ctx, handle, progress)
	if err != nil {
		return "", err
	}

	progress(Progress{Phase: PhaseDownloading, Message: MsgDownloading})

	if handle.Error != "" {
		return "", generation.NewFailure(generation.KindTransientProviderError, handle.Error, nil)
	}
	if handle.VideoURI == "" {
		return "", generation.NewFailure(generation.KindNoOutputProduced, generation.MsgNoVideoLink, nil)
	}

	return e.fetchAndStore(ctx, handle)
}

func (e *Executor) poll(ctx context.Context, handle gemini.OperationHandle, progress ProgressFunc) (gemini.OperationHandle, error) {
	started := time.Now()

	for i := 0; !handle.Done; i++ {
		if e.maxWait > 0 && time.Since(started) >= e.maxWait {
			e.logger.Warn("video job exceeded max wait",
				slog.String("operation", handle.Name),
				slog.Duration("max_wait", e.maxWait),
			)
			return handle, generation.NewFailure(generation.KindTimedOut, MsgTimedOut, context.DeadlineExceeded)
		}

		progress(Progress{Phase: PhasePolling, Message: pollMessage(i)})

		select {
		case <-ctx.Done():
			return handle, generation.NewFailure(generation.KindTransientProviderError, MsgCancelled, ctx.Err())
		case <-time.After(e.pollInterval):
		}

		next, err := e.service.PollVideo(ctx, handle)
		if err != nil {
			e.logger.Error("video status query failed",
				slog.String("operation", handle.Name),
				slog.Int("iteration", i),
				slog.String("error", err.Error()),
			)
			return handle, generation.Classify(e.classifier, err)
		}
		handle = next

		e.logger.Debug("video job polled",
			slog.String("operation", handle.Name),
			slog.Int("iteration", i),
			slog.Bool("done", handle.Done),
		)
	}

	return handle, nil
}

func (e *Executor) fetchAndStore(ctx context.Context, handle gemini.OperationHandle) (string, error) {
	if e.fetcher == nil || e.store == nil {
		return "", generation.NewFailure(generation.KindDownloadFailed, "Failed to download the video.", nil)
	}

	body, err := e.fetcher.Fetch(ctx, handle.VideoURI)
	if err != nil {
		e.logger.Error("video download failed",
			slog.String("operation", handle.Name),
			slog.String("error", err.Error()),
		)
		var se *download.StatusError
		if errors.As(err, &se) {
			return "", generation.NewFailure(generation.KindDownloadFailed, "Failed to download the video. Status: "+se.Status, err)
		}
		return "", generation.NewFailure(generation.KindDownloadFailed, fmt.Sprintf("Failed to download the video: %v", err), err)
	}
	defer body.Close()

	ref, err := e.store.Put(ctx, "video", body)
	if err != nil {
		e.logger.Error("storing video failed",
			slog.String("operation", handle.Name),
			slog.String("error", err.Error()),
		)
		return "", generation.NewFailure(generation.KindDownloadFailed, fmt.Sprintf("Failed to download the video: %v", err), err)
	}

	e.logger.Info("video stored",
		slog.String("operation", handle.Name),
		slog.String("ref", ref),
	)
	return ref, nil
}

func (e *Executor) hasKey() bool {
	return e.keys != nil && e.keys.APIKey() != ""
}
