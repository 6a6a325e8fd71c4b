package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/maauso/genstudio-api/internal/credential"
)

// Static errors for Gemini client operations.
var (
	// ErrKeySourceRequired is returned when no key source is provided.
	ErrKeySourceRequired = errors.New("gemini: key source is required")
	// ErrAPIKeyNotSet is returned when the key source has no key at call time.
	ErrAPIKeyNotSet = errors.New("gemini: API key is not set")
	// ErrOperationNameRequired is returned when polling a handle without a name.
	ErrOperationNameRequired = errors.New("gemini: operation name is required")
	// ErrNoOperationReturned is returned when the submit response contains no operation.
	ErrNoOperationReturned = errors.New("gemini: submit failed: no operation returned")
)

// Service defines the generation operations used by the executor.
type Service interface {
	// GenerateImage returns the bytes of every generated image (at most one is requested).
	GenerateImage(ctx context.Context, opts ImageOptions) ([][]byte, error)

	// SubmitVideo starts a video job and returns its handle.
	SubmitVideo(ctx context.Context, opts VideoOptions) (OperationHandle, error)

	// PollVideo re-queries the job identified by handle.
	PollVideo(ctx context.Context, handle OperationHandle) (OperationHandle, error)
}

// SDKClient implements Service with the genai SDK.
type SDKClient struct {
	keys       credential.KeySource
	baseURL    string
	imageModel string
	videoModel string
	httpClient *http.Client
}

// Compile-time check that SDKClient implements Service.
var _ Service = (*SDKClient)(nil)

// ClientOption is a function that configures an SDKClient.
type ClientOption func(*SDKClient)

// WithBaseURL sets a custom base URL for the Gemini API.
func WithBaseURL(url string) ClientOption {
	return func(c *SDKClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *SDKClient) {
		c.httpClient = hc
	}
}

// WithImageModel overrides the image model.
func WithImageModel(model string) ClientOption {
	return func(c *SDKClient) {
		if model != "" {
			c.imageModel = model
		}
	}
}

// WithVideoModel overrides the video model.
func WithVideoModel(model string) ClientOption {
	return func(c *SDKClient) {
		if model != "" {
			c.videoModel = model
		}
	}
}

// NewClient creates an SDKClient. The key is read from keys on every call so
// that a newly selected key is used without rebuilding the client.
func NewClient(keys credential.KeySource, opts ...ClientOption) (*SDKClient, error) {
	if keys == nil {
		return nil, ErrKeySourceRequired
	}

	c := &SDKClient{
		keys:       keys,
		imageModel: DefaultImageModel,
		videoModel: DefaultVideoModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateImage issues one Imagen call requesting a single PNG.
func (c *SDKClient) GenerateImage(ctx context.Context, opts ImageOptions) ([][]byte, error) {
	client, err := c.newGenAI(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := client.Models.GenerateImages(ctx, c.imageModel, opts.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: ImageOutputMIMEType,
		AspectRatio:    opts.AspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: generate images: %w", err)
	}

	var images [][]byte
	if resp != nil {
		for _, gi := range resp.GeneratedImages {
			if gi == nil || gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
				continue
			}
			images = append(images, gi.Image.ImageBytes)
		}
	}
	return images, nil
}

// SubmitVideo starts a Veo job requesting a single video.
func (c *SDKClient) SubmitVideo(ctx context.Context, opts VideoOptions) (OperationHandle, error) {
	client, err := c.newGenAI(ctx)
	if err != nil {
		return OperationHandle{}, err
	}

	op, err := client.Models.GenerateVideos(ctx, c.videoModel, opts.Prompt, nil, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    opts.AspectRatio,
		Resolution:     opts.Resolution,
	})
	if err != nil {
		return OperationHandle{}, fmt.Errorf("gemini: generate videos: %w", err)
	}
	if op == nil {
		return OperationHandle{}, ErrNoOperationReturned
	}

	return handleFromOperation(op), nil
}

// PollVideo fetches the latest state of the operation named by handle.
// Query errors are returned unmodified so callers can classify the provider text.
func (c *SDKClient) PollVideo(ctx context.Context, handle OperationHandle) (OperationHandle, error) {
	if handle.Name == "" {
		return OperationHandle{}, ErrOperationNameRequired
	}

	client, err := c.newGenAI(ctx)
	if err != nil {
		return OperationHandle{}, err
	}

	op, err := client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: handle.Name}, nil)
	if err != nil {
		return OperationHandle{}, err
	}
	if op == nil {
		return handle, nil
	}

	return handleFromOperation(op), nil
}

func (c *SDKClient) newGenAI(ctx context.Context) (*genai.Client, error) {
	key := c.keys.APIKey()
	if key == "" {
		return nil, ErrAPIKeyNotSet
	}

	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{
			BaseURL: c.baseURL,
		}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return client, nil
}

func handleFromOperation(op *genai.GenerateVideosOperation) OperationHandle {
	h := OperationHandle{
		Name: op.Name,
		Done: op.Done,
	}
	if !op.Done {
		return h
	}
	if len(op.Error) > 0 {
		h.Error = operationErrorMessage(op.Error)
	}
	if op.Response != nil && len(op.Response.GeneratedVideos) > 0 {
		if v := op.Response.GeneratedVideos[0]; v != nil && v.Video != nil {
			h.VideoURI = v.Video.URI
		}
	}
	return h
}

func operationErrorMessage(e map[string]any) string {
	if msg, ok := e["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("%v", e)
}
