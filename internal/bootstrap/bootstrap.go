// Package bootstrap provides dependency initialization for the GenStudio API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/genstudio-api/internal/config"
	"github.com/maauso/genstudio-api/internal/credential"
	"github.com/maauso/genstudio-api/internal/download"
	"github.com/maauso/genstudio-api/internal/executor"
	"github.com/maauso/genstudio-api/internal/gemini"
	"github.com/maauso/genstudio-api/internal/session"
	"github.com/maauso/genstudio-api/internal/storage"
)

// Store is a blob store that owns files on local disk until closed.
type Store interface {
	storage.BlobStore
	Close() error
}

// Dependencies holds all initialized dependencies for the HTTP server and CLI.
type Dependencies struct {
	Keys     *credential.KeyStore
	Store    Store
	Executor *executor.Executor
	Sessions *session.Service
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Dependencies, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	keys := credential.NewKeyStore(cfg.GeminiAPIKey)

	capability, err := initCapability(cfg, keys, o.prompt)
	if err != nil {
		return nil, err
	}

	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize Gemini client
	clientOpts := []gemini.ClientOption{
		gemini.WithImageModel(cfg.ImageModel),
		gemini.WithVideoModel(cfg.VideoModel),
	}
	if cfg.GeminiBaseURL != "" {
		clientOpts = append(clientOpts, gemini.WithBaseURL(cfg.GeminiBaseURL))
	}
	client, err := gemini.NewClient(keys, clientOpts...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	fetcher := download.NewHTTPFetcher(keys, download.WithTimeout(cfg.DownloadTimeout))

	exec, err := executor.New(client, fetcher, store, keys,
		executor.WithPollInterval(cfg.PollInterval),
		executor.WithMaxWait(cfg.MaxVideoWait),
		executor.WithLogger(logger),
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create executor: %w", err)
	}

	svc := session.NewService(
		session.NewMemoryRepository(),
		exec,
		session.WithCapability(capability),
		session.WithAssumeUsable(cfg.CredentialUsableByDefault()),
		session.WithBlobReleaser(store),
		session.WithIdleTTL(cfg.SessionIdleTTL),
		session.WithServiceLogger(logger),
	)

	logger.Info("credential selection configured",
		slog.String("flow", cfg.CredentialSelection),
		slog.Bool("key_present", keys.APIKey() != ""),
	)

	return &Dependencies{
		Keys:     keys,
		Store:    store,
		Executor: exec,
		Sessions: svc,
	}, nil
}

// Close stops background generations and removes stored blobs.
func (d *Dependencies) Close() error {
	d.Sessions.Close()
	return d.Store.Close()
}

// Option customizes dependency construction.
type Option func(*options)

type options struct {
	prompt credential.PromptFunc
}

// WithPrompt replaces the dialog used by CREDENTIAL_SELECTION=dialog.
func WithPrompt(p credential.PromptFunc) Option {
	return func(o *options) {
		o.prompt = p
	}
}

// initCapability returns the selection flow named by the configuration, or
// nil when none is configured.
func initCapability(cfg *config.Config, keys *credential.KeyStore, prompt credential.PromptFunc) (credential.Capability, error) {
	switch cfg.CredentialSelection {
	case config.SelectionFile:
		sel, err := credential.NewFileSelector(cfg.CredentialKeyFile, keys)
		if err != nil {
			return nil, fmt.Errorf("create file selector: %w", err)
		}
		return sel, nil
	case config.SelectionRequest:
		return credential.NewStagedSelector(keys), nil
	case config.SelectionDialog:
		return credential.NewDialogSelector(keys, prompt), nil
	case config.SelectionNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown credential selection %q", config.ErrInvalidConfig, cfg.CredentialSelection)
	}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
