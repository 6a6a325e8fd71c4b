package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/genstudio-api/internal/bootstrap"
	"github.com/maauso/genstudio-api/internal/config"
	"github.com/maauso/genstudio-api/internal/executor"
	"github.com/maauso/genstudio-api/internal/generation"
	"github.com/maauso/genstudio-api/internal/session"
	"github.com/maauso/genstudio-api/internal/storage"
)

// progressTick is how often the session is sampled for progress text.
const progressTick = 500 * time.Millisecond

var errUnsupportedResult = errors.New("unsupported result reference")

var imageCmd = &cobra.Command{
	Use:   "image <prompt>",
	Short: "Generate a single image",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := generation.DefaultImageParameters(strings.Join(args, " "))
		if imageAspectFlag != "" {
			params.AspectRatio = imageAspectFlag
		}
		return generate(cmd, generation.Request{Mode: generation.ModeImage, Image: params}, imageOutputFlag)
	},
}

var videoCmd = &cobra.Command{
	Use:   "video <prompt>",
	Short: "Generate a video and wait for it to finish",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := generation.DefaultVideoParameters(strings.Join(args, " "))
		if videoAspectFlag != "" {
			params.AspectRatio = videoAspectFlag
		}
		if resolutionFlag != "" {
			params.Resolution = resolutionFlag
		}
		return generate(cmd, generation.Request{Mode: generation.ModeVideo, Video: params}, videoOutputFlag)
	},
}

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Report whether a usable API key is available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		deps, sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		gate := sess.Gate()
		fmt.Fprintf(cmd.OutOrStdout(), "credential: %s (selection available: %t)\n", gate.State(), gate.HasCapability())
		return nil
	},
}

// openSession builds the dependencies from the environment and opens one session.
func openSession(ctx context.Context) (*bootstrap.Dependencies, *session.Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if selectKeyFlag {
		cfg.CredentialSelection = config.SelectionDialog
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}

	logger := cfg.NewLogger()
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize dependencies: %w", err)
	}

	sess, err := deps.Sessions.CreateSession(ctx)
	if err != nil {
		_ = deps.Close()
		return nil, nil, fmt.Errorf("create session: %w", err)
	}

	if selectKeyFlag {
		if _, err := sess.Gate().RequestSelection(ctx); err != nil {
			_ = deps.Close()
			return nil, nil, err
		}
	}
	return deps, sess, nil
}

func generate(cmd *cobra.Command, req generation.Request, output string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	deps, sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := sess.SelectMode(ctx, req.Mode); err != nil {
		return err
	}

	done := make(chan struct{})
	var (
		snap   session.Snapshot
		genErr error
	)
	go func() {
		defer close(done)
		snap, genErr = sess.Generate(ctx, req)
	}()

	reportProgress(out, sess, done)

	if genErr != nil {
		var f *generation.Failure
		if errors.As(genErr, &f) {
			return errors.New(f.Message)
		}
		return genErr
	}
	if snap.Status == session.StatusFailed {
		return errors.New(snap.ErrorMessage)
	}

	location, err := writeResult(ctx, deps.Store, snap.ResultReference, output)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "saved %s\n", location)
	return nil
}

// reportProgress prints each new progress message until done is closed.
func reportProgress(w io.Writer, sess *session.Session, done <-chan struct{}) {
	ticker := time.NewTicker(progressTick)
	defer ticker.Stop()

	last := ""
	emit := func() {
		msg := sess.Snapshot().ProgressMessage
		if msg != "" && msg != last {
			fmt.Fprintln(w, msg)
			last = msg
		}
	}

	emit()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			emit()
		}
	}
}

// writeResult stores a result reference at path. Published URLs are returned
// unchanged since the object already lives outside this process.
func writeResult(ctx context.Context, store storage.BlobStore, ref, path string) (string, error) {
	switch {
	case strings.HasPrefix(ref, executor.ImageDataURIPrefix):
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ref, executor.ImageDataURIPrefix))
		if err != nil {
			return "", fmt.Errorf("decode image: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("write image: %w", err)
		}
		return path, nil

	case storage.IsLocalRef(ref):
		body, err := store.Open(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("open video: %w", err)
		}
		defer body.Close()

		f, err := os.Create(path) // #nosec G304 - path comes from the command line
		if err != nil {
			return "", fmt.Errorf("create output file: %w", err)
		}
		if _, err := io.Copy(f, body); err != nil {
			f.Close()
			return "", fmt.Errorf("write video: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close output file: %w", err)
		}
		return path, nil

	case strings.HasPrefix(ref, "https://"), strings.HasPrefix(ref, "http://"):
		return ref, nil

	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedResult, ref)
	}
}
