package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ncruces/zenity"
)

// Static errors for selection flows.
var (
	// ErrNoKeyEntered is returned when a selection flow produced an empty key.
	ErrNoKeyEntered = errors.New("credential: no API key entered")
	// ErrSelectionCanceled is returned when the user dismissed the selection flow.
	ErrSelectionCanceled = errors.New("credential: selection canceled")
	// ErrKeyFileRequired is returned when a FileSelector has no path.
	ErrKeyFileRequired = errors.New("credential: key file path is required")
)

// FileSelector selects the key by re-reading a mounted secret file into a KeyStore.
type FileSelector struct {
	path  string
	store *KeyStore
}

// Compile-time check that FileSelector implements Capability.
var _ Capability = (*FileSelector)(nil)

// NewFileSelector creates a FileSelector for path.
func NewFileSelector(path string, store *KeyStore) (*FileSelector, error) {
	if path == "" {
		return nil, ErrKeyFileRequired
	}
	return &FileSelector{path: path, store: store}, nil
}

// IsUsable reports whether the store holds a key.
func (s *FileSelector) IsUsable(ctx context.Context) (bool, error) {
	return s.store.IsUsable(ctx)
}

// PromptForSelection loads the key file into the store.
func (s *FileSelector) PromptForSelection(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	data, err := os.ReadFile(s.path) // #nosec G304 - path comes from configuration
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return ErrNoKeyEntered
	}
	s.store.Set(key)
	return nil
}

// StagedSelector commits a key handed in by the caller, such as one posted to
// the HTTP API. Stage is followed by PromptForSelection.
//
// The store is shared by every session, so a key committed through one
// session becomes the key all sessions use. The service is meant for a single
// tenant; run one process per user when keys must stay apart.
type StagedSelector struct {
	mu     sync.Mutex
	staged string
	store  *KeyStore
}

// Compile-time check that StagedSelector implements Capability.
var _ Capability = (*StagedSelector)(nil)

// NewStagedSelector creates a StagedSelector writing into store.
func NewStagedSelector(store *KeyStore) *StagedSelector {
	return &StagedSelector{store: store}
}

// Stage records key for the next PromptForSelection.
func (s *StagedSelector) Stage(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = strings.TrimSpace(key)
}

// IsUsable reports whether the store holds a key.
func (s *StagedSelector) IsUsable(ctx context.Context) (bool, error) {
	return s.store.IsUsable(ctx)
}

// PromptForSelection moves the staged key into the store. With nothing staged
// it succeeds only if the store already holds a key.
func (s *StagedSelector) PromptForSelection(_ context.Context) error {
	s.mu.Lock()
	staged := s.staged
	s.staged = ""
	s.mu.Unlock()

	if staged == "" {
		if s.store.APIKey() == "" {
			return ErrNoKeyEntered
		}
		return nil
	}
	s.store.Set(staged)
	return nil
}

// PromptFunc shows an interactive password prompt and returns the entered text.
type PromptFunc func(ctx context.Context) (string, error)

// DialogSelector asks for the key in a desktop dialog.
type DialogSelector struct {
	store  *KeyStore
	prompt PromptFunc
}

// Compile-time check that DialogSelector implements Capability.
var _ Capability = (*DialogSelector)(nil)

// NewDialogSelector creates a DialogSelector. A nil prompt uses a zenity
// password entry.
func NewDialogSelector(store *KeyStore, prompt PromptFunc) *DialogSelector {
	if prompt == nil {
		prompt = zenityPrompt
	}
	return &DialogSelector{store: store, prompt: prompt}
}

// IsUsable reports whether the store holds a key.
func (s *DialogSelector) IsUsable(ctx context.Context) (bool, error) {
	return s.store.IsUsable(ctx)
}

// PromptForSelection opens the dialog and stores the entered key.
func (s *DialogSelector) PromptForSelection(ctx context.Context) error {
	key, err := s.prompt(ctx)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return ErrSelectionCanceled
		}
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrNoKeyEntered
	}
	s.store.Set(key)
	return nil
}

func zenityPrompt(ctx context.Context) (string, error) {
	_, password, err := zenity.Password(
		zenity.Context(ctx),
		zenity.Title("Select Gemini API key"),
	)
	return password, err
}
