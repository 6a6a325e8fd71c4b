package executor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/genstudio-api/internal/credential"
	"github.com/maauso/genstudio-api/internal/download"
	"github.com/maauso/genstudio-api/internal/gemini"
	"github.com/maauso/genstudio-api/internal/generation"
	"github.com/maauso/genstudio-api/internal/storage"
)

// mockService implements gemini.Service for testing.
type mockService struct {
	mock.Mock
}

func (m *mockService) GenerateImage(ctx context.Context, opts gemini.ImageOptions) ([][]byte, error) {
	args := m.Called(ctx, opts)
	images, _ := args.Get(0).([][]byte)
	return images, args.Error(1)
}

func (m *mockService) SubmitVideo(ctx context.Context, opts gemini.VideoOptions) (gemini.OperationHandle, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).(gemini.OperationHandle), args.Error(1)
}

func (m *mockService) PollVideo(ctx context.Context, handle gemini.OperationHandle) (gemini.OperationHandle, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(gemini.OperationHandle), args.Error(1)
}

// mockFetcher implements download.Fetcher for testing.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	args := m.Called(ctx, locator)
	body, _ := args.Get(0).(io.ReadCloser)
	return body, args.Error(1)
}

type staticGate bool

func (g staticGate) Usable() bool { return bool(g) }

type progressRecorder struct {
	mu      sync.Mutex
	updates []Progress
}

func (r *progressRecorder) record(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
}

func (r *progressRecorder) polling() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var msgs []string
	for _, p := range r.updates {
		if p.Phase == PhasePolling {
			msgs = append(msgs, p.Message)
		}
	}
	return msgs
}

func newTestExecutor(t *testing.T, svc gemini.Service, f download.Fetcher, opts ...Option) (*Executor, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	opts = append([]Option{WithPollInterval(time.Millisecond)}, opts...)
	e, err := New(svc, f, store, credential.NewKeyStore("test-key"), opts...)
	require.NoError(t, err)
	return e, store
}

func videoParams() generation.VideoParameters {
	return generation.DefaultVideoParameters("a cat surfing")
}

func TestNew_RequiresService(t *testing.T) {
	_, err := New(nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrServiceRequired)
}

func TestNew_Defaults(t *testing.T) {
	e, err := New(&mockService{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, e.pollInterval)
	assert.Zero(t, e.maxWait)
	assert.NotNil(t, e.classifier)
	assert.NotNil(t, e.logger)
}

func TestExecuteImage_Success(t *testing.T) {
	svc := &mockService{}
	ctx := context.Background()
	png := []byte{0x89, 'P', 'N', 'G'}
	svc.On("GenerateImage", ctx, gemini.ImageOptions{Prompt: "a red fox", AspectRatio: "16:9"}).
		Return([][]byte{png}, nil).Once()

	e, _ := newTestExecutor(t, svc, nil)
	ref, err := e.ExecuteImage(ctx, generation.ImageParameters{Prompt: "a red fox", AspectRatio: "16:9"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ref, "data:image/png;base64,"))
	assert.Equal(t, ImageDataURIPrefix+base64.StdEncoding.EncodeToString(png), ref)
	svc.AssertExpectations(t)
}

func TestExecuteImage_NoImages(t *testing.T) {
	svc := &mockService{}
	svc.On("GenerateImage", mock.Anything, mock.Anything).Return([][]byte{}, nil)

	e, _ := newTestExecutor(t, svc, nil)
	_, err := e.ExecuteImage(context.Background(), generation.DefaultImageParameters("x"))
	require.Error(t, err)
	assert.Equal(t, generation.KindNoOutputProduced, generation.KindOf(err))
	assert.Equal(t, generation.MsgNoImage, err.Error())
}

func TestExecuteImage_ServiceError(t *testing.T) {
	svc := &mockService{}
	svc.On("GenerateImage", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))

	e, _ := newTestExecutor(t, svc, nil)
	_, err := e.ExecuteImage(context.Background(), generation.DefaultImageParameters("x"))
	require.Error(t, err)
	assert.Equal(t, generation.KindTransientProviderError, generation.KindOf(err))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestExecuteImage_MissingKey(t *testing.T) {
	svc := &mockService{}
	e, err := New(svc, nil, nil, credential.NewKeyStore(""))
	require.NoError(t, err)

	_, err = e.ExecuteImage(context.Background(), generation.DefaultImageParameters("x"))
	require.Error(t, err)
	assert.Equal(t, generation.KindCredentialMissing, generation.KindOf(err))
	svc.AssertNotCalled(t, "GenerateImage", mock.Anything, mock.Anything)
}

func TestExecuteVideo_GateNotUsable(t *testing.T) {
	svc := &mockService{}
	e, _ := newTestExecutor(t, svc, &mockFetcher{})
	rec := &progressRecorder{}

	_, err := e.ExecuteVideo(context.Background(), staticGate(false), videoParams(), rec.record)
	require.Error(t, err)
	assert.Equal(t, generation.KindCredentialNotSelected, generation.KindOf(err))
	assert.Empty(t, rec.updates)
	svc.AssertNotCalled(t, "SubmitVideo", mock.Anything, mock.Anything)

	_, err = e.ExecuteVideo(context.Background(), nil, videoParams(), rec.record)
	assert.Equal(t, generation.KindCredentialNotSelected, generation.KindOf(err))
	svc.AssertNumberOfCalls(t, "SubmitVideo", 0)
}

func TestExecuteVideo_MissingKey(t *testing.T) {
	svc := &mockService{}
	e, err := New(svc, &mockFetcher{}, nil, credential.NewKeyStore(""))
	require.NoError(t, err)

	_, err = e.ExecuteVideo(context.Background(), staticGate(true), videoParams(), nil)
	require.Error(t, err)
	assert.Equal(t, generation.KindCredentialMissing, generation.KindOf(err))
	svc.AssertNumberOfCalls(t, "SubmitVideo", 0)
}

func TestExecuteVideo_PollsAndDownloads(t *testing.T) {
	for _, n := range []int{0, 1, 3, 7} {
		t.Run(fmt.Sprintf("%d polls", n), func(t *testing.T) {
			svc := &mockService{}
			f := &mockFetcher{}
			pending := gemini.OperationHandle{Name: "operations/abc"}
			done := gemini.OperationHandle{Name: "operations/abc", Done: true, VideoURI: "https://example.test/v.mp4"}

			first := pending
			if n == 0 {
				first = done
			}
			svc.On("SubmitVideo", mock.Anything, gemini.VideoOptions{Prompt: "a cat surfing", AspectRatio: "16:9", Resolution: "720p"}).
				Return(first, nil).Once()
			if n > 1 {
				svc.On("PollVideo", mock.Anything, pending).Return(pending, nil).Times(n - 1)
			}
			if n > 0 {
				svc.On("PollVideo", mock.Anything, pending).Return(done, nil).Once()
			}
			f.On("Fetch", mock.Anything, done.VideoURI).Return(io.NopCloser(strings.NewReader("mp4-bytes")), nil).Once()

			e, store := newTestExecutor(t, svc, f)
			rec := &progressRecorder{}

			ref, err := e.ExecuteVideo(context.Background(), staticGate(true), videoParams(), rec.record)
			require.NoError(t, err)
			assert.True(t, storage.IsLocalRef(ref))

			msgs := rec.polling()
			require.Len(t, msgs, n)
			for i, msg := range msgs {
				assert.Equal(t, PollMessages[i%len(PollMessages)], msg)
			}

			assert.Equal(t, Progress{Phase: PhaseSubmitting, Message: MsgSubmitting}, rec.updates[0])
			assert.Equal(t, Progress{Phase: PhaseDownloading, Message: MsgDownloading}, rec.updates[len(rec.updates)-1])

			r, err := store.Open(context.Background(), ref)
			require.NoError(t, err)
			data, _ := io.ReadAll(r)
			_ = r.Close()
			assert.Equal(t, "mp4-bytes", string(data))

			svc.AssertExpectations(t)
			f.AssertExpectations(t)
		})
	}
}

func TestExecuteVideo_NotFoundDuringPoll(t *testing.T) {
	svc := &mockService{}
	pending := gemini.OperationHandle{Name: "operations/abc"}
	svc.On("SubmitVideo", mock.Anything, mock.Anything).Return(pending, nil)
	svc.On("PollVideo", mock.Anything, pending).Return(gemini.OperationHandle{}, errors.New("Requested entity was not found."))

	f := &mockFetcher{}
	e, _ := newTestExecutor(t, svc, f)

	_, err := e.ExecuteVideo(context.Background(), staticGate(true), videoParams(), nil)
	require.Error(t, err)
	assert.Equal(t, generation.KindCredentialInvalidated, generation.KindOf(err))
	assert.Equal(t, generation.MsgCredentialInvalidated, err.Error())
	assert.True(t, generation.IsCredentialFailure(err))
	f.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestExecuteVideo_OtherPollErrorIsTransient(t *testing.T) {
	svc := &mockService{}
	pending := gemini.OperationHandle{Name: "operations/abc"}
	svc.On("SubmitVideo", mock.Anything, mock.Anything).Return(pending, nil)
	svc.On("PollVideo", mock.Anything, pending).Return(gemini.OperationHandle{}, errors.New("backend unavailable"))

	e, _ := newTestExecutor(t, svc, &mockFetcher{})

	_, err := e.ExecuteVideo(context.Background(), staticGate(true), videoParams(), nil)
	require.Error(t, err)
	assert.Equal(t, generation.KindTransientProviderError, generation.KindOf(err))
	assert.Equal(t, "backend unavailable", err.Error())
	svc.AssertNumberOfCalls(t, "PollVideo", 1)
}

func TestExecuteVideo_CustomClassifier(t *testing.T) {
	svc := &mockService{}
	pending := gemini.OperationHandle{Name: "operations/abc"}
	svc.On("SubmitVideo", mock.Anything, mock.Anything).Return(pending, nil)
	svc.On("PollVideo", mock.Anything, pending).Return(gemini.OperationHandle{}, errors.New("PERMISSION_DENIED"))

	classifier := func(err error) generation.Kind {
		if strings.Contains(err.Error(), "PERMISSION_DENIED") {
			return generation.KindCredentialInvalidated
		}
		return generation.KindTransientProviderError
	}
	e, _ := newTestExecutor(t, svc, &mockFetcher{}, WithClassifier(classifier))

	_, err := e.ExecuteVideo(context.Background(), staticGate(true), videoParams(), nil)
	assert.Equal(t, generation.KindCredentialInvalidated, generation.KindOf(err))
}

func TestExecuteVideo_MissingLocator(t *testing.T) {
	svc := &mockService{}
	svc.On("SubmitVideo", mock.Anything, mock.Anything).
		Return(gemini.OperationHandle{Name: "operations/abc", Done: true}, nil)

	f := &mockFetcher{}
	e, _ := newTestExecutor(t, svc, f)

	_, err := e.ExecuteVideo(context.Background(), staticGate(true), videoParams(), nil)
	require.Error(t, err)
	assert.Equal(t, generation.KindNoOutputProduced, generation.KindOf(err))
	assert.Equal(t, generation.MsgNoVideoLink, err.Error())
	assert.False(t, generation.IsCredentialFailure(err))
	f.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestExecuteVideo_OperationError(t *testing.T) {
	svc := &mockService{}
	svc.On("SubmitVideo", mock.Anything, mock.Anything).
		Return(gemini.OperationHandle{Name: "operations/abc", Done: true, Error: "content blocked"}, nil)

	e, _ := newTestExecutor(t, svc, &mockFetcher{})

	_, err := e.ExecuteVideo(context.Background(), staticGate(true), videoParams(), nil)
	require.Error(t, err)
	assert.Equal(t, generation.KindTransientProviderError, generation.KindOf(err))
	assert.Equal(t, "content blocked", err.Error())
}

func TestExecuteVideo_DownloadStatusError(t *testing.T) {
	svc := &mockService{}
	svc.On("SubmitVideo", mock.Anything, mock.Anything).
		Return(gemini.OperationHandle{Name: "operations/abc", Done: true, VideoURI: "https://example.test/v.mp4"}, nil)

	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, "https://example.test/v.mp4").
		Return(nil, &download.StatusError{StatusCode: 403, Status: "Forbidden"})

	e, _ := newTestExecutor(t, svc, f)

	_, err := e.ExecuteVideo(context.Background(), staticGate(true), videoParams(), nil)
	require.Error(t, err)
	assert.Equal(t, generation.KindDownloadFailed, generation.KindOf(err))
	assert.Equal(t, "Failed to download the video. Status: Forbidden", err.Error())
	assert.ErrorIs(t, err, download.ErrUnexpectedStatus)
}

func TestExecuteVideo_SubmitError(t *testing.T) {
	svc := &mockService{}
	svc.On("SubmitVideo", mock.Anything, mock.Anything).
		Return(gemini.OperationHandle{}, errors.New("invalid argument"))

	e, _ := newTestExecutor(t, svc, &mockFetcher{})
	rec := &progressRecorder{}

	_, err := e.ExecuteVideo(context.Background(), staticGate(true), videoParams(), rec.record)
	require.Error(t, err)
	assert.Equal(t, generation.KindTransientProviderError, generation.KindOf(err))
	require.Len(t, rec.updates, 1)
	assert.Equal(t, PhaseSubmitting, rec.updates[0].Phase)
}

func TestExecuteVideo_MaxWait(t *testing.T) {
	svc := &mockService{}
	pending := gemini.OperationHandle{Name: "operations/abc"}
	svc.On("SubmitVideo", mock.Anything, mock.Anything).Return(pending, nil)
	svc.On("PollVideo", mock.Anything, pending).Return(pending, nil)

	e, _ := newTestExecutor(t, svc, &mockFetcher{}, WithMaxWait(20*time.Millisecond))

	_, err := e.ExecuteVideo(context.Background(), staticGate(true), videoParams(), nil)
	require.Error(t, err)
	assert.Equal(t, generation.KindTimedOut, generation.KindOf(err))
	assert.Equal(t, MsgTimedOut, err.Error())
}

func TestExecuteVideo_ContextCancelled(t *testing.T) {
	svc := &mockService{}
	pending := gemini.OperationHandle{Name: "operations/abc"}
	svc.On("SubmitVideo", mock.Anything, mock.Anything).Return(pending, nil)

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	e, err := New(svc, &mockFetcher{}, store, credential.NewKeyStore("k"), WithPollInterval(time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	progress := func(p Progress) {
		if p.Phase == PhasePolling {
			cancel()
		}
	}

	_, err = e.ExecuteVideo(ctx, staticGate(true), videoParams(), progress)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, MsgCancelled, err.Error())
	svc.AssertNumberOfCalls(t, "PollVideo", 0)
}

func TestExecute_Dispatch(t *testing.T) {
	svc := &mockService{}
	svc.On("GenerateImage", mock.Anything, mock.Anything).Return([][]byte{{1}}, nil)

	e, _ := newTestExecutor(t, svc, nil)
	ref, err := e.Execute(context.Background(), generation.Request{
		Mode:  generation.ModeImage,
		Image: generation.DefaultImageParameters("x"),
	}, staticGate(false), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, ImageDataURIPrefix))

	_, err = e.Execute(context.Background(), generation.Request{
		Mode:  generation.ModeVideo,
		Video: videoParams(),
	}, staticGate(false), nil)
	assert.Equal(t, generation.KindCredentialNotSelected, generation.KindOf(err))
}

func TestPollMessage_Wraps(t *testing.T) {
	assert.Len(t, PollMessages, 5)
	assert.Equal(t, PollMessages[0], pollMessage(0))
	assert.Equal(t, PollMessages[4], pollMessage(4))
	assert.Equal(t, PollMessages[0], pollMessage(5))
	assert.Equal(t, PollMessages[2], pollMessage(12))
}
