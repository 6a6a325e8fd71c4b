package generation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		wantErr   bool
		wantEmpty bool
	}{
		{"image defaults", Request{Mode: ModeImage, Image: DefaultImageParameters("a robot")}, false, false},
		{"video defaults", Request{Mode: ModeVideo, Video: DefaultVideoParameters("a cat")}, false, false},
		{"image empty prompt", Request{Mode: ModeImage, Image: DefaultImageParameters("")}, true, true},
		{"image whitespace prompt", Request{Mode: ModeImage, Image: DefaultImageParameters(" \t\n ")}, true, true},
		{"video whitespace prompt", Request{Mode: ModeVideo, Video: DefaultVideoParameters("   ")}, true, true},
		{"image bad ratio", Request{Mode: ModeImage, Image: ImageParameters{Prompt: "x", AspectRatio: "2:1"}}, true, false},
		{"video image-only ratio", Request{Mode: ModeVideo, Video: VideoParameters{Prompt: "x", AspectRatio: "1:1", Resolution: "720p"}}, true, false},
		{"video bad resolution", Request{Mode: ModeVideo, Video: VideoParameters{Prompt: "x", AspectRatio: "9:16", Resolution: "4k"}}, true, false},
		{"video 1080p portrait", Request{Mode: ModeVideo, Video: VideoParameters{Prompt: "x", AspectRatio: "9:16", Resolution: "1080p"}}, false, false},
		{"unknown mode", Request{Mode: "audio"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantEmpty, errors.Is(err, ErrEmptyPrompt))
		})
	}
}

func TestRequest_PromptFollowsMode(t *testing.T) {
	req := Request{
		Mode:  ModeVideo,
		Image: DefaultImageParameters("image prompt"),
		Video: DefaultVideoParameters("video prompt"),
	}
	assert.Equal(t, "video prompt", req.Prompt())

	req.Mode = ModeImage
	assert.Equal(t, "image prompt", req.Prompt())
}

func TestNotFoundClassifier(t *testing.T) {
	assert.Equal(t, KindCredentialInvalidated,
		NotFoundClassifier(errors.New("Error 404, Message: Requested entity was not found., Status: NOT_FOUND")))
	assert.Equal(t, KindTransientProviderError, NotFoundClassifier(errors.New("Error 503: backend unavailable")))
	assert.Equal(t, Kind(""), NotFoundClassifier(nil))
}

func TestClassify(t *testing.T) {
	t.Run("credential invalidated uses re-select message", func(t *testing.T) {
		cause := errors.New("Requested entity was not found")
		f := Classify(nil, cause)
		require.NotNil(t, f)
		assert.Equal(t, KindCredentialInvalidated, f.Kind)
		assert.Equal(t, MsgCredentialInvalidated, f.Error())
		assert.ErrorIs(t, f, cause)
	})

	t.Run("other errors keep their text", func(t *testing.T) {
		f := Classify(NotFoundClassifier, errors.New("quota exceeded"))
		require.NotNil(t, f)
		assert.Equal(t, KindTransientProviderError, f.Kind)
		assert.Equal(t, "quota exceeded", f.Error())
	})

	t.Run("custom classifier", func(t *testing.T) {
		always := func(error) Kind { return KindCredentialInvalidated }
		f := Classify(always, errors.New("permission denied"))
		assert.Equal(t, KindCredentialInvalidated, f.Kind)
	})
}

func TestIsCredentialFailure(t *testing.T) {
	assert.True(t, IsCredentialFailure(NewFailure(KindCredentialInvalidated, MsgCredentialInvalidated, nil)))
	assert.True(t, IsCredentialFailure(fmt.Errorf("wrapped: %w", NewFailure(KindCredentialNotSelected, "", nil))))
	assert.True(t, IsCredentialFailure(errors.New("API key error. Please re-select")))
	assert.False(t, IsCredentialFailure(NewFailure(KindDownloadFailed, "Failed to download", nil)))
	assert.False(t, IsCredentialFailure(errors.New("boom")))
	assert.False(t, IsCredentialFailure(nil))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNoOutputProduced, KindOf(NewFailure(KindNoOutputProduced, MsgNoVideoLink, nil)))
	assert.Equal(t, KindTransientProviderError, KindOf(errors.New("plain")))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, MsgUnknown, Message(errors.New("")))
	assert.Equal(t, MsgNoImage, Message(NewFailure(KindNoOutputProduced, MsgNoImage, nil)))
}
