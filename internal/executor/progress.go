package executor

// Phase identifies the stage of a video job a progress update belongs to.
type Phase string

const (
	PhaseSubmitting  Phase = "submitting"
	PhasePolling     Phase = "polling"
	PhaseDownloading Phase = "downloading"
)

// Progress messages emitted outside the poll loop.
const (
	MsgSubmitting  = "Initializing video generation..."
	MsgDownloading = "Fetching generated video..."
)

// PollMessages rotate once per poll iteration, starting at index 0.
var PollMessages = []string{
	"Warming up the digital canvas...",
	"Rendering pixels into motion...",
	"Composing the opening scene...",
	"Almost there, adding finishing touches...",
	"Finalizing your masterpiece...",
}

// Progress is a human-readable status update.
type Progress struct {
	Phase   Phase
	Message string
}

// ProgressFunc receives progress updates. It must not block.
type ProgressFunc func(Progress)

// pollMessage returns the phrase shown before the given poll iteration.
func pollMessage(iteration int) string {
	return PollMessages[iteration%len(PollMessages)]
}
