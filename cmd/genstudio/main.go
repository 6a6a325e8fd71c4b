// Package main provides the genstudio command-line client. It drives one
// session through a single image or video generation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// CLI flags
var (
	imageAspectFlag string
	imageOutputFlag string
	videoAspectFlag string
	resolutionFlag  string
	videoOutputFlag string
	selectKeyFlag   bool
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "genstudio",
	Short: "Generate images and videos from text prompts",
	Long: `genstudio sends a text prompt to the Gemini image or video models and saves
the result locally.

Configuration is read from the same environment variables as the API server
(GEMINI_API_KEY, IMAGE_MODEL, VIDEO_MODEL, POLL_INTERVAL, ...).

Examples:
  genstudio image "a lighthouse at dawn" --aspect-ratio 16:9 -o lighthouse.png
  genstudio video "waves crashing on rocks" --resolution 1080p -o waves.mp4
  genstudio video "a paper boat in the rain" --select-key
  genstudio credential`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&selectKeyFlag, "select-key", false, "Ask for the Gemini API key in a dialog before generating")

	imageCmd.Flags().StringVarP(&imageAspectFlag, "aspect-ratio", "a", "", "Image aspect ratio (1:1, 3:4, 4:3, 9:16, 16:9)")
	imageCmd.Flags().StringVarP(&imageOutputFlag, "output", "o", "image.png", "File to write the PNG to")

	videoCmd.Flags().StringVarP(&videoAspectFlag, "aspect-ratio", "a", "", "Video aspect ratio (16:9, 9:16)")
	videoCmd.Flags().StringVarP(&resolutionFlag, "resolution", "r", "", "Video resolution (720p, 1080p)")
	videoCmd.Flags().StringVarP(&videoOutputFlag, "output", "o", "video.mp4", "File to write the MP4 to")

	rootCmd.AddCommand(imageCmd, videoCmd, credentialCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
