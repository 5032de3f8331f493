package music

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"rookbot/internal/util"
)

type processStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

// Close stops the producing process along with the pipe so skipped tracks
// do not leave yt-dlp running.
func (s *processStream) Close() error {
	err := s.ReadCloser.Close()
	_ = s.cmd.Wait()
	return err
}

// GetYouTubeStream starts yt-dlp streaming the best audio of the video to
// the returned reader. Closing the reader or cancelling the context stops
// the download.
func GetYouTubeStream(ctx context.Context, videoURL string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, "yt-dlp", "-f", "bestaudio", "-o", "-", videoURL)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &processStream{ReadCloser: stdout, cmd: cmd}, nil
}

// FindYouTubeVideo resolves a free-text search to a watch URL using yt-dlp's
// ytsearch, returning the first hit.
func FindYouTubeVideo(ctx context.Context, videoName string) (string, error) {
	cmd := exec.CommandContext(ctx, "yt-dlp", "ytsearch1:"+videoName, "--get-id")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp search failed: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("no results for %q", videoName)
	}
	return util.YoutubeIDToURL(string(out)), nil
}
