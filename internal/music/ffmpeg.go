package music

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// DecodeAudioToPCM pipes the input through ffmpeg and emits 48kHz stereo
// 16-bit PCM frames on pcmChan. Cancelling the context kills ffmpeg.
func DecodeAudioToPCM(ctx context.Context, input io.Reader, pcmChan chan<- []int16) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-i", "pipe:0", "-f", "s16le", "-ar", "48000", "-ac", "2", "pipe:1")
	cmd.Stdin = input

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	buffer := make([]byte, 48000*4)
	for {
		n, err := stdout.Read(buffer)
		if n > 0 {
			samples := make([]int16, n/2)
			for i := 0; i < len(samples); i++ {
				samples[i] = int16(buffer[2*i]) | int16(buffer[2*i+1])<<8
			}

			select {
			case pcmChan <- samples:
			case <-ctx.Done():
				_ = cmd.Wait()
				return ctx.Err()
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = cmd.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("error reading from ffmpeg: %w", err)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg exited with error: %w", err)
	}
	return nil
}
