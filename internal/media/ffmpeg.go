package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// EncodeMP3 re-encodes src into an MP3 at dst with the given bitrate,
// sample rate, and channel count.
//
// ffmpeg -y -i src -codec:a libmp3lame -b:a 64k -ar 16000 -ac 1 dst
func EncodeMP3(ctx context.Context, src, dst string, bitrateKbps, sampleRate, channels int) error {
	if bitrateKbps <= 0 || sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid encode parameters: bitrate=%d rate=%d channels=%d",
			bitrateKbps, sampleRate, channels)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", src,
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(bitrateKbps)+"k",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		dst,
	)

	return runFFmpeg(cmd)
}

// ApplyFilters runs src through an ffmpeg audio filter chain and writes the
// result to dst. The chain is a comma-joined -af expression.
//
// ffmpeg -y -i src -af "highpass=f=80,lowpass=f=8000" dst
func ApplyFilters(ctx context.Context, src, dst, filterChain string) error {
	if filterChain == "" {
		return fmt.Errorf("filter chain cannot be empty")
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", src,
		"-af", filterChain,
		dst,
	)

	return runFFmpeg(cmd)
}

// runFFmpeg executes an ffmpeg command, surfacing the tail of stderr on
// failure since ffmpeg reports everything there.
func runFFmpeg(cmd *exec.Cmd) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := stderr.String()
		if len(detail) > 512 {
			detail = detail[len(detail)-512:]
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, detail)
	}

	return nil
}

// Available reports whether the ffmpeg binary can be found on PATH. Checked
// once at startup so misconfiguration fails fast instead of at first stop.
func Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}
