package stitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// FFmpeg concatenates with the concat demuxer and stream copy.
type FFmpeg struct {
	Path string
}

// Concat implements Concatenator.
func (f FFmpeg) Concat(ctx context.Context, manifestPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, binary(f.Path, "ffmpeg"),
		"-hide_banner", "-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		"-y", outputPath,
	)
	return run(cmd)
}

// FFprobe reads stream parameters with ffprobe.
type FFprobe struct {
	Path string
}

// Stream is the subset of ffprobe stream fields that must match for stream
// copy concatenation.
type Stream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	PixFmt     string `json:"pix_fmt,omitempty"`
	SampleRate string `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

func (s Stream) String() string {
	if s.CodecType == "video" {
		return fmt.Sprintf("video %s %dx%d %s", s.CodecName, s.Width, s.Height, s.PixFmt)
	}
	return fmt.Sprintf("%s %s %s %d", s.CodecType, s.CodecName, s.SampleRate, s.Channels)
}

// StreamInfo lists the streams of one file in container order.
type StreamInfo []Stream

// Compatible reports whether both files have the same streams in the same
// order with the same parameters.
func (si StreamInfo) Compatible(other StreamInfo) bool {
	if len(si) != len(other) {
		return false
	}
	for i := range si {
		if si[i] != other[i] {
			return false
		}
	}
	return true
}

func (si StreamInfo) String() string {
	parts := make([]string, len(si))
	for i, s := range si {
		parts[i] = s.String()
	}
	return strings.Join(parts, "; ")
}

// Probe implements Prober.
func (f FFprobe) Probe(ctx context.Context, path string) (StreamInfo, error) {
	cmd := exec.CommandContext(ctx, binary(f.Path, "ffprobe"),
		"-v", "error",
		"-show_entries", "stream=codec_type,codec_name,width,height,pix_fmt,sample_rate,channels",
		"-of", "json",
		path,
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := run(cmd); err != nil {
		return nil, err
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (StreamInfo, error) {
	var out struct {
		Streams StreamInfo `json:"streams"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, fmt.Errorf("no streams found")
	}
	return out.Streams, nil
}

// run executes cmd and folds its stderr into the returned error.
func run(cmd *exec.Cmd) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", cmd.Args[0], err, msg)
		}
		return fmt.Errorf("%s: %w", cmd.Args[0], err)
	}
	return nil
}

func binary(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}
