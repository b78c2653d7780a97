package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ffprobeResult is the subset of ffprobe output the extractor needs.
type ffprobeResult struct {
	Duration  float64
	Width     int
	Height    int
	Format    string
	PixFormat string
}

// FFprobe runs the ffprobe binary over stdin.
type FFprobe struct {
	path string
}

// NewFFprobe returns a prober for the binary at path.
// An empty path looks up "ffprobe" on PATH; nil is returned if none is found.
func NewFFprobe(path string) *FFprobe {
	if path == "" {
		found, err := exec.LookPath("ffprobe")
		if err != nil {
			return nil
		}
		path = found
	}
	return &FFprobe{path: path}
}

// Probe streams data to ffprobe and parses its JSON report.
func (f *FFprobe) Probe(ctx context.Context, data []byte) (*ffprobeResult, error) {
	cmd := exec.CommandContext(ctx, f.path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-i", "pipe:0",
	)
	cmd.Stdin = bytes.NewReader(data)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var out ffprobeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	res := &ffprobeResult{}
	if out.Format.FormatName != "" {
		// Take the first name, e.g. "matroska" from "matroska,webm".
		res.Format = strings.Split(out.Format.FormatName, ",")[0]
	}
	if out.Format.Duration != "" {
		if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			res.Duration = d
		}
	}
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		res.Width, res.Height, res.PixFormat = s.Width, s.Height, s.PixFmt
		if res.Duration == 0 && s.Duration != "" {
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
				res.Duration = d
			}
		}
		break
	}
	return res, nil
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	PixFmt    string `json:"pix_fmt"`
	Duration  string `json:"duration"`
}
