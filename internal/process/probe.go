package process

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// VideoInfo describes the primary video stream of an input.
type VideoInfo struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int64
	Duration   time.Duration
	Codec      string
	PixFmt     string
	Format     string
}

// FrameInterval returns the nominal time between frames.
func (v *VideoInfo) FrameInterval() time.Duration {
	if v.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / v.FPS)
}

// --- ffprobe JSON wire types ---

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type probeStream struct {
	CodecName    string         `json:"codec_name"`
	CodecType    string         `json:"codec_type"`
	PixFmt       string         `json:"pix_fmt"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	RFrameRate   string         `json:"r_frame_rate"`
	AvgFrameRate string         `json:"avg_frame_rate"`
	NbFrames     string         `json:"nb_frames"`
	Duration     string         `json:"duration"`
	Disposition  map[string]int `json:"disposition"`
}

// Probe runs ffprobe against path and returns its primary video stream.
func Probe(ctx context.Context, ffprobePath, path string) (*VideoInfo, error) {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseProbeJSON(out)
}

// ParseProbeJSON converts raw ffprobe JSON into a VideoInfo.
// Exported for testing without a real ffprobe binary.
func ParseProbeJSON(data []byte) (*VideoInfo, error) {
	var raw probeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	var vs *probeStream
	for i := range raw.Streams {
		s := &raw.Streams[i]
		if s.CodecType == "video" && s.Disposition["attached_pic"] != 1 {
			vs = s
			break
		}
	}
	if vs == nil {
		return nil, fmt.Errorf("no video stream found")
	}
	if vs.Width <= 0 || vs.Height <= 0 {
		return nil, fmt.Errorf("video stream has invalid size %dx%d", vs.Width, vs.Height)
	}

	info := &VideoInfo{
		Width:  vs.Width,
		Height: vs.Height,
		Codec:  vs.CodecName,
		PixFmt: vs.PixFmt,
		Format: raw.Format.FormatName,
	}

	// avg_frame_rate is the real average; r_frame_rate is the container's
	// base rate and can be wildly high for variable-rate files.
	info.FPS = ParseFrameRate(vs.AvgFrameRate)
	if info.FPS <= 0 {
		info.FPS = ParseFrameRate(vs.RFrameRate)
	}

	secs := parseFloat(vs.Duration)
	if secs <= 0 {
		secs = parseFloat(raw.Format.Duration)
	}
	info.Duration = time.Duration(secs * float64(time.Second))

	info.FrameCount, _ = strconv.ParseInt(vs.NbFrames, 10, 64)
	if info.FrameCount <= 0 && secs > 0 && info.FPS > 0 {
		info.FrameCount = int64(math.Round(secs * info.FPS))
	}

	return info, nil
}

// ParseFrameRate parses an ffprobe rate such as "30000/1001" or "25".
// Malformed or zero-denominator rates return 0.
func ParseFrameRate(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// FindFFprobe returns an ffprobe path next to ffmpegPath when ffmpegPath is
// an explicit path ending in "ffmpeg", falling back to "ffprobe" in PATH.
func FindFFprobe(ffmpegPath string) string {
	const ffmpegSuffix = "ffmpeg"
	if len(ffmpegPath) > len(ffmpegSuffix) && strings.HasSuffix(ffmpegPath, ffmpegSuffix) {
		candidate := strings.TrimSuffix(ffmpegPath, ffmpegSuffix) + "ffprobe"
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate
		}
	}
	return "ffprobe"
}

// Available reports whether a binary can be found.
func Available(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}
