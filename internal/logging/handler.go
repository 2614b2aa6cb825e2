package logging

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the longest decoder stderr line kept before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent decoder lines retained.
	MaxBufferedLines = 100
)

// DecoderPatterns are ffmpeg stderr fragments worth counting for the exit
// summary and for explaining an open failure.
var DecoderPatterns = []string{
	"No such file or directory",
	"Permission denied",
	"Invalid data found",
	"Error while decoding",
	"corrupt",
	"missing picture",
	"Conversion failed",
	"Broken pipe",
}

// StderrHandler consumes the decoder's stderr. It keeps a ring of recent
// lines, counts known failure patterns and logs each line at a level
// inferred from its content.
type StderrHandler struct {
	source  string
	logger  *slog.Logger
	verbose bool

	mu        sync.Mutex
	buffer    []string
	bufIdx    int
	counts    map[string]int
	lastError string
}

// NewStderrHandler creates a handler for one decoder. Source labels the log
// records, usually the input path.
func NewStderrHandler(source string, logger *slog.Logger, verbose bool) *StderrHandler {
	if logger == nil {
		logger = NewDiscardLogger()
	}
	return &StderrHandler{
		source:  source,
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
		counts:  make(map[string]int),
	}
}

// HandleReader reads r line by line until EOF. Run it in a goroutine.
func (h *StderrHandler) HandleReader(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, MaxLineLength), MaxLineLength)
	for scanner.Scan() {
		h.HandleLine(scanner.Text())
	}
}

// HandleLine records and logs a single stderr line.
func (h *StderrHandler) HandleLine(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	level := classifyLine(line)

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	for _, p := range DecoderPatterns {
		if strings.Contains(line, p) {
			h.counts[p]++
		}
	}
	if level >= slog.LevelWarn {
		h.lastError = line
	}
	h.mu.Unlock()

	if !h.verbose && level < slog.LevelWarn {
		return
	}
	h.logger.Log(context.Background(), level, "ffmpeg_stderr",
		"source", h.source,
		"line", line,
	)
}

// classifyLine maps an ffmpeg stderr line to a log level.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	switch {
	case strings.Contains(lower, "[error]"),
		strings.Contains(lower, "[fatal]"),
		strings.Contains(lower, "no such file"),
		strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "invalid data found"),
		strings.Contains(lower, "conversion failed"):
		return slog.LevelError
	case strings.Contains(lower, "[warning]"),
		strings.Contains(lower, "error while decoding"),
		strings.Contains(lower, "corrupt"),
		strings.Contains(lower, "missing picture"):
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *StderrHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}
	return lines
}

// LastError returns the most recent warning-or-worse line, or "".
func (h *StderrHandler) LastError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastError
}

// CountErrors returns how often each DecoderPatterns entry was seen over
// the handler's lifetime.
func (h *StderrHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]int, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

// PatternCount is one entry of SortedErrors.
type PatternCount struct {
	Pattern string
	Count   int
}

// SortedErrors returns non-zero pattern counts, most frequent first.
func (h *StderrHandler) SortedErrors() []PatternCount {
	counts := h.CountErrors()
	out := make([]PatternCount, 0, len(counts))
	for p, c := range counts {
		out = append(out, PatternCount{Pattern: p, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Pattern < out[j].Pattern
	})
	return out
}
