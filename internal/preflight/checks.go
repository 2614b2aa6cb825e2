// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/frame"
)

// MinTerminal is the smallest terminal a run can use: enough for a
// recognizable grid plus the status line.
var MinTerminal = frame.Dimensions{Cols: 20, Rows: 6}

// fdsPerRun covers the decoder pipes, the metrics listener, websocket
// clients and the log file.
const fdsPerRun = 64

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Options selects what RunAll checks.
type Options struct {
	FFmpegPath  string
	FFprobePath string
	Input       string

	// Synthetic skips the decoder and input checks.
	Synthetic bool

	// Terminal is the terminal size; nil means the output is not a
	// terminal, which is a warning.
	Terminal *frame.Dimensions
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	if !opts.Synthetic {
		add(checkBinary("ffmpeg", opts.FFmpegPath))
		add(checkBinary("ffprobe", opts.FFprobePath))
		add(checkInput(opts.Input))
	}
	add(checkTerminal(opts.Terminal))
	add(checkFileDescriptors())

	return result
}

// checkBinary verifies an ffmpeg-suite tool runs and reports its version.
func checkBinary(name, path string) Check {
	cmd := exec.Command(path, "-version")
	output, err := cmd.Output()

	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, parseVersion(output)),
	}
}

// parseVersion extracts X from "ffmpeg version X Copyright ...".
func parseVersion(output []byte) string {
	first, _, _ := strings.Cut(string(output), "\n")
	parts := strings.Fields(first)
	if len(parts) >= 3 && parts[1] == "version" {
		return parts[2]
	}
	return "unknown"
}

// checkInput verifies a local input is a readable regular file. Remote
// inputs are left to ffmpeg.
func checkInput(path string) Check {
	if path == "" {
		return Check{Name: "input", Passed: false, Message: "no video file given"}
	}
	if strings.Contains(path, "://") {
		return Check{
			Name:    "input",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s is remote, not checked", path),
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return Check{Name: "input", Passed: false, Message: err.Error()}
	}
	if info.IsDir() {
		return Check{Name: "input", Passed: false, Message: fmt.Sprintf("%s is a directory", path)}
	}

	f, err := os.Open(path)
	if err != nil {
		return Check{Name: "input", Passed: false, Message: err.Error()}
	}
	f.Close()

	return Check{
		Name:    "input",
		Passed:  true,
		Message: fmt.Sprintf("%s (%d bytes)", path, info.Size()),
	}
}

// checkTerminal verifies the terminal can hold a minimal grid.
func checkTerminal(size *frame.Dimensions) Check {
	if size == nil {
		return Check{
			Name:    "terminal",
			Passed:  true,
			Warning: true,
			Message: "output is not a terminal, assuming 80x24",
		}
	}

	ok := size.Cols >= MinTerminal.Cols && size.Rows >= MinTerminal.Rows
	return Check{
		Name:    "terminal",
		Passed:  ok,
		Message: fmt.Sprintf("%dx%d (need %dx%d)", size.Cols, size.Rows, MinTerminal.Cols, MinTerminal.Rows),
	}
}

// checkFileDescriptors verifies the open-file limit. A low limit is only a
// warning since a single run needs few descriptors.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: "unable to check",
		}
	}

	actual := int(min(limit.Cur, 1<<30))
	return Check{
		Name:     "file_descriptors",
		Required: fdsPerRun,
		Actual:   actual,
		Passed:   true,
		Warning:  actual < fdsPerRun,
		Message:  fmt.Sprintf("ulimit -n %d", actual),
	}
}

// PrintResults writes the check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "ffmpeg", "ffprobe":
		return "install ffmpeg (apt install ffmpeg / brew install ffmpeg), or pass -synthetic"
	case "input":
		return "pass a readable video file as the last argument"
	case "terminal":
		return fmt.Sprintf("enlarge the terminal to at least %dx%d", MinTerminal.Cols, MinTerminal.Rows)
	case "file_descriptors":
		return "ulimit -n 1024"
	default:
		return "see --help"
	}
}
