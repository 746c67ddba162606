package logging

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	// MaxLineLength is the maximum length of a single stored line before
	// truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept for the exit
	// summary.
	MaxBufferedLines = 100
)

// Output streams of the measurement process.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// OutputHandler handles the non-protocol output of a measurement process:
// pass-through stdout lines and everything on stderr. It keeps recent lines
// for the exit summary and logs them.
type OutputHandler struct {
	logger  *slog.Logger
	verbose bool

	// Circular buffer for recent lines
	mu     sync.Mutex
	buffer []string
	bufIdx int
	total  int64
}

// NewOutputHandler creates a new output handler.
func NewOutputHandler(logger *slog.Logger, verbose bool) *OutputHandler {
	if logger == nil {
		logger = Discard()
	}
	return &OutputHandler{
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// HandleReader reads lines from r until EOF and processes each one as
// coming from stream. Run it in a goroutine per stream. Lines of any length
// are consumed; only the first MaxLineLength bytes are kept, so a long line
// never stops the drain.
func (h *OutputHandler) HandleReader(stream string, r io.Reader) error {
	br := bufio.NewReaderSize(r, MaxLineLength)
	line := make([]byte, 0, MaxLineLength)

	for {
		chunk, err := br.ReadSlice('\n')
		if len(line) <= MaxLineLength {
			line = append(line, chunk...)
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(line) > 0 {
				h.HandleLine(stream, string(line))
			}
			return nil
		case err != nil:
			return err
		}
		h.HandleLine(stream, strings.TrimSuffix(string(line), "\n"))
		line = line[:0]
	}
}

// HandleLine processes a single output line.
func (h *OutputHandler) HandleLine(stream, line string) {
	line = strings.TrimRight(line, "\r")
	if len(line) > MaxLineLength {
		line = truncateLine(line)
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.total++
	h.mu.Unlock()

	h.logLine(stream, line)
}

// truncateLine cuts line to at most MaxLineLength bytes on a rune boundary.
func truncateLine(line string) string {
	cut := MaxLineLength
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut] + "...(truncated)"
}

// PassthroughFunc adapts the handler to a protocol parser's pass-through
// callback for stdout.
func (h *OutputHandler) PassthroughFunc() func(string) {
	return func(line string) { h.HandleLine(StreamStdout, line) }
}

// logLine logs the line at a level based on content.
func (h *OutputHandler) logLine(stream, line string) {
	level := ClassifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !h.verbose && level < slog.LevelWarn {
		return
	}

	h.logger.Log(context.Background(), level, "measure_output",
		"stream", stream,
		"line", line,
	)
}

// ClassifyLine determines the log level for a line based on content.
func ClassifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	// Go runtime failures
	if strings.HasPrefix(lower, "panic:") ||
		strings.HasPrefix(lower, "fatal error:") {
		return slog.LevelError
	}

	// Error patterns
	if strings.Contains(lower, "error") ||
		strings.Contains(lower, "failed") {
		return slog.LevelWarn
	}

	// Lifecycle trace lines and ordinary output
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	if int64(n) > h.total {
		n = int(h.total)
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}
	return lines
}

// Total returns the number of lines handled.
func (h *OutputHandler) Total() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// ErrorPatterns are failure patterns extracted for the exit summary.
var ErrorPatterns = []string{
	"panic:",
	"fatal error:",
	"hook_failed",
	"run_aborted",
	"record_failed",
}

// CountErrors counts occurrences of error patterns in the buffer.
func (h *OutputHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for _, line := range h.buffer {
		if line == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}
	return counts
}
