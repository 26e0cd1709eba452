package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	alog "github.com/apex/log"
)

// Environment variable to configure log file path.
const envLogPath = "CONTENT_MCP_LOG"

var (
	mu            sync.Mutex
	logFile       *os.File
	isInitialized bool
)

// Handler writes one line per entry: timestamp, level initial, message and
// any fields in name order.
type Handler struct {
	mu sync.Mutex
	w  io.Writer
}

// HandleLog implements the apex log.Handler interface.
func (h *Handler) HandleLog(e *alog.Entry) error {
	var sb strings.Builder
	sb.WriteString(e.Timestamp.Format("2006-01-02 15:04:05.000000"))
	sb.WriteString(" ")
	sb.WriteString(strings.ToUpper(e.Level.String())[:1])
	sb.WriteString(" ")
	sb.WriteString(e.Message)
	for _, name := range e.Fields.Names() {
		fmt.Fprintf(&sb, " %s=%v", name, e.Fields.Get(name))
	}
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

// InitFromEnv initializes the logger using CONTENT_MCP_LOG or a default path
// next to the executable.
func InitFromEnv() error {
	path := os.Getenv(envLogPath)
	if path == "" {
		if exePath, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exePath), "content-mcp.log")
		} else {
			path = "./content-mcp.log"
		}
	}
	return Init(path)
}

// Init initializes the logger to write to the provided file path.
// It creates parent directories if needed and opens the file in append mode.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if isInitialized {
		return nil
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	logFile = f
	alog.SetHandler(&Handler{w: f})
	isInitialized = true
	return nil
}

// InitWriter routes log output to w. Used by the HTTP server (stderr) and tests.
func InitWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	alog.SetHandler(&Handler{w: w})
	isInitialized = true
}

// SetLevel sets the minimum level from a name such as "debug" or "warn".
func SetLevel(level string) error {
	lvl, err := alog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	alog.SetLevel(lvl)
	return nil
}

// Close closes the underlying log file, if open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		isInitialized = false
		return err
	}
	return nil
}

// Debugf logs verbose diagnostics.
func Debugf(format string, args ...any) { ensure(); alog.Debugf(format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) { ensure(); alog.Infof(format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { ensure(); alog.Warnf(format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { ensure(); alog.Errorf(format, args...) }

// ensure falls back to stderr so stdout stays free for the MCP protocol.
func ensure() {
	mu.Lock()
	ready := isInitialized
	mu.Unlock()
	if !ready {
		InitWriter(os.Stderr)
	}
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
