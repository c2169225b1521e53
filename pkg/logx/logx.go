// Package logx provides component-prefixed logging with domain-filtered
// debug output and per-session capture rings.
package logx

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Logger struct {
	component string
	logger    *log.Logger
	ring      *Ring // optional session capture, may be nil
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	Domains map[string]bool // Which domains to enable debug for (nil = all)
}

// Entry is one captured log line. Rings of entries travel with a session
// and appear in the session export under "logs".
type Entry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Ring stores the most recent log entries for one session.
type Ring struct {
	entries []Entry
	mutex   sync.RWMutex
	maxSize int
}

// DefaultRingSize bounds how many entries a session retains.
const DefaultRingSize = 1000

// NewRing creates a capture ring holding at most maxSize entries.
// A maxSize <= 0 falls back to DefaultRingSize.
func NewRing(maxSize int) *Ring {
	if maxSize <= 0 {
		maxSize = DefaultRingSize
	}
	return &Ring{
		entries: make([]Entry, 0),
		maxSize: maxSize,
	}
}

// Add appends an entry, dropping the oldest entries beyond the ring size.
func (r *Ring) Add(entry Entry) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.entries = append(r.entries, entry)
	if len(r.entries) > r.maxSize {
		r.entries = r.entries[len(r.entries)-r.maxSize:]
	}
}

// Entries returns a copy of the captured entries in insertion order.
func (r *Ring) Entries() []Entry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of captured entries.
func (r *Ring) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.entries)
}

// Restore replaces the ring contents, used when importing a session.
func (r *Ring) Restore(entries []Entry) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(entries) > r.maxSize {
		entries = entries[len(entries)-r.maxSize:]
	}
	r.entries = make([]Entry, len(entries))
	copy(r.entries, entries)
}

// Global debug configuration.
var (
	debugConfig = &DebugConfig{
		Enabled: false,
		Domains: nil,
	}
	debugMutex sync.RWMutex
)

// Initialize debug configuration from environment variables.
func init() { //nolint:gochecknoinits // Required for env var initialization
	initDebugFromEnv()
}

// initDebugFromEnv initializes debug configuration from environment variables.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	// Check if debug is enabled via DEBUG=1 or DEBUG=true
	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	// Parse domain filtering from DEBUG_DOMAINS=coordinator,research,writer
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0), // Log to stderr for CLI compatibility
	}
}

// NewLoggerWithWriter creates a logger writing to w instead of stderr.
func NewLoggerWithWriter(component string, w io.Writer) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(w, "", 0),
	}
}

// WithRing returns a logger that additionally captures entries into ring.
// The returned logger shares the underlying writer.
func (l *Logger) WithRing(ring *Ring) *Logger {
	return &Logger{
		component: l.component,
		logger:    l.logger,
		ring:      ring,
	}
}

// WithComponent returns a logger with a different component prefix but the
// same writer and capture ring.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		component: component,
		logger:    l.logger,
		ring:      l.ring,
	}
}

// SetDebugConfig configures global debug logging settings.
func SetDebugConfig(enabled bool, domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = enabled
	if len(domains) == 0 {
		debugConfig.Domains = nil // Enable all domains
	} else {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range domains {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a specific domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}

	// If no domain filtering is configured, enable all domains.
	if debugConfig.Domains == nil {
		return true
	}

	return debugConfig.Domains[domain]
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format(timestampLayout)
	message := fmt.Sprintf(format, args...)
	logLine := fmt.Sprintf("[%s] [%s] %s: %s", timestamp, l.component, level, message)
	l.logger.Println(logLine)

	if l.ring != nil {
		l.ring.Add(Entry{
			Timestamp: timestamp,
			Component: l.component,
			Level:     string(level),
			Message:   message,
		})
	}
}

func (l *Logger) Debug(format string, args ...any) {
	debugMutex.RLock()
	enabled := debugConfig.Enabled
	debugMutex.RUnlock()

	if !enabled {
		return
	}

	l.log(LevelDebug, format, args...)
}

// Debug logs a debug message with context and domain filtering.
//
// Usage examples:
//
//	logx.Debug(ctx, "coordinator", "Decision: %s", action)
//	logx.Debug(ctx, "research", "Query %d/%d: %s", i, n, query)
//
// Environment variable control:
//
//	DEBUG=1                                  # Enable debug for all domains
//	DEBUG=1 DEBUG_DOMAINS=coordinator        # Enable debug only for the coordinator
//	DEBUG=1 DEBUG_DOMAINS=coordinator,writer # Enable debug for multiple domains
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}

	// Session ID rides on the context when a coordinator loop is running.
	component := domain
	if ctx != nil {
		if id := ctx.Value(sessionIDKey{}); id != nil {
			if idStr, ok := id.(string); ok && idStr != "" {
				component = idStr
			}
		}
	}

	logger := NewLogger(component)
	logger.log(LevelDebug, "[%s] %s", domain, fmt.Sprintf(format, args...))
}

type sessionIDKey struct{}

// WithSessionID attaches a session identifier to ctx for debug attribution.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

// SessionID returns the session identifier attached to ctx, or "" when none
// is set.
func SessionID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id
	}
	return ""
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// DebugState logs phase transition information.
func (l *Logger) DebugState(action, state string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = fmt.Sprintf(" - %s", extra[0])
	}
	l.Debug("State %s: %s%s", action, state, extraInfo)
}

func (l *Logger) GetComponent() string {
	return l.component
}

// Global logging functions for convenience.
var defaultLogger = NewLogger("saga")

func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
// Use this when you need both logging and error returning:
//
//	err := logx.Errorf("setup failed: %w", err).
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
// Use this when you need both logging and error wrapping:
//
//	if err != nil { return logx.Wrap(err, "db connect") }.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
