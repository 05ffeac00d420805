package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AppLogger provides the opt-in diagnostic sinks of the server.
// Used by both the server and tests
type AppLogger struct {
	outputDir   string
	logRequests bool
	logWire     bool
	logDB       bool
	debug       bool
	requestLog  *os.File
	wireLog     *os.File
	dbLog       *os.File
	history     *History
	mu          sync.Mutex

	requestCount int
	wireCount    int
}

// Global application logger (used by server)
var appLogger *AppLogger

// LogConfig holds logging configuration
type LogConfig struct {
	OutputDir   string
	LogRequests bool
	LogWire     bool
	LogDB       bool
	Debug       bool
}

// NewAppLogger creates a new application logger. Without an output
// directory only the debug lines are produced, on the standard logger.
func NewAppLogger(config LogConfig) (*AppLogger, error) {
	al := &AppLogger{
		outputDir:   config.OutputDir,
		logRequests: config.LogRequests,
		logWire:     config.LogWire,
		logDB:       config.LogDB,
		debug:       config.Debug,
	}

	if al.outputDir == "" {
		return al, nil
	}
	if err := os.MkdirAll(al.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	open := func(enabled bool, name string) (*os.File, error) {
		if !enabled {
			return nil, nil
		}
		path := filepath.Join(al.outputDir, name)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		return f, nil
	}

	var err error
	if al.requestLog, err = open(al.logRequests, "requests.log"); err != nil {
		return nil, err
	}
	if al.wireLog, err = open(al.logWire, "wire.log"); err != nil {
		al.Close()
		return nil, err
	}
	if al.dbLog, err = open(al.logDB, "database.log"); err != nil {
		al.Close()
		return nil, err
	}
	return al, nil
}

// InitAppLogger initializes the global application logger
func InitAppLogger(config LogConfig) error {
	var err error
	appLogger, err = NewAppLogger(config)
	return err
}

// AttachHistory sets the database dumped by LogDB.
func (al *AppLogger) AttachHistory(h *History) {
	al.mu.Lock()
	defer al.mu.Unlock()
	al.history = h
}

// Close closes all open log files
func (al *AppLogger) Close() {
	for _, f := range []*os.File{al.requestLog, al.wireLog, al.dbLog} {
		if f != nil {
			f.Close()
		}
	}
}

// LogRequest logs an HTTP request to the WebSocket gateway.
func (al *AppLogger) LogRequest(r *http.Request, note string) {
	if !al.logRequests || al.requestLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.requestCount++
	timestamp := time.Now().Format("15:04:05.000")

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n========== REQUEST #%d [%s] ==========\n", al.requestCount, timestamp)
	fmt.Fprintf(&buf, "%s %s from %s\n", r.Method, r.URL.String(), r.RemoteAddr)
	for k, v := range r.Header {
		fmt.Fprintf(&buf, "%s: %v\n", k, v)
	}
	if note != "" {
		fmt.Fprintf(&buf, "--- %s ---\n", note)
	}
	al.requestLog.Write(buf.Bytes())
}

// LogWire logs one message crossing a connection.
func (al *AppLogger) LogWire(direction, player, message string) {
	if !al.logWire || al.wireLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.wireCount++
	timestamp := time.Now().Format("15:04:05.000")

	fmt.Fprintf(al.wireLog, "[%s] #%d %s [Player %s]: %s\n",
		timestamp, al.wireCount, direction, player, message)
}

// LogDB dumps the current history database state
func (al *AppLogger) LogDB(context string) {
	if !al.logDB || al.dbLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	timestamp := time.Now().Format("15:04:05.000")

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n========== DATABASE DUMP [%s] ==========\n", timestamp)
	fmt.Fprintf(&buf, "Context: %s\n\n", context)
	buf.WriteString(al.history.Dump())

	al.dbLog.Write(buf.Bytes())
}

// Debug logs a debug message if debug mode is enabled
func (al *AppLogger) Debug(context, format string, args ...any) {
	if !al.debug {
		return
	}
	log.Printf("[DEBUG] %s: %s", context, fmt.Sprintf(format, args...))
}

// IsEnabled returns true if any logging is enabled
func (al *AppLogger) IsEnabled() bool {
	return al.logRequests || al.logWire || al.logDB || al.debug
}

// ============================================================================
// HTTP Middleware
// ============================================================================

// LoggingHandler wraps the WebSocket gateway to log upgrade requests.
// Upgrades need http.Hijacker, so the response is never recorded.
type LoggingHandler struct {
	Handler http.Handler
	Logger  *AppLogger
}

func (l *LoggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.Logger.LogRequest(r, "[WebSocket upgrade]")
	l.Handler.ServeHTTP(w, r)
}

// ============================================================================
// Global helper functions
// ============================================================================

// LogWireMessage logs a message using the global logger
func LogWireMessage(direction, player, message string) {
	if appLogger != nil {
		appLogger.LogWire(direction, player, message)
	}
}

// LogDBState logs the database state using the global logger
func LogDBState(context string) {
	if appLogger != nil {
		appLogger.LogDB(context)
	}
}

// DebugLog logs a debug message using the global logger
func DebugLog(context, format string, args ...any) {
	if appLogger != nil {
		appLogger.Debug(context, format, args...)
	}
}

// CloseAppLogger closes the global application logger
func CloseAppLogger() {
	if appLogger != nil {
		appLogger.Close()
	}
}

// devMode makes logError dump the history database.
var devMode bool

// logError logs an error with context and dumps the history in dev mode
func logError(context string, err error) {
	log.Printf("ERROR [%s]: %v", context, err)
	if devMode && appLogger != nil {
		appLogger.mu.Lock()
		h := appLogger.history
		appLogger.mu.Unlock()
		log.Printf("History dump:\n%s", h.Dump())
	}
}

// setupLogOutput sends the standard logger to stdout and, when path is
// set, to a truncated log file as well.
func setupLogOutput(path string) (io.Closer, error) {
	if path == "" {
		log.SetOutput(os.Stdout)
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return f, nil
}
