package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger is the per-run file logger for pipeline activity
type Logger struct {
	runID   string
	logFile *os.File
	logger  *log.Logger
	mu      sync.Mutex
	logDir  string
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelRisk    LogLevel = "RISK"
	LogLevelExec    LogLevel = "EXEC"
)

// NewLogger creates a file logger for the given run under logDir
func NewLogger(logDir, runID string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("%s.log", runID))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		runID:   runID,
		logFile: file,
		logger:  log.New(file, "", 0),
		logDir:  logDir,
	}

	l.writeSessionHeader()
	return l, nil
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
COORDINATION RUN STARTED
================================================================================
Run ID: %s
Started: %s
================================================================================
`, l.runID, time.Now().Format("2006-01-02 15:04:05"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, message))
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Risk logs a risk assessment outcome
func (l *Logger) Risk(format string, args ...interface{}) {
	l.Log(LogLevelRisk, format, args...)
}

// Exec logs an instruction execution outcome
func (l *Logger) Exec(format string, args ...interface{}) {
	l.Log(LogLevelExec, format, args...)
}

// LogError logs an error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// LogRiskBreach logs a risk level change prominently
func (l *Logger) LogRiskBreach(dimension string, level string, value float64, message string) {
	l.Risk("breach on %s: level=%s value=%.6f - %s", dimension, level, value, message)
}

// LogTick logs the completion of one orchestration tick
func (l *Logger) LogTick(sequence uint64, timestamp time.Time, netDelta float64, succeeded, failed int) {
	l.Info("tick %d (%s): net_delta=%.4f instructions succeeded=%d failed=%d",
		sequence, timestamp.Format(time.RFC3339), netDelta, succeeded, failed)
}

// Close writes the session footer and closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		footer := fmt.Sprintf(`
================================================================================
COORDINATION RUN ENDED
================================================================================
Ended: %s
================================================================================

`, time.Now().Format("2006-01-02 15:04:05"))
		l.logger.Print(footer)
		return l.logFile.Close()
	}
	return nil
}
