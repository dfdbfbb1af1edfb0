// Package logging provides categorized file-based logging for the fuzzer.
// Logs are written to <state-dir>/logs/ with one file per category per day.
// File logging is off until Initialize is called; helpers are safe to call
// from any subsystem at any time.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category identifies a fuzzer subsystem for log routing.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config, resume
	CategoryMine     Category = "mine"     // Fragment mining
	CategoryMutate   Category = "mutate"   // Document and sequence mutation
	CategoryExec     Category = "exec"     // Target execution
	CategorySchedule Category = "schedule" // Corpus scheduling
	CategoryCorpus   Category = "corpus"   // Corpus persistence
	CategoryTriage   Category = "triage"   // Crash dedup and export
	CategoryProto    Category = "proto"    // Protocol session handling
)

// Level thresholds. Debug entries are dropped unless debug mode is on.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger writes entries for one category.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggersMu sync.RWMutex
	loggers   = make(map[Category]*Logger)

	stateMu   sync.RWMutex
	logsDir   string
	debugMode bool
)

// Initialize sets up the logging directory under the fuzzing state dir.
// Should be called once at startup.
func Initialize(stateDir string, debug bool) error {
	if stateDir == "" {
		return fmt.Errorf("state directory required")
	}
	dir := filepath.Join(stateDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	stateMu.Lock()
	logsDir = dir
	debugMode = debug
	stateMu.Unlock()
	return nil
}

// IsDebugMode reports whether debug logging is enabled.
func IsDebugMode() bool {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return debugMode
}

// Get returns (or creates) the logger for a category. A no-op logger is
// returned before Initialize or when the log file cannot be opened.
func Get(category Category) *Logger {
	stateMu.RLock()
	dir := logsDir
	stateMu.RUnlock()
	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files.
	name := fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02"), category)
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] warning: cannot open log file for %s: %v\n", category, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		logger:   log.New(file, "", log.LstdFlags|log.Lmicroseconds),
		file:     file,
	}
	loggers[category] = l
	return l
}

// Close flushes and closes all open log files.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for cat, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
		delete(loggers, cat)
	}
}

func (l *Logger) write(level int, format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	if level == LevelDebug && !IsDebugMode() {
		return
	}
	prefix := [...]string{"DEBUG", "INFO", "WARN", "ERROR"}[level]
	l.logger.Printf("[%s] %s", prefix, fmt.Sprintf(format, args...))
}

// Debug logs a debug-level entry.
func (l *Logger) Debug(format string, args ...interface{}) { l.write(LevelDebug, format, args...) }

// Info logs an info-level entry.
func (l *Logger) Info(format string, args ...interface{}) { l.write(LevelInfo, format, args...) }

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...interface{}) { l.write(LevelWarn, format, args...) }

// Error logs an error.
func (l *Logger) Error(format string, args ...interface{}) { l.write(LevelError, format, args...) }

// Category helpers, one set per subsystem.

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

func Mine(format string, args ...interface{})      { Get(CategoryMine).Info(format, args...) }
func MineDebug(format string, args ...interface{}) { Get(CategoryMine).Debug(format, args...) }
func MineWarn(format string, args ...interface{})  { Get(CategoryMine).Warn(format, args...) }

func Mutate(format string, args ...interface{})      { Get(CategoryMutate).Info(format, args...) }
func MutateDebug(format string, args ...interface{}) { Get(CategoryMutate).Debug(format, args...) }

func Exec(format string, args ...interface{})      { Get(CategoryExec).Info(format, args...) }
func ExecDebug(format string, args ...interface{}) { Get(CategoryExec).Debug(format, args...) }
func ExecWarn(format string, args ...interface{})  { Get(CategoryExec).Warn(format, args...) }
func ExecError(format string, args ...interface{}) { Get(CategoryExec).Error(format, args...) }

func Schedule(format string, args ...interface{})      { Get(CategorySchedule).Info(format, args...) }
func ScheduleDebug(format string, args ...interface{}) { Get(CategorySchedule).Debug(format, args...) }
func ScheduleWarn(format string, args ...interface{})  { Get(CategorySchedule).Warn(format, args...) }

func Corpus(format string, args ...interface{})     { Get(CategoryCorpus).Info(format, args...) }
func CorpusWarn(format string, args ...interface{}) { Get(CategoryCorpus).Warn(format, args...) }

func Triage(format string, args ...interface{})      { Get(CategoryTriage).Info(format, args...) }
func TriageWarn(format string, args ...interface{})  { Get(CategoryTriage).Warn(format, args...) }
func TriageError(format string, args ...interface{}) { Get(CategoryTriage).Error(format, args...) }

func Proto(format string, args ...interface{})      { Get(CategoryProto).Info(format, args...) }
func ProtoDebug(format string, args ...interface{}) { Get(CategoryProto).Debug(format, args...) }
