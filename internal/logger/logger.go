package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Service   string `json:"service"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// Options controls where a Logger writes.
type Options struct {
	// Service is stamped on every JSON entry and used in the log file name.
	Service string
	// Dir holds the daily JSON log file. Empty disables the file.
	Dir string
	// Terminal receives colored output. Nil means os.Stdout.
	Terminal io.Writer
	// MinLevel drops entries below it.
	MinLevel LogLevel
	// NoColor disables ANSI colors on the terminal output.
	NoColor bool
}

type Logger struct {
	mu       sync.Mutex
	service  string
	terminal io.Writer
	logFile  *os.File
	minLevel LogLevel
	noColor  bool
}

// NewLogger creates the service logger with the default layout: colored
// stdout plus logs/clinic-queue-<date>.log.
func NewLogger() *Logger {
	return New(Options{Service: "clinic-queue", Dir: "logs", MinLevel: levelFromEnv()})
}

func New(opts Options) *Logger {
	if opts.Service == "" {
		opts.Service = "clinic-queue"
	}
	terminal := opts.Terminal
	if terminal == nil {
		terminal = os.Stdout
	}

	l := &Logger{
		service:  opts.Service,
		terminal: terminal,
		minLevel: opts.MinLevel,
		noColor:  opts.NoColor,
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			log.Fatal("Failed to create logs directory:", err)
		}
		logFileName := filepath.Join(opts.Dir, fmt.Sprintf("%s-%s.log", opts.Service, time.Now().Format("2006-01-02")))
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Failed to create log file:", err)
		}
		l.logFile = logFile
		l.Info("LOGGER", fmt.Sprintf("Log file: %s", logFileName))
	}

	return l
}

// NewDiscard returns a logger that drops everything. Handy in tests.
func NewDiscard() *Logger {
	return New(Options{Terminal: io.Discard, MinLevel: FATAL + 1, NoColor: true})
}

func levelFromEnv() LogLevel {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l *Logger) log(level LogLevel, category, message string) {
	if level < l.minLevel {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     l.levelToString(level),
		Service:   l.service,
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprint(l.terminal, l.formatTerminalOutput(entry))
	if l.logFile != nil {
		l.logFile.WriteString(l.formatJSONOutput(entry) + "\n")
	}
}

func (l *Logger) formatTerminalOutput(entry LogEntry) string {
	timestamp := entry.Timestamp[11:19]

	if l.noColor {
		if entry.File != "" && entry.Line > 0 {
			return fmt.Sprintf("%s %-5s [%-10s] %s (%s:%d)\n", timestamp, entry.Level, entry.Category, entry.Message, entry.File, entry.Line)
		}
		return fmt.Sprintf("%s %-5s [%-10s] %s\n", timestamp, entry.Level, entry.Category, entry.Message)
	}

	var levelColor, categoryColor *color.Color
	switch entry.Level {
	case "DEBUG":
		levelColor = color.New(color.FgCyan)
		categoryColor = color.New(color.FgCyan, color.Bold)
	case "INFO":
		levelColor = color.New(color.FgGreen)
		categoryColor = color.New(color.FgGreen, color.Bold)
	case "WARN":
		levelColor = color.New(color.FgYellow)
		categoryColor = color.New(color.FgYellow, color.Bold)
	case "ERROR", "FATAL":
		levelColor = color.New(color.FgRed, color.Bold)
		categoryColor = color.New(color.FgRed, color.Bold)
	default:
		levelColor = color.New(color.FgWhite)
		categoryColor = color.New(color.FgWhite, color.Bold)
	}

	timeStr := color.New(color.FgBlue).Sprintf("%s", timestamp)
	levelStr := levelColor.Sprintf("%-5s", entry.Level)
	categoryStr := categoryColor.Sprintf("[%-10s]", entry.Category)

	if entry.File != "" && entry.Line > 0 {
		fileInfo := color.New(color.FgMagenta).Sprintf(" (%s:%d)", entry.File, entry.Line)
		return fmt.Sprintf("%s %s %s %s%s\n", timeStr, levelStr, categoryStr, entry.Message, fileInfo)
	}
	return fmt.Sprintf("%s %s %s %s\n", timeStr, levelStr, categoryStr, entry.Message)
}

func (l *Logger) formatJSONOutput(entry LogEntry) string {
	jsonBytes, _ := json.Marshal(entry)
	return string(jsonBytes)
}

func (l *Logger) levelToString(level LogLevel) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "INFO"
	}
}

func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	os.Exit(1)
}

// Specialized logging methods for the queue components
func (l *Logger) LogBooking(action string, day fmt.Stringer, message string) {
	l.log(INFO, "BOOKING", fmt.Sprintf("[%s] %s - %s", action, day, message))
}

func (l *Logger) LogQueue(action string, day fmt.Stringer, message string) {
	l.log(INFO, "QUEUE", fmt.Sprintf("[%s] %s - %s", action, day, message))
}

func (l *Logger) LogEvent(kind string, day fmt.Stringer, revision int64) {
	l.log(DEBUG, "EVENTS", fmt.Sprintf("[%s] %s rev=%d", kind, day, revision))
}

func (l *Logger) LogRollover(state, message string) {
	l.log(INFO, "ROLLOVER", fmt.Sprintf("[%s] %s", state, message))
}

func (l *Logger) LogAPI(method, path string, status int, duration time.Duration) {
	l.log(INFO, "API", fmt.Sprintf("%s %s - %d (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.log(INFO, "KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.log(INFO, "DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.log(WARN, "SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.Info("LOGGER", "Closing log file")
		l.mu.Lock()
		l.logFile.Close()
		l.logFile = nil
		l.mu.Unlock()
	}
}
