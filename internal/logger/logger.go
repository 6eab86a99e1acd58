package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap logger that also owns the per-run log file.
type Logger struct {
	*zap.Logger
	file *os.File
}

// NewLogger creates a logger writing to stderr and, when logDir is set, to a
// timestamped JSON file inside it.
func NewLogger(level, logDir string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), lvl),
	}

	var file *os.File
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		logPath := filepath.Join(logDir, fmt.Sprintf("sdsdg_%s.log", timestamp))
		file, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(file), lvl))
	}

	return &Logger{
		Logger: zap.New(zapcore.NewTee(cores...)),
		file:   file,
	}, nil
}

// Close flushes buffered entries and closes the log file.
func (l *Logger) Close() error {
	_ = l.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Interaction describes one LLM call.
type Interaction struct {
	CallID        string
	Table         string
	Batch         int
	Attempt       int
	Messages      int
	PromptTokens  int
	ResponseBytes int
	Elapsed       time.Duration
}

// LogLLMInteraction records an LLM call at debug level, or a failed one at warn.
func LogLLMInteraction(log *zap.Logger, operation string, in Interaction, err error) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("call_id", in.CallID),
		zap.String("table", in.Table),
		zap.Int("batch", in.Batch),
		zap.Int("attempt", in.Attempt),
		zap.Int("messages", in.Messages),
		zap.Int("prompt_tokens", in.PromptTokens),
		zap.Int("response_bytes", in.ResponseBytes),
		zap.Duration("elapsed", in.Elapsed),
	}
	if err != nil {
		log.Warn("LLM call failed", append(fields, zap.String("error", SanitizeError(err)))...)
		return
	}
	log.Debug("LLM call completed", fields...)
}
