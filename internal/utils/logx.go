package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const TraceTimeLayout = "2006-01-02T15:04:05.000"

func traceEncoder() zapcore.Encoder {
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(TraceTimeLayout),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

// NewTraceLogger builds the diagnostic logger. Records always go to stderr
// and, when logPath is set, are appended to that file too. stdout is
// reserved for protocol traffic and is never written here.
func NewTraceLogger(level, logPath string) (*zap.Logger, error) {
	return newTraceLogger(os.Stderr, level, logPath)
}

func newTraceLogger(stderr io.Writer, level, logPath string) (*zap.Logger, error) {
	lv, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	encoder := traceEncoder()

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(stderr)), lv),
	}
	if logPath != "" {
		f, err := openLogFile(logPath)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(f), lv))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0744); err != nil {
		return nil, fmt.Errorf("failed to create log dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}
