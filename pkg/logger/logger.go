package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

var (
	log  *slog.Logger
	once sync.Once
)

// Init sets up the process-wide JSON event logger. Safe to call more than
// once; later calls are no-ops.
func Init() {
	once.Do(func() {
		log = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	})
}

func Info(event string, fields map[string]interface{}) {
	logAt(slog.LevelInfo, event, fields)
}

func Warn(event string, fields map[string]interface{}) {
	logAt(slog.LevelWarn, event, fields)
}

func Error(event string, fields map[string]interface{}) {
	logAt(slog.LevelError, event, fields)
}

func logAt(level slog.Level, event string, fields map[string]interface{}) {
	if log == nil {
		Init()
	}
	attrs := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		attrs = append(attrs, key, value)
	}
	log.Log(context.Background(), level, event, attrs...)
}
