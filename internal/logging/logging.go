package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"kibotos/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	writerMu sync.Mutex
	writer   io.Writer = os.Stdout
)

// Init configures the process-wide zerolog logger. Call once at
// startup, before anything logs.
func Init(cfg config.LogConfig) {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil && cfg.Level != "" {
		level = parsed
	}

	var output io.Writer = os.Stdout
	if path := strings.TrimSpace(cfg.File); path != "" {
		if w, err := newRotatingLogWriter(path, cfg.FileMaxMB); err == nil {
			output = w
		}
	}
	if strings.EqualFold(cfg.Format, "console") {
		output = zerolog.ConsoleWriter{Out: output}
	}

	writerMu.Lock()
	writer = output
	writerMu.Unlock()

	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(output).With().Timestamp().Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger
}

// Writer returns the destination the global logger writes to, so other
// logging frontends (httplog's slog bridge) emit to the same sink.
func Writer() io.Writer {
	writerMu.Lock()
	defer writerMu.Unlock()
	return writer
}
