package logging

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/FrondEnt/PolymarketBTC15mAssistant/internal/config"
)

// Setup configures the global zerolog logger: console output always, plus
// a size-rotated file when LOG_FILE is set.
func Setup(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stderr}

	if cfg.LogFile == "" {
		log.Logger = log.Output(console)
		return
	}

	if dir := filepath.Dir(cfg.LogFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Logger = log.Output(console)
			log.Warn().Err(err).Str("dir", dir).Msg("⚠️ Could not create log directory, logging to console only")
			return
		}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}

	log.Logger = log.Output(zerolog.MultiLevelWriter(console, file))
}
