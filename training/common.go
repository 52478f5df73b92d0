package training

import (
	"log/slog"

	"github.com/modestprophet/gonzo-pit-strategy/config"
)

func trainingLogger() *slog.Logger {
	if config.AppLogger != nil {
		return config.AppLogger.With("layer", "training")
	}

	logger := config.EnsureLoggerInitialized()
	if logger == nil {
		return slog.Default().With("layer", "training")
	}
	return logger.With("layer", "training")
}
