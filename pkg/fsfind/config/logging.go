package config

import (
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// LoggingConfig maps the configuration onto a logging.Config. console is
// the stderr level; empty disables console output.
func (c *Config) LoggingConfig(console string) logging.Config {
	return logging.Config{
		Level:        c.LogLevel,
		Path:         c.ResolvedLogPath(),
		Rotation:     parseRotationConfig(c.Logging.Rotation),
		Components:   c.Logging.Components,
		ConsoleLevel: console,
	}
}

// parseRotationConfig converts the file form of the rotation settings. An
// empty or unparseable max_size falls back to the default.
func parseRotationConfig(r RotationConfig) logging.RotationConfig {
	out := logging.DefaultRotationConfig()
	out.MaxAge = r.MaxAge
	out.MaxBackups = r.MaxBackups
	out.Daily = r.Daily
	out.Compress = r.Compress

	if r.MaxSize != "" {
		if size, err := types.ParseSize(r.MaxSize); err == nil && size > 0 {
			out.MaxSize = size
		}
	}
	return out
}
