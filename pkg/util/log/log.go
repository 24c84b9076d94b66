// Package log provides the process-wide logger used by both the gateway
// and node binaries.
package log

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the default logger used across the codebase. Binaries may
// replace it at startup via InitLogger once the configured level is known.
var Logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))

// InitLogger builds the process-wide Logger with the given level name
// ("debug", "info", "warn", "error") and standard timestamp/caller fields.
func InitLogger(levelName string) error {
	lvl, err := ParseLevel(levelName)
	if err != nil {
		return err
	}

	base := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	base = log.With(base, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	Logger = level.NewFilter(base, lvl)
	return nil
}

// ParseLevel maps a level name to a go-kit/log/level.Option.
func ParseLevel(name string) (level.Option, error) {
	switch name {
	case "", "info":
		return level.AllowInfo(), nil
	case "debug":
		return level.AllowDebug(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	default:
		return nil, errInvalidLevel(name)
	}
}

type errInvalidLevel string

func (e errInvalidLevel) Error() string {
	return "invalid log level: " + string(e)
}
