// Package log provides the process-wide base logger: a single go-kit
// logfmt logger constructed once at startup and filtered to a configured
// level. Everything below main explicitly receives a logger rather than
// reaching for a package-level global, except for this one bootstrap value.
package log

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the bootstrap logger. InitLogger replaces it with a new
// level-filtered logger, which main passes down explicitly from there.
var Logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))

// InitLogger applies lvl ("debug", "info", "warn", "error") as a filter
// over a base logfmt logger with timestamp and caller fields.
func InitLogger(lvl string) log.Logger {
	base := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	base = log.With(base, "ts", log.DefaultTimestampUTC, "caller", log.Caller(5))

	filter := levelOption(lvl)
	logger := level.NewFilter(base, filter)
	Logger = logger
	return logger
}

func levelOption(lvl string) level.Option {
	switch lvl {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
