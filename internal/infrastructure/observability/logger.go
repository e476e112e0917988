package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

func InitLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}

	return zerolog.New(output).
		Level(parseLogLevel(level)).
		With().
		Timestamp().
		Caller().
		Logger()
}

// InitConsoleLogger is the human-readable logger used by the operator CLI.
func InitConsoleLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stderr
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}).
		Level(parseLogLevel(level)).
		With().
		Timestamp().
		Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithPayment scopes a logger to one payment record.
func WithPayment(logger zerolog.Logger, paymentID, reference, method string) *zerolog.Logger {
	l := logger.With().
		Str("payment_id", paymentID).
		Str("reference", reference).
		Str("method", method).
		Logger()
	return &l
}
