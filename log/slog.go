package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const instrumentationName = "github.com/knotx-labs/knotx-relayer"

type RelayLogger struct {
	*slog.Logger
}

var relayLogger *RelayLogger

func InitLogger(logLevel, format, output string, enableTelemetry bool) error {
	var writer io.Writer
	switch output {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		return errors.Newf("invalid log output: %q", output)
	}
	return InitLoggerWithWriter(logLevel, format, writer, enableTelemetry)
}

func InitLoggerWithWriter(logLevel, format string, writer io.Writer, enableTelemetry bool) error {
	slogLevel, err := parseLevel(logLevel)
	if err != nil {
		return err
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: true,
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(writer, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(writer, handlerOpts)
	default:
		return errors.Newf("invalid log format: %q", format)
	}

	if enableTelemetry {
		handler = slogmulti.Fanout(
			handler,
			&levelHandler{level: slogLevel, Handler: otelslog.NewHandler(instrumentationName)},
		)
	}

	relayLogger = &RelayLogger{slog.New(handler)}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, errors.Newf("invalid log level: %q", s)
	}
}

// levelHandler applies the configured level to handlers that do not filter by themselves.
type levelHandler struct {
	level slog.Level
	slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.Handler.Enabled(ctx, level)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{h.level, h.Handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{h.level, h.Handler.WithGroup(name)}
}

// GetLogger returns the process logger. Before InitLogger is called it
// falls back to a text logger on stderr.
func GetLogger() *RelayLogger {
	if relayLogger == nil {
		return &RelayLogger{slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{AddSource: true}))}
	}
	return relayLogger
}

// log records msg with the source location of the caller that is skip frames above log's caller.
func (rl *RelayLogger) log(level slog.Level, skip int, msg string, args ...any) {
	rl.logContext(context.Background(), level, skip+1, msg, args...)
}

func (rl *RelayLogger) logContext(ctx context.Context, level slog.Level, skip int, msg string, args ...any) {
	if !rl.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip runtime.Callers and logContext itself
	runtime.Callers(skip+2, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = rl.Handler().Handle(ctx, r)
}

func (rl *RelayLogger) Error(msg string, err error, otherArgs ...any) {
	rl.logContext(context.Background(), slog.LevelError, 1, msg, withError(err, otherArgs)...)
}

func (rl *RelayLogger) ErrorContext(ctx context.Context, msg string, err error, otherArgs ...any) {
	rl.logContext(ctx, slog.LevelError, 1, msg, withError(err, otherArgs)...)
}

// Fatal logs the error and exits the process.
func (rl *RelayLogger) Fatal(msg string, err error, otherArgs ...any) {
	rl.logContext(context.Background(), slog.LevelError, 1, msg, withError(err, otherArgs)...)
	os.Exit(1)
}

func withError(err error, otherArgs []any) []any {
	if err == nil {
		return otherArgs
	}
	args := make([]any, 0, len(otherArgs)+4)
	args = append(args, "error", err.Error())
	args = append(args, "stack", fmt.Sprintf("%+v", errors.WithStackDepth(err, 2)))
	return append(args, otherArgs...)
}

func (rl *RelayLogger) with(args ...any) *RelayLogger {
	return &RelayLogger{rl.Logger.With(args...)}
}

func (rl *RelayLogger) WithChain(chain string) *RelayLogger {
	return rl.with("chain", chain)
}

func (rl *RelayLogger) WithRoute(srcChain, dstChain string) *RelayLogger {
	return rl.with(
		"source chain", srcChain,
		"destination chain", dstChain,
	)
}

func (rl *RelayLogger) WithMessage(messageID string, nonce uint64) *RelayLogger {
	return rl.with(
		"message id", messageID,
		"nonce", nonce,
	)
}

func (rl *RelayLogger) WithModule(moduleName string) *RelayLogger {
	return rl.with("module", moduleName)
}
