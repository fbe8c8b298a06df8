package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		level string
		want  zapcore.Level
	}{
		{level: "debug", want: zapcore.DebugLevel},
		{level: "info", want: zapcore.InfoLevel},
		{level: "WARN", want: zapcore.WarnLevel},
		{level: "error", want: zapcore.ErrorLevel},
		{level: "", want: zapcore.InfoLevel},
		{level: "  info  ", want: zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run("level "+tc.level, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level)
			if err != nil {
				t.Fatalf("NewLogger(%q) error = %v", tc.level, err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			if !logger.Core().Enabled(tc.want) {
				t.Fatalf("logger should enable %v", tc.want)
			}
			if tc.want > zapcore.DebugLevel && logger.Core().Enabled(tc.want-1) {
				t.Fatalf("logger should not enable %v", tc.want-1)
			}
		})
	}
}

func TestLoggerConfigShape(t *testing.T) {
	t.Parallel()

	cfg, err := loggerConfig("info")
	if err != nil {
		t.Fatalf("loggerConfig() error = %v", err)
	}

	if cfg.EncoderConfig.TimeKey != "timestamp" {
		t.Fatalf("TimeKey = %q, want timestamp", cfg.EncoderConfig.TimeKey)
	}
	if cfg.EncoderConfig.MessageKey != "message" {
		t.Fatalf("MessageKey = %q, want message", cfg.EncoderConfig.MessageKey)
	}
	if !cfg.DisableStacktrace {
		t.Fatal("stacktraces should be disabled")
	}
	if cfg.InitialFields["service"] != "notify-gateway" {
		t.Fatalf("service field = %v, want notify-gateway", cfg.InitialFields["service"])
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	t.Parallel()

	if _, err := NewLogger("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithCorrelationID(context.Background(), "corr-1")

	got, ok := CorrelationIDFromContext(ctx)
	if !ok {
		t.Fatal("correlation id should be present")
	}
	if got != "corr-1" {
		t.Fatalf("correlation id = %q, want corr-1", got)
	}

	if _, ok := CorrelationIDFromContext(context.Background()); ok {
		t.Fatal("empty context should not carry a correlation id")
	}
	if _, ok := CorrelationIDFromContext(nil); ok {
		t.Fatal("nil context should not carry a correlation id")
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	base := zap.NewNop()

	if got := WithContextLogger(base, context.Background()); got != base {
		t.Fatal("logger without correlation id should pass through unchanged")
	}

	ctx := WithCorrelationID(context.Background(), "corr-2")
	if got := WithContextLogger(base, ctx); got == base {
		t.Fatal("logger with correlation id should be derived")
	}

	if got := WithContextLogger(nil, ctx); got != nil {
		t.Fatal("nil logger should stay nil")
	}
}
