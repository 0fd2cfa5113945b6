package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the global logger instance.
var defaultLogger *zap.Logger

// wrapperLogger is defaultLogger with one frame skipped, so the package-level
// Info/Debug/... helpers report their caller rather than themselves.
var wrapperLogger *zap.Logger

// atomicLevel allows dynamic log level changes at runtime.
var atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// ctxKey is the context key for logger.
type ctxKey struct{}

// requestIDKey is the context key for the request correlation id.
type requestIDKey struct{}

// RequestIDHeader is the header carrying the request correlation id.
const RequestIDHeader = "X-Request-Id"

// Config holds logger configuration.
type Config struct {
	Level     string `mapstructure:"level" yaml:"level" jsonschema:"description=Log level.,enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Format    string `mapstructure:"format" yaml:"format" jsonschema:"description=Log output format.,enum=json,enum=console,default=json"`
	Output    string `mapstructure:"output" yaml:"output" jsonschema:"description=Log output destination: stdout\\, stderr or a file path.,default=stdout"`
	AddCaller bool   `mapstructure:"add_caller" yaml:"add_caller" jsonschema:"description=Include caller (file:line) in log entries.,default=true"`
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Output:    "stdout",
		AddCaller: true,
	}
}

// Init initializes the global logger.
func Init(cfg Config) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	atomicLevel.SetLevel(level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var writer zapcore.WriteSyncer
	switch cfg.Output {
	case "", "stdout":
		writer = zapcore.AddSync(os.Stdout)
	case "stderr":
		writer = zapcore.AddSync(os.Stderr)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		writer = zapcore.AddSync(file)
	}

	core := zapcore.NewCore(encoder, writer, atomicLevel)

	opts := []zap.Option{}
	if cfg.AddCaller {
		opts = append(opts, zap.AddCaller())
	}

	setDefault(zap.New(core, opts...))
	return nil
}

func setDefault(l *zap.Logger) {
	defaultLogger = l
	wrapperLogger = l.WithOptions(zap.AddCallerSkip(1))
}

// SetLevel changes the log level at runtime.
func SetLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	atomicLevel.SetLevel(lvl)
	return nil
}

// L returns the default logger.
func L() *zap.Logger {
	if defaultLogger == nil {
		l, _ := zap.NewProduction()
		setDefault(l)
	}
	return defaultLogger
}

func wrapped() *zap.Logger {
	L()
	return wrapperLogger
}

// WithContext returns a logger from context or the default logger.
func WithContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return L()
	}
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return L()
}

// ToContext adds a logger to context.
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// WithRequestID stores the request id in ctx together with a logger that
// carries it as the request_id field.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey{}, requestID)
	return ToContext(ctx, WithContext(ctx).With(zap.String("request_id", requestID)))
}

// RequestIDFromContext retrieves the request id from context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Info logs at info level.
func Info(msg string, fields ...zap.Field) {
	wrapped().Info(msg, fields...)
}

// Debug logs at debug level.
func Debug(msg string, fields ...zap.Field) {
	wrapped().Debug(msg, fields...)
}

// Warn logs at warn level.
func Warn(msg string, fields ...zap.Field) {
	wrapped().Warn(msg, fields...)
}

// Error logs at error level.
func Error(msg string, fields ...zap.Field) {
	wrapped().Error(msg, fields...)
}

// Fatal logs at fatal level and exits.
func Fatal(msg string, fields ...zap.Field) {
	wrapped().Fatal(msg, fields...)
}

// Sync flushes any buffered log entries.
func Sync() error {
	if defaultLogger != nil {
		return defaultLogger.Sync()
	}
	return nil
}

// Logger is a type alias for *zap.Logger for convenience.
type Logger = *zap.Logger

// Field aliases for convenience
var (
	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Bool     = zap.Bool
	Duration = zap.Duration
	Float64  = zap.Float64
	Any      = zap.Any
	Err      = zap.Error
)
