package observability

import (
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions selects the level and whether records are also bridged to
// the global OpenTelemetry log provider.
type LoggerOptions struct {
	ServiceName string
	Level       string // debug, info, warn, error
	OTel        bool
}

// NewLogger builds the application logger: JSON with ISO8601 timestamps on
// stdout, tee'd into the OTel log bridge when enabled.  An unknown level
// falls back to info.
func NewLogger(o LoggerOptions) *zap.Logger {
	return newLogger(o, zapcore.Lock(os.Stdout))
}

func newLogger(o LoggerOptions, out zapcore.WriteSyncer) *zap.Logger {
	level, err := zapcore.ParseLevel(o.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), out, level)

	if o.OTel {
		bridge := otelzap.NewCore(o.ServiceName+".manual",
			otelzap.WithLoggerProvider(global.GetLoggerProvider()),
		)
		core = zapcore.NewTee(core, bridge)
	}

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", o.ServiceName)),
	)
}
