package logging

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Mode     string // "development" or "production"
	Level    string
	Filename string // optional rotating JSON file
}

// New builds the process logger. Development mode writes colored console
// output; production writes JSON to stderr. A filename adds a rotating JSON
// file sink in both modes.
func New(opts Options) (*zap.Logger, error) {
	lvl := zapcore.DebugLevel
	if opts.Level != "" {
		if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, err
		}
	}

	var console zapcore.Core
	if opts.Mode == "production" {
		console = zapcore.NewCore(jsonEncoder(), zapcore.Lock(os.Stderr), lvl)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		console = zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), lvl)
	}

	core := console
	if opts.Filename != "" {
		file := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Filename,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			LocalTime:  true,
		})
		core = zapcore.NewTee(console, zapcore.NewCore(jsonEncoder(), file, lvl))
	}

	return zap.New(core, zap.AddCaller()), nil
}

func jsonEncoder() zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.TimeKey = "time"
	encCfg.EncodeDuration = zapcore.SecondsDurationEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(encCfg)
}
