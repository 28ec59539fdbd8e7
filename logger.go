package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps a zerolog.Logger behind the teacher's Printf/Debugf/Fatalf
// shape, which also satisfies camera.Logger so the camera package never
// imports zerolog directly (avoids a cross-package coupling the teacher
// didn't have either).
type Logger struct {
	zl zerolog.Logger
}

// NewLogger builds a console-writer zerolog logger; verbose raises the
// level to debug instead of compiling Debugf out entirely.
func NewLogger(verbose bool) *Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}
	zl := zerolog.New(writer).With().Timestamp().Logger()
	log.Logger = zl
	return &Logger{zl: zl}
}

func (l *Logger) Printf(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.zl.Debug().Msgf(format, v...)
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.zl.Fatal().Msgf(format, v...)
}
