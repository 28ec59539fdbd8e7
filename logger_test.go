package main

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerSetsGlobalLevel(t *testing.T) {
	NewLogger(false)
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level when verbose=false, got %v", zerolog.GlobalLevel())
	}

	NewLogger(true)
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level when verbose=true, got %v", zerolog.GlobalLevel())
	}
}

func TestLoggerPrintfAndDebugfDoNotPanic(t *testing.T) {
	logger := NewLogger(true)
	logger.Printf("camera %s opened at %dx%d", "cam-0", 1280, 720)
	logger.Debugf("frame seq=%d dropped", 42)
}
