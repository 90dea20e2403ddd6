// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apex/log"
)

var traceEnabled bool

// levels maps NPMPIPE_LOG values onto apex levels. Trace rides on debug and is
// distinguished by a message prefix.
var levels = map[string]log.Level{
	"trace": log.DebugLevel,
	"debug": log.DebugLevel,
	"info":  log.InfoLevel,
	"warn":  log.WarnLevel,
	"error": log.ErrorLevel,
	"fatal": log.FatalLevel,
}

// InitLogger sets up apex with the compact handler and a level taken from the
// NPMPIPE_LOG env variable. Unknown values fall back to error.
func InitLogger() {
	InitLoggerTo(os.Stderr, os.Getenv("NPMPIPE_LOG"))
}

// InitLoggerTo is InitLogger with an explicit sink and level spec.
func InitLoggerTo(w io.Writer, spec string) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	level, ok := levels[spec]
	if !ok {
		level = log.ErrorLevel
	}
	traceEnabled = spec == "trace"

	log.SetHandler(&CompactHandler{Writer: w})
	log.SetLevel(level)
}

// CompactHandler writes one line per entry: timestamp, level letter, message
// and any fields in key=value form.
type CompactHandler struct {
	Writer io.Writer
}

// HandleLog implements log.Handler.
func (h *CompactHandler) HandleLog(e *log.Entry) error {
	message := e.Message
	level := "?"
	if strings.HasPrefix(message, "TRACE: ") {
		level = "T"
		message = message[7:]
	} else {
		switch e.Level {
		case log.DebugLevel:
			level = "D"
		case log.InfoLevel:
			level = "I"
		case log.WarnLevel:
			level = "W"
		case log.ErrorLevel:
			level = "E"
		case log.FatalLevel:
			level = "F"
		}
	}

	var fields strings.Builder
	for _, name := range e.Fields.Names() {
		fmt.Fprintf(&fields, " %s=%v", name, e.Fields.Get(name))
	}

	w := h.Writer
	if w == nil {
		w = os.Stderr
	}
	_, err := fmt.Fprintf(w, "%s %s %s%s\n", time.Now().Format("2006-01-02 15:04:05"), level, message, fields.String())
	return err
}

// Tracef logs below debug. It is a no-op unless NPMPIPE_LOG=trace.
func Tracef(format string, args ...interface{}) {
	if traceEnabled {
		log.Debug("TRACE: " + fmt.Sprintf(format, args...))
	}
}

func Debugf(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	log.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// WithField returns an entry carrying a single field.
func WithField(key string, value interface{}) *log.Entry {
	return log.WithField(key, value)
}

// WithError returns an entry with error.
func WithError(err error) *log.Entry {
	return log.WithError(err)
}
