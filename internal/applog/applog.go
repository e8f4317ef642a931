// applog.go: apex/log adapter for the fresco Logger interface
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package applog wires apex/log into the fresco Logger interface.
package applog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/agilira/fresco"
)

// EnvLevel is the environment variable holding the log level.
const EnvLevel = "FRESCO_LOG"

// Init sets up apex/log with a line handler writing to w and a level from
// FRESCO_LOG (default ERROR).
func Init(w io.Writer) {
	level := strings.ToUpper(os.Getenv(EnvLevel))
	if level == "" {
		level = "ERROR"
	}
	log.SetHandler(NewHandler(w))
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.ErrorLevel
	}
	log.SetLevel(lvl)
}

// Handler formats entries as "timestamp L message key=value ...".
type Handler struct {
	mu sync.Mutex
	w  io.Writer
}

// NewHandler returns a handler writing to w.
func NewHandler(w io.Writer) *Handler {
	return &Handler{w: w}
}

// HandleLog implements the log.Handler interface
func (h *Handler) HandleLog(e *log.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	timestamp := e.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	level := strings.ToUpper(e.Level.String())
	fmt.Fprintf(h.w, "%s %.1s %s", timestamp.Format("2006-01-02 15:04:05"), level, e.Message)
	for _, name := range e.Fields.Names() {
		fmt.Fprintf(h.w, " %s=%v", name, e.Fields.Get(name))
	}
	fmt.Fprintln(h.w)
	return nil
}

// Logger adapts an apex/log Interface to fresco.Logger.
type Logger struct {
	log log.Interface
}

// New wraps l. A nil l uses the apex/log package logger.
func New(l log.Interface) *Logger {
	if l == nil {
		l = log.Log
	}
	return &Logger{log: l}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log.WithFields(fields(keyvals)).Debug(msg)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log.WithFields(fields(keyvals)).Info(msg)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log.WithFields(fields(keyvals)).Warn(msg)
}

// Error logs at error level.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log.WithFields(fields(keyvals)).Error(msg)
}

// fields turns alternating key/value pairs into apex fields. A trailing key
// without value is kept under "!BADKEY".
func fields(keyvals []interface{}) log.Fields {
	f := make(log.Fields, len(keyvals)/2+1)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 >= len(keyvals) {
			f["!BADKEY"] = keyvals[i]
			break
		}
		f[fmt.Sprint(keyvals[i])] = keyvals[i+1]
	}
	return f
}

var _ fresco.Logger = (*Logger)(nil)
