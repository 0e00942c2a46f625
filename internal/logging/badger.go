package logging

import (
	"context"
	"fmt"
	"strings"
)

// BadgerLogger adapts Logger to badger's printf-style logger interface so
// the embedded store reports through the same handler as the wallet.
type BadgerLogger struct {
	l Logger
}

func NewBadgerLogger(l Logger) *BadgerLogger {
	return &BadgerLogger{l: l.With("component", "badger")}
}

func (b *BadgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(context.Background(), line(format, args...))
}

func (b *BadgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(context.Background(), line(format, args...))
}

func (b *BadgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug(context.Background(), line(format, args...))
}

func (b *BadgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(context.Background(), line(format, args...))
}

func line(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
