// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keychain.
//
// go-keychain is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package logging

import "context"

// ContextLogger is implemented by loggers that can attach request scoped
// values such as the correlation ID.
type ContextLogger interface {
	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
}

// DebugCtx logs at debug level, using the context variant when available.
func DebugCtx(ctx context.Context, l Logger, msg string, fields ...Field) {
	if cl, ok := l.(ContextLogger); ok {
		cl.DebugContext(ctx, msg, fields...)
		return
	}
	l.Debug(msg, fields...)
}

// InfoCtx logs at info level, using the context variant when available.
func InfoCtx(ctx context.Context, l Logger, msg string, fields ...Field) {
	if cl, ok := l.(ContextLogger); ok {
		cl.InfoContext(ctx, msg, fields...)
		return
	}
	l.Info(msg, fields...)
}

// WarnCtx logs at warn level, using the context variant when available.
func WarnCtx(ctx context.Context, l Logger, msg string, fields ...Field) {
	if cl, ok := l.(ContextLogger); ok {
		cl.WarnContext(ctx, msg, fields...)
		return
	}
	l.Warn(msg, fields...)
}

// ErrorCtx logs at error level, using the context variant when available.
func ErrorCtx(ctx context.Context, l Logger, msg string, fields ...Field) {
	if cl, ok := l.(ContextLogger); ok {
		cl.ErrorContext(ctx, msg, fields...)
		return
	}
	l.Error(msg, fields...)
}

type nopLogger struct{}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...Field)   {}
func (nopLogger) Info(string, ...Field)    {}
func (nopLogger) Warn(string, ...Field)    {}
func (nopLogger) Error(string, ...Field)   {}
func (nopLogger) Fatal(string, ...Field)   {}
func (n nopLogger) With(...Field) Logger   { return n }
func (n nopLogger) WithError(error) Logger { return n }
