// Package logger предоставляет логирование с префиксом сервиса и асинхронной записью,
// чтобы не блокировать основное приложение. Запись идёт через zap; поддерживается логирование
// времени выполнения функций.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const asyncBufferSize = 8192

type record struct {
	lvl zapcore.Level
	msg string
}

var (
	prefix  atomic.Value // string
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	ch      chan record
	once    sync.Once
	base    *zap.Logger
	dropped atomic.Uint64
)

// ParseLevel переводит строку LOG_LEVEL в уровень zap. Неизвестное значение: info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newZap() *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if os.Getenv("LOG_FORMAT") == "json" {
		encoder = zapcore.NewJSONEncoder(enc)
	} else {
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(enc)
	}
	return zap.New(zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level))
}

func initWorker() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level.SetLevel(ParseLevel(v))
	}
	if base == nil {
		base = newZap()
	}
	ch = make(chan record, asyncBufferSize)
	go func() {
		for r := range ch {
			if ce := base.Check(r.lvl, r.msg); ce != nil {
				ce.Write()
			}
		}
	}()
}

func enqueue(lvl zapcore.Level, msg string) {
	once.Do(initWorker)
	if !level.Enabled(lvl) {
		return
	}
	select {
	case ch <- record{lvl: lvl, msg: tag() + msg}:
	default:
		// Буфер полон: не блокируем, теряем лог
		dropped.Add(1)
	}
}

// SetPrefix задаёт префикс для всех последующих логов (например "api", "relay").
func SetPrefix(p string) {
	prefix.Store(p)
}

// SetLevel меняет уровень на лету (значение как у LOG_LEVEL).
func SetLevel(s string) {
	level.SetLevel(ParseLevel(s))
}

// SetZap подменяет zap-логгер; вызывать до первой записи (используется в тестах).
func SetZap(l *zap.Logger) {
	base = l
}

// Dropped: сколько записей потеряно из-за переполнения буфера.
func Dropped() uint64 {
	return dropped.Load()
}

func tag() string {
	p, _ := prefix.Load().(string)
	if p == "" {
		return ""
	}
	return "[" + p + "] "
}

// Debugf пишется только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	if !level.Enabled(zapcore.DebugLevel) {
		return
	}
	enqueue(zapcore.DebugLevel, fmt.Sprintf(format, v...))
}

// Info пишет в log с префиксом (асинхронно).
func Info(v ...any) {
	enqueue(zapcore.InfoLevel, fmt.Sprint(v...))
}

// Infof форматирует и пишет с префиксом (асинхронно).
func Infof(format string, v ...any) {
	enqueue(zapcore.InfoLevel, fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	enqueue(zapcore.WarnLevel, fmt.Sprintf(format, v...))
}

// Error пишет ошибку с префиксом (асинхронно).
func Error(v ...any) {
	enqueue(zapcore.ErrorLevel, fmt.Sprint(v...))
}

// Errorf форматирует ошибку с префиксом (асинхронно).
func Errorf(format string, v ...any) {
	enqueue(zapcore.ErrorLevel, fmt.Sprintf(format, v...))
}

// LogDuration логирует имя функции и время выполнения в миллисекундах (асинхронно).
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug: все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if level.Enabled(zapcore.DebugLevel) || elapsed >= 100*time.Millisecond {
		enqueue(zapcore.InfoLevel, fmt.Sprintf("fn=%s duration_ms=%d", fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("SendMessage", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}

// Flush ждёт, пока буфер опустеет (не дольше timeout), и сбрасывает zap.
func Flush(timeout time.Duration) {
	once.Do(initWorker)
	deadline := time.Now().Add(timeout)
	for len(ch) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	_ = base.Sync()
}
