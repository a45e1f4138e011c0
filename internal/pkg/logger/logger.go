// Package logger emits structured JSON log lines. Recipient addresses are
// redacted by default; the queue is full of real people's email addresses
// and they must never land in log aggregation verbatim.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger writes JSON entries to a single writer. Fields are flat
// alternating key/value pairs, the way every call site in the engine
// passes them.
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	level     Level
	redactPII bool
}

var std = &Logger{out: os.Stderr, level: INFO, redactPII: true}

// SetLevel sets the minimum severity for the process-wide logger.
func SetLevel(l Level) { std.level = l }

// SetRedactPII toggles address redaction. Off only in local dev.
func SetRedactPII(on bool) { std.redactPII = on }

// SetOutput redirects the process-wide logger, used by tests.
func SetOutput(w io.Writer) { std.out = w }

// Debug emits a DEBUG entry.
func Debug(msg string, kv ...any) { std.log(DEBUG, msg, kv...) }

// Info emits an INFO entry.
func Info(msg string, kv ...any) { std.log(INFO, msg, kv...) }

// Warn emits a WARN entry.
func Warn(msg string, kv ...any) { std.log(WARN, msg, kv...) }

// Error emits an ERROR entry.
func Error(msg string, kv ...any) { std.log(ERROR, msg, kv...) }

func (l *Logger) log(level Level, msg string, kv ...any) {
	if level < l.level {
		return
	}

	entry := map[string]any{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": level.String(),
		"msg":   msg,
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		val := fmt.Sprintf("%v", kv[i+1])
		if l.redactPII {
			val = redact(key, val)
		}
		entry[key] = val
	}

	line, _ := json.Marshal(entry)
	l.mu.Lock()
	fmt.Fprintln(l.out, string(line))
	l.mu.Unlock()
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redact(key, val string) string {
	k := strings.ToLower(key)
	if strings.Contains(k, "email") || strings.Contains(k, "recipient") || strings.Contains(k, "contact") {
		return RedactEmail(val)
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}
