package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var (
	level  atomic.Int32
	out    io.Writer = os.Stderr
	outMu  sync.Mutex
	levels = map[Level]string{
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
	}
)

func init() {
	level.Store(int32(INFO))
}

func SetLevel(l Level) {
	level.Store(int32(l))
}

// SetOutput redirects log output. Tests use this to capture lines.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
}

func enabled(l Level) bool {
	return l >= Level(level.Load())
}

func write(l Level, component, msg string, fields map[string]interface{}) {
	if !enabled(l) {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString(" ")
	b.WriteString(levels[l])
	b.WriteString(" [")
	b.WriteString(component)
	b.WriteString("] ")
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(fmt.Sprintf("%v", fields[k]))
		}
	}
	b.WriteString("\n")

	outMu.Lock()
	defer outMu.Unlock()
	_, _ = io.WriteString(out, b.String())
}

func DebugC(component, msg string)                                 { write(DEBUG, component, msg, nil) }
func DebugCF(component, msg string, fields map[string]interface{}) { write(DEBUG, component, msg, fields) }

func InfoC(component, msg string)                                 { write(INFO, component, msg, nil) }
func InfoCF(component, msg string, fields map[string]interface{}) { write(INFO, component, msg, fields) }

func WarnC(component, msg string)                                 { write(WARN, component, msg, nil) }
func WarnCF(component, msg string, fields map[string]interface{}) { write(WARN, component, msg, fields) }

func ErrorC(component, msg string)                                 { write(ERROR, component, msg, nil) }
func ErrorCF(component, msg string, fields map[string]interface{}) { write(ERROR, component, msg, fields) }
