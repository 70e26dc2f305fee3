package autogen

import (
	"fmt"
	"log"
	"runtime"
	"sort"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

// PanicLogger receives a recovered panic with a cleaned stack.
type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

// MakePanicHandler returns a function meant to be deferred. A recovered panic
// is logged and stored in target as a collaborator error.
func MakePanicHandler(logger PanicLogger) func(target *error, funcName string, fields ...map[string]any) {
	if logger == nil {
		logger = DefaultPanicLogger
	}
	return func(target *error, funcName string, fields ...map[string]any) {
		r := recover()
		if r == nil {
			return
		}
		stack := make([]byte, 8096)
		n := runtime.Stack(stack, false)
		stack = cleanStackTrace(stack[:n])

		logger(funcName, r, stack, fields...)

		if target != nil {
			md := map[string]any{"function": funcName, "panic": fmt.Sprint(r)}
			if len(fields) > 0 {
				for k, v := range fields[0] {
					md[k] = v
				}
			}
			*target = apperrors.New(fmt.Sprintf("recovered from panic in %s", funcName), apperrors.CategoryExternal).
				WithTextCode(ErrCodeCollaborator).
				WithMetadata(md)
		}
	}
}

// DefaultPanicLogger prints the panic, its context and stack through log.
func DefaultPanicLogger(funcName string, err any, stack []byte, fields ...map[string]any) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[FATAL] recovered from panic in %s\n", funcName))
	sb.WriteString(fmt.Sprintf("Error: %v\n", err))
	sb.WriteString(fmt.Sprintf("Error Type: %T\n", err))

	if len(fields) > 0 && fields[0] != nil {
		sb.WriteString("Context:\n")
		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, fields[0][k]))
		}
	}

	sb.WriteString("Stack Trace:\n")
	sb.Write(stack)

	log.Print(sb.String())
}

// LoggerPanicLogger routes panics to a Logger at error level.
func LoggerPanicLogger(logger Logger) PanicLogger {
	logger = NormalizeLogger(logger)
	return func(funcName string, err any, stack []byte, fields ...map[string]any) {
		l := logger
		if len(fields) > 0 {
			l = LoggerWithFields(logger, fields[0])
		}
		l.Error("recovered from panic in %s: %v\n%s", funcName, err, stack)
	}
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// drop the panic() frame and its file reference
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
