package sequence

import (
	"fmt"
	"log"
	"runtime"
	"sort"
	"strings"
)

type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

// PanicHandler must be deferred directly. It recovers a panic, logs it and,
// when errp is set, stores an execution error describing it.
type PanicHandler func(errp *error, funcName string, fields ...map[string]any)

func MakePanicHandler(logger PanicLogger) PanicHandler {
	if logger == nil {
		logger = DefaultPanicLogger
	}
	return func(errp *error, funcName string, fields ...map[string]any) {
		if r := recover(); r != nil {
			fullStack := make([]byte, 8096)
			n := runtime.Stack(fullStack, false)
			fullStack = fullStack[:n]

			logger(funcName, r, cleanStackTrace(fullStack), fields...)

			if errp != nil {
				var meta map[string]any
				if len(fields) > 0 {
					meta = fields[0]
				}
				var source error
				if e, ok := r.(error); ok {
					source = e
				}
				*errp = ExecutionError(fmt.Sprintf("recovered from panic in %s: %v", funcName, r), source, meta)
			}
		}
	}
}

func DefaultPanicLogger(funcName string, err any, stack []byte, fields ...map[string]any) {
	log.Print(formatPanic(funcName, err, stack, fields...))
}

// LoggerPanicLogger reports panics through logger at error level.
func LoggerPanicLogger(logger Logger) PanicLogger {
	logger = normalizeLogger(logger)
	return func(funcName string, err any, stack []byte, fields ...map[string]any) {
		logger.Error("%s", formatPanic(funcName, err, stack, fields...))
	}
}

func formatPanic(funcName string, err any, stack []byte, fields ...map[string]any) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("recovered from panic in %s\n", funcName))
	sb.WriteString(fmt.Sprintf("Error: %v\n", err))
	sb.WriteString(fmt.Sprintf("Error Type: %T\n", err))

	if len(fields) > 0 && fields[0] != nil {
		sb.WriteString("Context:\n")

		// sort keys for consistent output
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
	return sb.String()
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
