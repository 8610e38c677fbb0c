package logging

import (
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
)

// stepLogger is the structured, leveled logger used for per-step
// runner diagnostics ("click: status=ok elapsed=43ms"). The plain
// Info/Error/... functions above stay in place for simple operational
// messages (browser launch, CDP connect); this one is for the runner's
// hot path where fields matter more than prose.
var stepLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "cdpstep",
	Level: hclog.Info,
	Output: os.Stdout,
})

// Step returns a named child logger for one executor, pre-populated
// with the step's action kind.
func Step(action string) hclog.Logger {
	if disabled {
		return hclog.NewNullLogger()
	}
	return stepLogger.Named(action)
}

// SetStepLevel adjusts the step logger's verbosity (e.g. "debug" for
// -v on the CLI).
func SetStepLevel(level string) {
	stepLogger.SetLevel(hclog.LevelFromString(level))
}

// LogStep emits one structured line summarizing a completed step.
func LogStep(action, status string, elapsed time.Duration, extra ...any) {
	if disabled {
		return
	}
	args := append([]any{"status", status, "elapsed", elapsed}, extra...)
	stepLogger.Info(action, args...)
}
