package extract

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
)

// Runner lets tests stub external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec and logs each invocation.
type ExecRunner struct {
	Logger logging.Logger
}

// Run executes name with args, killing the process when ctx is done.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	log := r.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}

	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		log.Error("exec failed",
			logging.F("cmd", name),
			logging.F("args", strings.Join(args, " ")),
			logging.F("duration_ms", dur.Milliseconds()),
			logging.F("stderr", truncate(errb.String(), 8<<10)),
			logging.Err(err),
		)
	} else {
		log.Debug("exec ok",
			logging.F("cmd", name),
			logging.F("duration_ms", dur.Milliseconds()),
			logging.F("stdout_bytes", out.Len()),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary; pdftotext messages carry accented paths.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "...(truncated)"
}
