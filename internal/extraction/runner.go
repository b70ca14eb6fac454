package extraction

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Runner executes an external binary and returns its captured output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs binaries with os/exec, bounded by Timeout when set.
type ExecRunner struct {
	Timeout time.Duration
}

// Run executes name with args.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	zap.L().Debug("extraction: command finished",
		zap.String("bin", name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("ok", err == nil),
	)
	if err != nil {
		if ctx.Err() != nil {
			return stdout.Bytes(), stderr.Bytes(), eris.Wrapf(ctx.Err(), "extraction: %s", name)
		}
		return stdout.Bytes(), stderr.Bytes(), eris.Wrapf(err, "extraction: %s failed: %s", name, tail(stderr.String(), 300))
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
