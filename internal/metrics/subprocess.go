package metrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
)

// pipeWaitDelay bounds how long Wait blocks on pipes held open by grandchildren
const pipeWaitDelay = 2 * time.Second

// runCommand runs an external tool with a deadline and captures both streams.
// The process is always reaped; a deadline hit is reported as a timeout error.
func runCommand(ctx context.Context, timeout time.Duration, name string, args ...string) (stdout, stderr string, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = pipeWaitDelay
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return outBuf.String(), errBuf.String(),
				apperrors.NewTimeoutError(fmt.Sprintf("%s did not finish within %s", name, timeout), ctxErr)
		}
		return outBuf.String(), errBuf.String(), ctxErr
	}
	if runErr != nil {
		return outBuf.String(), errBuf.String(), fmt.Errorf("%s failed: %w", name, runErr)
	}
	return outBuf.String(), errBuf.String(), nil
}
