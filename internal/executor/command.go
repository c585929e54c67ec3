package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/HerbHall/hsnap/pkg/probe"
)

func (e *Executor) runCommand(ctx context.Context, s probe.CommandRun) probe.Result {
	if s.Executable == "" {
		return probe.Failed(s, probe.ExecutionError, errors.New("executor: empty executable"))
	}
	if e.allowed != nil && !e.allowed[s.Executable] {
		return probe.Failed(s, probe.PermissionDenied, fmt.Errorf("%w: %s", ErrNotAllowed, s.Executable))
	}

	timeout := e.Timeout(s)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return probe.Failed(s, probe.Timeout, fmt.Errorf("waiting to spawn %s: %w", s.Executable, context.DeadlineExceeded))
		}
	}

	stdout := &cappedBuffer{max: e.maxOutput, cancel: cancel}
	stderr := &cappedBuffer{max: e.maxOutput, cancel: cancel}

	cmd := exec.CommandContext(ctx, s.Executable, s.Args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()

	if stdout.exceeded || stderr.exceeded {
		return probe.Failed(s, probe.ExecutionError, fmt.Errorf("%w: %d bytes from %s", ErrOutputTooLarge, e.maxOutput, s.Executable))
	}

	res := probe.Result{
		Spec:   s,
		Stdout: stdout.buf.Bytes(),
		Stderr: stderr.buf.Bytes(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Err = &probe.Error{
			Reason: probe.Timeout,
			Err:    fmt.Errorf("%s did not finish within %s: %w", s.Executable, timeout, context.DeadlineExceeded),
		}
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Err = &probe.Error{
				Reason: probe.ExecutionError,
				Err:    fmt.Errorf("%s exited with status %d: %w", s.Executable, exitErr.ExitCode(), err),
			}
		} else {
			res.Err = &probe.Error{Reason: classify(err), Err: err}
		}
	}
	return res
}

// cappedBuffer refuses writes beyond max and cancels the command, so a
// runaway process is killed instead of being silently truncated.
type cappedBuffer struct {
	buf      bytes.Buffer
	max      int64
	exceeded bool
	cancel   context.CancelFunc
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if int64(b.buf.Len())+int64(len(p)) > b.max {
		b.exceeded = true
		b.cancel()
		return 0, ErrOutputTooLarge
	}
	return b.buf.Write(p)
}
