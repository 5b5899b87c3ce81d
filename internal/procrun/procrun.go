// Package procrun implements the pipeline's Subprocess Runner (spec.md
// §4.1): concurrent, deadlock-free draining of a child's stdout/stderr,
// byte-for-byte fidelity (including NULs and high-bit bytes), per-stream
// truncation, and deadline enforcement with SIGTERM-then-SIGKILL
// escalation across the child's whole process group.
package procrun

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pipeguild/pipeline/internal/logging"
)

// GraceSeconds is the fixed interval between the polite stop signal and
// the hard kill signal, per spec.md §4.1 — identical for host-agent and
// container-agent paths.
const GraceSeconds = 30

// Result holds a completed subprocess's captured output.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	TimedOut bool
}

// StreamCallback is invoked once per raw stdout chunk, before line
// boundaries are resolved, so a caller can render output progressively.
// A nil callback is a no-op — this mirrors the teacher's "null context
// means no subscriber" callback convention (spec.md §9) without needing
// a separate context parameter, since Go closures already carry their
// own state.
type StreamCallback func(chunk []byte)

// capBuffer accumulates up to maxBytes of a stream, discarding anything
// beyond that independently of the other stream's cap.
type capBuffer struct {
	buf      bytes.Buffer
	maxBytes int
}

func (c *capBuffer) Write(p []byte) (int, error) {
	if c.maxBytes <= 0 {
		c.buf.Write(p)
		return len(p), nil
	}
	remaining := c.maxBytes - c.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		c.buf.Write(p[:remaining])
	} else {
		c.buf.Write(p)
	}
	return len(p), nil
}

// CollectOutput runs cmd to completion, draining stdout and stderr
// concurrently so a child that fills one pipe's buffer while the parent
// reads only the other never deadlocks. Each stream is independently
// truncated at maxBytes (maxBytes <= 0 means unbounded). onStdout, if
// non-nil, receives every raw stdout chunk as it arrives.
func CollectOutput(cmd *exec.Cmd, maxBytes int, onStdout StreamCallback) (Result, error) {
	cmd.Stdin = nil

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("procrun: stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("procrun: stderr pipe: %w", err)
	}

	configureProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("procrun: start: %w", err)
	}

	outBuf := &capBuffer{maxBytes: maxBytes}
	errBuf := &capBuffer{maxBytes: maxBytes}

	var g errgroup.Group
	g.Go(func() error {
		return drainStdout(stdoutPipe, outBuf, onStdout)
	})
	g.Go(func() error {
		_, err := io.Copy(errBuf, stderrPipe)
		return err
	})

	drainErr := g.Wait()
	waitErr := cmd.Wait()

	result := Result{
		Stdout:   outBuf.buf.Bytes(),
		Stderr:   errBuf.buf.Bytes(),
		ExitCode: exitCode(cmd, waitErr),
	}

	if drainErr != nil {
		logging.WarningLog.Printf("procrun: pipe drain error (process still reaped): %v", drainErr)
	}

	return result, nil
}

// drainStdout reads chunks from r, forwarding each to onStdout (if set)
// before buffering it, so streaming observation happens in real time
// rather than after the child exits.
func drainStdout(r io.Reader, dst io.Writer, onStdout StreamCallback) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if onStdout != nil {
				cp := make([]byte, n)
				copy(cp, chunk)
				onStdout(cp)
			}
			if _, werr := dst.Write(chunk); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

// RunWithDeadline runs cmd as CollectOutput does, but if deadline > 0 and
// the child is still running after deadline elapses, sends the polite
// stop signal to the child's entire process group, waits up to grace for
// a natural exit, then sends the hard kill signal. deadline <= 0 means no
// deadline (equivalent to CollectOutput).
func RunWithDeadline(cmd *exec.Cmd, maxBytes int, deadline, grace time.Duration, onStdout StreamCallback) (Result, error) {
	if deadline <= 0 {
		return CollectOutput(cmd, maxBytes, onStdout)
	}

	cmd.Stdin = nil
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("procrun: stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("procrun: stderr pipe: %w", err)
	}

	configureProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("procrun: start: %w", err)
	}

	outBuf := &capBuffer{maxBytes: maxBytes}
	errBuf := &capBuffer{maxBytes: maxBytes}

	var g errgroup.Group
	g.Go(func() error { return drainStdout(stdoutPipe, outBuf, onStdout) })
	g.Go(func() error { _, err := io.Copy(errBuf, stderrPipe); return err })

	waitDone := make(chan error, 1)
	go func() {
		// cmd.Wait closes the pipes, so it runs only after both are drained.
		_ = g.Wait()
		waitDone <- cmd.Wait()
	}()

	timedOut := false
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	select {
	case waitErr := <-waitDone:
		_ = g.Wait()
		return Result{
			Stdout:   outBuf.buf.Bytes(),
			Stderr:   errBuf.buf.Bytes(),
			ExitCode: exitCode(cmd, waitErr),
		}, nil

	case <-ctx.Done():
		timedOut = true
		logging.WarningLog.Printf("procrun: deadline %s exceeded, sending stop signal to process group", deadline)
		signalProcessGroup(cmd, stopSignal)

		select {
		case waitErr := <-waitDone:
			_ = g.Wait()
			return Result{
				Stdout:   outBuf.buf.Bytes(),
				Stderr:   errBuf.buf.Bytes(),
				ExitCode: exitCode(cmd, waitErr),
				TimedOut: timedOut,
			}, nil

		case <-time.After(grace):
			logging.WarningLog.Printf("procrun: grace period %s exceeded, sending kill signal to process group", grace)
			signalProcessGroup(cmd, killSignal)
			waitErr := <-waitDone
			_ = g.Wait()
			return Result{
				Stdout:   outBuf.buf.Bytes(),
				Stderr:   errBuf.buf.Bytes(),
				ExitCode: exitCode(cmd, waitErr),
				TimedOut: timedOut,
			}, nil
		}
	}
}

// TimeoutMessage formats the exact reason string spec.md §7 requires for
// an agent timeout: "timed out after <N>s".
func TimeoutMessage(deadline time.Duration) string {
	return fmt.Sprintf("timed out after %ds", int(deadline.Seconds()))
}
