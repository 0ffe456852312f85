package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/randomizedcoder/go-docker-machine/internal/process"
	"github.com/randomizedcoder/go-docker-machine/internal/stream"
)

// Execute runs the task's process to completion.
//
// env is the complete process environment. Lines are pushed to stdout and
// stderr (either may be nil) as soon as they are read. Execute returns nil
// on success, otherwise an *Error whose Kind is ErrSpawn, ErrNonZeroExit,
// ErrTimeout or ErrCancelled. Both output readers are closed before it
// returns on every path.
func (t *Task) Execute(ctx context.Context, env map[string]string, stdout, stderr LineSink) error {
	if !t.begin() {
		return ErrAlreadyExecuted
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return t.fail(StateFailed, -1, ErrSpawn, fmt.Errorf("stdout pipe: %w", err))
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return t.fail(StateFailed, -1, ErrSpawn, fmt.Errorf("stderr pipe: %w", err))
	}

	cmd := process.Command(process.Spec{
		Bin:  t.bin,
		Args: t.Args(),
		Dir:  t.dir,
		Env:  env,
	})
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return t.fail(StateFailed, -1, ErrSpawn, err)
	}

	// Close parent's write ends after Start() so EOF arrives when the
	// process (and anything it spawned) exits
	outW.Close()
	errW.Close()

	t.markRunning(time.Now())

	outReader := stream.NewReader(outR)
	errReader := stream.NewReader(errR)

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	var (
		waitErr error
		killed  error // ErrTimeout or ErrCancelled
	)

loop:
	for {
		select {
		case <-outReader.Ready():
			t.drain(outReader, stdout, false)
		case <-errReader.Ready():
			t.drain(errReader, stderr, true)
		case waitErr = <-exited:
			break loop
		case <-timer.C:
			killed = ErrTimeout
			_ = process.KillGroup(cmd)
			waitErr = <-exited
			break loop
		case <-ctx.Done():
			killed = ErrCancelled
			_ = process.KillGroup(cmd)
			waitErr = <-exited
			break loop
		}
	}

	t.finishStreams(outReader, errReader, stdout, stderr)
	exitCode := process.ExitCode(waitErr)

	switch {
	case errors.Is(killed, ErrTimeout):
		return t.fail(StateTimedOut, exitCode, ErrTimeout, fmt.Errorf("exceeded %s", t.timeout))
	case errors.Is(killed, ErrCancelled):
		return t.fail(StateCancelled, exitCode, ErrCancelled, context.Cause(ctx))
	case exitCode == 0 || t.allowedToFail:
		if t.handler != nil {
			t.handler.HandleOutput(strings.Join(t.Output(), "\n"))
		}
		t.finish(StateSucceeded, exitCode, nil)
		return nil
	default:
		return t.fail(StateFailed, exitCode, ErrNonZeroExit, waitErr)
	}
}

// finishStreams waits (bounded) for both readers to reach EOF, closes them
// and moves any remaining lines to the sinks. A reader that failed or did
// not stop in time is recorded as the task's stream error.
func (t *Task) finishStreams(outReader, errReader *stream.Reader, stdout, stderr LineSink) {
	deadline, cancel := context.WithTimeout(context.Background(), stream.CloseTimeout)
	defer cancel()

	for _, r := range []*stream.Reader{outReader, errReader} {
		select {
		case <-r.Done():
		case <-deadline.Done():
			// A background child still holds the pipe open; Close interrupts
			// the read
		}
	}

	streamErr := errors.Join(
		readerErr("stdout", outReader.Close()),
		readerErr("stderr", errReader.Close()),
		readerErr("stdout", outReader.Err()),
		readerErr("stderr", errReader.Err()),
	)
	if streamErr != nil {
		t.mu.Lock()
		t.streamErr = streamErr
		t.mu.Unlock()
	}

	t.drain(outReader, stdout, false)
	t.drain(errReader, stderr, true)
}

func readerErr(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s reader: %w", name, err)
}

// drain moves every available line from r to sink and the capture buffers.
func (t *Task) drain(r *stream.Reader, sink LineSink, isStderr bool) {
	for {
		line, ok := r.GetLine()
		if !ok {
			return
		}
		if sink != nil {
			sink.Push(line)
		}
		t.capture(line, isStderr)
	}
}

func (t *Task) capture(line string, isStderr bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handler != nil {
		t.output = append(t.output, line)
	}
	if isStderr {
		t.stderrTail = append(t.stderrTail, line)
		if n := len(t.stderrTail); n > StderrTailLines {
			t.stderrTail = append(t.stderrTail[:0], t.stderrTail[n-StderrTailLines:]...)
		}
	}
}

// begin claims the task for execution. Returns false if it already ran.
func (t *Task) begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.executed {
		return false
	}
	t.executed = true
	return true
}

func (t *Task) markRunning(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateRunning
	t.started = now
}

func (t *Task) finish(state State, exitCode int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	t.exitCode = exitCode
	t.err = err
	t.finished = time.Now()
	if t.started.IsZero() {
		t.started = t.finished
	}
}

func (t *Task) fail(state State, exitCode int, kind, cause error) error {
	if streamErr := t.StreamErr(); streamErr != nil {
		cause = errors.Join(cause, streamErr)
	}
	taskErr := &Error{
		Kind:       kind,
		TaskID:     t.id,
		Task:       t.Command(),
		ExitCode:   exitCode,
		StderrTail: t.StderrTail(),
		Err:        cause,
	}
	t.finish(state, exitCode, taskErr)
	return taskErr
}
