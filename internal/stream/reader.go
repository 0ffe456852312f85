package stream

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/x/ansi"
)

const (
	// CloseTimeout bounds how long Close waits for the read goroutine.
	CloseTimeout = 2 * time.Second

	initialLineSize = 64 * 1024

	// MaxLineSize caps one buffered line; longer lines are truncated.
	MaxLineSize = 1024 * 1024
)

// ErrCloseTimeout is returned by Close when the read goroutine did not exit
// within CloseTimeout.
var ErrCloseTimeout = errors.New("stream reader did not stop in time")

// Reader reads lines from one process output stream in a background goroutine
// and buffers them, cleaned of terminal escape sequences, in a Queue.
//
// Lifecycle:
//
//  1. r := NewReader(pipe)   // goroutine starts immediately
//  2. <-r.Ready(); r.GetLine() ...
//  3. <-r.Done()             // stream reached EOF
//  4. r.Close()              // always; joins the goroutine
type Reader struct {
	rc    io.ReadCloser
	queue *Queue
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error

	// Read error other than EOF / closed stream
	errMu   sync.Mutex
	readErr error

	bytesRead atomic.Int64
	linesRead atomic.Int64
}

// NewReader starts reading rc. The Reader owns rc and closes it on Close.
func NewReader(rc io.ReadCloser) *Reader {
	r := &Reader{
		rc:    rc,
		queue: NewQueue(),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Reader) run() {
	defer close(r.done)

	br := bufio.NewReaderSize(r.rc, initialLineSize)
	line := make([]byte, 0, initialLineSize)
	truncated := false

	for {
		frag, err := br.ReadSlice('\n')
		r.bytesRead.Add(int64(len(frag)))

		// Lines longer than MaxLineSize keep their head; the rest of the
		// line is read and dropped so the following lines survive
		switch room := MaxLineSize - len(line); {
		case len(frag) <= room:
			line = append(line, frag...)
		case !truncated:
			line = append(line, frag[:room]...)
			truncated = true
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err == nil || len(line) > 0 {
			r.push(line)
		}
		line, truncated = line[:0], false

		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
			r.errMu.Lock()
			r.readErr = err
			r.errMu.Unlock()
		}
		return
	}
}

func (r *Reader) push(raw []byte) {
	r.linesRead.Add(1)
	r.queue.Push(Clean(strings.TrimSuffix(string(raw), "\n")))
}

// GetLine returns the next buffered line without blocking.
// Returns ("", false) when no line is currently available.
func (r *Reader) GetLine() (string, bool) {
	return r.queue.TryPop()
}

// Ready is signalled whenever new lines have been buffered.
func (r *Reader) Ready() <-chan struct{} {
	return r.queue.Ready()
}

// Done is closed once the read goroutine has exited (EOF, error or Close).
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Close closes the underlying stream and waits up to CloseTimeout for the
// read goroutine to finish. Buffered lines stay available to GetLine.
// Safe to call multiple times.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		if err := r.rc.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			r.closeErr = err
		}

		timer := time.NewTimer(CloseTimeout)
		defer timer.Stop()
		select {
		case <-r.done:
		case <-timer.C:
			r.closeErr = errors.Join(r.closeErr, ErrCloseTimeout)
		}
	})
	return r.closeErr
}

// Err returns the read error that stopped the reader, if any.
// EOF and reads interrupted by Close are not errors.
func (r *Reader) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.readErr
}

// Stats returns (bytesRead, linesRead).
func (r *Reader) Stats() (bytesRead int64, linesRead int64) {
	return r.bytesRead.Load(), r.linesRead.Load()
}

// Clean strips terminal control sequences (colours, cursor movement, OSC
// titles) and a trailing carriage return from a line of process output.
func Clean(line string) string {
	return ansi.Strip(strings.TrimRight(line, "\r"))
}
