package stream

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Clean
// =============================================================================

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"colour", "\x1b[31mRED\x1b[0m", "RED"},
		{"bold green", "\x1b[1;32mok\x1b[m", "ok"},
		{"erase line", "\x1b[2Kcleared", "cleared"},
		{"trailing cr", "progress 50%\r", "progress 50%"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

// =============================================================================
// Queue
// =============================================================================

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()

	_, ok := q.TryPop()
	require.False(t, ok, "empty queue must report no data")

	for _, s := range []string{"a", "b", "c"} {
		q.Push(s)
	}
	require.Equal(t, 3, q.Len())
	require.Equal(t, []string{"a", "b", "c"}, q.Snapshot())
	require.Equal(t, 3, q.Len(), "Snapshot must not consume")

	var got []string
	for {
		line, ok := q.TryPop()
		if !ok {
			break
		}
		got = append(got, line)
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
	require.Zero(t, q.Len())
}

func TestQueue_Tail(t *testing.T) {
	q := NewQueue()
	require.Empty(t, q.Tail(3))

	for _, s := range []string{"a", "b", "c", "d"} {
		q.Push(s)
	}
	require.Equal(t, []string{"c", "d"}, q.Tail(2))
	require.Equal(t, []string{"a", "b", "c", "d"}, q.Tail(10))
	require.Empty(t, q.Tail(0))
	require.Empty(t, q.Tail(-1))
	require.Equal(t, 4, q.Len(), "Tail must not consume")

	tail := q.Tail(1)
	tail[0] = "changed"
	require.Equal(t, []string{"d"}, q.Tail(1), "Tail returns a copy")
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push("late")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	line, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "late", line)
}

func TestQueue_PopCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_ReadyRearmedForLeftovers(t *testing.T) {
	q := NewQueue()
	q.Push("one")
	q.Push("two")

	<-q.Ready()
	line, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, "one", line)

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("Ready was not re-armed while lines remain")
	}
	line, ok = q.TryPop()
	require.True(t, ok)
	require.Equal(t, "two", line)
}

// =============================================================================
// Reader
// =============================================================================

func TestReader_ReadsCleanLinesInOrder(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr)
	defer r.Close()

	go func() {
		io.WriteString(pw, "first\n\x1b[31mRED\x1b[0m\nlast line\r\n")
		pw.Close()
	}()

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not reach EOF")
	}

	var got []string
	for {
		line, ok := r.GetLine()
		if !ok {
			break
		}
		got = append(got, line)
	}
	require.Equal(t, []string{"first", "RED", "last line"}, got)

	bytesRead, linesRead := r.Stats()
	require.Equal(t, int64(3), linesRead)
	require.Positive(t, bytesRead)
	require.NoError(t, r.Err())
}

func TestReader_GetLineNeverBlocks(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr)
	defer pw.Close()
	defer r.Close()

	got := make(chan bool, 1)
	go func() {
		_, ok := r.GetLine()
		got <- ok
	}()

	select {
	case ok := <-got:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("GetLine blocked on an idle stream")
	}
}

func TestReader_CloseStopsBlockedRead(t *testing.T) {
	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pw.Close()

	r := NewReader(pr)
	_, err = pw.WriteString("buffered\n")
	require.NoError(t, err)

	<-r.Ready()

	start := time.Now()
	require.NoError(t, r.Close())
	require.Less(t, time.Since(start), CloseTimeout)

	select {
	case <-r.Done():
	default:
		t.Fatal("Done not closed after Close")
	}

	line, ok := r.GetLine()
	require.True(t, ok, "lines buffered before Close stay available")
	require.Equal(t, "buffered", line)

	// Idempotent
	require.NoError(t, r.Close())
}

func TestReader_TooLongLineIsTruncated(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr)
	defer r.Close()

	long := strings.Repeat("x", 2*MaxLineSize)
	writeDone := make(chan error, 1)
	go func() {
		_, err := io.WriteString(pw, "before\n"+long+"\nexport DOCKER_HOST=\"tcp://203.0.113.9:2376\"\nafter\n")
		pw.Close()
		writeDone <- err
	}()

	select {
	case err := <-writeDone:
		require.NoError(t, err, "writer must never block on an oversized line")
	case <-time.After(5 * time.Second):
		t.Fatal("writer blocked")
	}
	<-r.Done()
	require.NoError(t, r.Err())

	var got []string
	for {
		line, ok := r.GetLine()
		if !ok {
			break
		}
		got = append(got, line)
	}
	require.Len(t, got, 4)
	require.Equal(t, "before", got[0])
	require.Equal(t, long[:MaxLineSize], got[1])
	require.Equal(t, `export DOCKER_HOST="tcp://203.0.113.9:2376"`, got[2])
	require.Equal(t, "after", got[3])

	bytesRead, linesRead := r.Stats()
	require.Equal(t, int64(4), linesRead)
	require.Equal(t, int64(len("before\n")+len(long)+1+len(`export DOCKER_HOST="tcp://203.0.113.9:2376"`)+1+len("after\n")), bytesRead)
}

func TestReader_LastLineWithoutNewline(t *testing.T) {
	r := NewReader(io.NopCloser(strings.NewReader("one\ntwo")))
	defer r.Close()
	<-r.Done()

	require.Equal(t, []string{"one", "two"}, r.queue.Snapshot())
}
