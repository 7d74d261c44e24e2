package sink

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	pushed   [][]byte
	finished int
	err      error
}

func (r *recordingSink) Push(data []byte) error {
	r.pushed = append(r.pushed, data)
	return r.err
}

func (r *recordingSink) Finish() error {
	r.finished++
	return r.err
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp3")

	s, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, s.Push([]byte("hello ")))
	require.NoError(t, s.Push([]byte("world")))
	require.Equal(t, 11, s.Written())

	require.NoError(t, s.Finish())
	require.NoError(t, s.Finish())
	require.ErrorIs(t, s.Push([]byte("late")), ErrFinished)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(b))
}

func TestTee(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	tee := NewTee(a, b)

	require.NoError(t, tee.Push([]byte("x")))
	require.NoError(t, tee.Finish())

	require.Equal(t, [][]byte{[]byte("x")}, a.pushed)
	require.Equal(t, [][]byte{[]byte("x")}, b.pushed)
	require.Equal(t, 1, a.finished)
	require.Equal(t, 1, b.finished)
}

func TestTeeFinishesAllSinksOnError(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recordingSink{err: boom}, &recordingSink{}

	err := NewTee(a, b).Finish()
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, b.finished)
}

func TestPlayerSinkWithoutCommand(t *testing.T) {
	var out bytes.Buffer

	s, err := NewPlayerSink(context.Background(), "", &out)
	require.NoError(t, err)

	require.NoError(t, s.Push([]byte("pcm")))
	require.NoError(t, s.Finish())
	require.Equal(t, "pcm", out.String())
}

func TestPlayerSinkPipesIntoCommand(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	var out bytes.Buffer

	s, err := NewPlayerSink(context.Background(), "cat", &out)
	require.NoError(t, err)

	require.NoError(t, s.Push([]byte("frame-1 ")))
	require.NoError(t, s.Push([]byte("frame-2")))
	require.NoError(t, s.Finish())
	require.NoError(t, s.Finish())

	require.Equal(t, "frame-1 frame-2", out.String())
}

func TestPlayerSinkUnknownCommand(t *testing.T) {
	_, err := NewPlayerSink(context.Background(), "partstream-no-such-player", &bytes.Buffer{})
	require.Error(t, err)
}
