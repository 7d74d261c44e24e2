// Package sink consumes drained partitions on the client: the output file
// and the playback process.
package sink

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/pyropy/partstream/lib/logger"
)

var log, _ = logger.New("sink")

var ErrFinished = errors.New("sink is finished")

// Sink receives partition bytes in order. Finish flushes and releases the
// sink's resources and may be called more than once.
type Sink interface {
	Push(data []byte) error
	Finish() error
}

// WriterSink writes through a buffer into w and closes w on Finish.
type WriterSink struct {
	w        *bufio.Writer
	c        io.Closer
	written  int
	finished bool
}

func NewWriterSink(wc io.WriteCloser) *WriterSink {
	return &WriterSink{
		w: bufio.NewWriter(wc),
		c: wc,
	}
}

// NewFileSink creates or truncates the file at path.
func NewFileSink(path string) (*WriterSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return NewWriterSink(f), nil
}

func (s *WriterSink) Push(data []byte) error {
	if s.finished {
		return ErrFinished
	}

	n, err := s.w.Write(data)
	s.written += n

	return err
}

func (s *WriterSink) Finish() error {
	if s.finished {
		return nil
	}
	s.finished = true

	flushErr := s.w.Flush()
	closeErr := s.c.Close()
	log.Debugw("finish", "status", "writer sink closed", "bytes", s.written)

	return errors.Join(flushErr, closeErr)
}

// Written returns the number of bytes accepted so far.
func (s *WriterSink) Written() int {
	return s.written
}

// Tee pushes every partition to all of its sinks.
type Tee struct {
	sinks []Sink
}

func NewTee(sinks ...Sink) *Tee {
	return &Tee{sinks: sinks}
}

func (t *Tee) Push(data []byte) error {
	for _, s := range t.sinks {
		if err := s.Push(data); err != nil {
			return err
		}
	}

	return nil
}

// Finish finishes every sink, even when some of them fail.
func (t *Tee) Finish() error {
	var errs []error
	for _, s := range t.sinks {
		errs = append(errs, s.Finish())
	}

	return errors.Join(errs...)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
