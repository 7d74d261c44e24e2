package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// PlayerSink streams partitions into the stdin of a playback command, for
// example "mpg123 -" or "ffplay -nodisp -".
type PlayerSink struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	finished bool
}

// NewPlayerSink starts command and returns a sink feeding its stdin. With an
// empty command the stream is written to out instead.
func NewPlayerSink(ctx context.Context, command string, out io.Writer) (Sink, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return NewWriterSink(nopCloser{out}), nil
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdout = out

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start player %q: %w", fields[0], err)
	}

	log.Infow("player", "status", "started", "command", command, "pid", cmd.Process.Pid)

	return &PlayerSink{
		cmd:   cmd,
		stdin: stdin,
	}, nil
}

func (p *PlayerSink) Push(data []byte) error {
	if p.finished {
		return ErrFinished
	}

	_, err := p.stdin.Write(data)
	return err
}

// Finish closes the player's stdin and waits for it to exit.
func (p *PlayerSink) Finish() error {
	if p.finished {
		return nil
	}
	p.finished = true

	closeErr := p.stdin.Close()
	waitErr := p.cmd.Wait()
	log.Infow("player", "status", "exited", "err", waitErr)

	return errors.Join(closeErr, waitErr)
}
