// Package client downloads a partitioned file from a transfer server, asking
// for chunks it did not receive, and streams completed partitions into a
// sink.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pyropy/partstream/core/receiver"
	"github.com/pyropy/partstream/core/sink"
	"github.com/pyropy/partstream/core/wire"
	"github.com/pyropy/partstream/lib/checksum"
	"github.com/pyropy/partstream/lib/logger"
	"github.com/pyropy/partstream/lib/schedule"
)

var log, _ = logger.New("client")

var ErrTransferStalled = errors.New("transfer stalled")

// Summary describes a finished download.
type Summary struct {
	Bytes      int
	Chunks     int
	Partitions int
	Checksum   int
	StartedAt  time.Time
	FinishedAt time.Time
}

func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

type Client struct {
	cfg    *Config
	conn   net.PacketConn
	server net.Addr
	sink   sink.Sink

	recv   *receiver.Receiver
	events chan schedule.Func
	sched  *schedule.Scheduler

	infoReceived       bool
	chunksPerPartition int

	// finished is set once PARTITION_FINISHED arrived for the current
	// partition. Every new chunk then either completes it or asks for the
	// next gap.
	finished    bool
	nextSize    int
	lastFlushed bool
	done        bool

	request *schedule.Task
	retries int

	lastActivity   time.Time
	partitionStart time.Time

	hash    *checksum.Hash
	summary Summary
}

func NewClient(cfg *Config, conn net.PacketConn, server net.Addr, s sink.Sink) *Client {
	return &Client{
		cfg:    cfg,
		conn:   conn,
		server: server,
		sink:   s,
		recv:   receiver.New(),
		events: make(chan schedule.Func),
		hash:   checksum.NewHash(),
	}
}

// Run performs the transfer and returns once the server confirmed it, the
// context is cancelled or the transfer fails. The sink is finished in every
// case. The caller owns conn.
func (c *Client) Run(ctx context.Context) (*Summary, error) {
	ctx, cancel := context.WithCancel(ctx)

	c.sched = schedule.New(ctx, c.events)
	c.summary.StartedAt = time.Now()
	c.lastActivity = c.summary.StartedAt

	done := make(chan struct{})
	defer func() {
		cancel()
		_ = c.conn.SetReadDeadline(time.Now())
		<-done
	}()

	go c.read(ctx, done)

	log.Infow("run", "status", "requesting transfer", "server", c.server.String(), "local", c.conn.LocalAddr().String())

	if err := c.essential(wire.StartTransfer()); err != nil {
		return nil, c.fail(err)
	}

	if c.cfg.Transfer.StallTimeout > 0 {
		watchdog := c.sched.Every(c.cfg.Transfer.StallTimeout, c.checkStall)
		defer watchdog.Cancel()
	}

	for {
		select {
		case fn := <-c.events:
			if err := fn(); err != nil {
				return nil, c.fail(err)
			}

			if c.done {
				return &c.summary, nil
			}
		case <-ctx.Done():
			return nil, c.fail(ctx.Err())
		}
	}
}

func (c *Client) fail(err error) error {
	c.request.Cancel()
	if finishErr := c.sink.Finish(); finishErr != nil {
		log.Warnw("run", "status", "finishing sink failed", "err", finishErr)
	}

	log.Errorw("run", "status", "transfer failed", "err", err)
	return err
}

func (c *Client) read(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, addr, err := c.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			c.post(ctx, func() error {
				return fmt.Errorf("read: %w", err)
			})
			return
		}

		b := append([]byte{}, buf[:n]...)
		c.post(ctx, func() error {
			return c.handle(addr, b)
		})
	}
}

func (c *Client) post(ctx context.Context, fn schedule.Func) {
	select {
	case c.events <- fn:
	case <-ctx.Done():
	}
}

func (c *Client) handle(peer net.Addr, b []byte) error {
	p, err := wire.Decode(b)
	if err != nil {
		log.Warnw("handle", "status", "dropping datagram", "peer", peer.String(), "err", err)
		return nil
	}

	c.lastActivity = time.Now()

	switch p.Type {
	case wire.TypePacketInfo:
		return c.packetInfo(int(p.Value))
	case wire.TypePartitionPacket:
		return c.partitionPacket(int(p.Value), p.Data)
	case wire.TypePartitionFinished:
		return c.partitionFinished(int(p.Value))
	case wire.TypeFileTransferred:
		return c.fileTransferred()
	default:
		log.Warnw("handle", "status", "unexpected message", "type", p.Type.String(), "peer", peer.String())
		return nil
	}
}

func (c *Client) packetInfo(chunksPerPartition int) error {
	if c.infoReceived {
		log.Debugw("packetInfo", "status", "ignoring duplicate")
		return nil
	}

	c.request.Cancel()
	c.infoReceived = true
	c.chunksPerPartition = chunksPerPartition

	c.recv.SetDefaultPartitionSize(chunksPerPartition)
	c.recv.SetPartitionOffset(0)
	c.recv.BeginPartition(chunksPerPartition)
	c.partitionStart = time.Now()

	log.Infow("packetInfo", "status", "transfer accepted", "chunksPerPartition", chunksPerPartition)

	return c.essential(wire.InitiateTransfer(0))
}

func (c *Client) partitionPacket(globalIndex int, data []byte) error {
	if !c.infoReceived {
		log.Debugw("partitionPacket", "status", "dropped before packet info", "index", globalIndex)
		return nil
	}

	res := c.recv.Store(globalIndex, data)
	if res == receiver.OutOfWindow {
		log.Debugw("partitionPacket", "status", "out of window", "index", globalIndex, "partition", c.recv.PartitionOffset())
		return nil
	}

	c.request.Cancel()

	if res != receiver.Stored || !c.finished {
		return nil
	}

	return c.repairOrFlush()
}

// partitionFinished carries no partition offset. It is only taken as the end
// of the current partition once a chunk of that partition arrived, so a
// duplicated or late one for an already flushed partition is dropped.
func (c *Client) partitionFinished(nextSize int) error {
	if !c.infoReceived || c.lastFlushed {
		return nil
	}

	if c.recv.Filled() == 0 {
		log.Debugw("partitionFinished", "status", "ignoring stale message", "partition", c.recv.PartitionOffset())
		return nil
	}

	if c.finished {
		missing, ok := c.recv.FirstMissingIndex()
		if !ok {
			return nil
		}
		return c.requestMissing(missing)
	}

	c.request.Cancel()
	c.finished = true
	c.nextSize = nextSize

	return c.repairOrFlush()
}

func (c *Client) repairOrFlush() error {
	if missing, ok := c.recv.FirstMissingIndex(); ok {
		return c.requestMissing(missing)
	}

	return c.flush()
}

func (c *Client) requestMissing(localIndex int) error {
	p := wire.MissingPacket(uint16(localIndex), uint16(c.recv.PartitionOffset()))

	log.Debugw("requestMissing", "partition", c.recv.PartitionOffset(), "index", localIndex)

	if c.cfg.Transfer.RetryMissing {
		return c.essential(p)
	}

	return c.send(p)
}

// flush drains the complete partition into the sink and requests the next
// one.
func (c *Client) flush() error {
	offset := c.recv.PartitionOffset()

	slots, err := c.recv.Drain()
	if err != nil {
		return err
	}

	for _, data := range slots {
		if err := c.sink.Push(data); err != nil {
			return fmt.Errorf("push partition %d: %w", offset, err)
		}

		_, _ = c.hash.Write(data)
		c.summary.Bytes += len(data)
	}

	c.summary.Chunks += len(slots)
	c.summary.Partitions++

	log.Infow("flush", "status", fmt.Sprintf("processed partition %d in %.3f seconds", offset, time.Since(c.partitionStart).Seconds()), "chunks", len(slots), "bytes", c.summary.Bytes)

	if c.nextSize == 0 {
		c.lastFlushed = true
	}

	c.finished = false
	c.recv.SetPartitionOffset(offset + 1)
	c.recv.BeginPartition(c.nextSize)
	c.partitionStart = time.Now()

	return c.essential(wire.InitiateTransfer(uint16(offset + 1)))
}

func (c *Client) fileTransferred() error {
	if !c.lastFlushed && !(c.infoReceived && c.chunksPerPartition == 0) {
		log.Warnw("fileTransferred", "status", "ignored before last partition", "partition", c.recv.PartitionOffset())
		return nil
	}

	c.request.Cancel()

	if err := c.send(wire.FileTransferred()); err != nil {
		return err
	}

	if err := c.sink.Finish(); err != nil {
		return fmt.Errorf("finish sink: %w", err)
	}

	c.summary.FinishedAt = time.Now()
	c.summary.Checksum = c.hash.Sum()
	c.done = true

	log.Infow("fileTransferred",
		"status", "transfer complete",
		"bytes", c.summary.Bytes,
		"partitions", c.summary.Partitions,
		"checksum", c.summary.Checksum,
		"seconds", c.summary.Duration().Seconds(),
	)

	return nil
}

// essential sends p and resends it every RequestInterval until a response
// cancels the retry.
func (c *Client) essential(p wire.Packet) error {
	c.request.Cancel()
	c.retries = 0

	if err := c.send(p); err != nil {
		return err
	}

	c.request = c.sched.Every(c.cfg.Transfer.RequestInterval, func() error {
		c.retries++
		if limit := c.cfg.Transfer.MaxRetries; limit > 0 && c.retries > limit {
			return fmt.Errorf("%w: %s unanswered after %d retries", ErrTransferStalled, p.Type, limit)
		}

		log.Infow("essential", "status", "resending", "type", p.Type.String(), "value", p.Value, "retry", c.retries)
		return c.send(p)
	})

	return nil
}

// checkStall re-issues the current request when the server went quiet.
func (c *Client) checkStall() error {
	if time.Since(c.lastActivity) < c.cfg.Transfer.StallTimeout {
		return nil
	}

	c.lastActivity = time.Now()
	offset := c.recv.PartitionOffset()

	switch {
	case !c.infoReceived:
		log.Warnw("checkStall", "status", "no packet info, restarting handshake")
		return c.send(wire.StartTransfer())
	case c.finished:
		missing, ok := c.recv.FirstMissingIndex()
		if !ok {
			return nil
		}
		log.Warnw("checkStall", "status", "partition stalled, requesting missing chunk", "partition", offset, "index", missing)
		return c.send(wire.MissingPacket(uint16(missing), uint16(offset)))
	default:
		log.Warnw("checkStall", "status", "partition stalled, requesting it again", "partition", offset)
		return c.send(wire.InitiateTransfer(uint16(offset)))
	}
}

func (c *Client) send(p wire.Packet) error {
	b, err := wire.Encode(p)
	if err != nil {
		return err
	}

	_, err = c.conn.WriteTo(b, c.server)
	if err != nil {
		return fmt.Errorf("write to %s: %w", c.server, err)
	}

	return nil
}
