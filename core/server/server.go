// Package server streams a partitioned file to UDP peers and repairs the
// chunks they report missing.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pyropy/partstream/core/partition"
	"github.com/pyropy/partstream/core/wire"
	"github.com/pyropy/partstream/lib/cache"
	"github.com/pyropy/partstream/lib/cmap"
	"github.com/pyropy/partstream/lib/logger"
	"github.com/pyropy/partstream/lib/schedule"
)

var log, _ = logger.New("server")

type Server struct {
	cfg   *Config
	store *partition.Store
	conn  net.PacketConn

	sessions *cmap.Map[string, *session]
	encoded  *cache.LRU

	events chan schedule.Func
	sched  *schedule.Scheduler
}

func NewServer(cfg *Config, store *partition.Store) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		sessions: cmap.NewMap[string, *session](),
		encoded:  cache.NewLRU(cfg.Sessions.EncodedCacheSize),
		events:   make(chan schedule.Func),
	}
}

// Serve handles datagrams from conn until ctx is cancelled or the socket
// fails. All protocol handling and timer callbacks run on the calling
// goroutine. The caller owns conn.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	ctx, cancel := context.WithCancel(ctx)

	s.conn = conn
	s.sched = schedule.New(ctx, s.events)

	done := make(chan struct{})
	defer func() {
		cancel()
		_ = conn.SetReadDeadline(time.Now())
		<-done
	}()

	go s.read(ctx, done)

	log.Infow("serve",
		"status", "listening",
		"addr", conn.LocalAddr().String(),
		"size", s.store.Size(),
		"chunks", s.store.NumChunks(),
		"partitions", s.store.PartitionCount(),
		"chunksPerPartition", s.store.ChunkCountPerPartition(),
		"checksum", s.store.Checksum(),
	)

	monitor := s.sched.Every(s.idleCheckInterval(), s.evictIdle)
	defer monitor.Cancel()

	for {
		select {
		case fn := <-s.events:
			if err := fn(); err != nil {
				s.shutdown()
				return err
			}
		case <-ctx.Done():
			s.shutdown()
			log.Infow("serve", "status", "shutting down")
			return nil
		}
	}
}

// ActiveSessions returns the number of peers the server holds state for.
func (s *Server) ActiveSessions() int {
	return s.sessions.Len()
}

func (s *Server) idleCheckInterval() time.Duration {
	interval := s.cfg.Sessions.IdleTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}

	return interval
}

func (s *Server) read(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			s.post(ctx, func() error {
				return fmt.Errorf("read: %w", err)
			})
			return
		}

		b := append([]byte{}, buf[:n]...)
		s.post(ctx, func() error {
			return s.handle(addr, b)
		})
	}
}

func (s *Server) post(ctx context.Context, fn schedule.Func) {
	select {
	case s.events <- fn:
	case <-ctx.Done():
	}
}

func (s *Server) handle(peer net.Addr, b []byte) error {
	p, err := wire.Decode(b)
	if err != nil {
		log.Warnw("handle", "status", "dropping datagram", "peer", peer.String(), "err", err)
		return nil
	}

	log.Debugw("handle", "type", p.Type.String(), "value", p.Value, "peer", peer.String())

	switch p.Type {
	case wire.TypeStartTransfer:
		return s.startTransfer(peer)
	case wire.TypeInitiateTransfer:
		return s.initiateTransfer(peer, int(p.Value))
	case wire.TypeMissingPacket:
		return s.missingPacket(peer, int(p.Value), int(p.Partition))
	case wire.TypeFileTransferred:
		s.fileTransferred(peer)
		return nil
	default:
		log.Warnw("handle", "status", "unexpected message", "type", p.Type.String(), "peer", peer.String())
		return nil
	}
}

// session returns the peer's session, creating it on first contact, and
// renews its lease.
func (s *Server) session(peer net.Addr) *session {
	key := peer.String()

	sess, exists := s.sessions.Get(key)
	if !exists {
		sess = newSession(peer, s.cfg.Sessions.IdleTimeout)
		s.sessions.Set(key, sess)
		log.Infow("session", "status", "created", "session", sess.ID.String(), "peer", key)
		return sess
	}

	sess.Lease.Renew(s.cfg.Sessions.IdleTimeout)
	return sess
}

func (s *Server) startTransfer(peer net.Addr) error {
	sess := s.session(peer)
	log.Infow("startTransfer", "status", "streaming to "+peer.String(), "session", sess.ID.String())

	return s.send(peer, wire.PacketInfo(uint16(s.store.ChunkCountPerPartition())))
}

func (s *Server) initiateTransfer(peer net.Addr, offset int) error {
	sess := s.session(peer)
	sess.cancelRepair()
	sess.resetMissing()
	sess.Partition = offset

	if offset >= s.store.PartitionCount() {
		log.Infow("initiateTransfer", "status", "file has been fully transmitted", "session", sess.ID.String(), "partition", offset)
		return s.send(peer, wire.FileTransferred())
	}

	count := s.store.ChunkCount(offset)
	log.Debugw("initiateTransfer", "status", "sending partition", "session", sess.ID.String(), "partition", offset, "chunks", count)

	// each send blocks until the socket accepts the datagram
	for i := 0; i < count; i++ {
		if err := s.sendChunk(peer, offset, i); err != nil {
			return err
		}
	}

	next := s.store.ChunkCount(offset + 1)
	if err := s.send(peer, wire.PartitionFinished(uint16(next))); err != nil {
		return err
	}

	sess.repair = s.sched.Every(s.cfg.Transfer.RepairInterval, func() error {
		return s.repair(peer, sess)
	})

	return nil
}

// repair resends the last chunk the peer reported missing.
func (s *Server) repair(peer net.Addr, sess *session) error {
	if !sess.HasMissing {
		return nil
	}

	log.Debugw("repair", "session", sess.ID.String(), "requested", sess.Partition, "partition", sess.MissingPartition, "index", sess.MissingIndex)
	return s.sendChunk(peer, sess.MissingPartition, sess.MissingIndex)
}

func (s *Server) missingPacket(peer net.Addr, index, offset int) error {
	sess := s.session(peer)

	if index >= s.store.ChunkCount(offset) {
		log.Warnw("missingPacket", "status", "ignoring out of range request", "session", sess.ID.String(), "partition", offset, "index", index)
		return nil
	}

	sess.MissingIndex = index
	sess.MissingPartition = offset
	sess.HasMissing = true

	log.Debugw("missingPacket", "session", sess.ID.String(), "partition", offset, "index", index)
	return s.sendChunk(peer, offset, index)
}

func (s *Server) fileTransferred(peer net.Addr) {
	key := peer.String()

	sess, exists := s.sessions.Get(key)
	if !exists {
		return
	}

	sess.cancelRepair()
	s.sessions.Delete(key)

	hits, misses := s.encoded.Stats()
	log.Infow("fileTransferred", "status", "transfer complete", "session", sess.ID.String(), "peer", key, "cacheHits", hits, "cacheMisses", misses)
}

func (s *Server) evictIdle() error {
	s.sessions.Range(func(key string, sess *session) bool {
		if sess.Lease.IsExpired() {
			sess.cancelRepair()
			s.sessions.Delete(key)
			log.Infow("evictIdle", "status", "session expired", "session", sess.ID.String(), "peer", sess.Lease.Peer.String(), "partition", sess.Partition)
		}

		return true
	})

	return nil
}

func (s *Server) shutdown() {
	s.sessions.Range(func(key string, sess *session) bool {
		sess.cancelRepair()
		return true
	})
}

func (s *Server) sendChunk(peer net.Addr, offset, localIndex int) error {
	b, err := s.encodedChunk(offset, localIndex)
	if err != nil {
		return err
	}

	return s.write(peer, b)
}

// encodedChunk returns the PARTITION_PACKET datagram for a chunk, reusing
// earlier encodings.
func (s *Server) encodedChunk(offset, localIndex int) ([]byte, error) {
	global := s.store.GlobalIndex(offset, localIndex)
	if b, ok := s.encoded.Get(global); ok {
		return b, nil
	}

	data, err := s.store.Chunk(offset, localIndex)
	if err != nil {
		return nil, err
	}

	b, err := wire.Encode(wire.PartitionPacket(uint16(global), data))
	if err != nil {
		return nil, err
	}

	s.encoded.Put(global, b)
	return b, nil
}

func (s *Server) send(peer net.Addr, p wire.Packet) error {
	b, err := wire.Encode(p)
	if err != nil {
		return err
	}

	return s.write(peer, b)
}

func (s *Server) write(peer net.Addr, b []byte) error {
	_, err := s.conn.WriteTo(b, peer)
	if err != nil {
		return fmt.Errorf("write to %s: %w", peer, err)
	}

	return nil
}
