package server

import (
	"context"
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/pyropy/partstream/core/partition"
	"github.com/pyropy/partstream/core/wire"
	"github.com/stretchr/testify/require"
)

type harness struct {
	srv  *Server
	addr net.Addr
	peer net.PacketConn
	data []byte
	errc chan error
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Transfer.Partitions = 1
	cfg.Transfer.RepairInterval = 20 * time.Millisecond

	return cfg
}

func startServer(t *testing.T, cfg *Config, size int) *harness {
	t.Helper()

	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)

	store, err := partition.NewStore(data, cfg.Transfer.ChunkSize, cfg.Transfer.Partitions)
	require.NoError(t, err)

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	peer, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(cfg, store)

	h := &harness{
		srv:  srv,
		addr: conn.LocalAddr(),
		peer: peer,
		data: data,
		errc: make(chan error, 1),
	}

	go func() {
		h.errc <- srv.Serve(ctx, conn)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-h.errc)
		_ = conn.Close()
		_ = peer.Close()
	})

	return h
}

func (h *harness) send(t *testing.T, p wire.Packet) {
	t.Helper()

	b, err := wire.Encode(p)
	require.NoError(t, err)

	_, err = h.peer.WriteTo(b, h.addr)
	require.NoError(t, err)
}

func (h *harness) recv(t *testing.T) wire.Packet {
	t.Helper()

	require.NoError(t, h.peer.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, wire.MaxDatagramSize)
	n, _, err := h.peer.ReadFrom(buf)
	require.NoError(t, err)

	p, err := wire.Decode(buf[:n])
	require.NoError(t, err)

	return p
}

func TestHandshake(t *testing.T) {
	h := startServer(t, testConfig(), 2600)

	h.send(t, wire.StartTransfer())

	p := h.recv(t)
	require.Equal(t, wire.TypePacketInfo, p.Type)
	require.Equal(t, uint16(3), p.Value)

	require.Eventually(t, func() bool {
		return h.srv.ActiveSessions() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPartitionBurst(t *testing.T) {
	h := startServer(t, testConfig(), 2600)

	h.send(t, wire.StartTransfer())
	h.recv(t)

	h.send(t, wire.InitiateTransfer(0))

	for i := 0; i < 3; i++ {
		p := h.recv(t)
		require.Equal(t, wire.TypePartitionPacket, p.Type)
		require.Equal(t, uint16(i), p.Value)

		end := min((i+1)*1024, len(h.data))
		require.Equal(t, h.data[i*1024:end], p.Data)
	}

	p := h.recv(t)
	require.Equal(t, wire.TypePartitionFinished, p.Type)
	require.Equal(t, uint16(0), p.Value)
}

func TestPartitionFinishedAnnouncesNextSize(t *testing.T) {
	cfg := testConfig()
	cfg.Transfer.Partitions = 2
	// 3 chunks over 2 partitions: 2 chunks, then 1
	h := startServer(t, cfg, 2600)

	h.send(t, wire.InitiateTransfer(0))
	require.Equal(t, uint16(0), h.recv(t).Value)
	require.Equal(t, uint16(1), h.recv(t).Value)

	p := h.recv(t)
	require.Equal(t, wire.TypePartitionFinished, p.Type)
	require.Equal(t, uint16(1), p.Value)

	h.send(t, wire.InitiateTransfer(1))
	require.Equal(t, uint16(2), h.recv(t).Value)

	p = h.recv(t)
	require.Equal(t, wire.TypePartitionFinished, p.Type)
	require.Equal(t, uint16(0), p.Value)
}

func TestOutOfRangePartition(t *testing.T) {
	h := startServer(t, testConfig(), 2600)

	h.send(t, wire.InitiateTransfer(1))

	p := h.recv(t)
	require.Equal(t, wire.TypeFileTransferred, p.Type)
}

func TestMissingPacketIsRepaired(t *testing.T) {
	cfg := testConfig()
	cfg.Transfer.RepairInterval = time.Hour
	h := startServer(t, cfg, 2600)

	h.send(t, wire.InitiateTransfer(0))
	for i := 0; i < 4; i++ {
		h.recv(t)
	}

	h.send(t, wire.MissingPacket(1, 0))

	p := h.recv(t)
	require.Equal(t, wire.TypePartitionPacket, p.Type)
	require.Equal(t, uint16(1), p.Value)
	require.Equal(t, h.data[1024:2048], p.Data)
}

func TestRepairTaskResendsUntilCancelled(t *testing.T) {
	h := startServer(t, testConfig(), 2600)

	h.send(t, wire.InitiateTransfer(0))
	for i := 0; i < 4; i++ {
		h.recv(t)
	}

	h.send(t, wire.MissingPacket(2, 0))

	// the immediate reply and at least two timer resends
	for i := 0; i < 3; i++ {
		p := h.recv(t)
		require.Equal(t, wire.TypePartitionPacket, p.Type)
		require.Equal(t, uint16(2), p.Value)
	}

	h.send(t, wire.FileTransferred())

	require.Eventually(t, func() bool {
		return h.srv.ActiveSessions() == 0
	}, time.Second, 10*time.Millisecond)

	// drain what was in flight, then expect silence
	require.NoError(t, h.peer.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		if _, _, err := h.peer.ReadFrom(buf); err != nil {
			break
		}
	}

	require.NoError(t, h.peer.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := h.peer.ReadFrom(buf)
	require.Error(t, err)
}

func TestOutOfRangeMissingIsIgnored(t *testing.T) {
	h := startServer(t, testConfig(), 2600)

	h.send(t, wire.MissingPacket(7, 0))
	h.send(t, wire.MissingPacket(0, 4))
	h.send(t, wire.StartTransfer())

	p := h.recv(t)
	require.Equal(t, wire.TypePacketInfo, p.Type)
}

func TestMalformedDatagramIsIgnored(t *testing.T) {
	h := startServer(t, testConfig(), 2600)

	_, err := h.peer.WriteTo([]byte{0x42, 0x01}, h.addr)
	require.NoError(t, err)
	_, err = h.peer.WriteTo([]byte{0x03}, h.addr)
	require.NoError(t, err)

	h.send(t, wire.StartTransfer())

	p := h.recv(t)
	require.Equal(t, wire.TypePacketInfo, p.Type)
}

func TestIdleSessionIsEvicted(t *testing.T) {
	cfg := testConfig()
	cfg.Sessions.IdleTimeout = 50 * time.Millisecond
	h := startServer(t, cfg, 2600)

	h.send(t, wire.StartTransfer())
	h.recv(t)

	require.Eventually(t, func() bool {
		return h.srv.ActiveSessions() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEncodedChunksAreCached(t *testing.T) {
	h := startServer(t, testConfig(), 2600)

	h.send(t, wire.InitiateTransfer(0))
	for i := 0; i < 4; i++ {
		h.recv(t)
	}

	h.send(t, wire.InitiateTransfer(0))
	for i := 0; i < 4; i++ {
		h.recv(t)
	}

	h.send(t, wire.FileTransferred())
	require.Eventually(t, func() bool {
		return h.srv.ActiveSessions() == 0
	}, time.Second, 10*time.Millisecond)

	// the session was deleted after both bursts, so the loop is done with the cache
	hits, misses := h.srv.encoded.Stats()
	require.Equal(t, 3, misses)
	require.Equal(t, 3, hits)
}

func TestGetConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "5000")
	t.Setenv("REPAIR_INTERVAL", "250ms")

	cfg, err := GetConfig()
	require.NoError(t, err)
	require.Equal(t, 5000, cfg.Server.Port)
	require.Equal(t, 250*time.Millisecond, cfg.Transfer.RepairInterval)
	require.Equal(t, 1024, cfg.Transfer.ChunkSize)
	require.Equal(t, 100, cfg.Transfer.Partitions)
}
