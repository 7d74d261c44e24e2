package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pyropy/partstream/core/partition"
	"github.com/pyropy/partstream/core/server"
	"github.com/pyropy/partstream/lib/logger"
	"github.com/urfave/cli/v2"
)

var log, _ = logger.New("server")

var serveCmd = &cli.Command{
	Name:      "serve",
	Usage:     "Stream a file to clients",
	ArgsUsage: "<port> <filename>",
	Action:    serve,
}

func serve(ctx *cli.Context) error {
	cfg, err := server.GetConfig()
	if err != nil {
		return err
	}

	if ctx.NArg() > 0 {
		port, err := strconv.Atoi(ctx.Args().Get(0))
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", ctx.Args().Get(0), err)
		}
		cfg.Server.Port = port
	}

	if ctx.NArg() > 1 {
		cfg.Transfer.FilePath = ctx.Args().Get(1)
	}

	if cfg.Transfer.FilePath == "" {
		return cli.Exit("usage: server <port> <filename>", 1)
	}

	store, err := partition.Load(cfg.Transfer.FilePath, cfg.Transfer.ChunkSize, cfg.Transfer.Partitions)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		log.Errorw("startup", "error", "net listen failed", "address", addr)
		return err
	}
	defer conn.Close()

	log.Infow("startup", "status", "transfer server started", "address", conn.LocalAddr().String(), "file", cfg.Transfer.FilePath)
	defer log.Infow("shutdown", "status", "transfer server stopped", "address", conn.LocalAddr().String())

	sctx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.NewServer(cfg, store).Serve(sctx, conn)
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "server",
		Usage:     "Partitioned file streaming server",
		ArgsUsage: serveCmd.ArgsUsage,
		Action:    serve,
		Commands:  []*cli.Command{serveCmd},
	}
}

func run() error {
	return newApp().RunContext(context.Background(), os.Args)
}

func main() {
	if err := run(); err != nil {
		log.Fatalln("startup", "ERROR", err)
	}
}
