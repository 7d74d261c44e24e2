package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/pyropy/partstream/core/client"
	"github.com/pyropy/partstream/core/history"
	"github.com/pyropy/partstream/core/model"
	"github.com/pyropy/partstream/core/sink"
	"github.com/urfave/cli/v2"
)

var storeFlag = &cli.StringFlag{
	Name:  "store",
	Usage: "Directory of the transfer history store",
}

func storePath(ctx *cli.Context, cfg *client.Config) string {
	if p := ctx.String("store"); p != "" {
		return p
	}

	return cfg.History.Path
}

var downloadCmd = &cli.Command{
	Name:      "download",
	Usage:     "Download a file and play it while it arrives",
	ArgsUsage: "<server address> <server port> [output filename]",
	Flags: []cli.Flag{
		storeFlag,
		&cli.StringFlag{
			Name:  "player",
			Usage: "Playback command fed through stdin, stdout when empty",
		},
		&cli.BoolFlag{
			Name:  "no-play",
			Usage: "Only write the output file",
		},
	},
	Action: download,
}

func download(ctx *cli.Context) error {
	if ctx.NArg() < 2 {
		return cli.Exit("usage: client <server address> <server port> [output filename]", 1)
	}

	cfg, err := client.GetConfig()
	if err != nil {
		return err
	}

	serverAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(ctx.Args().Get(0), ctx.Args().Get(1)))
	if err != nil {
		return err
	}

	outputPath := ctx.Args().Get(2)
	if outputPath == "" && ctx.Bool("no-play") {
		return cli.Exit("nothing to do: no output filename and playback disabled", 1)
	}

	if p := ctx.String("player"); p != "" {
		cfg.Playback.Command = p
	}

	sctx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := newSink(sctx, cfg, outputPath, !ctx.Bool("no-play"))
	if err != nil {
		return err
	}

	laddr := net.JoinHostPort(cfg.Client.Host, strconv.Itoa(cfg.Client.Port))
	conn, err := net.ListenPacket("udp", laddr)
	if err != nil {
		log.Errorw("startup", "error", "net listen failed", "address", laddr)
		_ = out.Finish()
		return err
	}
	defer conn.Close()

	transfer := model.NewTransfer(serverAddr.String())
	transfer.OutputPath = outputPath

	summary, err := client.NewClient(cfg, conn, serverAddr, out).Run(sctx)
	if err != nil {
		return err
	}

	transfer.Bytes = summary.Bytes
	transfer.Chunks = summary.Chunks
	transfer.Partitions = summary.Partitions
	transfer.Checksum = summary.Checksum
	transfer.StartedAt = summary.StartedAt
	transfer.FinishedAt = summary.FinishedAt

	return record(storePath(ctx, cfg), transfer)
}

func newSink(ctx context.Context, cfg *client.Config, outputPath string, play bool) (sink.Sink, error) {
	sinks := make([]sink.Sink, 0, 2)

	if outputPath != "" {
		f, err := sink.NewFileSink(outputPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
	}

	if play {
		p, err := sink.NewPlayerSink(ctx, cfg.Playback.Command, os.Stdout)
		if err != nil {
			_ = sink.NewTee(sinks...).Finish()
			return nil, err
		}
		sinks = append(sinks, p)
	}

	return sink.NewTee(sinks...), nil
}

func record(path string, transfer model.Transfer) error {
	store, err := history.NewStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.Add(context.Background(), transfer)
	if err != nil {
		return err
	}

	log.Infow("history", "status", "transfer recorded", "id", transfer.ID.String(), "store", path)
	return nil
}

var historyCmd = &cli.Command{
	Name:      "history",
	Usage:     "List completed transfers",
	ArgsUsage: "[transfer id]",
	Flags:     []cli.Flag{storeFlag},
	Action: func(ctx *cli.Context) error {
		cfg, err := client.GetConfig()
		if err != nil {
			return err
		}

		store, err := history.NewStore(storePath(ctx, cfg))
		if err != nil {
			return err
		}
		defer store.Close()

		cctx := context.Background()

		if ctx.NArg() > 0 {
			id, err := uuid.Parse(ctx.Args().First())
			if err != nil {
				return err
			}

			transfer, err := store.Get(cctx, id)
			if err != nil {
				return err
			}

			printTransfer(transfer)
			return nil
		}

		transfers, err := store.All(cctx)
		if err != nil {
			return err
		}

		for _, transfer := range transfers {
			printTransfer(transfer)
		}

		return nil
	},
}

func printTransfer(t *model.Transfer) {
	fmt.Printf("%s\t%s\t%s\t%d bytes\t%d partitions\tchecksum %d\t%s\n",
		t.ID, t.StartedAt.Format("2006-01-02 15:04:05"), t.Server, t.Bytes, t.Partitions, t.Checksum, t.Duration())
}
