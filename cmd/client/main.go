package main

import (
	"context"
	"os"

	"github.com/pyropy/partstream/lib/logger"
	"github.com/urfave/cli/v2"
)

var log, _ = logger.New("client")

func newApp() *cli.App {
	return &cli.App{
		Name:      "client",
		Usage:     "Download and play a file streamed by a partstream server",
		ArgsUsage: downloadCmd.ArgsUsage,
		Flags:     downloadCmd.Flags,
		Action:    download,
		Commands:  []*cli.Command{downloadCmd, historyCmd},
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
