// Command reactorsrv runs the multi-reactor TCP echo server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	reactor "github.com/loopwire/reactor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("reactorsrv", pflag.ContinueOnError)
	port := fs.IntP("port", "p", 8080, "listening TCP port")
	ioThreads := fs.IntP("io-threads", "i", 12, "number of I/O reactor goroutines (max 16)")
	workerThreads := fs.IntP("worker-threads", "w", 24, "number of worker goroutines (max 32)")
	help := fs.BoolP("help", "h", false, "show usage")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *help {
		fs.Usage()
		return 0
	}

	srv, err := reactor.NewServer(
		reactor.WithPort(*port),
		reactor.WithIOThreads(*ioThreads),
		reactor.WithWorkerThreads(*workerThreads),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reactorsrv: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "reactorsrv: %v\n", err)
		return 2
	}
	return 0
}
