package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/fwdctl/internal/dataplane"
	"github.com/danmuck/fwdctl/internal/logging"
	"github.com/rs/zerolog/log"
)

// dpsim serves an in-memory forwarding table over the dataplane wire
// protocol. SIGUSR1 wipes its state to exercise agent replay.
func main() {
	addr := flag.String("addr", dataplane.DefaultAddress, "listen address")
	flag.Parse()

	logging.ConfigureRuntime()

	if err := run(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "dpsim: %v\n", err)
		os.Exit(1)
	}
}

func run(addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	sim := dataplane.NewSim()

	restart := make(chan os.Signal, 1)
	signal.Notify(restart, syscall.SIGUSR1)
	defer signal.Stop(restart)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-restart:
				sim.Restart()
			}
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("dpsim listening")
	return dataplane.Serve(ctx, ln, sim)
}
