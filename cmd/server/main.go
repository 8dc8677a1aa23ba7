package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/iamr8/ChatConsole/internal/chat"
	"github.com/iamr8/ChatConsole/internal/config"
	"github.com/iamr8/ChatConsole/internal/console"
	"github.com/iamr8/ChatConsole/internal/logging"
	"github.com/iamr8/ChatConsole/internal/resolve"
	"github.com/iamr8/ChatConsole/internal/server"
)

// assistAlias is the name the server speaks under.
const assistAlias = "Assist"

var errLeave = errors.New("leave")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logCfg.Level = lvl
	}
	logging.ApplyEnvOverrides(&logCfg)
	log := logging.NewWithWriter(os.Stderr, "server", logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr, err := resolve.New(nil).ResolvePort(ctx, cfg.Host, cfg.Port)
	if err != nil {
		return err
	}

	sink := console.NewColorSink(os.Stdout, logCfg.NoColor)
	opts := []server.Option{
		server.WithLogger(log),
		server.WithSink(sink),
		server.WithMaxFrameBytes(cfg.MaxFrameBytes),
		server.WithHandler(func(e chat.Entry) {
			sink.Notify(e.Alias+": "+e.Body, console.SeverityText)
		}),
	}
	if cfg.WebSocket {
		opts = append(opts, server.WithWebSocket())
	}

	srv := server.New(addr, assistAlias, opts...)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Close()

	g, gctx := errgroup.WithContext(ctx)
	lines := console.ReadLines(gctx, os.Stdin)

	g.Go(func() error {
		select {
		case <-srv.Accepted():
			if alias, ok := srv.PeerAlias(); ok {
				log.Info().Str("peer", alias).Msg("peer announced")
			}
		case <-gctx.Done():
			return nil
		}
		select {
		case <-srv.Done():
			sink.Notify("The client has left the conversation.", console.SeverityInfo)
			return errLeave
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || line == console.CommandQuit {
					return errLeave
				}
				if line == console.CommandHistory {
					console.PrintBacklog(os.Stdout, srv.Backlog().Entries())
					continue
				}
				if err := srv.Send(gctx, line); err != nil {
					log.Debug().Err(err).Msg("send failed")
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errLeave) {
		return err
	}
	return nil
}
