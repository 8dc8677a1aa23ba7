package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/iamr8/ChatConsole/internal/chat"
	"github.com/iamr8/ChatConsole/internal/client"
	"github.com/iamr8/ChatConsole/internal/config"
	"github.com/iamr8/ChatConsole/internal/console"
	"github.com/iamr8/ChatConsole/internal/logging"
	"github.com/iamr8/ChatConsole/internal/resolve"
	"github.com/iamr8/ChatConsole/pkg/protocol"
)

const aliasQuestion = "Please enter an alias to connect to an assist."

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
	log := logging.NewWithWriter(os.Stderr, "client", logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stdin := bufio.NewReader(os.Stdin)
	alias := cfg.Alias
	for alias == "" {
		answer, err := console.Prompt(os.Stdout, stdin, aliasQuestion)
		if err != nil {
			return fmt.Errorf("read alias: %w", err)
		}
		probe := protocol.Message{Sender: answer}
		if err := probe.Validate(); err != nil {
			fmt.Fprintln(os.Stdout, client.NoticeReserved)
			continue
		}
		alias = answer
	}

	addr, err := resolve.New(nil).ResolvePort(ctx, cfg.Host, cfg.Port)
	if err != nil {
		return err
	}

	sink := console.NewColorSink(os.Stdout, logCfg.NoColor)
	c := client.New(addr, alias,
		client.WithLogger(log),
		client.WithSink(sink),
		client.WithTransport(client.Transport(cfg.Transport)),
		client.WithRateWindow(cfg.RateWindow),
		client.WithMaxFrameBytes(cfg.MaxFrameBytes),
		client.WithHandler(func(e chat.Entry) {
			sink.Notify(e.Alias+": "+e.Body, console.SeverityText)
		}),
	)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	g, gctx := errgroup.WithContext(ctx)
	lines := console.ReadLines(gctx, stdin)

	g.Go(func() error {
		select {
		case <-c.Done():
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
					console.PrintBacklog(os.Stdout, c.Backlog().Entries())
					continue
				}
				if err := c.Send(gctx, line); err != nil {
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
