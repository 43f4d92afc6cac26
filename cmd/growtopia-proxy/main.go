// Command growtopia-proxy runs the man-in-the-middle bridge between a
// Growtopia client and the real game server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-envparse"
	"github.com/spf13/pflag"

	"github.com/pg9182/growtopia-proxy/pkg/bridge"
)

var opt struct {
	Help       bool
	ConfigPath string
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
	pflag.StringVarP(&opt.ConfigPath, "config", "c", "config.json", "Path to config.json")
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [env_file]\n\noptions:\n%s\nnote: if env_file is provided, its values override config.json\n", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	c, err := bridge.LoadOrInit(opt.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	if pflag.NArg() == 1 {
		if err := applyEnvOverlay(&c, pflag.Arg(0)); err != nil {
			fmt.Fprintf(os.Stderr, "error: read env file: %v\n", err)
			os.Exit(1)
		}
	}

	s, err := bridge.NewServer(c, opt.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: initialize server: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hch := make(chan os.Signal, 1)
	signal.Notify(hch, syscall.SIGHUP)
	go func() {
		for range hch {
			s.Log.Info().Msg("got SIGHUP")
			s.HandleSIGHUP()
		}
	}()

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: run server: %v\n", err)
		os.Exit(1)
	}
}

// applyEnvOverlay reads port overrides from an env file without requiring
// config.json to be edited, following cmd/atlas's readEnv pattern.
func applyEnvOverlay(c *bridge.Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return err
	}

	if v, ok := m["WEB_SERVER_PORT"]; ok {
		var p uint16
		if _, err := fmt.Sscanf(v, "%d", &p); err != nil {
			return fmt.Errorf("parse WEB_SERVER_PORT: %w", err)
		}
		c.WebServerPort = p
	}
	if v, ok := m["ENET_SERVER_PORT"]; ok {
		var p uint16
		if _, err := fmt.Sscanf(v, "%d", &p); err != nil {
			return fmt.Errorf("parse ENET_SERVER_PORT: %w", err)
		}
		c.ENetServerPort = p
	}
	return nil
}
