// Command sharectl runs one host's network core: advertiser, receiver,
// file server, and downloader, wired to a shared Files registry.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	shary "github.com/jsamse/shary"
	"github.com/jsamse/shary/internal/core"
	"github.com/jsamse/shary/internal/files"
	"github.com/jsamse/shary/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	port := flag.Uint("port", 0, "override the service port (0 = use config/default)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg := shary.DefaultConfig
	if *configPath != "" {
		loaded, err := shary.LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = *loaded
	}
	if *port != 0 {
		cfg.Port = uint16(*port)
	}

	group, err := cfg.MulticastAddr()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := files.New()
	core.Supervise(ctx, reg, group, cfg.Port)
	return nil
}
