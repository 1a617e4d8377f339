// Package core composes the four network tasks — advertiser, receiver,
// file server, and downloader — into one supervised unit of work.
package core

import (
	"context"
	"net/netip"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jsamse/shary/internal/advertiser"
	"github.com/jsamse/shary/internal/downloader"
	"github.com/jsamse/shary/internal/fileserver"
	"github.com/jsamse/shary/internal/files"
	"github.com/jsamse/shary/internal/logger"
	"github.com/jsamse/shary/internal/receiver"
)

// restartBackoff is how long Supervise waits before restarting the task
// group after it returns.
const restartBackoff = time.Second

// Run starts the advertiser, receiver, file server, and downloader as
// sibling goroutines sharing reg, and blocks until ctx is cancelled or
// any one of them returns an error — at which point the others are
// cancelled too.
func Run(ctx context.Context, reg *files.Files, group netip.Addr, port uint16) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return advertiser.Run(gctx, reg, group, port) })
	g.Go(func() error { return receiver.Run(gctx, reg, group, port) })
	g.Go(func() error { return fileserver.Run(gctx, reg, port) })
	g.Go(func() error { return downloader.Run(gctx, reg) })

	return g.Wait()
}

// Supervise runs Run in a loop, restarting it after restartBackoff
// whenever it returns (with or without an error) before ctx is cancelled,
// until ctx is cancelled. This is
// the top-level entry point cmd/sharectl uses; Run alone is exposed for
// callers (tests, alternate front ends) that want a single unsupervised
// attempt instead.
func Supervise(ctx context.Context, reg *files.Files, group netip.Addr, port uint16) {
	log := logger.New("core")

	for {
		err := Run(ctx, reg, group, port)
		if ctx.Err() != nil {
			return
		}
		log.Errorln("task group exited, restarting after backoff:", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartBackoff):
		}
	}
}
