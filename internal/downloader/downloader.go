// Package downloader is the download client: for each queued download
// request it opens a session to the peer, submits the requested name,
// unpacks the returned archive, and publishes status. Each request spawns
// its own session goroutine, reporting its terminal result back over the
// registry, so a single slow download never blocks the receipt of new
// requests.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"

	"github.com/jsamse/shary/internal/files"
	"github.com/jsamse/shary/internal/logger"
	"github.com/jsamse/shary/internal/wire"
)

// StatusPublisher is the subset of *files.Files the downloader needs:
// reading requests, publishing their status, and publishing the current
// download rate.
type StatusPublisher interface {
	SubscribeDownloads() (<-chan files.DownloadRequest, func())
	SetDownloadStatus(wire.RemoteFile, *wire.DownloadStatus)
	SetDownloadRate(bytesPerSecond float64)
}

// Run consumes download requests until ctx is cancelled or the downloads
// subscription closes.
//
// Each Run owns its own EWMA of archive bytes read per second across all
// sessions it handles, ticked every five seconds (the interval go-metrics'
// EWMA assumes) and republished through pub so a presentation layer can
// read it; two Run calls in the same process never share a counter.
func Run(ctx context.Context, pub StatusPublisher) error {
	log := logger.New("downloader")
	bytesReceived := metrics.NewEWMA1()

	reqs, cancel := pub.SubscribeDownloads()
	defer cancel()

	go tickSpeedCounter(ctx, pub, bytesReceived)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-reqs:
			if !ok {
				log.Info("downloads subscription closed, stopping")
				return nil
			}
			go runSession(ctx, pub, log, req, bytesReceived)
		}
	}
}

// tickSpeedCounter advances bytesReceived every five seconds off a
// dedicated timer and republishes its current rate through pub.
func tickSpeedCounter(ctx context.Context, pub StatusPublisher, bytesReceived metrics.EWMA) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bytesReceived.Tick()
			pub.SetDownloadRate(bytesReceived.Rate())
		}
	}
}

func runSession(ctx context.Context, pub StatusPublisher, log logger.Logger, req files.DownloadRequest, bytesReceived metrics.EWMA) {
	id := uuid.New()
	sessionLog := logger.New(fmt.Sprintf("downloader session %s", id))
	sessionLog.Infof("starting download of %q from %s into %s", req.Remote.File, req.Remote.Addr, req.Dest)

	running := wire.Running()
	pub.SetDownloadStatus(req.Remote, &running)

	n, err := download(ctx, req.Remote, req.Dest)
	if err != nil {
		sessionLog.Warningf("download failed: %v", err)
		failed := wire.Failed(reasonFor(err))
		pub.SetDownloadStatus(req.Remote, &failed)
		return
	}

	bytesReceived.Update(n)
	sessionLog.Infof("download of %q completed (%d bytes)", req.Remote.File, n)
	completed := wire.Completed()
	pub.SetDownloadStatus(req.Remote, &completed)
}

// reasonFor reduces an internal error to the short human-readable reason
// surfaced in DownloadStatus.Failed.
func reasonFor(err error) string {
	if errors.Is(err, wire.ErrUnsafeArchivePath) {
		return "unsafe path"
	}
	return err.Error()
}

func download(ctx context.Context, remote wire.RemoteFile, dest string) (int64, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(remote.Addr.Addr().String(), fmt.Sprint(remote.Addr.Port())))
	if err != nil {
		return 0, fmt.Errorf("connect to %s: %w", remote.Addr, err)
	}
	defer conn.Close()
	// Cancelling ctx closes the connection, aborting an in-flight read or write.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	line, err := wire.EncodeRequestLine(remote.File)
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(line); err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}

	counted := &countingReader{r: conn}
	if err := wire.ExtractArchive(counted, dest); err != nil {
		if errors.Is(err, wire.ErrUnsafeArchivePath) {
			return counted.n, wire.ErrUnsafeArchivePath
		}
		return counted.n, fmt.Errorf("unpack archive: %w", err)
	}
	if counted.n == 0 {
		return 0, fmt.Errorf("share %q not found on %s", remote.File, remote.Addr)
	}
	return counted.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
