// Package fileserver accepts a single-request-per-connection session,
// reads a requested name, and streams a tar archive of the matching
// share. Each connection is handled by its own goroutine so the accept
// loop is never blocked by an in-progress transfer.
package fileserver

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/jsamse/shary/internal/logger"
	"github.com/jsamse/shary/internal/wire"
)

// LocalFilesSource supplies the latest-value subscription the server
// snapshots on every request, and the sink its upload rate is published
// to; *files.Files satisfies this via SubscribeLocalFiles and
// SetUploadRate.
type LocalFilesSource interface {
	SubscribeLocalFiles() (<-chan []wire.LocalFile, func())
	SetUploadRate(bytesPerSecond float64)
}

// Run listens on port and serves shares until ctx is cancelled. A failure
// to bind is fatal to this task; a failure within one session is logged
// and the accept loop continues.
//
// Each Run owns its own EWMA of archive bytes written per second across
// all sessions it handles, ticked every five seconds (the interval
// go-metrics' EWMA assumes) and republished through source so a
// presentation layer can read it; two Run calls in the same process never
// share a counter.
func Run(ctx context.Context, source LocalFilesSource, port uint16) error {
	log := logger.New("fileserver")
	bytesSent := metrics.NewEWMA1()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("bind file server: %w", err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go tickSpeedCounter(ctx, source, bytesSent)

	filesCh, cancel := source.SubscribeLocalFiles()
	defer cancel()

	// latest holds the most recently observed snapshot; refreshed
	// non-blockingly on each accept so a session never stalls waiting
	// for a local-files publication.
	var latest []wire.LocalFile
	select {
	case latest = <-filesCh:
	default:
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			log.Warningln("accept failed:", err)
			continue
		}

		select {
		case snap := <-filesCh:
			latest = snap
		default:
		}

		// Cancelling ctx closes the connection, aborting an in-flight
		// read or write of this session.
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		go func(conn net.Conn, local []wire.LocalFile) {
			defer stop()
			handleConn(conn, local, log, bytesSent)
		}(conn, latest)
	}
}

func handleConn(conn net.Conn, local []wire.LocalFile, log logger.Logger, bytesSent metrics.EWMA) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Debugln("session failed reading request:", err)
		return
	}
	name, err := wire.DecodeRequestLine([]byte(line[:len(line)-1]))
	if err != nil {
		log.Debugln("session failed decoding request:", err)
		return
	}

	lf, ok := find(local, name)
	if !ok {
		log.Debugf("share %q not found, closing session", name)
		return
	}

	n, err := writeShare(conn, lf)
	if err != nil {
		log.Debugf("session for %q failed writing archive: %v", name, err)
		return
	}
	bytesSent.Update(n)
	log.Debugf("served %q (%d bytes) to %s", name, n, conn.RemoteAddr())
}

// tickSpeedCounter advances bytesSent every five seconds off a dedicated
// timer and republishes its current rate through sink.
func tickSpeedCounter(ctx context.Context, sink LocalFilesSource, bytesSent metrics.EWMA) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bytesSent.Tick()
			sink.SetUploadRate(bytesSent.Rate())
		}
	}
}

func find(local []wire.LocalFile, name string) (wire.LocalFile, bool) {
	for _, lf := range local {
		if lf.Name == name {
			return lf, true
		}
	}
	return wire.LocalFile{}, false
}

func writeShare(w countingWriter, lf wire.LocalFile) (int64, error) {
	cw := &countWriter{w: w}
	if err := wire.WriteArchive(cw, lf.Path, lf.Name); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

type countingWriter interface {
	Write(p []byte) (int, error)
}

type countWriter struct {
	w countingWriter
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
