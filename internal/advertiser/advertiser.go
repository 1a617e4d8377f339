// Package advertiser periodically multicasts the local share list so
// peers can detect both presence and absence of a host without a
// handshake: a single goroutine driven by select over a ticker and a
// change notification, re-serialising only when the share list changes
// and retransmitting the last serialised form on every tick.
package advertiser

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/jsamse/shary/internal/logger"
	"github.com/jsamse/shary/internal/wire"
)

// period is the fixed advertisement interval.
const period = time.Second

// LocalFilesSource supplies the latest-value subscription the advertiser
// reads from; *files.Files satisfies this via SubscribeLocalFiles.
type LocalFilesSource interface {
	SubscribeLocalFiles() (<-chan []wire.LocalFile, func())
}

// Run advertises the local share list on group:port until ctx is
// cancelled or the local-files subscription is torn down. Any transmit
// error is fatal to this task.
func Run(ctx context.Context, source LocalFilesSource, group netip.Addr, port uint16) error {
	log := logger.New("advertiser")

	pc, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return fmt.Errorf("bind advertiser socket: %w", err)
	}
	defer pc.Close()

	p := ipv4.NewPacketConn(pc)
	if err := p.SetMulticastLoopback(false); err != nil {
		return fmt.Errorf("disable multicast loopback: %w", err)
	}

	dst := &net.UDPAddr{IP: group.AsSlice(), Port: int(port)}

	filesCh, cancel := source.SubscribeLocalFiles()
	defer cancel()

	var buf []byte
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case names, ok := <-filesCh:
			if !ok {
				log.Info("local files subscription closed, stopping")
				return nil
			}
			b, err := encode(names)
			if err != nil {
				return fmt.Errorf("encode advertisement: %w", err)
			}
			buf = b
		case <-ticker.C:
		}

		if len(buf) == 0 {
			continue
		}
		if _, err := p.WriteTo(buf, nil, dst); err != nil {
			return fmt.Errorf("send advertisement: %w", err)
		}
		log.Debugf("sent advertisement to %s: %s", dst, buf)
	}
}

func encode(local []wire.LocalFile) ([]byte, error) {
	names := make([]string, len(local))
	for i, lf := range local {
		names[i] = lf.Name
	}
	return wire.EncodePacket(names)
}
