// Package receiver joins the multicast group, ingests peer
// advertisements, maintains a time-expiring view of remote peers, and
// publishes the consolidated remote-file list. Peers are tracked in an
// address-keyed map; an advertisement whose name set is unchanged only
// refreshes the peer's last-seen time, while a changed name set triggers
// a wholesale replace and a republish.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/jsamse/shary/internal/logger"
	"github.com/jsamse/shary/internal/wire"
)

const (
	// peerTTL is the inactivity window after which a peer is evicted.
	peerTTL = 5 * time.Second
	// pollInterval bounds the read wait so the expiration sweep runs at
	// least once per second even when no advertisements arrive.
	pollInterval = time.Second
)

// RemotePublisher receives the consolidated remote-file list; *files.Files
// satisfies this via SetRemoteFiles.
type RemotePublisher interface {
	SetRemoteFiles([]wire.RemoteFile)
}

type peerEntry struct {
	names    map[string]struct{}
	lastSeen time.Time
}

func namesEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for n := range a {
		if _, ok := b[n]; !ok {
			return false
		}
	}
	return true
}

// Run joins the multicast group and consumes advertisements until ctx is
// cancelled. port is both the bind port and the port RemoteFile.Addr is
// normalised to, since the sender's ephemeral source port is not where
// its file server actually listens.
func Run(ctx context.Context, pub RemotePublisher, group netip.Addr, port uint16) error {
	log := logger.New("receiver")

	pc, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("bind receiver socket: %w", err)
	}
	defer pc.Close()

	p := ipv4.NewPacketConn(pc)
	if err := p.SetMulticastLoopback(false); err != nil {
		return fmt.Errorf("disable multicast loopback: %w", err)
	}
	groupAddr := &net.UDPAddr{IP: group.AsSlice()}
	if err := p.JoinGroup(nil, groupAddr); err != nil {
		return fmt.Errorf("join multicast group %s: %w", group, err)
	}

	peers := make(map[netip.AddrPort]*peerEntry)
	buf := make([]byte, 64*1024)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := pc.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		n, _, from, err := p.ReadFrom(buf)
		now := time.Now()

		if sweepExpired(peers, now) {
			publish(pub, peers)
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			log.Warningln("receive error:", err)
			continue
		}

		srcAddr, ok := addrFromNetAddr(from)
		if !ok {
			log.Warningln("unexpected source address type:", from)
			continue
		}
		peerAddr := netip.AddrPortFrom(srcAddr.Addr(), port)

		pkt, err := wire.DecodePacket(buf[:n])
		if err != nil {
			log.Warningln("malformed advertisement from", from, ":", err)
			continue
		}

		if updatePeer(peers, peerAddr, pkt.Files, now) {
			publish(pub, peers)
		}
	}
}

func addrFromNetAddr(addr net.Addr) (netip.AddrPort, bool) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}, false
	}
	ip, ok := netip.AddrFromSlice(udpAddr.IP)
	if !ok {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(ip.Unmap(), uint16(udpAddr.Port)), true
}

// updatePeer inserts or updates the entry for addr and reports whether
// the entry was replaced (as opposed to merely refreshed), which is when
// a republish of the consolidated list is required.
func updatePeer(peers map[netip.AddrPort]*peerEntry, addr netip.AddrPort, names []string, now time.Time) bool {
	nameSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		nameSet[n] = struct{}{}
	}

	existing, ok := peers[addr]
	if ok && namesEqual(existing.names, nameSet) {
		existing.lastSeen = now
		return false
	}
	peers[addr] = &peerEntry{names: nameSet, lastSeen: now}
	return true
}

// sweepExpired removes every peer whose lastSeen is older than peerTTL and
// reports whether anything was removed.
func sweepExpired(peers map[netip.AddrPort]*peerEntry, now time.Time) bool {
	removed := false
	for addr, entry := range peers {
		if now.Sub(entry.lastSeen) > peerTTL {
			delete(peers, addr)
			removed = true
		}
	}
	return removed
}

// publish recomputes the flat consolidated remote-file list and
// publishes it.
func publish(pub RemotePublisher, peers map[netip.AddrPort]*peerEntry) {
	var out []wire.RemoteFile
	for addr, entry := range peers {
		for name := range entry.names {
			out = append(out, wire.RemoteFile{Addr: addr, File: name})
		}
	}
	pub.SetRemoteFiles(out)
}
