package downloader_test

import (
	"context"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jsamse/shary/internal/downloader"
	"github.com/jsamse/shary/internal/fileserver"
	"github.com/jsamse/shary/internal/files"
	"github.com/jsamse/shary/internal/wire"
)

func startServer(t *testing.T, f *files.Files, port uint16) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = fileserver.Run(ctx, f, port) }()
	for i := 0; i < 50; i++ {
		conn, err := net.DialTimeout("tcp", localAddr(port), 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("file server never started on port %d", port)
}

func localAddr(port uint16) string {
	return (&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(port)}).String()
}

// Scenario S4 — happy download of a file.
func TestDownloadHappyPath(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "hello.txt"), []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	serverFiles := files.New()
	serverFiles.AddLocalFile(wire.LocalFile{Path: filepath.Join(srcDir, "hello.txt"), Name: "hello.txt"})
	startServer(t, serverFiles, 27871)

	clientFiles := files.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = downloader.Run(ctx, clientFiles) }()

	remote := wire.RemoteFile{Addr: netip.MustParseAddrPort("127.0.0.1:27871"), File: "hello.txt"}
	destDir := t.TempDir()

	statusCh, cancelSub := clientFiles.SubscribeDownloadStatus()
	defer cancelSub()
	<-statusCh // initial empty snapshot

	clientFiles.AddDownload(remote, destDir)

	waitForStatus(t, statusCh, remote, wire.StatusRunning)
	waitForStatus(t, statusCh, remote, wire.StatusCompleted)

	got, err := os.ReadFile(filepath.Join(destDir, "hello.txt"))
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(got) != "hi\n" {
		t.Fatalf("expected %q, got %q", "hi\n", got)
	}
}

// Scenario S5 — download of a missing name.
func TestDownloadMissingName(t *testing.T) {
	serverFiles := files.New()
	startServer(t, serverFiles, 27872)

	clientFiles := files.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = downloader.Run(ctx, clientFiles) }()

	remote := wire.RemoteFile{Addr: netip.MustParseAddrPort("127.0.0.1:27872"), File: "nope"}
	destDir := t.TempDir()

	statusCh, cancelSub := clientFiles.SubscribeDownloadStatus()
	defer cancelSub()
	<-statusCh

	clientFiles.AddDownload(remote, destDir)

	waitForStatus(t, statusCh, remote, wire.StatusRunning)
	waitForStatus(t, statusCh, remote, wire.StatusFailed)

	entries, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files created under destDir, found %v", entries)
	}
}

func waitForStatus(t *testing.T, ch <-chan map[wire.RemoteFile]wire.DownloadStatus, remote wire.RemoteFile, kind wire.StatusKind) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap := <-ch:
			if s, ok := snap[remote]; ok && s.Kind == kind {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %v on %v", kind, remote)
		}
	}
}
