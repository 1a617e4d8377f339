package fileserver_test

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jsamse/shary/internal/fileserver"
	"github.com/jsamse/shary/internal/files"
	"github.com/jsamse/shary/internal/wire"
)

func startServer(t *testing.T, f *files.Files, port uint16) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = fileserver.Run(ctx, f, port)
	}()
	<-ready
	waitForListener(t, port)
}

func waitForListener(t *testing.T, port uint16) {
	t.Helper()
	for i := 0; i < 50; i++ {
		conn, err := net.DialTimeout("tcp", addr(port), 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("file server never started listening on port %d", port)
}

func addr(port uint16) string { return fmt.Sprintf("127.0.0.1:%d", port) }

func requestArchive(t *testing.T, port uint16, name string) ([]byte, error) {
	t.Helper()
	conn, err := net.Dial("tcp", addr(port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	line, err := wire.EncodeRequestLine(name)
	if err != nil {
		t.Fatalf("EncodeRequestLine: %v", err)
	}
	if _, err := conn.Write(line); err != nil {
		t.Fatalf("write request: %v", err)
	}

	return readAll(t, conn)
}

func readAll(t *testing.T, r net.Conn) ([]byte, error) {
	t.Helper()
	var buf bytes.Buffer
	br := bufio.NewReader(r)
	_, err := buf.ReadFrom(br)
	return buf.Bytes(), err
}

// Scenario S4 — happy download of a file.
func TestServeKnownFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(path, []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := files.New()
	f.AddLocalFile(wire.LocalFile{Path: path, Name: "hello.txt"})
	startServer(t, f, 27771)

	data, err := requestArchive(t, 27771, "hello.txt")
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}

	tr := tar.NewReader(bytes.NewReader(data))
	hdr, err := tr.Next()
	if err != nil {
		t.Fatalf("reading tar header: %v", err)
	}
	if hdr.Name != "hello.txt" {
		t.Fatalf("expected entry name %q, got %q", "hello.txt", hdr.Name)
	}
	content := make([]byte, hdr.Size)
	if _, err := tr.Read(content); err != nil && err.Error() != "EOF" {
		t.Fatalf("reading entry content: %v", err)
	}
}

// Scenario S5 — download of a missing name: the stream closes with no
// archive bytes written.
func TestServeMissingNameClosesWithoutBytes(t *testing.T) {
	f := files.New()
	startServer(t, f, 27772)

	data, _ := requestArchive(t, 27772, "nope")
	if len(data) != 0 {
		t.Fatalf("expected zero bytes for a missing share, got %d bytes", len(data))
	}
}
