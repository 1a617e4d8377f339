package wire

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// Property 6 — transfer round-trip (file).
func TestArchiveRoundTripFile(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "hello.txt")
	if err := os.WriteFile(srcPath, []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteArchive(&buf, srcPath, "hello.txt"); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}

	destDir := t.TempDir()
	if err := ExtractArchive(&buf, destDir); err != nil {
		t.Fatalf("ExtractArchive: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(destDir, "hello.txt"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(got) != "hi\n" {
		t.Fatalf("expected %q, got %q", "hi\n", got)
	}
}

// Property 7 — transfer round-trip (directory).
func TestArchiveRoundTripDirectory(t *testing.T) {
	srcRoot := t.TempDir()
	tree := filepath.Join(srcRoot, "project")
	if err := os.MkdirAll(filepath.Join(tree, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"README.md":     "readme contents\n",
		"sub/nested.go": "package sub\n",
	}
	for rel, content := range files {
		if err := os.WriteFile(filepath.Join(tree, rel), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := WriteArchive(&buf, tree, "project"); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}

	destDir := t.TempDir()
	if err := ExtractArchive(&buf, destDir); err != nil {
		t.Fatalf("ExtractArchive: %v", err)
	}

	for rel, content := range files {
		got, err := os.ReadFile(filepath.Join(destDir, "project", rel))
		if err != nil {
			t.Fatalf("reading %s: %v", rel, err)
		}
		if string(got) != content {
			t.Fatalf("%s: expected %q, got %q", rel, content, got)
		}
	}
}

// Property 9 — archive safety: absolute paths and ".." components are
// rejected, and no files are written outside the destination directory.
func TestExtractArchiveRejectsUnsafePaths(t *testing.T) {
	cases := []struct {
		name  string
		entry string
	}{
		{"absolute path", "/etc/passwd"},
		{"parent traversal", "../../escaped.txt"},
		{"embedded traversal", "sub/../../escaped.txt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeRawTarEntry(t, &buf, tc.entry, "owned")

			destDir := t.TempDir()
			err := ExtractArchive(&buf, destDir)
			if err == nil {
				t.Fatalf("expected ExtractArchive to reject %q", tc.entry)
			}

			entries, _ := os.ReadDir(destDir)
			if len(entries) != 0 {
				t.Fatalf("expected no files written under destDir, found %v", entries)
			}
			if _, statErr := os.Stat(filepath.Join(filepath.Dir(destDir), "escaped.txt")); statErr == nil {
				t.Fatalf("file escaped destination directory")
			}
		})
	}
}

// writeRawTarEntry builds a minimal single-entry tar archive directly,
// bypassing WriteArchive, so the entry name can be an attacker-controlled
// path the server would never legitimately emit.
func writeRawTarEntry(t *testing.T, buf *bytes.Buffer, name, content string) {
	t.Helper()
	tw := tar.NewWriter(buf)
	hdr := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
}
