package wire

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// WriteArchive streams fsPath (a file or a directory) as a tar archive,
// with every entry named under rootName: a directory produces entries
// rooted at rootName; a single file produces one entry named rootName.
func WriteArchive(w io.Writer, fsPath, rootName string) error {
	tw := tar.NewWriter(w)
	info, err := os.Lstat(fsPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", fsPath, err)
	}
	if info.IsDir() {
		err = writeDirArchive(tw, fsPath, rootName)
	} else {
		err = writeFileEntry(tw, fsPath, rootName, info)
	}
	if err != nil {
		return err
	}
	return tw.Close()
}

func writeDirArchive(tw *tar.Writer, root, rootName string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		entryName := rootName
		if rel != "." {
			entryName = path.Join(rootName, filepath.ToSlash(rel))
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = entryName + "/"
			return tw.WriteHeader(hdr)
		}
		return writeFileEntry(tw, p, entryName, info)
	})
}

// writeFileEntry emits a regular-file tar entry for fsPath. It re-stats
// fsPath following symlinks rather than trusting the passed-in info,
// since the content written below (via os.Open, which also follows
// symlinks) must match the header's size: building the header from an
// Lstat'd symlink would claim a 0-byte entry while copying the full
// target, corrupting the tar stream.
func writeFileEntry(tw *tar.Writer, fsPath, entryName string, info fs.FileInfo) error {
	if info.Mode()&fs.ModeSymlink != 0 {
		resolved, err := os.Stat(fsPath)
		if err != nil {
			return fmt.Errorf("stat %s: %w", fsPath, err)
		}
		if resolved.IsDir() {
			return fmt.Errorf("%s: symlink to a directory is not supported", fsPath)
		}
		info = resolved
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = entryName
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(fsPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", fsPath, err)
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// ErrUnsafeArchivePath is returned by ExtractArchive when a tar entry
// would escape the destination directory.
var ErrUnsafeArchivePath = fmt.Errorf("unsafe path")

// ExtractArchive unpacks a tar archive read from r under destDir. Entry
// paths that are absolute or contain a ".." component are rejected; no
// files are written for the remainder of the archive once a violation is
// found.
func ExtractArchive(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create dir for %s: %w", target, err)
			}
			if err := writeRegularFile(target, tr); err != nil {
				return err
			}
		default:
			// Ignore symlinks, devices, etc: the server only ever emits
			// directory and regular file entries.
		}
	}
}

func writeRegularFile(target string, r io.Reader) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

// safeJoin rejects absolute paths and ".." components before joining
// name onto destDir. The ".." check runs on the name as written, so a
// component that path.Clean would fold away is still rejected.
func safeJoin(destDir, name string) (string, error) {
	slashed := filepath.ToSlash(name)
	cleaned := path.Clean(slashed)
	if path.IsAbs(cleaned) {
		return "", ErrUnsafeArchivePath
	}
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", ErrUnsafeArchivePath
		}
	}
	return filepath.Join(destDir, filepath.FromSlash(cleaned)), nil
}
