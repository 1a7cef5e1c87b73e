package supervisor

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/go-archive"

	"github.com/jdziat/firmware-jobs/pkg/core"
)

// ErrStagingExists is returned when a job id is already being staged or run.
var ErrStagingExists = errors.New("fwjobs: staging directory already exists")

// Stage unpacks or copies artifact into dir and returns the path of its
// single top-level entry. dir must not exist yet; it is created atomically
// so concurrent submissions for one id cannot share it. Archives are
// recognised by extension: .zip, .tar, .tar.gz and .tgz; anything else is
// copied as is. core.ErrMalformedSubmission is returned for unreadable
// archives, entries that would escape dir, and staged trees without
// exactly one top-level entry. The caller removes dir on error, except
// after ErrStagingExists.
func Stage(artifact, dir string) (string, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", err
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrStagingExists, dir)
		}
		return "", err
	}

	var err error
	switch name := strings.ToLower(artifact); {
	case strings.HasSuffix(name, ".zip"):
		err = unzip(artifact, dir)
	case strings.HasSuffix(name, ".tar"), strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		err = untarFile(artifact, dir)
	default:
		err = copyFile(artifact, filepath.Join(dir, filepath.Base(artifact)), 0o644)
	}
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) != 1 {
		return "", fmt.Errorf("%w: found %d", core.ErrMalformedSubmission, len(entries))
	}
	return filepath.Join(dir, entries[0].Name()), nil
}

// malformed marks archive errors that are not filesystem failures as a
// problem with the submission itself.
func malformed(err error) error {
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrMalformedSubmission, err)
}

// safeJoin resolves a zip entry name below dir.
func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	if target != dir && !strings.HasPrefix(target, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: entry %q escapes the staging directory", core.ErrMalformedSubmission, name)
	}
	return target, nil
}

func unzip(src, dir string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return malformed(fmt.Errorf("open zip: %w", err))
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := safeJoin(dir, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case mode.IsRegular():
			if err := extractZipFile(f, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return writeFile(target, rc, f.Mode().Perm())
}

// untarFile extracts a plain or compressed tarball. Compression is
// detected from the stream. Ownership from the archive is not applied.
func untarFile(src, dir string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := archive.Untar(file, dir, &archive.TarOptions{NoLchown: true}); err != nil {
		return malformed(err)
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeFile(dst, in, perm)
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
