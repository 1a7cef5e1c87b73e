package supervisor

import (
	"archive/tar"
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

type archiveEntry struct {
	Name string
	Body string
	Dir  bool
}

func writeZip(t *testing.T, entries ...archiveEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		name := e.Name
		if e.Dir {
			name += "/"
		}
		w, err := zw.Create(name)
		require.NoError(t, err)
		if !e.Dir {
			_, err = w.Write([]byte(e.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return path
}

func writeTarGz(t *testing.T, entries ...archiveEntry) string {
	t.Helper()
	return writeTarball(t, true, entries...)
}

func writeTar(t *testing.T, entries ...archiveEntry) string {
	t.Helper()
	return writeTarball(t, false, entries...)
}

func writeTarball(t *testing.T, compressed bool, entries ...archiveEntry) string {
	t.Helper()
	name := "upload.tar"
	if compressed {
		name += ".gz"
	}
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	var w io.Writer = f
	gz := gzip.NewWriter(f)
	if compressed {
		w = gz
	}
	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o644, Size: int64(len(e.Body)), Typeflag: tar.TypeReg}
		if e.Dir {
			hdr = &tar.Header{Name: e.Name + "/", Mode: 0o755, Typeflag: tar.TypeDir}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.Dir {
			_, err := tw.Write([]byte(e.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	if compressed {
		require.NoError(t, gz.Close())
	}
	return path
}

func writePlain(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
