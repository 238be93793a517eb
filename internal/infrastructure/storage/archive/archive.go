// Package archive packs run artifacts into a zstd-compressed tar stream and
// unpacks them again.
package archive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"

	"github.com/turtacn/dockpipe/pkg/errors"
)

// Extension is appended to archive names.
const Extension = ".tar.zst"

// ParseLevel maps a level name to a zstd encoder level.  Unknown names map
// to zstd.SpeedDefault.
func ParseLevel(name string) zstd.EncoderLevel {
	switch strings.ToLower(name) {
	case "fastest":
		return zstd.SpeedFastest
	case "better":
		return zstd.SpeedBetterCompression
	case "best":
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Writer adds files from a filesystem to a compressed tar stream.
type Writer struct {
	fs afero.Fs
	zw *zstd.Encoder
	tw *tar.Writer
	n  int
}

// NewWriter starts an archive on w.
func NewWriter(fs afero.Fs, w io.Writer, level zstd.EncoderLevel) (*Writer, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "create zstd encoder")
	}
	return &Writer{fs: fs, zw: zw, tw: tar.NewWriter(zw)}, nil
}

// AddDir adds every regular file below dir, in lexical order.  A missing dir
// is skipped.
func (a *Writer) AddDir(dir string) error {
	if ok, _ := afero.DirExists(a.fs, dir); !ok {
		return nil
	}
	var files []string
	err := afero.Walk(a.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "walk directory").WithDetail(dir)
	}
	sort.Strings(files)
	for _, f := range files {
		if err := a.AddFile(f); err != nil {
			return err
		}
	}
	return nil
}

// AddFile adds one file under its relative path.
func (a *Writer) AddFile(path string) error {
	info, err := a.fs.Stat(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "stat file").WithDetail(path)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "build tar header").WithDetail(path)
	}
	hdr.Name = filepath.ToSlash(path)

	f, err := a.fs.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "open file").WithDetail(path)
	}
	defer f.Close()

	if err := a.tw.WriteHeader(hdr); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "write tar header").WithDetail(path)
	}
	if _, err := io.Copy(a.tw, f); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "write tar entry").WithDetail(path)
	}
	a.n++
	return nil
}

// Len returns the number of files written so far.
func (a *Writer) Len() int { return a.n }

// Close flushes the tar stream and the encoder.  It does not close the
// underlying writer.
func (a *Writer) Close() error {
	if err := a.tw.Close(); err != nil {
		a.zw.Close()
		return errors.Wrap(err, errors.ErrCodeStorageError, "close tar stream")
	}
	if err := a.zw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "close zstd stream")
	}
	return nil
}

// Create writes an archive of dirs to name on fs and returns the number of
// files archived.
func Create(fs afero.Fs, name string, level zstd.EncoderLevel, dirs ...string) (int, error) {
	if err := fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStorageError, "create archive directory")
	}
	out, err := fs.Create(name)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStorageError, "create archive").WithDetail(name)
	}
	aw, err := NewWriter(fs, out, level)
	if err != nil {
		out.Close()
		return 0, err
	}
	for _, d := range dirs {
		if err := aw.AddDir(d); err != nil {
			aw.Close()
			out.Close()
			return 0, err
		}
	}
	if err := aw.Close(); err != nil {
		out.Close()
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStorageError, "close archive").WithDetail(name)
	}
	return aw.Len(), nil
}

// List returns the entry names of an archive read from r.
func List(r io.Reader) ([]string, error) {
	var names []string
	err := Walk(r, func(hdr *tar.Header, _ io.Reader) error {
		names = append(names, hdr.Name)
		return nil
	})
	return names, err
}

// Walk calls fn for every entry of an archive read from r.
func Walk(r io.Reader, fn func(hdr *tar.Header, body io.Reader) error) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "create zstd decoder")
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "read tar entry")
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}
