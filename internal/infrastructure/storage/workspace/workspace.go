// Package workspace gives the pipeline its view of the working directory:
// a fixed layout of result directories and the file moves between them.
// All access goes through an afero.Fs rooted at the working directory, so the
// same code runs against the OS or an in-memory filesystem.
package workspace

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/dockpipe/pkg/errors"
)

// Layout names the result directories under the working directory.
type Layout struct {
	Logs      string
	Outputs   string
	Results   string
	Backup    string
	Inputs    string
	Complexes string
}

// DefaultLayout returns the standard directory names.
func DefaultLayout() Layout {
	return Layout{
		Logs:      "logs",
		Outputs:   "outputs",
		Results:   "results",
		Backup:    "backup",
		Inputs:    "inputs",
		Complexes: "complexes",
	}
}

// Dirs returns every layout directory.
func (l Layout) Dirs() []string {
	return []string{l.Logs, l.Outputs, l.Results, l.Backup, l.Inputs, l.Complexes}
}

// Workspace is a working directory plus its layout.
type Workspace struct {
	fs     afero.Fs
	root   string
	layout Layout
	log    logging.Logger
}

// New returns a Workspace on the OS filesystem rooted at root.
func New(root string, layout Layout, log logging.Logger) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeWorkspace, "resolve working directory")
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeWorkspace, "open working directory").WithDetail(abs)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeWorkspace, "working directory is not a directory").WithDetail(abs)
	}
	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), abs), abs, layout, log), nil
}

// NewWithFs returns a Workspace over an existing filesystem.  root is the OS
// path external programs should run in; it may be empty for in-memory use.
func NewWithFs(fs afero.Fs, root string, layout Layout, log logging.Logger) *Workspace {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Workspace{fs: fs, root: root, layout: layout, log: log}
}

func (w *Workspace) Fs() afero.Fs { return w.fs }

func (w *Workspace) Root() string { return w.root }

func (w *Workspace) Layout() Layout { return w.layout }

// Files returns the names of the regular files directly under dir ("" or "."
// for the root), sorted.
func (w *Workspace) Files(dir string) ([]string, error) {
	if dir == "" {
		dir = "."
	}
	infos, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeWorkspace, "list directory").WithDetail(dir)
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		if fi.Mode().IsRegular() {
			names = append(names, fi.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// FilesMatching is Files filtered by m.
func (w *Workspace) FilesMatching(dir string, m Matcher) ([]string, error) {
	names, err := w.Files(dir)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if m(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Matcher selects file names.
type Matcher func(name string) bool

// Suffix matches names ending in s.
func Suffix(s string) Matcher {
	return func(name string) bool { return strings.HasSuffix(name, s) }
}

// Prefix matches names starting with s.
func Prefix(s string) Matcher {
	return func(name string) bool { return strings.HasPrefix(name, s) }
}

// MoveMatching moves every root-level file selected by m into dest, creating
// dest when needed.  Files named in exclude are never moved.  A file whose
// destination already exists, or whose rename fails, is left in place and
// logged at debug level.  The error is non-nil only when dest cannot be
// created or the root cannot be listed.
func (w *Workspace) MoveMatching(m Matcher, dest string, exclude ...string) ([]string, error) {
	return w.move(m, dest, false, exclude)
}

// ReplaceMatching is MoveMatching that replaces existing destination files,
// so the root-level copy always wins.
func (w *Workspace) ReplaceMatching(m Matcher, dest string, exclude ...string) ([]string, error) {
	return w.move(m, dest, true, exclude)
}

func (w *Workspace) move(m Matcher, dest string, replace bool, exclude []string) ([]string, error) {
	if err := w.fs.MkdirAll(dest, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeWorkspace, "create directory").WithDetail(dest)
	}
	names, err := w.Files(".")
	if err != nil {
		return nil, err
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[e] = struct{}{}
	}

	var moved []string
	for _, name := range names {
		if _, ok := skip[name]; ok || !m(name) {
			continue
		}
		target := filepath.Join(dest, name)
		if exists, _ := afero.Exists(w.fs, target); exists {
			if !replace {
				w.log.Debug("destination exists, file left in place", logging.String("file", name), logging.String("dest", dest))
				continue
			}
			if err := w.fs.Remove(target); err != nil {
				w.log.Debug("cannot replace destination, file left in place", logging.String("file", name), logging.Err(err))
				continue
			}
		}
		if err := w.fs.Rename(name, target); err != nil {
			w.log.Debug("move failed, file left in place", logging.String("file", name), logging.Err(err))
			continue
		}
		moved = append(moved, name)
	}
	return moved, nil
}

// Copy copies src to dst, both relative to the root.
func (w *Workspace) Copy(src, dst string) error {
	in, err := w.fs.Open(src)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeWorkspace, "open copy source").WithDetail(src)
	}
	defer in.Close()

	out, err := w.fs.Create(dst)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeWorkspace, "create copy target").WithDetail(dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrap(err, errors.ErrCodeWorkspace, "copy file").WithDetail(src)
	}
	return out.Close()
}

// Remove deletes name.  A missing file is not an error.
func (w *Workspace) Remove(name string) error {
	if err := w.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrCodeWorkspace, "remove file").WithDetail(name)
	}
	return nil
}

// WriteFile writes data to name.
func (w *Workspace) WriteFile(name string, data []byte) error {
	if err := afero.WriteFile(w.fs, name, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeWorkspace, "write file").WithDetail(name)
	}
	return nil
}

// Exists reports whether name exists.
func (w *Workspace) Exists(name string) bool {
	ok, err := afero.Exists(w.fs, name)
	return err == nil && ok
}

// OSPath returns the OS path of a workspace-relative name.
func (w *Workspace) OSPath(name string) string {
	return filepath.Join(w.root, name)
}
