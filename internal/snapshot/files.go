package snapshot

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oscarsierraproject/covid19pl/internal/model"
)

const (
	// Marker identifies snapshot files inside a workspace directory.
	Marker     = "COVID19"
	filePrefix = "COVID19_PL_"
	fileExt    = ".json"
)

// ErrSnapshotExists is returned by Save when the day's file is already on disk.
var ErrSnapshotExists = eris.New("snapshot already exists")

// FileName returns the snapshot file name for a gathering day.
func FileName(date time.Time) string {
	return filePrefix + date.Format("2006-01-02") + fileExt
}

// FileStore keeps one immutable snapshot file per gathering day in Dir.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the workspace directory.
func (s *FileStore) Dir() string { return s.dir }

// List returns the snapshot file paths in lexical (hence chronological) order.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: read dir %s", s.dir)
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.Contains(name, Marker) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Load decodes a single snapshot file.
func (s *FileStore) Load(path string) (*model.Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: read %s", path)
	}
	lib, err := Decode(data)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: load %s", filepath.Base(path))
	}
	return lib, nil
}

// LoadAll decodes every snapshot file in the workspace, in file order.
func (s *FileStore) LoadAll() ([]*model.Library, error) {
	paths, err := s.List()
	if err != nil {
		return nil, err
	}

	libs := make([]*model.Library, 0, len(paths))
	for _, p := range paths {
		zap.L().Debug("loading snapshot", zap.String("file", p))
		lib, err := s.Load(p)
		if err != nil {
			return nil, err
		}
		libs = append(libs, lib)
	}
	return libs, nil
}

// Save writes the library to the file of its run day and returns the path.
// The write goes through a temp file and a rename, so readers never see a
// partial snapshot. Existing files are kept unless overwrite is set.
func (s *FileStore) Save(lib *model.Library, overwrite bool) (string, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		return "", eris.Wrapf(err, "snapshot: workspace %s", s.dir)
	}
	if !info.IsDir() {
		return "", eris.Errorf("snapshot: workspace %s is not a directory", s.dir)
	}

	path := filepath.Join(s.dir, FileName(lib.Date))
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", eris.Wrapf(ErrSnapshotExists, "snapshot: %s", filepath.Base(path))
		}
	}

	data, err := Encode(lib)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".snapshot-*.tmp")
	if err != nil {
		return "", eris.Wrap(err, "snapshot: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", eris.Wrap(err, "snapshot: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrap(err, "snapshot: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", eris.Wrapf(err, "snapshot: rename to %s", path)
	}

	zap.L().Info("snapshot saved",
		zap.String("file", path),
		zap.Int("records", len(lib.Records)),
	)
	return path, nil
}
