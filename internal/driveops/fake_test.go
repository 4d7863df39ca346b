package driveops

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dabbu/dabbu-go/internal/drivepath"
	"github.com/dabbu/dabbu-go/internal/drives"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memTransfers is an in-memory multi-drive file tree implementing Transfers
// and Deleter. Keys are "drive:/full/path".
type memTransfers struct {
	t       *testing.T
	tempDir string
	files   map[string]string
	folders map[string]bool

	failDownload map[string]error
	failUpload   map[string]error
	failList     map[string]error

	// extra records appended to a folder's listing, keyed like failList.
	extra map[string][]drives.FileRecord

	downloads []string
	uploads   []string
	lists     []string
}

func newMemTransfers(t *testing.T) *memTransfers {
	t.Helper()

	return &memTransfers{
		t:            t,
		tempDir:      t.TempDir(),
		files:        make(map[string]string),
		folders:      make(map[string]bool),
		failDownload: make(map[string]error),
		failUpload:   make(map[string]error),
		failList:     make(map[string]error),
		extra:        make(map[string][]drives.FileRecord),
	}
}

func key(drive, p string) string {
	return drive + ":" + p
}

// put adds a file and all its parent folders.
func (m *memTransfers) put(drive, p, content string) {
	m.files[key(drive, p)] = content

	segs := drivepath.Split(p)
	for i := 1; i < len(segs); i++ {
		m.folders[key(drive, drivepath.Join(segs[:i]...))] = true
	}
}

func (m *memTransfers) List(_ context.Context, drive, folder string, onBatch BatchFunc) error {
	m.lists = append(m.lists, key(drive, folder))

	if err := m.failList[key(drive, folder)]; err != nil {
		return err
	}

	prefix := key(drive, folder)
	if folder != drivepath.Root {
		prefix += "/"
	}

	var folders, files []drives.FileRecord

	for k := range m.folders {
		if name, ok := directChild(k, prefix); ok {
			folders = append(folders, drives.FileRecord{Name: name, Kind: drives.KindFolder})
		}
	}

	for k := range m.files {
		if name, ok := directChild(k, prefix); ok {
			files = append(files, drives.FileRecord{Name: name, Kind: drives.KindFile})
		}
	}

	byName := func(recs []drives.FileRecord) {
		sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
	}
	byName(folders)
	byName(files)

	return onBatch(append(append(folders, files...), m.extra[key(drive, folder)]...))
}

func directChild(k, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(k, prefix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}

	return rest, true
}

func (m *memTransfers) Download(_ context.Context, drive, folder, name string) (*LocalCopy, error) {
	k := key(drive, drivepath.Join(folder, name))
	m.downloads = append(m.downloads, k)

	if err := m.failDownload[k]; err != nil {
		return nil, err
	}

	content, ok := m.files[k]
	if !ok {
		return nil, os.ErrNotExist
	}

	f, err := os.CreateTemp(m.tempDir, "dl-*")
	require.NoError(m.t, err)

	_, err = f.WriteString(content)
	require.NoError(m.t, err)
	require.NoError(m.t, f.Close())

	return &LocalCopy{Path: f.Name(), Temp: true}, nil
}

func (m *memTransfers) Upload(_ context.Context, localPath, drive, folder, name string) error {
	p := drivepath.Join(folder, name)
	m.uploads = append(m.uploads, key(drive, p))

	if err := m.failUpload[key(drive, p)]; err != nil {
		return err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}

	m.put(drive, p, string(data))

	return nil
}

func (m *memTransfers) Delete(_ context.Context, drive, folder, name string) error {
	k := key(drive, drivepath.Join(folder, name))
	if _, ok := m.files[k]; !ok {
		return os.ErrNotExist
	}

	delete(m.files, k)

	return nil
}

func (m *memTransfers) DeleteFolder(_ context.Context, drive, folder string) error {
	k := key(drive, folder)
	if !m.folders[k] {
		return os.ErrNotExist
	}

	for f := range m.files {
		if strings.HasPrefix(f, k+"/") {
			delete(m.files, f)
		}
	}

	for f := range m.folders {
		if f == k || strings.HasPrefix(f, k+"/") {
			delete(m.folders, f)
		}
	}

	return nil
}

// tempFiles returns the files left in the fake's temp dir.
func (m *memTransfers) tempFiles() []string {
	entries, err := os.ReadDir(m.tempDir)
	require.NoError(m.t, err)

	var names []string
	for _, e := range entries {
		names = append(names, filepath.Join(m.tempDir, e.Name()))
	}

	return names
}

// staticLookup is a drivepath.Lookup over fixed drives.
type staticLookup struct {
	current string
	paths   map[string]string
}

func (s staticLookup) CurrentDrive() string { return s.current }

func (s staticLookup) HasProvider(name string) bool {
	_, ok := s.paths[name]
	return ok
}

func (s staticLookup) CurrentPath(name string) string { return s.paths[name] }

func newTestResolver() *drivepath.Resolver {
	return drivepath.NewResolver(staticLookup{
		current: "c",
		paths:   map[string]string{"c": "/", "d": "/", "e": "/Home"},
	})
}

var errBoom = errors.New("boom")
