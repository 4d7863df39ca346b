package localdisk

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabbu/dabbu-go/internal/drives"
)

func newTestDisk() *Disk {
	return NewDisk(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestList_FoldersFirstThenAlphabetical(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Docs", "b.txt"), "bb")
	writeFile(t, filepath.Join(root, "Docs", "a.md"), "a")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Docs", "zeta"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Docs", "alpha"), 0o755))

	records, err := newTestDisk().List(root, "/Docs")
	require.NoError(t, err)

	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Name)
	}

	assert.Equal(t, []string{"alpha", "zeta", "a.md", "b.txt"}, names)

	assert.Equal(t, drives.KindFolder, records[0].Kind)
	assert.Equal(t, "/Docs/alpha", records[0].Path)

	b := records[3]
	assert.Equal(t, drives.KindFile, b.Kind)
	assert.Equal(t, int64(2), b.Size)
	assert.True(t, strings.HasPrefix(b.MimeType, "text/plain"))
	assert.True(t, strings.HasPrefix(b.ContentURI, "file://"))
	assert.True(t, strings.HasSuffix(b.ContentURI, "/Docs/b.txt"))
}

func TestList_MissingFolder(t *testing.T) {
	_, err := newTestDisk().List(t.TempDir(), "/nope")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestList_NoBasePath(t *testing.T) {
	_, err := newTestDisk().List("", "/")
	assert.ErrorIs(t, err, ErrNoBasePath)
}

func TestStat(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.bin"), "12345")

	rec, err := newTestDisk().Stat(root, "/", "x.bin")
	require.NoError(t, err)
	assert.Equal(t, "x.bin", rec.Name)
	assert.Equal(t, "/x.bin", rec.Path)
	assert.Equal(t, int64(5), rec.Size)
	assert.Equal(t, defaultMimeType, rec.MimeType)

	_, err = newTestDisk().Stat(root, "/", "missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCopyIn_CreatesParents(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(t.TempDir(), "src.txt")
	writeFile(t, src, "copied bytes")

	require.NoError(t, newTestDisk().CopyIn(src, root, "/New/Deep", "out.txt"))

	data, err := os.ReadFile(filepath.Join(root, "New", "Deep", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "copied bytes", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "New", "Deep"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestCopyIn_Overwrites(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "f.txt"), "old content")

	src := filepath.Join(t.TempDir(), "src.txt")
	writeFile(t, src, "new")

	require.NoError(t, newTestDisk().CopyIn(src, root, "/", "f.txt"))

	data, err := os.ReadFile(filepath.Join(root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestCopyIn_MissingSource(t *testing.T) {
	err := newTestDisk().CopyIn(filepath.Join(t.TempDir(), "nope"), t.TempDir(), "/", "x")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDelete(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "f.txt"), "x")
	writeFile(t, filepath.Join(root, "a", "b", "g.txt"), "y")

	d := newTestDisk()
	require.NoError(t, d.Delete(root, "/a", "f.txt"))
	assert.NoFileExists(t, filepath.Join(root, "a", "f.txt"))

	require.NoError(t, d.DeleteFolder(root, "/a"))
	assert.NoDirExists(t, filepath.Join(root, "a"))
	assert.DirExists(t, root)

	assert.ErrorIs(t, d.DeleteFolder(root, "/"), ErrRootFolder)
	assert.ErrorIs(t, d.DeleteFolder(root, "/gone"), os.ErrNotExist)
	assert.ErrorIs(t, d.Delete(root, "/", "gone"), os.ErrNotExist)
}

func TestRealPath(t *testing.T) {
	p, err := newTestDisk().RealPath("/srv/data", "/Docs", "x.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/data", "Docs", "x.txt"), p)
}

func TestRealPath_StaysUnderRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	d := newTestDisk()

	for _, tc := range []struct{ folder, name string }{
		{"/Docs", "../../escape.txt"},
		{"/", ".."},
		{"/../outside", ""},
	} {
		_, err := d.RealPath(root, tc.folder, tc.name)
		assert.ErrorIs(t, err, ErrOutsideRoot, "%s + %s", tc.folder, tc.name)
	}

	p, err := d.RealPath(root, "/Docs/../Other", "..inner")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Other", "..inner"), p)
}

func TestCopyIn_RefusesEscapingName(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	require.NoError(t, os.Mkdir(root, 0o755))

	src := filepath.Join(t.TempDir(), "src.txt")
	writeFile(t, src, "data")

	err := newTestDisk().CopyIn(src, root, "/In", "../../escape.txt")
	require.ErrorIs(t, err, ErrOutsideRoot)
	assert.NoFileExists(t, filepath.Join(base, "escape.txt"))
}
