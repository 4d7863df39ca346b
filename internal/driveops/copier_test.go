package driveops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabbu/dabbu-go/internal/drives"
)

func TestCopy_FolderIsolatesPerFileFailures(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/Src/a.txt", "A")
	m.put("c", "/Src/sub/b.txt", "B")
	m.failUpload["d:/Dst/sub/b.txt"] = errBoom

	var seen []Result

	report, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "c:/Src/", "d:/Dst/", func(r Result) { seen = append(seen, r) })
	require.NoError(t, err)

	require.Len(t, report.Succeeded, 1)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 2, report.Total())

	assert.Equal(t, "c:/Src/a.txt", report.Succeeded[0].From)
	assert.Equal(t, "d:/Dst/a.txt", report.Succeeded[0].To)
	assert.Equal(t, "c:/Src/sub/b.txt", report.Failed[0].From)
	assert.Equal(t, "d:/Dst/sub/b.txt", report.Failed[0].To)
	assert.ErrorIs(t, report.Failed[0].Err, errBoom)
	assert.Contains(t, report.Failed[0].String(), "c:/Src/sub/b.txt -> d:/Dst/sub/b.txt")

	assert.Equal(t, "A", m.files["d:/Dst/a.txt"])
	assert.Len(t, seen, 2)
	assert.Empty(t, m.tempFiles(), "temp copies removed")
}

func TestCopy_FolderDepthFirstInListingOrder(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/S/b.txt", "b")
	m.put("c", "/S/a/z.txt", "z")
	m.put("c", "/S/a/deep/y.txt", "y")
	m.put("c", "/S/c.txt", "c")

	report, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "c:/S/", "d:/", nil)
	require.NoError(t, err)
	assert.Empty(t, report.Failed)

	assert.Equal(t, []string{
		"d:/a/deep/y.txt",
		"d:/a/z.txt",
		"d:/b.txt",
		"d:/c.txt",
	}, m.uploads)
}

func TestCopy_SingleFileIntoFolderKeepsName(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/report.txt", "R")

	report, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "report.txt", "e:Archive/", nil)
	require.NoError(t, err)
	require.Len(t, report.Succeeded, 1)
	assert.Equal(t, "R", m.files["e:/Home/Archive/report.txt"])
}

func TestCopy_SingleFileExplicitName(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/report.txt", "R")

	_, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "c:/report.txt", "d:/renamed.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "R", m.files["d:/renamed.txt"])
}

func TestCopy_SingleFileToDriveRoot(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/x.bin", "X")

	_, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "x.bin", "d:", nil)
	require.NoError(t, err)
	assert.Equal(t, "X", m.files["d:/x.bin"])
}

func TestCopy_SingleFileFailureIsReported(t *testing.T) {
	m := newMemTransfers(t)

	report, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "missing.txt", "d:", nil)
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, os.ErrNotExist)
}

func TestCopy_Glob(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/Docs/a.txt", "a")
	m.put("c", "/Docs/b.md", "b")
	m.put("c", "/Docs/notes.txt", "n")
	m.put("c", "/Docs/txtdir.txt/inner.md", "i")

	report, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "c:/Docs/*.txt", "d:/Out/", nil)
	require.NoError(t, err)
	assert.Len(t, report.Succeeded, 3)

	assert.Contains(t, m.files, "d:/Out/a.txt")
	assert.Contains(t, m.files, "d:/Out/notes.txt")
	assert.Contains(t, m.files, "d:/Out/txtdir.txt/inner.md")
	assert.NotContains(t, m.files, "d:/Out/b.md")
}

func TestCopy_GlobNoMatches(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/Docs/a.md", "a")

	_, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "c:/Docs/*.txt", "d:/", nil)
	assert.ErrorIs(t, err, ErrNothingToProcess)
}

func TestCopy_GlobInFolderSegmentRejected(t *testing.T) {
	m := newMemTransfers(t)

	_, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "c:/D*/a.txt", "d:/", nil)
	assert.ErrorIs(t, err, ErrUnsupportedGlob)
}

func TestCopy_ListingErrorAbortsWithPartialReport(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/S/a/x.txt", "x")
	m.put("c", "/S/b/y.txt", "y")
	m.failList["c:/S/b"] = errBoom

	report, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "c:/S/", "d:/", nil)
	require.ErrorIs(t, err, errBoom)
	assert.Len(t, report.Succeeded, 1, "work done before the failure is kept")
}

func TestCopy_RemovesPartialDownload(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/a.txt", "a")

	partial := filepath.Join(t.TempDir(), "partial")
	require.NoError(t, os.WriteFile(partial, []byte("par"), 0o600))

	m.failDownload["c:/a.txt"] = &TransportError{Op: "download", Path: "/a.txt", Partial: partial, Err: errBoom}

	report, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "c:/a.txt", "d:", nil)
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)

	var te *TransportError
	assert.True(t, errors.As(report.Failed[0].Err, &te))
	assert.NoFileExists(t, partial)
}

func TestCopy_IntoItselfRejected(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/A/x.txt", "x")

	_, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "c:/A/", "c:/A/B/", nil)
	assert.ErrorIs(t, err, ErrCopyIntoSelf)
	assert.Empty(t, m.uploads)
}

func TestCopy_GlobFolderIntoItselfRejected(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/sub/f.txt", "f")
	m.put("c", "/same.txt", "s")

	report, err := NewCopier(m, newTestResolver(), discardLogger()).
		Copy(context.Background(), "c:/s*", "c:/sub/", nil)
	require.NoError(t, err)

	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, ErrCopyIntoSelf)
	assert.Equal(t, "c:/sub", report.Failed[0].From)
	assert.Equal(t, "c:/sub/sub", report.Failed[0].To)

	require.Len(t, report.Succeeded, 1)
	assert.Equal(t, []string{"c:/sub/same.txt"}, m.uploads)
	assert.NotContains(t, m.files, "c:/sub/sub/f.txt")
}

func TestCopy_UnsafeListedNamesFail(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/Docs/ok.txt", "ok")
	m.extra["c:/Docs"] = []drives.FileRecord{
		{Name: "../../escape.txt", Kind: drives.KindFile},
		{Name: "a/b", Kind: drives.KindFolder},
		{Name: "..", Kind: drives.KindFolder},
		{Name: "", Kind: drives.KindFile},
	}

	for _, from := range []string{"c:/Docs/", "c:/Docs/*"} {
		t.Run(from, func(t *testing.T) {
			m.uploads = nil
			m.lists = nil

			report, err := NewCopier(m, newTestResolver(), discardLogger()).
				Copy(context.Background(), from, "d:/In/", nil)
			require.NoError(t, err)

			require.Len(t, report.Succeeded, 1)
			assert.Equal(t, "d:/In/ok.txt", report.Succeeded[0].To)

			require.Len(t, report.Failed, 4)
			for _, res := range report.Failed {
				assert.ErrorIs(t, res.Err, ErrUnsafeName)
			}

			assert.Equal(t, []string{"d:/In/ok.txt"}, m.uploads)
			assert.Equal(t, []string{"c:/Docs"}, m.lists, "unsafe folders are not walked")
		})
	}
}

func TestCheckName(t *testing.T) {
	for _, name := range []string{"a.txt", "..hidden", "a..b", "名前"} {
		assert.NoError(t, checkName(name), name)
	}

	for _, name := range []string{"", ".", "..", "a/b", "../x", "/"} {
		assert.ErrorIs(t, checkName(name), ErrUnsafeName, name)
	}
}

func TestCopy_CanceledContextStopsWalk(t *testing.T) {
	m := newMemTransfers(t)
	m.put("c", "/S/a.txt", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCopier(m, newTestResolver(), discardLogger()).Copy(ctx, "c:/S/", "d:/", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.uploads)
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "c:/a -> d:/a", Result{From: "c:/a", To: "d:/a"}.String())
	assert.Equal(t, "c:/a: boom", Result{From: "c:/a", Err: errBoom}.String())
	assert.Equal(t, "c:/a", Result{From: "c:/a"}.String())
}
