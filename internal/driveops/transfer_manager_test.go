package driveops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabbu/dabbu-go/internal/drivepath"
	"github.com/dabbu/dabbu-go/internal/drives"
	"github.com/dabbu/dabbu-go/internal/filesapi"
	"github.com/dabbu/dabbu-go/internal/provider"
	"github.com/dabbu/dabbu-go/internal/store"
)

const dataPrefix = "/files-api/v3/data/"

// fakeFilesAPI is an in-memory Files API server. Files are keyed by their
// full drive path; content is served from /content/<path>.
type fakeFilesAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	files       map[string][]byte
	methods     []string
	contentAuth []string
}

func newFakeFilesAPI(t *testing.T) *fakeFilesAPI {
	t.Helper()

	f := &fakeFilesAPI{t: t, files: make(map[string][]byte)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeFilesAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if rest, ok := strings.CutPrefix(r.URL.Path, "/content"); ok {
		f.contentAuth = append(f.contentAuth, r.Header.Get("Authorization"))

		data, found := f.files[rest]
		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Write(data)

		return
	}

	assert.Equal(f.t, "session-1", r.Header.Get("X-Credentials"))

	folder, name := f.parsePath(r)
	full := drivepath.Join(folder, name)
	f.methods = append(f.methods, r.Method)

	switch r.Method {
	case http.MethodGet:
		f.serveGet(w, r, folder, name, full)
	case http.MethodPost, http.MethodPut:
		if _, exists := f.files[full]; exists && r.Method == http.MethodPost {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"error":{"code":409,"reason":"conflict","message":"exists"}}`)

			return
		}

		file, _, err := r.FormFile("content")
		require.NoError(f.t, err)
		defer file.Close()

		data, err := io.ReadAll(file)
		require.NoError(f.t, err)

		f.files[full] = data
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		delete(f.files, full)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeFilesAPI) parsePath(r *http.Request) (folder, name string) {
	rest := strings.TrimPrefix(r.URL.EscapedPath(), dataPrefix)
	encFolder, encName, _ := strings.Cut(rest, "/")

	folder, err := url.PathUnescape(encFolder)
	require.NoError(f.t, err)

	name, err = url.PathUnescape(encName)
	require.NoError(f.t, err)

	return folder, name
}

func (f *fakeFilesAPI) serveGet(w http.ResponseWriter, r *http.Request, folder, name, full string) {
	if r.URL.Query().Get("exportType") == "view" {
		var content []map[string]any

		for p := range f.files {
			segs := drivepath.Split(p)
			if drivepath.Join(segs[:len(segs)-1]...) == folder {
				content = append(content, map[string]any{"name": segs[len(segs)-1], "kind": "file", "path": p})
			}
		}

		json.NewEncoder(w).Encode(map[string]any{"content": content})

		return
	}

	if strings.HasSuffix(name, ".dir") {
		fmt.Fprintf(w, `{"content":{"name":%q,"kind":"folder"}}`, name)
		return
	}

	if strings.HasSuffix(name, ".nouri") {
		fmt.Fprintf(w, `{"content":{"name":%q,"kind":"file"}}`, name)
		return
	}

	if _, ok := f.files[full]; !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"reason":"notFound","message":"no such file"}}`)

		return
	}

	fmt.Fprintf(w, `{"content":{"name":%q,"kind":"file","contentUri":%q}}`, name, f.srv.URL+"/content"+full)
}

// countingRefresher records EnsureFresh calls.
type countingRefresher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (c *countingRefresher) EnsureFresh(_ context.Context, drive string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, drive)

	return c.err
}

type testEnv struct {
	tm      *TransferManager
	reg     *drives.Registry
	tokens  *countingRefresher
	tempDir string
	local   string
}

// newTestEnv wires a TransferManager with drives "g" (googledrive, remote),
// "k" (knowledge, read-only) and "h" (harddrive rooted in a temp dir).
func newTestEnv(t *testing.T, baseURL string) *testEnv {
	t.Helper()

	reg := drives.NewRegistry(store.NewMemoryStore(nil))

	require.NoError(t, reg.Create("g", provider.GoogleDrive))
	require.NoError(t, reg.SetAuth("g", drives.Auth{
		AccessToken:  "Bearer provider-token",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
	}))

	require.NoError(t, reg.Create("k", provider.Knowledge))

	local := t.TempDir()
	require.NoError(t, reg.Create("h", provider.HardDrive))
	require.NoError(t, reg.Set("h", "fields.basePath", local))

	tokens := &countingRefresher{}
	tempDir := filepath.Join(t.TempDir(), "staging")
	client := filesapi.NewClient(baseURL+dataPrefix, nil, "session-1", "", discardLogger())

	return &testEnv{
		tm:      NewTransferManager(reg, provider.Default(), client, tokens, tempDir, discardLogger()),
		reg:     reg,
		tokens:  tokens,
		tempDir: tempDir,
		local:   local,
	}
}

func TestList_FollowsNextSetToken(t *testing.T) {
	var tokens []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("nextSetToken")
		tokens = append(tokens, tok)

		switch tok {
		case "":
			fmt.Fprint(w, `{"content":[{"name":"1a"},{"name":"1b"}],"nextSetToken":"p2"}`)
		case "p2":
			fmt.Fprint(w, `{"content":[{"name":"2a"}],"nextSetToken":"p3"}`)
		case "p3":
			fmt.Fprint(w, `{"content":[{"name":"3a"}]}`)
		default:
			t.Errorf("unexpected token %q", tok)
		}
	}))
	t.Cleanup(srv.Close)

	env := newTestEnv(t, srv.URL)

	var batches [][]string

	err := env.tm.List(context.Background(), "g", "/Docs", func(records []drives.FileRecord) error {
		var names []string
		for _, r := range records {
			names = append(names, r.Name)
		}

		batches = append(batches, names)

		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"1a", "1b"}, {"2a"}, {"3a"}}, batches)
	assert.Equal(t, []string{"", "p2", "p3"}, tokens)
	assert.Equal(t, []string{"g", "g", "g"}, env.tokens.calls, "token checked before every page")
}

func TestList_PageErrorKeepsDeliveredBatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("nextSetToken") == "" {
			fmt.Fprint(w, `{"content":[{"name":"first"}],"nextSetToken":"p2"}`)
			return
		}

		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	env := newTestEnv(t, srv.URL)

	batches := 0
	err := env.tm.List(context.Background(), "g", "/", func([]drives.FileRecord) error {
		batches++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, batches)
}

func TestList_BatchErrorStops(t *testing.T) {
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		fmt.Fprint(w, `{"content":[],"nextSetToken":"more"}`)
	}))
	t.Cleanup(srv.Close)

	env := newTestEnv(t, srv.URL)

	err := env.tm.List(context.Background(), "g", "/", func([]drives.FileRecord) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestList_TokenRefreshFailureAborts(t *testing.T) {
	env := newTestEnv(t, "http://unused")
	env.tokens.err = errBoom

	err := env.tm.List(context.Background(), "g", "/", func([]drives.FileRecord) error { return nil })
	assert.ErrorIs(t, err, errBoom)
}

func TestRemote_UploadDownloadRoundTrip(t *testing.T) {
	api := newFakeFilesAPI(t)
	env := newTestEnv(t, api.srv.URL)

	content := []byte("round trip \x00\x01\xff bytes")
	src := filepath.Join(t.TempDir(), "src.bin")
	require.NoError(t, os.WriteFile(src, content, 0o600))

	ctx := context.Background()
	require.NoError(t, env.tm.Upload(ctx, src, "g", "/Docs", "file.bin"))

	lc, err := env.tm.Download(ctx, "g", "/Docs", "file.bin")
	require.NoError(t, err)
	assert.True(t, lc.Temp)
	assert.Equal(t, env.tempDir, filepath.Dir(lc.Path))

	got, err := os.ReadFile(lc.Path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NoError(t, lc.Cleanup())
	assert.NoFileExists(t, lc.Path)

	assert.Equal(t, []string{"Bearer provider-token"}, api.contentAuth, "content fetch carries provider credentials")
}

func TestRemote_UploadExistingUpdates(t *testing.T) {
	api := newFakeFilesAPI(t)
	env := newTestEnv(t, api.srv.URL)
	api.files["/a.txt"] = []byte("old")

	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o600))

	require.NoError(t, env.tm.Upload(context.Background(), src, "g", "/", "a.txt"))
	assert.Equal(t, []byte("new"), api.files["/a.txt"])
	assert.Equal(t, []string{http.MethodPost, http.MethodPut}, api.methods)
}

func TestRemote_DownloadFolderFails(t *testing.T) {
	api := newFakeFilesAPI(t)
	env := newTestEnv(t, api.srv.URL)

	_, err := env.tm.Download(context.Background(), "g", "/", "photos.dir")
	assert.ErrorIs(t, err, ErrIsFolder)
}

func TestRemote_DownloadWithoutContentURI(t *testing.T) {
	api := newFakeFilesAPI(t)
	env := newTestEnv(t, api.srv.URL)

	_, err := env.tm.Download(context.Background(), "g", "/", "x.nouri")
	assert.ErrorIs(t, err, ErrInvalidResource)
}

func TestRemote_DownloadContentFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/content") {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		fmt.Fprintf(w, `{"content":{"name":"a","kind":"file","contentUri":"http://%s/content/a"}}`, r.Host)
	}))
	t.Cleanup(srv.Close)

	env := newTestEnv(t, srv.URL)

	_, err := env.tm.Download(context.Background(), "g", "/", "a")

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "download", te.Op)
	assert.FileExists(t, te.Partial)
}

func TestRemote_Delete(t *testing.T) {
	api := newFakeFilesAPI(t)
	env := newTestEnv(t, api.srv.URL)
	api.files["/gone.txt"] = []byte("x")

	require.NoError(t, env.tm.Delete(context.Background(), "g", "/", "gone.txt"))
	assert.NotContains(t, api.files, "/gone.txt")
}

func TestKnowledge_ReadOnly(t *testing.T) {
	env := newTestEnv(t, "http://unused")

	src := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	assert.ErrorIs(t, env.tm.Upload(context.Background(), src, "k", "/", "f"), ErrReadOnly)
	assert.ErrorIs(t, env.tm.Delete(context.Background(), "k", "/", "f"), ErrReadOnly)
	assert.ErrorIs(t, env.tm.DeleteFolder(context.Background(), "k", "/x"), ErrReadOnly)
}

func TestLocal_DownloadReturnsRealPath(t *testing.T) {
	env := newTestEnv(t, "http://unused")
	require.NoError(t, os.WriteFile(filepath.Join(env.local, "a.txt"), []byte("A"), 0o600))

	lc, err := env.tm.Download(context.Background(), "h", "/", "a.txt")
	require.NoError(t, err)
	assert.False(t, lc.Temp)
	assert.Equal(t, filepath.Join(env.local, "a.txt"), lc.Path)

	require.NoError(t, lc.Cleanup())
	assert.FileExists(t, lc.Path, "cleanup never removes a drive's own file")
	assert.Empty(t, env.tokens.calls)
}

func TestLocal_DownloadFolderFails(t *testing.T) {
	env := newTestEnv(t, "http://unused")
	require.NoError(t, os.Mkdir(filepath.Join(env.local, "sub"), 0o755))

	_, err := env.tm.Download(context.Background(), "h", "/", "sub")
	assert.ErrorIs(t, err, ErrIsFolder)
}

func TestLocal_ListSingleBatch(t *testing.T) {
	env := newTestEnv(t, "http://unused")
	require.NoError(t, os.WriteFile(filepath.Join(env.local, "b.txt"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(env.local, "a"), 0o755))

	batches := 0
	var names []string

	require.NoError(t, env.tm.List(context.Background(), "h", "/", func(records []drives.FileRecord) error {
		batches++
		for _, r := range records {
			names = append(names, r.Name)
		}

		return nil
	}))

	assert.Equal(t, 1, batches)
	assert.Equal(t, []string{"a", "b.txt"}, names)
}

func TestLocal_MissingBasePath(t *testing.T) {
	env := newTestEnv(t, "http://unused")
	require.NoError(t, env.reg.Create("h2", provider.HardDrive))

	_, err := env.tm.ListAll(context.Background(), "h2", "/")
	assert.Error(t, err)
}

func TestCopy_LocalToRemoteAndBack(t *testing.T) {
	api := newFakeFilesAPI(t)
	env := newTestEnv(t, api.srv.URL)

	require.NoError(t, os.MkdirAll(filepath.Join(env.local, "Src", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.local, "Src", "a.txt"), []byte("A"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(env.local, "Src", "sub", "b.txt"), []byte("B"), 0o600))

	resolver := drivepath.NewResolver(env.reg)
	copier := NewCopier(env.tm, resolver, discardLogger())

	report, err := copier.Copy(context.Background(), "h:/Src/", "g:/Backup/", nil)
	require.NoError(t, err)
	assert.Len(t, report.Succeeded, 2)
	assert.Equal(t, []byte("A"), api.files["/Backup/a.txt"])
	assert.Equal(t, []byte("B"), api.files["/Backup/sub/b.txt"])

	report, err = copier.Copy(context.Background(), "g:/Backup/sub/b.txt", "h:/Restored/", nil)
	require.NoError(t, err)
	require.Empty(t, report.Failed)

	got, err := os.ReadFile(filepath.Join(env.local, "Restored", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "B", string(got))

	entries, err := os.ReadDir(env.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged downloads removed")
}

func TestUnknownDrive(t *testing.T) {
	env := newTestEnv(t, "http://unused")

	_, err := env.tm.Stat(context.Background(), "nope", "/", "x")

	var unknown *drives.UnknownDriveError
	assert.ErrorAs(t, err, &unknown)
}

func TestCopy_RemoteNameCannotEscapeLocalDrive(t *testing.T) {
	var srv *httptest.Server

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/content/ok":
			fmt.Fprint(w, "ok")
		case r.URL.Query().Get("exportType") == "view":
			fmt.Fprint(w, `{"content":[
				{"name":"../../escape.txt","kind":"file","path":"/Docs/../../escape.txt"},
				{"name":"ok.txt","kind":"file","path":"/Docs/ok.txt"}]}`)
		case strings.HasSuffix(r.URL.EscapedPath(), "/ok.txt"):
			fmt.Fprintf(w, `{"content":{"name":"ok.txt","kind":"file","contentUri":%q}}`, srv.URL+"/content/ok")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	env := newTestEnv(t, srv.URL)

	report, err := NewCopier(env.tm, drivepath.NewResolver(env.reg), discardLogger()).
		Copy(context.Background(), "g:/Docs/", "h:/In/", nil)
	require.NoError(t, err)

	require.Len(t, report.Succeeded, 1)
	assert.Equal(t, "h:/In/ok.txt", report.Succeeded[0].To)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, ErrUnsafeName)

	assert.FileExists(t, filepath.Join(env.local, "In", "ok.txt"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(env.local), "escape.txt"))
}
