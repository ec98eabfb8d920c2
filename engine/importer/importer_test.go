package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/asset"
	"github.com/Carmen-Shannon/oxypipe/engine/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoader returns the contents of the loaded file as a text Data result.
type fakeLoader struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	fail    atomic.Bool
}

func (l *fakeLoader) Load(ctx context.Context, req *asset.Request) ([]asset.Result, error) {
	l.calls.Add(1)
	if l.started != nil {
		l.started <- struct{}{}
	}
	if l.release != nil {
		<-l.release
	}
	if l.fail.Load() {
		return nil, errors.New("corrupt file")
	}
	f, err := req.Read(ctx)
	if err != nil {
		return nil, err
	}
	return []asset.Result{&asset.Data{MimeType: "text/plain", Value: string(f.Data)}}, nil
}

func newFakeImporter(t *testing.T, l *fakeLoader, options ...ImporterBuilderOption) Importer {
	t.Helper()
	reg := &asset.Importer{
		Name: "fake",
		Ext:  []string{"fake"},
		Mime: []string{"application/x-fake"},
		New:  func() (asset.Loader, error) { return l, nil },
	}
	imp := NewImporter(append([]ImporterBuilderOption{WithImporters(reg)}, options...)...)
	t.Cleanup(imp.Dispose)
	return imp
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func fakeFile(name, body string) *asset.File {
	return asset.NewFile(name, []byte(body))
}

type countingBlobStore struct {
	BlobStore
	revoked atomic.Int32
}

func (s *countingBlobStore) Revoke(url string) {
	s.revoked.Add(1)
	s.BlobStore.Revoke(url)
}

func TestImportAsset_ConcurrentCallsShareOneLoad(t *testing.T) {
	l := &fakeLoader{started: make(chan struct{}, 2), release: make(chan struct{})}
	imp := newFakeImporter(t, l)
	imp.RegisterFile("model.fake", fakeFile("model.fake", "mesh"), "", nil)

	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([][]asset.Result, 2)
	for n := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := imp.ImportPath(ctx, "model.fake", nil)
			assert.NoError(t, err)
			results[n] = res
		}()
		if n == 0 {
			<-l.started
		}
	}
	close(l.release)
	wg.Wait()

	assert.Equal(t, int32(1), l.calls.Load())
	require.Len(t, results[0], 1)
	require.Len(t, results[1], 1)
	assert.Same(t, &results[0][0], &results[1][0], "both calls receive the same slice")
	assert.Equal(t, "mesh", results[0][0].(*asset.Data).Value)
	assert.Len(t, imp.CachedAssets(), 1)
}

func TestImportAsset_CacheForceAndDispose(t *testing.T) {
	l := &fakeLoader{}
	imp := newFakeImporter(t, l)
	imp.RegisterFile("a.fake", fakeFile("a.fake", "v1"), "", nil)
	ctx := context.Background()

	first, err := imp.ImportPath(ctx, "a.fake", nil)
	require.NoError(t, err)
	again, err := imp.ImportPath(ctx, "a.fake", nil)
	require.NoError(t, err)
	assert.Same(t, first[0], again[0])
	assert.Equal(t, int32(1), l.calls.Load())

	_, err = imp.ImportPath(ctx, "a.fake", &asset.ImportOptions{ForceImport: true})
	require.NoError(t, err)
	assert.Equal(t, int32(2), l.calls.Load())

	other, err := imp.ImportPath(ctx, "a.fake", &asset.ImportOptions{QueryString: "v=2"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), l.calls.Load(), "different cache-key options load separately")

	other[0].Dispose()
	_, err = imp.ImportPath(ctx, "a.fake", &asset.ImportOptions{QueryString: "v=2"})
	require.NoError(t, err)
	assert.Equal(t, int32(4), l.calls.Load(), "disposed results are reimported")
}

func TestImportAsset_FailedLoadsAreNotCached(t *testing.T) {
	l := &fakeLoader{}
	l.fail.Store(true)
	imp := newFakeImporter(t, l)
	imp.RegisterFile("broken.fake", fakeFile("broken.fake", "x"), "", nil)

	var states []ImportFileState
	imp.OnImportFile(func(ev ImportFileEvent) { states = append(states, ev.State) })

	res, err := imp.ImportPath(context.Background(), "broken.fake", nil)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Contains(t, states, StateError)
	assert.NotContains(t, states, StateDone)

	l.fail.Store(false)
	res, err = imp.ImportPath(context.Background(), "broken.fake", nil)
	require.NoError(t, err)
	assert.Len(t, res, 1)
	assert.Equal(t, int32(2), l.calls.Load())
}

func TestImportPath_LoaderNotFound(t *testing.T) {
	imp := newFakeImporter(t, &fakeLoader{})
	_, err := imp.ImportPath(context.Background(), "scene.unknown", nil)
	assert.ErrorIs(t, err, ErrLoaderNotFound)
}

func TestImport_BatchKeepsInputOrder(t *testing.T) {
	imp := newFakeImporter(t, &fakeLoader{})
	imp.RegisterFile("one.fake", fakeFile("one.fake", "1"), "", nil)
	imp.RegisterFile("two.fake", fakeFile("two.fake", "2"), "", nil)

	res, err := imp.Import(context.Background(), asset.Batch{
		asset.Path("two.fake"),
		asset.Path("one.fake"),
		fakeFile("three.fake", "3"),
	}, nil)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "2", res[0].(*asset.Data).Value)
	assert.Equal(t, "1", res[1].(*asset.Data).Value)
	assert.Equal(t, "3", res[2].(*asset.Data).Value)

	_, err = imp.Import(context.Background(), nil, nil)
	assert.NoError(t, err)
}

func TestUnregisterFile_RevokesObjectURLOnce(t *testing.T) {
	blobs := &countingBlobStore{BlobStore: NewBlobStore()}
	imp := newFakeImporter(t, &fakeLoader{}, WithBlobStore(blobs))

	f := fakeFile("textures/wood.fake", "grain")
	imp.RegisterFile("textures/wood.fake", f, "", nil)
	url := imp.ResolveURL("textures/wood.fake")
	require.True(t, strings.HasPrefix(url, "blob:oxypipe/"), url)
	assert.True(t, strings.HasSuffix(url, "#textures/wood.fake"))
	assert.Equal(t, url, imp.ResolveURL("textures/wood.fake?x=1"), "query strings do not change the lookup")

	got, ok := blobs.Get(url)
	require.True(t, ok)
	assert.Same(t, f, got)

	imp.UnregisterFile("textures/wood.fake")
	imp.UnregisterFile("textures/wood.fake")
	assert.Equal(t, int32(1), blobs.revoked.Load())
	assert.Empty(t, f.ObjectURL)
	_, ok = blobs.Get(url)
	assert.False(t, ok)
	assert.Nil(t, imp.RegisteredFile("textures/wood.fake"))
}

func TestURLModifier(t *testing.T) {
	imp := newFakeImporter(t, &fakeLoader{})
	imp.RegisterFile("assets/chair-v2.fake", fakeFile("chair-v2.fake", "v2"), "", nil)

	remove := imp.AddURLModifier(func(u string) string { return strings.Replace(u, "chair-v1", "chair-v2", 1) })
	assert.True(t, strings.HasPrefix(imp.ResolveURL("assets/chair-v1.fake"), "blob:"))

	res, err := imp.ImportPath(context.Background(), "assets/chair-v1.fake", nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "v2", res[0].(*asset.Data).Value)

	remove()
	remove()
	assert.Equal(t, "assets/chair-v1.fake", imp.ResolveURL("assets/chair-v1.fake"))
}

func TestProcessRaw(t *testing.T) {
	imp := newFakeImporter(t, &fakeLoader{})
	var order []string
	imp.OnProcessRawStart(func(ev ProcessRawEvent) { order = append(order, "start:"+ev.Path) })
	imp.OnProcessRaw(func(ev ProcessRawEvent) { order = append(order, "end:"+ev.Path) })

	blob := fakeFile("notes.fake", "n")
	r := &asset.Data{Value: "n"}
	r.RootPath = "docs/notes.fake"
	r.RootBlob = blob

	out, err := imp.ProcessRaw(context.Background(), []asset.Result{r}, nil, "docs/notes.fake")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"start:docs/notes.fake", "end:docs/notes.fake"}, order)
	assert.True(t, r.Processed)
	assert.Equal(t, "docs/notes.fake", r.UserData()["rootPath"])
	assert.Same(t, blob, r.UserData()["__sourceBlob"])
	assert.Equal(t, "docs/notes.fake", r.Name())

	_, err = imp.ProcessRaw(context.Background(), []asset.Result{r}, nil, "docs/notes.fake")
	require.NoError(t, err)
	assert.Len(t, order, 2, "processed results are skipped")

	_, err = imp.ProcessRaw(context.Background(), []asset.Result{r}, &asset.ImportOptions{ForceImporterReprocess: true}, "")
	require.NoError(t, err)
	assert.Len(t, order, 4)

	raw := &asset.Data{}
	raw.RootPath = "blob:oxypipe/123#x.fake"
	_, err = imp.ProcessRaw(context.Background(), []asset.Result{raw}, &asset.ImportOptions{ProcessRaw: common.Ptr(false)}, "")
	require.NoError(t, err)
	assert.False(t, raw.Processed)

	_, err = imp.ProcessRaw(context.Background(), []asset.Result{raw}, nil, "")
	require.NoError(t, err)
	assert.NotContains(t, raw.UserData(), "rootPath", "object URLs are not recorded as root paths")
	assert.Equal(t, "blob:oxypipe/123#x.fake", raw.Name())
}

func TestOnLoaderCreate_ReplaysCachedLoaders(t *testing.T) {
	l := &fakeLoader{}
	imp := newFakeImporter(t, l)

	var live []asset.Loader
	imp.OnLoaderCreate(func(ev LoaderCreateEvent) { live = append(live, ev.Loader) })
	require.NotNil(t, imp.RegisterFile("x.fake", nil, "", nil))
	require.NotNil(t, imp.RegisterFile("y.fake", nil, "", nil))
	assert.Len(t, live, 1, "one loader per registration")

	var replayed []string
	unsubscribe := imp.OnLoaderCreate(func(ev LoaderCreateEvent) { replayed = append(replayed, ev.Importer.Name) })
	assert.Equal(t, []string{"fake"}, replayed)
	unsubscribe()

	imp.ClearLoaderCache()
	imp.RegisterFile("z.fake", nil, "", nil)
	assert.Len(t, live, 2)
	assert.Len(t, replayed, 1)
}

func TestImportFiles_LoadsOnlyRootFiles(t *testing.T) {
	imp := NewImporter()
	defer imp.Dispose()

	var states []ImportFilesState
	imp.OnImportFiles(func(ev ImportFilesEvent) { states = append(states, ev.State) })

	loaded, err := imp.ImportFiles(context.Background(), map[string]*asset.File{
		"scene.gltf":  asset.NewFile("scene.gltf", []byte(`{"asset":{"version":"2.0"},"scene":0,"scenes":[{"nodes":[]}]}`)),
		"texture.png": asset.NewFile("texture.png", pngBytes(t)),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []ImportFilesState{ImportFilesStart, ImportFilesEnd}, states)
	require.Len(t, loaded, 1)
	require.Contains(t, loaded, "scene.gltf")
	require.Len(t, loaded["scene.gltf"], 1)
	m, ok := loaded["scene.gltf"][0].(*asset.Model)
	require.True(t, ok)
	assert.Equal(t, "scene.gltf", m.Name())
	assert.Nil(t, imp.RegisteredFile("texture.png"), "files are unregistered afterwards")

	loaded, err = imp.ImportFiles(context.Background(), map[string]*asset.File{
		"a.txt": asset.NewFile("a.txt", []byte("a")),
		"b.txt": asset.NewFile("b.txt", []byte("b")),
		"c.txt": asset.NewFile("c.txt", []byte("c")),
	}, &asset.ImportOptions{AllowedExtensions: []string{"TXT"}})
	require.NoError(t, err)
	assert.Len(t, loaded, 3, "without root files every file loads")
}

func TestImportFile_ZipContentsExpanded(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string][]byte{
		"scene.gltf":  []byte(`{"asset":{"version":"2.0"},"scene":0,"scenes":[{"name":"Lobby","nodes":[]}]}`),
		"texture.png": pngBytes(t),
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	imp := NewImporter()
	defer imp.Dispose()

	res, err := imp.ImportFile(context.Background(), asset.NewFile("bundle.zip", buf.Bytes()), nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	m, ok := res[0].(*asset.Model)
	require.True(t, ok)
	assert.Equal(t, "Lobby", m.Name())
	assert.Equal(t, "scene.gltf", m.Meta().RootPath)

	raw, err := imp.ImportFile(context.Background(), asset.NewFile("bundle2.zip", buf.Bytes()),
		&asset.ImportOptions{AutoImportZipContents: common.Ptr(false)})
	require.NoError(t, err)
	require.Len(t, raw, 1)
	files, ok := raw[0].(*asset.Files)
	require.True(t, ok)
	assert.Len(t, files.Files, 2)
}

func TestImportPath_HTTPDownloadsAreCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, "remote notes")
	}))
	defer srv.Close()

	store, err := storage.NewStorage(storage.BackendTypeMemory)
	require.NoError(t, err)
	imp := NewImporter(WithStorage(store), WithHTTPClient(srv.Client()))
	defer imp.Dispose()

	var progress []float64
	imp.OnImportFile(func(ev ImportFileEvent) {
		if ev.State == StateDownloading {
			progress = append(progress, ev.Progress)
		}
	})

	url := srv.URL + "/docs/notes.txt"
	res, err := imp.ImportPath(context.Background(), url, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "remote notes", res[0].(*asset.Data).Value)
	assert.Equal(t, url, res[0].UserData()["rootPath"])
	assert.Contains(t, progress, 1.0)

	imp.ClearCache()
	res, err = imp.ImportPath(context.Background(), url, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, int32(1), hits.Load(), "second download is served from storage")
	assert.Same(t, store, imp.Storage())
}

func TestImportPath_DataURL(t *testing.T) {
	imp := NewImporter()
	defer imp.Dispose()

	res, err := imp.ImportPath(context.Background(), "data:text/plain;base64,aGVsbG8=", nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "hello", res[0].(*asset.Data).Value)
	assert.Equal(t, "text/plain", res[0].(*asset.Data).MimeType)
}

func TestImportAsset_CanceledCallerOnly(t *testing.T) {
	l := &fakeLoader{started: make(chan struct{}, 1), release: make(chan struct{})}
	imp := newFakeImporter(t, l)
	imp.RegisterFile("slow.fake", fakeFile("slow.fake", "s"), "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := imp.ImportPath(ctx, "slow.fake", nil)
		errc <- err
	}()
	<-l.started
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(l.release)
	res, err := imp.ImportPath(context.Background(), "slow.fake", nil)
	require.NoError(t, err)
	assert.Len(t, res, 1)
	assert.Equal(t, int32(1), l.calls.Load(), "the load kept running for later callers")
}
