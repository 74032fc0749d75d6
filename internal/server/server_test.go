package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/config"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/embedding"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/indexer"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/search"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/storage"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/vectorstore"
)

const testDim = 32

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type envelope struct {
	Status   string                 `json:"status"`
	Data     json.RawMessage        `json:"data"`
	Error    *ErrorInfo             `json:"error"`
	Metadata map[string]interface{} `json:"metadata"`
}

func newTestServer(t *testing.T, opts ...Option) (*Server, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(dir, "db.sqlite")
	cfg.Storage.UploadDir = filepath.Join(dir, "images")
	cfg.Storage.TitleIndexPath = filepath.Join(dir, "vectors", "title.idx")
	cfg.Storage.DescriptionIndexPath = filepath.Join(dir, "vectors", "description.idx")
	cfg.Storage.ImageIndexPath = filepath.Join(dir, "vectors", "image.idx")
	cfg.Storage.IdentityMapPath = filepath.Join(dir, "vectors", "uuid_map.gob")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "bleve")
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath, storage.WithDriver(storage.DriverPureGo))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	vectors, err := vectorstore.NewManager("memory", testDim, vectorstore.Paths{
		Title:       cfg.Storage.TitleIndexPath,
		Description: cfg.Storage.DescriptionIndexPath,
		Image:       cfg.Storage.ImageIndexPath,
		IdentityMap: cfg.Storage.IdentityMapPath,
	}, vectorstore.WithEmbedder(embedding.NewCached(embedding.NewMockEmbedder(testDim), 64, nil, nil)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = vectors.Close() })

	engine := search.NewEngine(store, store, vectors, cfg.Search)
	idx := indexer.NewIndexer(store, vectors, indexer.WithUploadDir(cfg.Storage.UploadDir))
	opts = append([]Option{WithLogger(zap.NewNop()), WithVersion("test")}, opts...)
	srv := NewServer(engine, idx, store, vectors, cfg, opts...)
	return srv, srv.Handler()
}

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	r := httptest.NewRequest(method, target, body)
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: bad JSON: %v\n%s", method, target, err, w.Body.String())
		}
	}
	return w, env
}

func doJSON(t *testing.T, h http.Handler, method, target string, v interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(b)
	}
	return do(t, h, method, target, body, "application/json")
}

type part struct {
	field, filename string
	data            []byte
}

func multipartBody(t *testing.T, files []part, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(f.data); err != nil {
			t.Fatal(err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

type uploaded struct {
	Uploaded []struct {
		Image struct {
			UUID     string   `json:"uuid"`
			Title    string   `json:"title"`
			Tags     []string `json:"tags"`
			Filepath string   `json:"filepath"`
		} `json:"image"`
		VectorsIndexed bool `json:"vectors_indexed"`
		Persisted      bool `json:"persisted"`
	} `json:"uploaded"`
	Failed []uploadFailure `json:"failed"`
}

func upload(t *testing.T, h http.Handler, title, desc string, shade uint8, tags string) string {
	t.Helper()
	body, ct := multipartBody(t,
		[]part{{"files", "photo.png", pngBytes(t, shade)}},
		map[string]string{"title": title, "description": desc, "tags": tags})
	w, env := do(t, h, http.MethodPost, "/api/v1/images/upload", body, ct)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}
	var out uploaded
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Uploaded) != 1 || !out.Uploaded[0].VectorsIndexed || !out.Uploaded[0].Persisted {
		t.Fatalf("upload result = %+v", out)
	}
	return out.Uploaded[0].Image.UUID
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	w, _ := do(t, h, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestUploadAndGet(t *testing.T) {
	_, h := newTestServer(t)
	id := upload(t, h, "sunset over mountains", "orange light", 1, `["nature","sky"]`)

	w, env := do(t, h, http.MethodGet, "/api/v1/images/"+id, nil, "")
	if w.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("get = %d %s", w.Code, w.Body.String())
	}
	var img struct {
		UUID  string   `json:"uuid"`
		Title string   `json:"title"`
		Tags  []string `json:"tags"`
	}
	if err := json.Unmarshal(env.Data, &img); err != nil {
		t.Fatal(err)
	}
	if img.UUID != id || img.Title != "sunset over mountains" || len(img.Tags) != 2 {
		t.Errorf("image = %+v", img)
	}
	vectors, _ := env.Metadata["vectors"].(map[string]interface{})
	if vectors["image"] != true || vectors["title"] != true {
		t.Errorf("vectors metadata = %v", env.Metadata)
	}
}

func TestUpload_Errors(t *testing.T) {
	_, h := newTestServer(t)

	body, ct := multipartBody(t, []part{{"files", "notes.txt", []byte("plain text, not an image")}}, nil)
	w, env := do(t, h, http.MethodPost, "/api/v1/images/upload", body, ct)
	if w.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "INVALID_FILE" {
		t.Errorf("non-image = %d %s", w.Code, w.Body.String())
	}

	body, ct = multipartBody(t, nil, map[string]string{"title": "x"})
	w, env = do(t, h, http.MethodPost, "/api/v1/images/upload", body, ct)
	if w.Code != http.StatusBadRequest || env.Error.Code != "INVALID_REQUEST" {
		t.Errorf("no files = %d %s", w.Code, w.Body.String())
	}

	body, ct = multipartBody(t, []part{{"files", "a.png", pngBytes(t, 2)}}, map[string]string{"tags": "not-json"})
	w, _ = do(t, h, http.MethodPost, "/api/v1/images/upload", body, ct)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad tags = %d", w.Code)
	}
}

func TestUpload_PartialFailure(t *testing.T) {
	_, h := newTestServer(t)
	body, ct := multipartBody(t, []part{
		{"files", "good.png", pngBytes(t, 3)},
		{"files", "bad.txt", []byte("nope")},
	}, nil)
	w, env := do(t, h, http.MethodPost, "/api/v1/images/upload", body, ct)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	var out uploaded
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Uploaded) != 1 || len(out.Failed) != 1 || out.Failed[0].Filename != "bad.txt" {
		t.Errorf("result = %+v", out)
	}
}

func TestListImages(t *testing.T) {
	_, h := newTestServer(t)
	upload(t, h, "one", "", 10, `["a"]`)
	upload(t, h, "two", "", 11, `["b"]`)
	upload(t, h, "three", "", 12, `["a"]`)

	w, env := do(t, h, http.MethodGet, "/api/v1/images?page=1&page_size=2&sort_by=title&order=asc", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}
	var imgs []struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(env.Data, &imgs); err != nil {
		t.Fatal(err)
	}
	if len(imgs) != 2 || imgs[0].Title != "one" || imgs[1].Title != "three" {
		t.Errorf("page = %+v", imgs)
	}
	if env.Metadata["total"] != float64(3) || env.Metadata["page_size"] != float64(2) {
		t.Errorf("metadata = %v", env.Metadata)
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/images?tags=a", nil, "")
	if env.Metadata["total"] != float64(2) {
		t.Errorf("tag filter total = %v", env.Metadata["total"])
	}

	w, env = do(t, h, http.MethodGet, "/api/v1/images?sort_by=colour", nil, "")
	if w.Code != http.StatusBadRequest || env.Error.Code != "INVALID_REQUEST" {
		t.Errorf("bad sort = %d %s", w.Code, w.Body.String())
	}
	w, _ = do(t, h, http.MethodGet, "/api/v1/images?start_date=yesterday", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad date = %d", w.Code)
	}
}

type searchData struct {
	Results []struct {
		UUID       string             `json:"uuid"`
		Score      float64            `json:"score"`
		Rank       int                `json:"rank"`
		Components map[string]float64 `json:"components"`
	} `json:"results"`
	Total    int    `json:"total"`
	Mode     string `json:"mode"`
	Degraded bool   `json:"degraded"`
}

func decodeSearch(t *testing.T, env envelope) searchData {
	t.Helper()
	var out searchData
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestSearchEndpoints(t *testing.T) {
	_, h := newTestServer(t)
	a := upload(t, h, "sunset over mountains", "orange light on peaks", 20, `["nature"]`)
	b := upload(t, h, "city skyline at night", "towers and lights", 21, `["urban"]`)

	w, env := do(t, h, http.MethodGet, "/api/v1/search/text?q=sunset&mode=text", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("text search = %d %s", w.Code, w.Body.String())
	}
	out := decodeSearch(t, env)
	if len(out.Results) != 1 || out.Results[0].UUID != a || out.Mode != "text" {
		t.Errorf("text search = %+v", out)
	}

	_, env = do(t, h, http.MethodGet, "/api/v1/search/text?q=sunset+mountains&mode=hybrid&tags=urban", nil, "")
	out = decodeSearch(t, env)
	for _, r := range out.Results {
		if r.UUID != b {
			t.Errorf("tag filter leaked %s", r.UUID)
		}
	}

	w, env = do(t, h, http.MethodGet, "/api/v1/search/similar/"+a+"?search_type=image", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("similar = %d %s", w.Code, w.Body.String())
	}
	out = decodeSearch(t, env)
	for _, r := range out.Results {
		if r.UUID == a {
			t.Error("similar search returned the query record")
		}
	}

	body, ct := multipartBody(t, []part{{"image", "q.png", pngBytes(t, 20)}}, map[string]string{"vector_type": "image", "limit": "1"})
	w, env = do(t, h, http.MethodPost, "/api/v1/search/image", body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("image search = %d %s", w.Code, w.Body.String())
	}
	out = decodeSearch(t, env)
	if len(out.Results) != 1 || out.Results[0].UUID != a {
		t.Errorf("image search = %+v", out)
	}
}

func TestSearchErrors(t *testing.T) {
	_, h := newTestServer(t)
	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"empty query", "/api/v1/search/text?q=", http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad weight", "/api/v1/search/text?q=x&w_text=abc", http.StatusBadRequest, "INVALID_REQUEST"},
		{"nan weight", "/api/v1/search/text?q=x&mode=vector&w_title=NaN", http.StatusBadRequest, "INVALID_REQUEST"},
		{"infinite weight", "/api/v1/search/text?q=x&w_vector=Inf", http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad limit", "/api/v1/search/text?q=x&limit=-3", http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown mode", "/api/v1/search/text?q=x&mode=fuzzy", http.StatusBadRequest, "INVALID_REQUEST"},
		{"similar unknown", "/api/v1/search/similar/does-not-exist", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, h, http.MethodGet, tt.target, nil, "")
			if w.Code != tt.status || env.Status != "error" || env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("got %d %s", w.Code, w.Body.String())
			}
		})
	}

	body, ct := multipartBody(t, nil, map[string]string{"vector_type": "image"})
	w, _ := do(t, h, http.MethodPost, "/api/v1/search/image", body, ct)
	if w.Code != http.StatusBadRequest {
		t.Errorf("image search without file = %d", w.Code)
	}
}

func TestUpdateTagsMetadataDelete(t *testing.T) {
	_, h := newTestServer(t)
	id := upload(t, h, "harbor", "boats", 30, `["sea"]`)

	w, _ := doJSON(t, h, http.MethodPatch, "/api/v1/images/"+id, map[string]interface{}{"title": "harbor at dawn"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d %s", w.Code, w.Body.String())
	}
	w, _ = doJSON(t, h, http.MethodPatch, "/api/v1/images/"+id, map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty patch = %d", w.Code)
	}

	w, _ = doJSON(t, h, http.MethodPost, "/api/v1/images/"+id+"/tags", map[string]interface{}{"tags": []string{"dawn"}})
	if w.Code != http.StatusOK {
		t.Fatalf("add tags = %d %s", w.Code, w.Body.String())
	}
	w, _ = do(t, h, http.MethodDelete, "/api/v1/images/"+id+"/tags/sea", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("remove tag = %d %s", w.Code, w.Body.String())
	}
	_, env := do(t, h, http.MethodGet, "/api/v1/tags", nil, "")
	var tags []struct {
		Tag   string `json:"tag"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &tags); err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 || tags[0].Tag != "dawn" {
		t.Errorf("tags = %+v", tags)
	}

	w, _ = doJSON(t, h, http.MethodPatch, "/api/v1/images/"+id+"/metadata", map[string]interface{}{"camera": "x100"})
	if w.Code != http.StatusOK {
		t.Fatalf("metadata = %d %s", w.Code, w.Body.String())
	}
	_, env = do(t, h, http.MethodGet, "/api/v1/metadata/fields", nil, "")
	if !strings.Contains(string(env.Data), `"camera"`) {
		t.Errorf("metadata fields = %s", env.Data)
	}

	w, _ = do(t, h, http.MethodDelete, "/api/v1/images/"+id, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d %s", w.Code, w.Body.String())
	}
	w, env = do(t, h, http.MethodGet, "/api/v1/images/"+id, nil, "")
	if w.Code != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Errorf("get after delete = %d %s", w.Code, w.Body.String())
	}
	w, _ = do(t, h, http.MethodDelete, "/api/v1/images/"+id, nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", w.Code)
	}
}

func TestDeleteBatch(t *testing.T) {
	_, h := newTestServer(t)
	a := upload(t, h, "a", "", 40, "")
	b := upload(t, h, "b", "", 41, "")

	w, env := doJSON(t, h, http.MethodDelete, "/api/v1/images", []string{a, b, "ghost"})
	if w.Code != http.StatusOK {
		t.Fatalf("batch = %d %s", w.Code, w.Body.String())
	}
	if env.Metadata["deleted"] != float64(2) || env.Metadata["not_found"] != float64(1) {
		t.Errorf("metadata = %v", env.Metadata)
	}
	w, _ = doJSON(t, h, http.MethodDelete, "/api/v1/images", []string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty batch = %d", w.Code)
	}
}

func TestSystemEndpoints(t *testing.T) {
	srv, h := newTestServer(t)
	id := upload(t, h, "lighthouse", "coast", 50, "")

	w, env := do(t, h, http.MethodGet, "/api/v1/system/status", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	var st map[string]interface{}
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st["images"] != float64(1) || st["embedder_available"] != true || st["version"] != "test" {
		t.Errorf("status = %v", st)
	}
	if _, ok := st["disk_usage_bytes"]; !ok {
		t.Errorf("status missing disk usage: %v", st)
	}

	w, _ = do(t, h, http.MethodPost, "/api/v1/system/checkpoint", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("checkpoint = %d %s", w.Code, w.Body.String())
	}

	title := "lighthouse at night"
	doJSON(t, h, http.MethodPatch, "/api/v1/images/"+id, map[string]interface{}{"title": title})
	if srv.vectors.OrphanRatio() == 0 {
		t.Fatal("expected orphans after title change")
	}
	w, env = do(t, h, http.MethodPost, "/api/v1/system/compact", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("compact = %d %s", w.Code, w.Body.String())
	}
	if env.Metadata["orphan_ratio_after"] != float64(0) {
		t.Errorf("compact metadata = %v", env.Metadata)
	}

	w, env = do(t, h, http.MethodPost, "/api/v1/system/reembed?missing=true", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("reembed = %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(string(env.Data), `"scanned":1`) {
		t.Errorf("reembed = %s", env.Data)
	}
	w, _ = do(t, h, http.MethodPost, "/api/v1/system/reembed?fields=audio", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("reembed bad field = %d", w.Code)
	}
}

func TestClearCache(t *testing.T) {
	_, h := newTestServer(t)
	upload(t, h, "lighthouse", "coast", 50, "")

	w, env := doJSON(t, h, http.MethodPost, "/api/v1/system/clear-cache", map[string]interface{}{
		"cache_types": []string{"text"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("clear text = %d %s", w.Code, w.Body.String())
	}
	var data struct {
		Cleared map[string]int `json:"cleared"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Cleared["text"] != 2 {
		t.Errorf("cleared = %v, want title and description entries", data.Cleared)
	}
	if _, ok := data.Cleared["image"]; ok {
		t.Errorf("image cache cleared when only text was asked: %v", data.Cleared)
	}

	w, env = do(t, h, http.MethodPost, "/api/v1/system/clear-cache", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("clear all = %d %s", w.Code, w.Body.String())
	}
	data.Cleared = nil
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Cleared["image"] != 1 || data.Cleared["text"] != 0 {
		t.Errorf("cleared = %v, want the image entry only", data.Cleared)
	}

	w, env = doJSON(t, h, http.MethodPost, "/api/v1/system/clear-cache", map[string]interface{}{
		"cache_types": []string{"vector", "thumbnails"},
	})
	if w.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "INVALID_REQUEST" {
		t.Errorf("unknown cache type = %d %+v", w.Code, env.Error)
	}
}

func TestExportXLSX(t *testing.T) {
	_, h := newTestServer(t)
	upload(t, h, "exported", "row", 60, `["x"]`)

	w, _ := do(t, h, http.MethodGet, "/api/v1/images/export.xlsx", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), ".xlsx") {
		t.Errorf("disposition = %q", w.Header().Get("Content-Disposition"))
	}
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows("Images")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][2] != "exported" {
		t.Errorf("rows = %v", rows)
	}
}

func TestWatchDirectories(t *testing.T) {
	mock := &mockWatchService{dirs: []string{"/tmp/photos"}}
	_, h := newTestServer(t, WithWatch(mock, ""))

	w, env := do(t, h, http.MethodGet, "/api/v1/watch/directories", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), "/tmp/photos") {
		t.Errorf("list = %d %s", w.Code, w.Body.String())
	}

	dir := t.TempDir()
	w, _ = doJSON(t, h, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": dir})
	if w.Code != http.StatusCreated || len(mock.dirs) != 2 {
		t.Errorf("add = %d %s", w.Code, w.Body.String())
	}
	w, _ = doJSON(t, h, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": filepath.Join(dir, "missing")})
	if w.Code != http.StatusNotFound {
		t.Errorf("add missing = %d", w.Code)
	}
	w, _ = do(t, h, http.MethodDelete, "/api/v1/watch/directories?path="+dir, nil, "")
	if w.Code != http.StatusOK || len(mock.dirs) != 1 {
		t.Errorf("remove = %d %s", w.Code, w.Body.String())
	}
}

func TestWatchDirectories_NotEnabled(t *testing.T) {
	_, h := newTestServer(t)
	w, env := do(t, h, http.MethodGet, "/api/v1/watch/directories", nil, "")
	if w.Code != http.StatusServiceUnavailable || env.Error.Code != "SERVICE_UNAVAILABLE" {
		t.Errorf("got %d %s", w.Code, w.Body.String())
	}
}
