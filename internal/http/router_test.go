package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"clipdex/internal/handlers"
	svcmocks "clipdex/internal/handlers/mocks"
	"clipdex/internal/report"
	"clipdex/internal/scan"
	"clipdex/internal/storage"
	vsmocks "clipdex/internal/vectorstore/mocks"
)

type routerFixture struct {
	router  http.Handler
	db      *sql.DB
	videos  *storage.VideoRepo
	index   *svcmocks.MockIndexService
	vectors *vsmocks.MockVectorStore
	scans   int
	forces  []bool
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	db, err := storage.New(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	ctrl := gomock.NewController(t)
	f := &routerFixture{
		db:      db,
		videos:  storage.NewVideoRepo(db),
		index:   svcmocks.NewMockIndexService(ctrl),
		vectors: vsmocks.NewMockVectorStore(ctrl),
	}
	f.router = NewRouter(&Deps{
		Index:        f.index,
		Videos:       f.videos,
		Report:       report.NewRecorder(),
		Vectors:      f.vectors,
		DB:           db,
		Collection:   func() string { return "clips_g1" },
		TriggerScan:  func() { f.scans++ },
		TriggerIndex: func(force bool) { f.forces = append(f.forces, force) },
	})
	return f
}

func (f *routerFixture) seedVideo(t *testing.T, id, status string) {
	t.Helper()
	err := f.videos.Upsert(context.Background(), &storage.VideoRecord{
		ID:        id,
		Title:     "Seeded Video",
		VideoPath: id + "/video.mp4",
		Status:    status,
	})
	if err != nil {
		t.Fatalf("failed to seed video: %v", err)
	}
}

func (f *routerFixture) do(method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_ListVideos(t *testing.T) {
	f := newRouterFixture(t)
	f.seedVideo(t, "library/one", storage.StatusReady)
	f.seedVideo(t, "library/two", storage.StatusNeedsText)

	rec := f.do(http.MethodGet, "/api/videos", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp handlers.ListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}

	rec = f.do(http.MethodGet, "/api/videos?status=ready", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("filtered status = %d, want 200", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || resp.Videos[0].ID != "library/one" {
		t.Errorf("filtered response = %+v", resp)
	}

	if rec := f.do(http.MethodGet, "/api/videos?status=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bogus filter status = %d, want 400", rec.Code)
	}
}

func TestRouter_GetVideoWithSlashID(t *testing.T) {
	f := newRouterFixture(t)
	f.seedVideo(t, "library/2024/talk", storage.StatusReady)

	rec := f.do(http.MethodGet, "/api/videos/library/2024/talk", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var video storage.VideoRecord
	if err := json.NewDecoder(rec.Body).Decode(&video); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if video.ID != "library/2024/talk" {
		t.Errorf("video ID = %s", video.ID)
	}

	if rec := f.do(http.MethodGet, "/api/videos/library/absent", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing video status = %d, want 404", rec.Code)
	}
}

func TestRouter_SetTelegramFileID(t *testing.T) {
	f := newRouterFixture(t)
	f.seedVideo(t, "library/talk", storage.StatusReady)

	rec := f.do(http.MethodPut, "/api/videos/library/talk/telegram-file-id", `{"telegram_file_id": "AgAD123"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	video, err := f.videos.Get(context.Background(), "library/talk")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if video.TelegramFileID != "AgAD123" {
		t.Errorf("telegram_file_id = %q", video.TelegramFileID)
	}

	rec = f.do(http.MethodPut, "/api/videos/library/absent/telegram-file-id", `{"telegram_file_id": "x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing video status = %d, want 404", rec.Code)
	}

	rec = f.do(http.MethodPut, "/api/videos/library/talk/telegram-file-id", `{"telegram_file_id": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty file id status = %d, want 400", rec.Code)
	}
}

func TestRouter_VideoIndexOps(t *testing.T) {
	f := newRouterFixture(t)

	f.index.EXPECT().IndexVideo(gomock.Any(), "library/talk").Return(nil)
	rec := f.do(http.MethodPost, "/api/videos/library/talk/index", "")
	if rec.Code != http.StatusOK {
		t.Errorf("index status = %d, want 200", rec.Code)
	}

	f.index.EXPECT().IndexVideo(gomock.Any(), "library/absent").Return(storage.ErrNotFound)
	rec = f.do(http.MethodPost, "/api/videos/library/absent/index", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("index missing status = %d, want 404", rec.Code)
	}

	f.index.EXPECT().RemoveVideo(gomock.Any(), "library/talk").Return(nil)
	rec = f.do(http.MethodDelete, "/api/videos/library/talk/index", "")
	if rec.Code != http.StatusOK {
		t.Errorf("remove status = %d, want 200", rec.Code)
	}
}

func TestRouter_Triggers(t *testing.T) {
	f := newRouterFixture(t)

	if rec := f.do(http.MethodPost, "/api/scan", ""); rec.Code != http.StatusAccepted {
		t.Errorf("scan status = %d, want 202", rec.Code)
	}
	if f.scans != 1 {
		t.Errorf("scan trigger fired %d times, want 1", f.scans)
	}

	if rec := f.do(http.MethodPost, "/api/index", ""); rec.Code != http.StatusAccepted {
		t.Errorf("index status = %d, want 202", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/index?force=true", ""); rec.Code != http.StatusAccepted {
		t.Errorf("forced index status = %d, want 202", rec.Code)
	}
	if len(f.forces) != 2 || f.forces[0] || !f.forces[1] {
		t.Errorf("index triggers = %v, want [false true]", f.forces)
	}

	// Triggers are POST-only.
	if rec := f.do(http.MethodGet, "/api/scan", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET scan status = %d, want 405", rec.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t)

	f.vectors.EXPECT().CollectionExists(gomock.Any(), "clips_g1").Return(true, nil)
	rec := f.do(http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp handlers.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Checks["vector_store"] != "ok" {
		t.Errorf("response = %+v", resp)
	}

	f.vectors.EXPECT().CollectionExists(gomock.Any(), "clips_g1").Return(false, nil)
	rec = f.do(http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status with missing collection = %d, want 503", rec.Code)
	}
}

func TestRouter_Report(t *testing.T) {
	f := newRouterFixture(t)
	f.seedVideo(t, "library/talk", storage.StatusReady)

	recorder := report.NewRecorder()
	recorder.RecordScan(&scan.Summary{Scanned: 3, Ready: 1})
	f.router = NewRouter(&Deps{
		Index:      f.index,
		Videos:     f.videos,
		Report:     recorder,
		Vectors:    f.vectors,
		DB:         f.db,
		Collection: func() string { return "clips_g1" },
	})

	f.index.EXPECT().Size(gomock.Any()).Return(7, nil)
	f.index.EXPECT().Meta(gomock.Any()).Return(&storage.IndexMeta{
		SchemaVersion: storage.SchemaVersion,
		GenerationID:  1,
	}, nil)

	rec := f.do(http.MethodGet, "/api/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp handlers.ReportResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Catalog.Total != 1 || resp.Catalog.Ready != 1 {
		t.Errorf("catalog counts = %+v", resp.Catalog)
	}
	if resp.IndexSize != 7 {
		t.Errorf("index_size = %d, want 7", resp.IndexSize)
	}
	if resp.LastScan == nil || resp.LastScan.Scanned != 3 {
		t.Errorf("last_scan = %+v", resp.LastScan)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}
}
