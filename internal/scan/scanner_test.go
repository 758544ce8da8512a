package scan

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"clipdex/internal/drive"
	"clipdex/internal/storage"
)

const testRoot = "library"

type scanFixture struct {
	drive   *drive.LocalStore
	videos  *storage.VideoRepo
	scanner *Scanner
	db      *sql.DB
}

func newFixture(t *testing.T, opts Options) *scanFixture {
	t.Helper()

	store, err := drive.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	if err := store.CreateDir(context.Background(), testRoot); err != nil {
		t.Fatalf("CreateDir() error = %v", err)
	}

	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	videos := storage.NewVideoRepo(db)
	if opts.Root == "" {
		opts.Root = testRoot
	}
	return &scanFixture{
		drive:   store,
		videos:  videos,
		scanner: New(store, videos, opts),
		db:      db,
	}
}

func (f *scanFixture) write(t *testing.T, path, content string) {
	t.Helper()
	if err := f.drive.UploadText(context.Background(), path, content); err != nil {
		t.Fatalf("UploadText(%s) error = %v", path, err)
	}
}

func (f *scanFixture) get(t *testing.T, id string) *storage.VideoRecord {
	t.Helper()
	rec, err := f.videos.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return rec
}

func TestRunOnce_DerivedReady(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "library/talk-on-perspective/video.mp4", "video bytes")
	f.write(t, "library/talk-on-perspective/summary.md", "# A talk about vanishing points in art")

	summary, err := f.scanner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.Scanned != 1 || summary.Ready != 1 || summary.Derived != 1 {
		t.Errorf("Summary = %+v", summary)
	}

	rec := f.get(t, "library/talk-on-perspective")
	if rec.Status != storage.StatusReady {
		t.Errorf("status = %s, want READY", rec.Status)
	}
	if rec.Title != "Talk On Perspective" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.VideoPath != "library/talk-on-perspective/video.mp4" {
		t.Errorf("video path = %q", rec.VideoPath)
	}
	if rec.Fingerprint == "" {
		t.Error("READY record has no fingerprint")
	}
	if len(rec.TextPaths) != 1 || rec.TextPaths[0].Kind != "summary" {
		t.Errorf("text paths = %+v", rec.TextPaths)
	}
}

func TestRunOnce_NoTextsIsNeverReady(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "library/silent/video.mp4", "video bytes")

	if _, err := f.scanner.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	rec := f.get(t, "library/silent")
	if rec.Status != storage.StatusNeedsText {
		t.Errorf("status = %s, want NEEDS_TEXT", rec.Status)
	}
	// Video-only fingerprint still recorded so arrival of a transcript is
	// seen as a change.
	if rec.Fingerprint == "" {
		t.Error("NEEDS_TEXT record with stable video has no fingerprint")
	}
}

// growingStore wraps a LocalStore and reports a larger size on every
// successive GetMeta call for the chosen paths, imitating an upload that is
// still in flight during the stability check.
type growingStore struct {
	*drive.LocalStore
	growing map[string]int64
}

func (g *growingStore) GetMeta(ctx context.Context, path string) (drive.Meta, error) {
	meta, err := g.LocalStore.GetMeta(ctx, path)
	if err != nil {
		return meta, err
	}
	if _, ok := g.growing[path]; ok {
		g.growing[path]++
		meta.Size += g.growing[path]
	}
	return meta, nil
}

func TestRunOnce_UnstableVideoNeedsText(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "library/uploading/video.mp4", "partial bytes")
	f.write(t, "library/uploading/summary.md", "summary")
	store := &growingStore{
		LocalStore: f.drive,
		growing:    map[string]int64{"library/uploading/video.mp4": 0},
	}
	f.scanner = New(store, f.videos, Options{Root: testRoot})

	summary, err := f.scanner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.NeedsText != 1 || summary.Errors != 0 {
		t.Errorf("Summary = %+v", summary)
	}

	rec := f.get(t, "library/uploading")
	if rec.Status != storage.StatusNeedsText {
		t.Errorf("status = %s, want NEEDS_TEXT while the video is uploading", rec.Status)
	}
	if rec.Fingerprint != "" {
		t.Errorf("fingerprint = %q, want none for an in-flight video", rec.Fingerprint)
	}
}

func TestRunOnce_UnstableTextExcludedFromCycle(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "library/talk/video.mp4", "x")
	f.write(t, "library/talk/summary.md", "summary")
	f.write(t, "library/talk/transcript.vtt", "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nhello\n")
	store := &growingStore{
		LocalStore: f.drive,
		growing:    map[string]int64{"library/talk/transcript.vtt": 0},
	}
	f.scanner = New(store, f.videos, Options{Root: testRoot})

	if _, err := f.scanner.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	rec := f.get(t, "library/talk")
	if rec.Status != storage.StatusReady {
		t.Errorf("status = %s, want READY from the stable summary", rec.Status)
	}
	if len(rec.TextPaths) != 1 || rec.TextPaths[0].Path != "library/talk/summary.md" {
		t.Errorf("text paths = %+v, want only the stable summary", rec.TextPaths)
	}
	if rec.Fingerprint == "" {
		t.Error("READY record has no fingerprint")
	}
}

func TestRunOnce_DuplicateDeclaredTextsCollapsed(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "library/talk/video.mp4", "x")
	f.write(t, "library/talk/summary.md", "summary")
	f.write(t, "library/talk/meta.json",
		`{"video_path": "video.mp4", "texts": ["summary.md", "summary.md"]}`)

	if _, err := f.scanner.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	rec := f.get(t, "library/talk")
	if rec.Status != storage.StatusReady {
		t.Errorf("status = %s, want READY", rec.Status)
	}
	if len(rec.TextPaths) != 1 {
		t.Errorf("text paths = %+v, want the duplicate declaration collapsed", rec.TextPaths)
	}
}

func TestRunOnce_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		files    map[string]string
		folder   string
		wantCode string
	}{
		{
			name:     "no video",
			files:    map[string]string{"library/empty/notes.txt": "x"},
			folder:   "library/empty",
			wantCode: CodeNoVideo,
		},
		{
			name: "multiple videos without meta",
			files: map[string]string{
				"library/double/a.mp4": "x",
				"library/double/b.mp4": "y",
			},
			folder:   "library/double",
			wantCode: CodeMultipleVideos,
		},
		{
			name:     "meta required",
			opts:     Options{AutoMetaMode: ModeOff},
			files:    map[string]string{"library/bare/video.mp4": "x"},
			folder:   "library/bare",
			wantCode: CodeMetaRequired,
		},
		{
			name: "bad meta json",
			files: map[string]string{
				"library/broken/video.mp4": "x",
				"library/broken/meta.json": "{not json",
			},
			folder:   "library/broken",
			wantCode: CodeBadMetaJSON,
		},
		{
			name: "meta escapes folder",
			files: map[string]string{
				"library/sneaky/video.mp4": "x",
				"library/sneaky/meta.json": `{"video_path": "../other/video.mp4"}`,
			},
			folder:   "library/sneaky",
			wantCode: CodeBadMetaJSON,
		},
		{
			name: "declared video missing",
			files: map[string]string{
				"library/ghost/meta.json": `{"video_path": "video.mp4"}`,
			},
			folder:   "library/ghost",
			wantCode: CodeVideoNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts)
			for path, content := range tt.files {
				f.write(t, path, content)
			}

			summary, err := f.scanner.RunOnce(context.Background())
			if err != nil {
				t.Fatalf("RunOnce() error = %v", err)
			}
			if summary.Errors != 1 {
				t.Errorf("Summary.Errors = %d, want 1", summary.Errors)
			}

			rec := f.get(t, tt.folder)
			if rec.Status != storage.StatusError {
				t.Errorf("status = %s, want ERROR", rec.Status)
			}
			if rec.ErrorCode != tt.wantCode {
				t.Errorf("error code = %s, want %s", rec.ErrorCode, tt.wantCode)
			}
			if rec.ErrorMessage == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestRunOnce_MetaDeclarationsWin(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "library/curated/main.mp4", "x")
	f.write(t, "library/curated/extra.mp4", "y")
	f.write(t, "library/curated/summary.md", "summary text")
	f.write(t, "library/curated/notes.md", "unclassified notes")
	f.write(t, "library/curated/meta.json",
		`{"title": "Curated Talk", "video_path": "main.mp4", "texts": ["summary.md"]}`)

	summary, err := f.scanner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.MetaFound != 1 || summary.Derived != 0 {
		t.Errorf("Summary = %+v", summary)
	}

	rec := f.get(t, "library/curated")
	if rec.Status != storage.StatusReady {
		t.Errorf("status = %s, want READY (meta picks among multiple videos)", rec.Status)
	}
	if rec.Title != "Curated Talk" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.VideoPath != "library/curated/main.mp4" {
		t.Errorf("video path = %q", rec.VideoPath)
	}
	if len(rec.TextPaths) != 1 || rec.TextPaths[0].Path != "library/curated/summary.md" {
		t.Errorf("text paths = %+v", rec.TextPaths)
	}
}

func TestRunOnce_TitleFileOverride(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "library/raw-upload/video.mp4", "x")
	f.write(t, "library/raw-upload/title.txt", "A Proper Display Title\n")
	f.write(t, "library/raw-upload/summary.md", "summary")

	if _, err := f.scanner.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	rec := f.get(t, "library/raw-upload")
	if rec.Title != "A Proper Display Title" {
		t.Errorf("title = %q, want title.txt content", rec.Title)
	}
}

func TestRunOnce_DeleteSweepAndRecreate(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "library/talk/video.mp4", "x")
	f.write(t, "library/talk/summary.md", "summary")
	ctx := context.Background()

	if _, err := f.scanner.RunOnce(ctx); err != nil {
		t.Fatalf("first RunOnce() error = %v", err)
	}
	if got := f.get(t, "library/talk"); got.Status != storage.StatusReady {
		t.Fatalf("status = %s, want READY", got.Status)
	}

	// Simulate folder removal by moving it out of the root.
	if err := f.drive.CreateDir(ctx, "attic"); err != nil {
		t.Fatalf("CreateDir() error = %v", err)
	}
	if err := f.drive.Move(ctx, "library/talk", "attic/talk", false); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	summary, err := f.scanner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce() error = %v", err)
	}
	if summary.Deleted != 1 {
		t.Errorf("Summary.Deleted = %d, want 1", summary.Deleted)
	}
	if got := f.get(t, "library/talk"); got.Status != storage.StatusDeleted {
		t.Errorf("status = %s, want DELETED", got.Status)
	}

	// Folder comes back: the soft-deleted row revives in place.
	if err := f.drive.Move(ctx, "attic/talk", "library/talk", false); err != nil {
		t.Fatalf("Move() back error = %v", err)
	}
	if _, err := f.scanner.RunOnce(ctx); err != nil {
		t.Fatalf("third RunOnce() error = %v", err)
	}
	if got := f.get(t, "library/talk"); got.Status != storage.StatusReady {
		t.Errorf("revived status = %s, want READY", got.Status)
	}
}

func TestRunOnce_UnchangedRescanWritesNothing(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "library/talk/video.mp4", "x")
	f.write(t, "library/talk/summary.md", "summary")
	ctx := context.Background()

	if _, err := f.scanner.RunOnce(ctx); err != nil {
		t.Fatalf("first RunOnce() error = %v", err)
	}
	first := f.get(t, "library/talk")

	if _, err := f.scanner.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce() error = %v", err)
	}
	second := f.get(t, "library/talk")

	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Errorf("unchanged rescan touched the row: %v vs %v", second.UpdatedAt, first.UpdatedAt)
	}
	if second.Fingerprint != first.Fingerprint {
		t.Errorf("fingerprint changed on unchanged rescan")
	}
}

func TestRunOnce_AutoOrganizeLooseVideo(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "library/holiday-clip.mp4", "x")

	summary, err := f.scanner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.Moved != 1 {
		t.Errorf("Summary.Moved = %d, want 1", summary.Moved)
	}

	rec := f.get(t, "library/holiday-clip")
	if rec.VideoPath != "library/holiday-clip/holiday-clip.mp4" {
		t.Errorf("video path = %q", rec.VideoPath)
	}
	if rec.Status != storage.StatusNeedsText {
		t.Errorf("status = %s, want NEEDS_TEXT (no texts yet)", rec.Status)
	}

	exists, err := f.drive.Exists(context.Background(), "library/holiday-clip.mp4")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("loose video still at root after auto-organize")
	}
}

func TestRunOnce_WriteModePersistsDerivedMeta(t *testing.T) {
	f := newFixture(t, Options{AutoMetaMode: ModeWrite})
	f.write(t, "library/talk/video.mp4", "x")
	f.write(t, "library/talk/summary.md", "summary")
	ctx := context.Background()

	if _, err := f.scanner.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	raw, err := f.drive.ReadText(ctx, "library/talk/meta.json")
	if err != nil {
		t.Fatalf("derived meta.json not written: %v", err)
	}
	md, err := ParseMetadata(raw)
	if err != nil {
		t.Fatalf("ParseMetadata() error = %v", err)
	}
	if md.VideoPath != "video.mp4" || md.Source != "derived" {
		t.Errorf("derived meta = %+v", md)
	}

	// Second cycle reads it back as authored metadata.
	summary, err := f.scanner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce() error = %v", err)
	}
	if summary.MetaFound != 1 || summary.Derived != 0 {
		t.Errorf("second cycle Summary = %+v", summary)
	}
}

func TestRunOnce_SnapshotWritten(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "library/talk/video.mp4", "x")
	f.write(t, "library/talk/summary.md", "A talk about vanishing points in art.")
	ctx := context.Background()

	if _, err := f.scanner.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	raw, err := f.drive.ReadText(ctx, "library/library_index.json")
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	var snap struct {
		SchemaVersion int `json:"schema_version"`
		Items         []struct {
			VideoID        string `json:"video_id"`
			Status         string `json:"status"`
			SummaryExcerpt string `json:"summary_excerpt"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if snap.SchemaVersion != 1 {
		t.Errorf("schema_version = %d, want 1", snap.SchemaVersion)
	}
	if len(snap.Items) != 1 {
		t.Fatalf("snapshot items = %d, want 1", len(snap.Items))
	}
	if snap.Items[0].Status != "READY" {
		t.Errorf("snapshot status = %q, want uppercase READY", snap.Items[0].Status)
	}
	if snap.Items[0].SummaryExcerpt == "" {
		t.Error("snapshot summary excerpt is empty")
	}

	// No leftover temp file.
	exists, err := f.drive.Exists(ctx, "library/library_index.json.tmp")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("snapshot temp file left behind")
	}
}

func TestRunOnce_MissingRootReturnsError(t *testing.T) {
	f := newFixture(t, Options{Root: "nonexistent"})
	f.write(t, "library/talk/video.mp4", "x")
	f.write(t, "library/talk/summary.md", "summary")

	// Seed a row, then fail the root listing: the row must survive.
	prev := f.scanner
	f.scanner = New(f.drive, f.videos, Options{Root: testRoot})
	if _, err := f.scanner.RunOnce(context.Background()); err != nil {
		t.Fatalf("seed RunOnce() error = %v", err)
	}
	f.scanner = prev

	if _, err := f.scanner.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() with missing root should fail")
	}
	if got := f.get(t, "library/talk"); got.Status != storage.StatusReady {
		t.Errorf("row status after failed cycle = %s, want READY untouched", got.Status)
	}
}
