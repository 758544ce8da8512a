// Package scan converges the relational catalog to the current state of the
// remote drive. Each cycle walks every video folder, derives or validates its
// metadata, runs the upload stability check, computes a content fingerprint,
// and upserts the catalog row with a lifecycle status. Every per-folder
// failure is classified and recorded on its row; a cycle always completes.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clipdex/internal/contextutil"
	"clipdex/internal/drive"
	"clipdex/internal/fingerprint"
	"clipdex/internal/storage"
)

// Auto-meta modes for folders without a meta.json.
const (
	ModeWrite  = "write"  // derive metadata and write meta.json back
	ModeDerive = "derive" // derive metadata in memory only
	ModeOff    = "off"    // require meta.json
)

// Options configures a Scanner.
type Options struct {
	// Root is the drive folder containing one sub-folder per video.
	Root string
	// AutoMetaMode governs folders without a meta.json.
	AutoMetaMode string
	// StabilityDelay is the debounce between the two metadata reads of the
	// stability check. Deliberately a fixed delay: the remote store has no
	// change-notification API.
	StabilityDelay time.Duration
}

// Scanner reconciles drive state into the video catalog.
type Scanner struct {
	drive  drive.Store
	videos storage.VideoStore
	opts   Options
}

// New creates a Scanner.
func New(store drive.Store, videos storage.VideoStore, opts Options) *Scanner {
	if opts.AutoMetaMode == "" {
		opts.AutoMetaMode = ModeDerive
	}
	return &Scanner{drive: store, videos: videos, opts: opts}
}

// Summary counts the outcomes of one scan cycle.
type Summary struct {
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Scanned    int       `json:"scanned"`
	MetaFound  int       `json:"meta_found"`
	Derived    int       `json:"derived"`
	Ready      int       `json:"ready"`
	NeedsText  int       `json:"needs_text"`
	Errors     int       `json:"errors"`
	Deleted    int       `json:"deleted"`
	Moved      int       `json:"moved"`
}

// textSource is a resolved text file with its kind.
type textSource struct {
	path string
	kind fingerprint.TextKind
}

// folderOutcome is the result of scanning one folder.
type folderOutcome struct {
	record    *storage.VideoRecord
	metaFound bool
	derived   bool
	excerpt   string
	// skip marks a folder that vanished mid-scan; its row is left alone
	// until the next cycle decides whether it is really gone.
	skip bool
}

// RunOnce performs one full reconciliation cycle. It returns an error only
// when the root listing itself fails; every per-folder problem is recorded
// on that folder's catalog row and the cycle continues.
func (s *Scanner) RunOnce(ctx context.Context) (*Summary, error) {
	logger := contextutil.LoggerFromContext(ctx)
	summary := &Summary{StartedAt: time.Now()}
	defer func() {
		summary.DurationMs = time.Since(summary.StartedAt).Milliseconds()
	}()

	moved, failedMoves, err := s.autoOrganize(ctx)
	if err != nil {
		// Without a root listing nothing can be reconciled this cycle.
		// Importantly, nothing is marked DELETED on a transient outage.
		return summary, fmt.Errorf("failed to list scan root %s: %w", s.opts.Root, err)
	}
	summary.Moved = moved

	folders, err := s.drive.ListFolders(ctx, s.opts.Root)
	if err != nil {
		return summary, fmt.Errorf("failed to list folders under %s: %w", s.opts.Root, err)
	}

	seen := make([]string, 0, len(folders)+len(failedMoves))
	excerpts := make(map[string]string)

	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		var outcome folderOutcome
		if rec, ok := failedMoves[folder]; ok {
			outcome = folderOutcome{record: rec}
			delete(failedMoves, folder)
		} else {
			outcome = s.scanFolder(ctx, folder)
		}

		if outcome.skip {
			seen = append(seen, folder)
			continue
		}

		rec := outcome.record
		summary.Scanned++
		if outcome.metaFound {
			summary.MetaFound++
		}
		if outcome.derived {
			summary.Derived++
		}
		switch rec.Status {
		case storage.StatusReady:
			summary.Ready++
		case storage.StatusNeedsText:
			summary.NeedsText++
		case storage.StatusError:
			summary.Errors++
		}
		if outcome.excerpt != "" {
			excerpts[rec.ID] = outcome.excerpt
		}

		seen = append(seen, rec.ID)
		if err := s.upsertIfChanged(ctx, rec); err != nil {
			logger.ErrorContext(ctx, "failed to upsert video", "video_id", rec.ID, "error", err)
		}
	}

	// Folders that failed auto-organize but never showed up in the listing
	// (the CreateDir itself failed) still get their error row.
	for folder, rec := range failedMoves {
		summary.Scanned++
		summary.Errors++
		seen = append(seen, folder)
		if err := s.upsertIfChanged(ctx, rec); err != nil {
			logger.ErrorContext(ctx, "failed to upsert video", "video_id", rec.ID, "error", err)
		}
	}

	deleted, err := s.videos.MarkDeletedExcept(ctx, seen)
	if err != nil {
		logger.ErrorContext(ctx, "failed to sweep deleted videos", "error", err)
	}
	summary.Deleted = deleted

	if err := s.writeSnapshot(ctx, excerpts); err != nil {
		logger.WarnContext(ctx, "failed to write library index snapshot", "error", err)
	}

	logger.InfoContext(ctx, "scan cycle completed",
		"scanned", summary.Scanned,
		"meta_found", summary.MetaFound,
		"derived", summary.Derived,
		"ready", summary.Ready,
		"needs_text", summary.NeedsText,
		"errors", summary.Errors,
		"deleted", summary.Deleted,
		"moved", summary.Moved,
	)
	return summary, nil
}

// autoOrganize moves video files sitting directly in the root into a new
// per-video folder named after the file stem. A failed move is recorded as
// NO_PERMISSION_MOVE on that folder without aborting the scan.
func (s *Scanner) autoOrganize(ctx context.Context) (int, map[string]*storage.VideoRecord, error) {
	logger := contextutil.LoggerFromContext(ctx)

	entries, err := s.drive.ListDir(ctx, s.opts.Root)
	if err != nil {
		return 0, nil, err
	}

	moved := 0
	failed := make(map[string]*storage.VideoRecord)
	for _, e := range entries {
		if e.Type != drive.EntryFile || !isVideoFile(e.Name) {
			continue
		}

		folder := drive.Join(s.opts.Root, drive.Stem(e.Name))
		dst := drive.Join(folder, e.Name)

		if err := s.drive.CreateDir(ctx, folder); err != nil {
			logger.WarnContext(ctx, "failed to create folder for loose video", "video", e.Path, "error", err)
			failed[folder] = s.errorRecord(folder, folderErrorf(CodeNoPermissionMove,
				"could not create folder for %s: %v", e.Name, err))
			continue
		}
		if err := s.drive.Move(ctx, e.Path, dst, false); err != nil {
			logger.WarnContext(ctx, "failed to move loose video", "video", e.Path, "error", err)
			failed[folder] = s.errorRecord(folder, folderErrorf(CodeNoPermissionMove,
				"could not move %s into %s: %v", e.Name, folder, err))
			continue
		}

		logger.InfoContext(ctx, "organized loose video into folder", "video", e.Name, "folder", folder)
		moved++
	}
	return moved, failed, nil
}

// scanFolder derives the catalog row for one folder. All classified failures
// come back as an ERROR record; only a folder that vanished mid-scan is
// skipped entirely.
func (s *Scanner) scanFolder(ctx context.Context, folder string) folderOutcome {
	logger := contextutil.LoggerFromContext(ctx)

	entries, err := s.drive.ListDir(ctx, folder)
	if err != nil {
		if drive.IsNotFound(err) {
			logger.InfoContext(ctx, "folder vanished mid-scan, deferring to next cycle", "folder", folder)
			return folderOutcome{skip: true}
		}
		return folderOutcome{record: s.errorRecord(folder,
			folderErrorf(CodeNetwork, "listing %s: %v", folder, err))}
	}

	var metaPath string
	var videoFiles []drive.Entry
	var texts []textSource
	for _, e := range entries {
		if e.Type != drive.EntryFile {
			continue
		}
		if strings.EqualFold(e.Name, MetaFileName) {
			metaPath = e.Path
			continue
		}
		if isVideoFile(e.Name) {
			videoFiles = append(videoFiles, e)
			continue
		}
		if kind, ok := classifyTextName(e.Name); ok {
			texts = append(texts, textSource{path: e.Path, kind: kind})
		}
	}

	out := folderOutcome{}
	title := titleFromStem(drive.Base(folder))
	var videoPath string

	if metaPath != "" {
		out.metaFound = true
		raw, err := s.drive.ReadText(ctx, metaPath)
		if err != nil {
			if drive.IsNotFound(err) {
				logger.InfoContext(ctx, "meta.json vanished mid-read, deferring to next cycle", "folder", folder)
				return folderOutcome{skip: true}
			}
			return folderOutcome{record: s.errorRecord(folder,
				folderErrorf(CodeNetwork, "reading %s: %v", metaPath, err)), metaFound: true}
		}

		md, err := ParseMetadata(raw)
		if err != nil {
			out.record = s.errorRecord(folder, folderErrorf(CodeBadMetaJSON, "%v", err))
			return out
		}
		if md.Title != "" {
			title = md.Title
		}
		videoPath, err = resolvePath(folder, md.VideoPath)
		if err != nil {
			out.record = s.errorRecord(folder, folderErrorf(CodeBadMetaJSON, "video_path: %v", err))
			return out
		}
		if len(md.Texts) > 0 {
			texts = texts[:0]
			declaredSeen := make(map[string]struct{}, len(md.Texts))
			for _, declared := range md.Texts {
				p, err := resolvePath(folder, declared)
				if err != nil {
					out.record = s.errorRecord(folder, folderErrorf(CodeBadMetaJSON, "texts: %v", err))
					return out
				}
				// A text listed twice would otherwise be fingerprinted and
				// chunked twice.
				if _, dup := declaredSeen[p]; dup {
					continue
				}
				declaredSeen[p] = struct{}{}
				kind, ok := classifyTextName(drive.Base(p))
				if !ok {
					kind = fingerprint.KindSummary
				}
				texts = append(texts, textSource{path: p, kind: kind})
			}
		}
	} else {
		switch s.opts.AutoMetaMode {
		case ModeOff:
			out.record = s.errorRecord(folder, folderErrorf(CodeMetaRequired,
				"no %s in %s and auto-meta is off", MetaFileName, folder))
			return out
		default:
			if len(videoFiles) == 0 {
				out.record = s.errorRecord(folder, folderErrorf(CodeNoVideo, "no video file in %s", folder))
				return out
			}
			if len(videoFiles) > 1 {
				names := make([]string, len(videoFiles))
				for i, v := range videoFiles {
					names[i] = v.Name
				}
				out.record = s.errorRecord(folder, folderErrorf(CodeMultipleVideos,
					"%d video files in %s: %s", len(videoFiles), folder, strings.Join(names, ", ")))
				return out
			}
			videoPath = videoFiles[0].Path
			out.derived = true
		}
	}

	// Title file wins over the folder-derived title when meta.json declares none.
	if title == titleFromStem(drive.Base(folder)) {
		for _, t := range texts {
			if strings.EqualFold(drive.Base(t.path), "title.txt") {
				if content, err := s.drive.ReadText(ctx, t.path); err == nil {
					if trimmed := strings.TrimSpace(content); trimmed != "" {
						title = trimmed
					}
				}
				break
			}
		}
	}

	videoStable, videoStat, stableTexts, ferr := s.stabilityCheck(ctx, videoPath, texts)
	if ferr != nil {
		out.record = s.errorRecord(folder, ferr)
		return out
	}

	rec := &storage.VideoRecord{
		ID:        folder,
		Title:     title,
		VideoPath: videoPath,
	}

	var fpTexts []fingerprint.TextEntry
	for _, t := range stableTexts {
		rec.TextPaths = append(rec.TextPaths, storage.TextPath{Path: t.source.path, Kind: string(t.source.kind)})
		fpTexts = append(fpTexts, fingerprint.TextEntry{
			Path: t.source.path,
			Stat: fingerprint.FileStat{Size: t.stat.Size, Modified: t.stat.Modified},
			Kind: t.source.kind,
		})
	}

	switch {
	case !videoStable:
		// Upload still in flight; promoted automatically once both reads agree.
		rec.Status = storage.StatusNeedsText
	case len(stableTexts) == 0:
		rec.Status = storage.StatusNeedsText
		rec.Fingerprint = fingerprint.Build(videoPath,
			fingerprint.FileStat{Size: videoStat.Size, Modified: videoStat.Modified}, nil)
	default:
		rec.Status = storage.StatusReady
		rec.Fingerprint = fingerprint.Build(videoPath,
			fingerprint.FileStat{Size: videoStat.Size, Modified: videoStat.Modified}, fpTexts)
	}
	out.record = rec

	if out.derived && s.opts.AutoMetaMode == ModeWrite {
		if err := s.writeDerivedMeta(ctx, folder, title, videoPath, texts); err != nil {
			logger.WarnContext(ctx, "failed to write derived meta.json", "folder", folder, "error", err)
		}
	}

	out.excerpt = s.summaryExcerpt(ctx, stableTexts)
	return out
}

// stableText pairs a text source with its confirmed metadata.
type stableText struct {
	source textSource
	stat   drive.Meta
}

// stabilityCheck re-reads size+mtime for the video and every text source
// after the configured delay. A file counts as stable only when both reads
// agree. Missing text files are dropped from the cycle; a missing video is
// a VIDEO_NOT_FOUND error.
func (s *Scanner) stabilityCheck(ctx context.Context, videoPath string, texts []textSource) (bool, drive.Meta, []stableText, *FolderError) {
	logger := contextutil.LoggerFromContext(ctx)

	first, ferr := s.statVideo(ctx, videoPath)
	if ferr != nil {
		return false, drive.Meta{}, nil, ferr
	}

	firstTexts := make(map[string]drive.Meta, len(texts))
	for _, t := range texts {
		meta, err := s.drive.GetMeta(ctx, t.path)
		if err != nil {
			if drive.IsNotFound(err) {
				logger.DebugContext(ctx, "declared text file missing, excluding from cycle", "path", t.path)
				continue
			}
			return false, drive.Meta{}, nil, folderErrorf(CodeNetwork, "stat %s: %v", t.path, err)
		}
		firstTexts[t.path] = meta
	}

	if err := s.wait(ctx); err != nil {
		return false, drive.Meta{}, nil, folderErrorf(CodeNetwork, "scan cancelled: %v", err)
	}

	second, ferr := s.statVideo(ctx, videoPath)
	if ferr != nil {
		return false, drive.Meta{}, nil, ferr
	}
	videoStable := metaEqual(first, second)

	var stable []stableText
	for _, t := range texts {
		before, ok := firstTexts[t.path]
		if !ok {
			continue
		}
		after, err := s.drive.GetMeta(ctx, t.path)
		if err != nil {
			if drive.IsNotFound(err) {
				logger.DebugContext(ctx, "text file vanished during stability check", "path", t.path)
				continue
			}
			return false, drive.Meta{}, nil, folderErrorf(CodeNetwork, "stat %s: %v", t.path, err)
		}
		if !metaEqual(before, after) {
			logger.DebugContext(ctx, "text file still uploading, excluding from cycle", "path", t.path)
			continue
		}
		stable = append(stable, stableText{source: t, stat: after})
	}

	return videoStable, second, stable, nil
}

func (s *Scanner) statVideo(ctx context.Context, videoPath string) (drive.Meta, *FolderError) {
	meta, err := s.drive.GetMeta(ctx, videoPath)
	if err != nil {
		if drive.IsNotFound(err) {
			return drive.Meta{}, folderErrorf(CodeVideoNotFound, "video file %s not found", videoPath)
		}
		return drive.Meta{}, folderErrorf(CodeNetwork, "stat %s: %v", videoPath, err)
	}
	return meta, nil
}

// wait sleeps for the stability delay, or returns early on cancellation.
func (s *Scanner) wait(ctx context.Context) error {
	if s.opts.StabilityDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.opts.StabilityDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func metaEqual(a, b drive.Meta) bool {
	return a.Size == b.Size && a.Modified.Equal(b.Modified)
}

// writeDerivedMeta persists the metadata derived for a folder so later
// cycles (and humans) see the same declaration.
func (s *Scanner) writeDerivedMeta(ctx context.Context, folder, title, videoPath string, texts []textSource) error {
	md := Metadata{
		Title:     title,
		VideoPath: drive.Base(videoPath),
		Source:    "derived",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, t := range texts {
		md.Texts = append(md.Texts, drive.Base(t.path))
	}

	raw, err := json.MarshalIndent(&md, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal meta.json: %w", err)
	}
	return s.drive.UploadText(ctx, drive.Join(folder, MetaFileName), string(raw)+"\n")
}

// summaryExcerpt reads the first stable summary source for the snapshot,
// skipping the title file. Best effort.
func (s *Scanner) summaryExcerpt(ctx context.Context, stable []stableText) string {
	for _, t := range stable {
		if t.source.kind != fingerprint.KindSummary {
			continue
		}
		if strings.EqualFold(drive.Base(t.source.path), "title.txt") {
			continue
		}
		content, err := s.drive.ReadText(ctx, t.source.path)
		if err != nil {
			continue
		}
		return excerpt(content, 200)
	}
	return ""
}

// excerpt collapses whitespace and truncates to limit runes.
func excerpt(text string, limit int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	return string(runes[:limit])
}

// upsertIfChanged writes the row only when something observable changed,
// so an unchanged rescan performs zero catalog writes.
func (s *Scanner) upsertIfChanged(ctx context.Context, rec *storage.VideoRecord) error {
	existing, err := s.videos.Get(ctx, rec.ID)
	if err != nil && err != storage.ErrNotFound {
		return fmt.Errorf("failed to check existing video: %w", err)
	}
	if existing != nil && recordsEquivalent(existing, rec) {
		return nil
	}
	return s.videos.Upsert(ctx, rec)
}

func recordsEquivalent(a, b *storage.VideoRecord) bool {
	if a.Status != b.Status || a.Fingerprint != b.Fingerprint ||
		a.Title != b.Title || a.VideoPath != b.VideoPath ||
		a.ErrorCode != b.ErrorCode || a.ErrorMessage != b.ErrorMessage {
		return false
	}
	if len(a.TextPaths) != len(b.TextPaths) {
		return false
	}
	for i := range a.TextPaths {
		if a.TextPaths[i] != b.TextPaths[i] {
			return false
		}
	}
	return true
}

// errorRecord builds an ERROR row for a folder.
func (s *Scanner) errorRecord(folder string, ferr *FolderError) *storage.VideoRecord {
	return &storage.VideoRecord{
		ID:           folder,
		Title:        titleFromStem(drive.Base(folder)),
		Status:       storage.StatusError,
		ErrorCode:    ferr.Code,
		ErrorMessage: ferr.Message,
	}
}
