// Package index keeps the hybrid search index synchronized with READY
// videos' text and answers top-K queries. All mutating operations and Search
// serialize on one mutex; the SQL chunk tables and the physical vector
// collection are always mutated together, never independently.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipdex/internal/contextutil"
	"clipdex/internal/drive"
	"clipdex/internal/embed"
	"clipdex/internal/fingerprint"
	"clipdex/internal/storage"
	"clipdex/internal/vectorstore"
)

// Config holds the index service settings.
type Config struct {
	// BaseCollection is the collection name prefix; generation N lives in
	// "<BaseCollection>_g<N>".
	BaseCollection string
	// VectorSize is the embedding dimension.
	VectorSize int
	// EmbeddingModel participates in the index version descriptor.
	EmbeddingModel string
	// SimThreshold is the score below which a best hit is low confidence.
	SimThreshold float64
	// CandidateMultiplier widens the vector search to top_k × multiplier
	// before per-video collapsing.
	CandidateMultiplier int
}

// Stats summarizes one indexing run.
type Stats struct {
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Indexed    int       `json:"indexed"`
	Removed    int       `json:"removed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

// Result is one ranked search hit. Hits are deduplicated per video.
type Result struct {
	Rank           int      `json:"rank"`
	VideoID        string   `json:"video_id"`
	Title          string   `json:"title"`
	Score          float32  `json:"score"`
	Snippet        string   `json:"snippet"`
	SourceTextType string   `json:"source_text_type"`
	StartSec       *float64 `json:"start_sec,omitempty"`
	EndSec         *float64 `json:"end_sec,omitempty"`
}

// Response is the full answer to a search query. Zero matches is a valid
// low-confidence response, not an error.
type Response struct {
	Query         string   `json:"query"`
	Threshold     float64  `json:"threshold"`
	LowConfidence bool     `json:"low_confidence"`
	Results       []Result `json:"results"`
}

// Service maintains the hybrid search index.
type Service struct {
	mu sync.Mutex

	db       *sql.DB
	videos   storage.VideoStore
	chunks   *storage.ChunkRepo
	states   *storage.IndexStateRepo
	metaRepo *storage.IndexMetaRepo
	drive    drive.Store
	embedder embed.Embedder
	vectors  vectorstore.VectorStore
	chunker  *Chunker
	cfg      Config

	generation int64
	// rebuildAttempted guards against retry storms: a full rebuild runs at
	// most once per process lifetime.
	rebuildAttempted bool
}

// NewService creates the index service.
func NewService(
	db *sql.DB,
	videos storage.VideoStore,
	chunks *storage.ChunkRepo,
	states *storage.IndexStateRepo,
	metaRepo *storage.IndexMetaRepo,
	driveStore drive.Store,
	embedder embed.Embedder,
	vectors vectorstore.VectorStore,
	cfg Config,
) *Service {
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 4
	}
	return &Service{
		db:       db,
		videos:   videos,
		chunks:   chunks,
		states:   states,
		metaRepo: metaRepo,
		drive:    driveStore,
		embedder: embedder,
		vectors:  vectors,
		chunker:  NewChunker(),
		cfg:      cfg,
	}
}

func (s *Service) collectionName(generation int64) string {
	return fmt.Sprintf("%s_g%d", s.cfg.BaseCollection, generation)
}

// EnsureReady loads the persisted index descriptor and prepares the live
// collection. A mismatch of schema version, chunking version, or embedding
// model forces a guarded full rebuild; a rebuild failure is logged and the
// last good index keeps serving.
func (s *Service) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger := contextutil.LoggerFromContext(ctx)

	meta, err := s.metaRepo.Load(ctx)
	if err == storage.ErrNotFound {
		meta = &storage.IndexMeta{
			SchemaVersion:   storage.SchemaVersion,
			ChunkingVersion: ChunkingVersion,
			EmbeddingModel:  s.cfg.EmbeddingModel,
			GenerationID:    1,
		}
		if err := s.metaRepo.Save(ctx, meta); err != nil {
			return fmt.Errorf("failed to initialize index meta: %w", err)
		}
		logger.InfoContext(ctx, "initialized index descriptor", "generation", meta.GenerationID)
	} else if err != nil {
		return fmt.Errorf("failed to load index meta: %w", err)
	}
	s.generation = meta.GenerationID

	if err := s.vectors.EnsureCollection(ctx, s.collectionName(s.generation), s.cfg.VectorSize); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	if meta.SchemaVersion != storage.SchemaVersion ||
		meta.ChunkingVersion != ChunkingVersion ||
		meta.EmbeddingModel != s.cfg.EmbeddingModel {
		logger.WarnContext(ctx, "index version mismatch, rebuilding",
			"stored_schema", meta.SchemaVersion, "schema", storage.SchemaVersion,
			"stored_chunking", meta.ChunkingVersion, "chunking", ChunkingVersion,
			"stored_model", meta.EmbeddingModel, "model", s.cfg.EmbeddingModel)
		if err := s.rebuildLocked(ctx, "index version mismatch"); err != nil {
			logger.ErrorContext(ctx, "rebuild failed, last good index keeps serving", "error", err)
		}
	}

	// A crash between a swap and its cleanup leaves backup tables behind;
	// sweep them together with the stale collections.
	if err := storage.DropBackupTables(ctx, s.db); err != nil {
		logger.WarnContext(ctx, "failed to drop leftover backup tables", "error", err)
	}
	s.gcStaleCollections(ctx)
	return nil
}

// LiveCollection returns the name of the collection currently serving reads.
func (s *Service) LiveCollection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectionName(s.generation)
}

// Meta returns the current index descriptor.
func (s *Service) Meta(ctx context.Context) (*storage.IndexMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metaRepo.Load(ctx)
}

// BuildOrUpdate re-chunks and re-embeds every READY video whose fingerprint
// differs from its last-indexed one (or all of them when forced), and removes
// chunks for previously-indexed videos that are no longer READY. When the
// catalog reports zero total or zero READY videos the update is skipped with
// a warning so a transient storage outage cannot empty a healthy index.
func (s *Service) BuildOrUpdate(ctx context.Context, force bool) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger := contextutil.LoggerFromContext(ctx)

	stats := &Stats{StartedAt: time.Now()}
	defer func() {
		stats.DurationMs = time.Since(stats.StartedAt).Milliseconds()
	}()

	counts, err := s.videos.Counts(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to count videos: %w", err)
	}
	if counts.Total == 0 || counts.Ready == 0 {
		logger.WarnContext(ctx, "catalog reports no indexable videos, skipping index update",
			"total", counts.Total, "ready", counts.Ready)
		return stats, nil
	}

	ready, err := s.videos.ListReady(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list ready videos: %w", err)
	}
	states, err := s.states.ListAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list index states: %w", err)
	}

	readySet := make(map[string]struct{}, len(ready))
	for _, video := range ready {
		readySet[video.ID] = struct{}{}

		if !force && video.Fingerprint != "" && states[video.ID] == video.Fingerprint {
			stats.Skipped++
			continue
		}

		if err := s.indexVideoInto(ctx, video, s.chunks, s.states, s.collectionName(s.generation)); err != nil {
			if storage.IsIntegrityViolation(err) {
				logger.ErrorContext(ctx, "chunk table integrity violation, rebuilding", "video_id", video.ID, "error", err)
				if rerr := s.rebuildLocked(ctx, "chunk table integrity violation"); rerr != nil {
					return stats, rerr
				}
				return stats, nil
			}
			logger.ErrorContext(ctx, "failed to index video", "video_id", video.ID, "error", err)
			stats.Failed++
			continue
		}
		stats.Indexed++
	}

	for videoID := range states {
		if _, stillReady := readySet[videoID]; stillReady {
			continue
		}
		if err := s.removeVideoLocked(ctx, videoID); err != nil {
			logger.ErrorContext(ctx, "failed to remove stale video from index", "video_id", videoID, "error", err)
			stats.Failed++
			continue
		}
		stats.Removed++
	}

	logger.InfoContext(ctx, "index update completed",
		"indexed", stats.Indexed, "removed", stats.Removed,
		"skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}

// IndexVideo is the single-video incremental variant, used right after an
// upload or transcript arrival. A video that is not READY is removed from
// the index instead.
func (s *Service) IndexVideo(ctx context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, err := s.videos.Get(ctx, videoID)
	if err != nil {
		return err
	}
	if video.Status != storage.StatusReady {
		return s.removeVideoLocked(ctx, videoID)
	}

	if err := s.indexVideoInto(ctx, video, s.chunks, s.states, s.collectionName(s.generation)); err != nil {
		if storage.IsIntegrityViolation(err) {
			return s.rebuildLocked(ctx, "chunk table integrity violation")
		}
		return err
	}
	return nil
}

// RemoveVideo removes a video's chunks from the index.
func (s *Service) RemoveVideo(ctx context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeVideoLocked(ctx, videoID)
}

// Size returns the number of live chunks in the index.
func (s *Service) Size(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks.Count(ctx)
}

// indexVideoInto re-chunks and re-embeds one video into the given chunk and
// state tables and vector collection. The live update path and the rebuild
// staging path share this code; only the targets differ.
func (s *Service) indexVideoInto(
	ctx context.Context,
	video *storage.VideoRecord,
	chunks *storage.ChunkRepo,
	states *storage.IndexStateRepo,
	collection string,
) error {
	logger := contextutil.LoggerFromContext(ctx)

	pieces, err := s.chunkVideo(ctx, video)
	if err != nil {
		return err
	}
	if len(pieces) == 0 {
		logger.WarnContext(ctx, "no chunks produced, removing video from index", "video_id", video.ID)
		return s.removeFrom(ctx, video.ID, chunks, states, collection)
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	embeddings, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(pieces) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(pieces), len(embeddings))
	}

	// Old chunks go first so the video is never double-indexed.
	if err := s.removeFrom(ctx, video.ID, chunks, states, collection); err != nil {
		return err
	}

	records := make([]*storage.ChunkRecord, len(pieces))
	points := make([]vectorstore.Point, len(pieces))
	for i, piece := range pieces {
		chunkID := uuid.New().String()
		records[i] = &storage.ChunkRecord{
			ID:       chunkID,
			VideoID:  video.ID,
			Seq:      piece.Seq,
			Source:   piece.Source,
			Text:     piece.Text,
			StartSec: piece.StartSec,
			EndSec:   piece.EndSec,
		}
		meta := map[string]any{
			"video_id": video.ID,
			"source":   piece.Source,
			"seq":      piece.Seq,
		}
		if piece.StartSec != nil {
			meta["start_sec"] = *piece.StartSec
		}
		if piece.EndSec != nil {
			meta["end_sec"] = *piece.EndSec
		}
		points[i] = vectorstore.Point{ID: chunkID, Vec: embeddings[i], Meta: meta}
	}

	if err := chunks.InsertBatch(ctx, records); err != nil {
		return err
	}
	if err := s.vectors.Upsert(ctx, collection, points); err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	if err := states.Put(ctx, video.ID, video.Fingerprint); err != nil {
		return err
	}

	logger.InfoContext(ctx, "indexed video", "video_id", video.ID, "chunks", len(pieces))
	return nil
}

// chunkVideo reads a video's text sources from the drive and chunks them.
// A text file that vanished since the scan is skipped; the next scan cycle
// reconciles the catalog.
func (s *Service) chunkVideo(ctx context.Context, video *storage.VideoRecord) ([]Chunk, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var all []Chunk
	for _, text := range video.TextPaths {
		content, err := s.drive.ReadText(ctx, text.Path)
		if err != nil {
			if drive.IsNotFound(err) {
				logger.WarnContext(ctx, "text source vanished, skipping", "video_id", video.ID, "path", text.Path)
				continue
			}
			return nil, fmt.Errorf("failed to read text source %s: %w", text.Path, err)
		}
		for _, chunk := range s.chunker.ChunkText(content, fingerprint.TextKind(text.Kind)) {
			chunk.Seq = len(all)
			all = append(all, chunk)
		}
	}
	return all, nil
}

// removeVideoLocked removes a video's chunks from the live tables and collection.
func (s *Service) removeVideoLocked(ctx context.Context, videoID string) error {
	return s.removeFrom(ctx, videoID, s.chunks, s.states, s.collectionName(s.generation))
}

func (s *Service) removeFrom(
	ctx context.Context,
	videoID string,
	chunks *storage.ChunkRepo,
	states *storage.IndexStateRepo,
	collection string,
) error {
	ids, err := chunks.ListIDsByVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		if err := s.vectors.Delete(ctx, collection, ids); err != nil {
			return fmt.Errorf("failed to delete vectors: %w", err)
		}
		if err := chunks.DeleteByVideo(ctx, videoID); err != nil {
			return err
		}
	}
	return states.Delete(ctx, videoID)
}

// Search embeds a lightly expanded query, retrieves top_k × multiplier
// candidate chunks, collapses to the best chunk per video, applies the
// capped lexical boost, and returns ranked per-video hits. A search arriving
// mid-rebuild blocks on the mutex until the swap commits, then observes the
// new generation.
func (s *Service) Search(ctx context.Context, query string, topK int) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger := contextutil.LoggerFromContext(ctx)

	if topK <= 0 {
		topK = 5
	}
	if topK > 20 {
		topK = 20
	}

	resp := &Response{
		Query:         query,
		Threshold:     s.cfg.SimThreshold,
		LowConfidence: true,
		Results:       []Result{},
	}

	embeddings, err := s.embedder.EmbedTexts(ctx, []string{expandQuery(query)})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}

	hits, err := s.vectors.Search(ctx, s.collectionName(s.generation), embeddings[0], topK*s.cfg.CandidateMultiplier)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	if len(hits) == 0 {
		logger.InfoContext(ctx, "search found no candidates", "query", query)
		return resp, nil
	}

	// Collapse to the single best-scoring chunk per video.
	type candidate struct {
		hit        vectorstore.SearchResult
		videoID    string
		title      string
		chunk      *storage.ChunkRecord
		boosted    float32
		titleMatch bool
	}
	bestPerVideo := make(map[string]vectorstore.SearchResult)
	for _, hit := range hits {
		videoID, _ := hit.Meta["video_id"].(string)
		if videoID == "" {
			continue
		}
		if prev, ok := bestPerVideo[videoID]; !ok || hit.Score > prev.Score {
			bestPerVideo[videoID] = hit
		}
	}

	tokens := queryTokens(query)
	candidates := make([]candidate, 0, len(bestPerVideo))
	for videoID, hit := range bestPerVideo {
		chunk, err := s.chunks.GetByID(ctx, hit.PointID)
		if err != nil {
			logger.WarnContext(ctx, "failed to hydrate chunk", "chunk_id", hit.PointID, "error", err)
			continue
		}
		video, err := s.videos.Get(ctx, videoID)
		if err != nil {
			logger.WarnContext(ctx, "failed to hydrate video", "video_id", videoID, "error", err)
			continue
		}
		if video.Status != storage.StatusReady {
			continue
		}

		boost, titleMatch := lexicalBoost(tokens, video.Title, chunk.Text)
		candidates = append(candidates, candidate{
			hit:        hit,
			videoID:    videoID,
			title:      video.Title,
			chunk:      chunk,
			boosted:    hit.Score + boost,
			titleMatch: titleMatch,
		})
	}

	// A title match always outranks non-title matches.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].titleMatch != candidates[j].titleMatch {
			return candidates[i].titleMatch
		}
		return candidates[i].boosted > candidates[j].boosted
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	for i, c := range candidates {
		resp.Results = append(resp.Results, Result{
			Rank:           i + 1,
			VideoID:        c.videoID,
			Title:          c.title,
			Score:          c.boosted,
			Snippet:        buildSnippet(c.chunk.Text, query),
			SourceTextType: c.chunk.Source,
			StartSec:       c.chunk.StartSec,
			EndSec:         c.chunk.EndSec,
		})
	}
	// Confidence is judged on the raw dense score; the lexical boost only
	// reorders the list and must not mask a weak semantic match.
	for _, c := range candidates {
		if float64(c.hit.Score) >= s.cfg.SimThreshold {
			resp.LowConfidence = false
			break
		}
	}

	logger.InfoContext(ctx, "search completed", "query", query, "results", len(resp.Results), "low_confidence", resp.LowConfidence)
	return resp, nil
}
