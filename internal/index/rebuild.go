package index

import (
	"context"
	"fmt"
	"strings"

	"clipdex/internal/contextutil"
	"clipdex/internal/storage"
)

// rebuildLocked rebuilds the whole index into staging tables and a
// next-generation collection, then atomically swaps them live. The caller
// must hold s.mu. Until the swap commits the old generation keeps serving;
// a failure anywhere before the swap leaves it untouched. At most one
// rebuild attempt runs per process lifetime.
func (s *Service) rebuildLocked(ctx context.Context, reason string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if s.rebuildAttempted {
		return fmt.Errorf("rebuild already attempted this process (reason: %s)", reason)
	}
	s.rebuildAttempted = true

	oldGeneration := s.generation
	nextGeneration := oldGeneration + 1
	staging := s.collectionName(nextGeneration)
	logger.InfoContext(ctx, "starting index rebuild",
		"reason", reason, "generation", oldGeneration, "next_generation", nextGeneration)

	if err := storage.ResetRebuildTables(ctx, s.db); err != nil {
		return fmt.Errorf("failed to reset rebuild tables: %w", err)
	}
	if err := s.vectors.DeleteCollection(ctx, staging); err != nil {
		return fmt.Errorf("failed to clear staging collection: %w", err)
	}
	if err := s.vectors.EnsureCollection(ctx, staging, s.cfg.VectorSize); err != nil {
		return fmt.Errorf("failed to create staging collection: %w", err)
	}

	stagingChunks := s.chunks.Staging()
	stagingStates := s.states.Staging()

	ready, err := s.videos.ListReady(ctx)
	if err != nil {
		return fmt.Errorf("failed to list ready videos: %w", err)
	}
	indexed := 0
	for _, video := range ready {
		if err := s.indexVideoInto(ctx, video, stagingChunks, stagingStates, staging); err != nil {
			logger.ErrorContext(ctx, "failed to index video during rebuild", "video_id", video.ID, "error", err)
			continue
		}
		indexed++
	}
	if len(ready) > 0 && indexed == 0 {
		return fmt.Errorf("rebuild indexed none of %d ready videos, keeping current index", len(ready))
	}

	newGeneration, err := storage.SwapRebuildTables(ctx, s.db)
	if err != nil {
		return fmt.Errorf("failed to swap rebuild tables: %w", err)
	}
	s.generation = newGeneration

	meta := &storage.IndexMeta{
		SchemaVersion:   storage.SchemaVersion,
		ChunkingVersion: ChunkingVersion,
		EmbeddingModel:  s.cfg.EmbeddingModel,
		GenerationID:    newGeneration,
	}
	if err := s.metaRepo.Save(ctx, meta); err != nil {
		return fmt.Errorf("failed to save index meta after swap: %w", err)
	}

	// Cleanup after the swap is best effort; stale artifacts are swept on
	// the next startup.
	if err := s.vectors.DeleteCollection(ctx, s.collectionName(oldGeneration)); err != nil {
		logger.WarnContext(ctx, "failed to delete old collection", "collection", s.collectionName(oldGeneration), "error", err)
	}
	if err := storage.DropBackupTables(ctx, s.db); err != nil {
		logger.WarnContext(ctx, "failed to drop backup tables", "error", err)
	}

	logger.InfoContext(ctx, "index rebuild completed", "generation", newGeneration, "indexed", indexed)
	return nil
}

// gcStaleCollections deletes collections left behind by rebuilds that died
// before cleanup: anything matching "<base>_g<N>" for a generation other
// than the live one. Failures only log; stale collections cost space, not
// correctness.
func (s *Service) gcStaleCollections(ctx context.Context) {
	logger := contextutil.LoggerFromContext(ctx)

	names, err := s.vectors.ListCollections(ctx)
	if err != nil {
		logger.WarnContext(ctx, "failed to list collections for cleanup", "error", err)
		return
	}
	prefix := s.cfg.BaseCollection + "_g"
	live := s.collectionName(s.generation)
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) || name == live {
			continue
		}
		if err := s.vectors.DeleteCollection(ctx, name); err != nil {
			logger.WarnContext(ctx, "failed to delete stale collection", "collection", name, "error", err)
			continue
		}
		logger.InfoContext(ctx, "deleted stale collection", "collection", name)
	}
}
