package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

// setRequired sets the minimum viable environment for Load.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DRIVE_BACKEND", "local")
	t.Setenv("DRIVE_LOCAL_PATH", t.TempDir())
	t.Setenv("QDRANT_VECTOR_SIZE", "768")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "catalog.db"))
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ScanInterval != 5*time.Minute {
		t.Errorf("ScanInterval = %v, want 5m", cfg.ScanInterval)
	}
	if cfg.StabilityDelay != 2*time.Second {
		t.Errorf("StabilityDelay = %v, want 2s", cfg.StabilityDelay)
	}
	if cfg.SimThreshold != 0.35 {
		t.Errorf("SimThreshold = %v, want 0.35", cfg.SimThreshold)
	}
	if cfg.CandidateMultiplier != 4 {
		t.Errorf("CandidateMultiplier = %d, want 4", cfg.CandidateMultiplier)
	}
	if cfg.AutoMetaMode != "derive" {
		t.Errorf("AutoMetaMode = %s, want derive", cfg.AutoMetaMode)
	}
	if cfg.QdrantVectorSize != 768 {
		t.Errorf("QdrantVectorSize = %d, want 768", cfg.QdrantVectorSize)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.DriveRoot != "videos" {
		t.Errorf("DriveRoot = %s, want videos", cfg.DriveRoot)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SCAN_INTERVAL", "30s")
	t.Setenv("SIM_THRESHOLD", "0.5")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("AUTO_META_MODE", "write")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ScanInterval != 30*time.Second {
		t.Errorf("ScanInterval = %v, want 30s", cfg.ScanInterval)
	}
	if cfg.SimThreshold != 0.5 {
		t.Errorf("SimThreshold = %v, want 0.5", cfg.SimThreshold)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "json" {
		t.Errorf("log config = %v/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.AutoMetaMode != "write" {
		t.Errorf("AutoMetaMode = %s, want write", cfg.AutoMetaMode)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"minio backend requires keys", map[string]string{
			"DRIVE_BACKEND": "minio",
		}},
		{"local backend requires path", map[string]string{
			"DRIVE_BACKEND":    "local",
			"DRIVE_LOCAL_PATH": "",
		}},
		{"unknown backend", map[string]string{
			"DRIVE_BACKEND": "gopherfs",
		}},
		{"missing vector size", map[string]string{
			"QDRANT_VECTOR_SIZE": "",
		}},
		{"non-numeric vector size", map[string]string{
			"QDRANT_VECTOR_SIZE": "lots",
		}},
		{"zero vector size", map[string]string{
			"QDRANT_VECTOR_SIZE": "0",
		}},
		{"bad auto meta mode", map[string]string{
			"AUTO_META_MODE": "sometimes",
		}},
		{"negative scan interval", map[string]string{
			"SCAN_INTERVAL": "-1m",
		}},
		{"zero candidate multiplier", map[string]string{
			"SEARCH_CANDIDATE_MULTIPLIER": "0",
		}},
		{"bad log level", map[string]string{
			"LOG_LEVEL": "loud",
		}},
		{"bad log format", map[string]string{
			"LOG_FORMAT": "yaml",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load() error = nil, want validation error")
			}
		})
	}
}
