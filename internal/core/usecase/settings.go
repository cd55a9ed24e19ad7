package usecase

import (
	"context"
	"strconv"

	"github.com/mkravchenko/groundedqa/internal/core/ports"
)

// Settings keys the core consumes from the settings store.
const (
	SettingChunkSize          = "chunk_size"
	SettingChunkOverlap       = "chunk_overlap"
	SettingDefaultTopK        = "default_top_k"
	SettingDefaultRerankTop   = "default_rerank_top"
	SettingMaxAgentIterations = "max_agent_iterations"
	SettingRRFK               = "rrf_k"
	SettingShortDocThreshold  = "summarizer_short_doc_threshold"
	SettingMaxSectionSize     = "summarizer_max_section_size"
	SettingMinSectionSize     = "summarizer_min_section_size"
	SettingMaxConcurrent      = "summarizer_max_concurrent"
	SettingPromptSummary      = "prompt_summary"
	SettingPromptQA           = "prompt_qa"
)

// Settings is the resolved runtime configuration for one job. Values fall
// back to the documented defaults when a key is absent or malformed.
type Settings struct {
	ChunkSize          int
	ChunkOverlap       int
	DefaultTopK        int
	DefaultRerankTop   int
	MaxAgentIterations int
	RRFK               int

	ShortDocThreshold int
	MaxSectionSize    int
	MinSectionSize    int
	MaxConcurrent     int

	PromptSummary string
	PromptQA      string
}

func DefaultSettings() Settings {
	return Settings{
		ChunkSize:          512,
		ChunkOverlap:       50,
		DefaultTopK:        10,
		DefaultRerankTop:   5,
		MaxAgentIterations: 3,
		RRFK:               60,
		ShortDocThreshold:  12000,
		MaxSectionSize:     15000,
		MinSectionSize:     500,
		MaxConcurrent:      5,
	}
}

// LoadSettings resolves all runtime settings in one pass. Store errors are
// not fatal for individual keys; the default wins.
func LoadSettings(ctx context.Context, store ports.SettingsStore) Settings {
	s := DefaultSettings()
	if store == nil {
		return s
	}
	s.ChunkSize = intSetting(ctx, store, SettingChunkSize, s.ChunkSize)
	s.ChunkOverlap = intSetting(ctx, store, SettingChunkOverlap, s.ChunkOverlap)
	s.DefaultTopK = intSetting(ctx, store, SettingDefaultTopK, s.DefaultTopK)
	s.DefaultRerankTop = intSetting(ctx, store, SettingDefaultRerankTop, s.DefaultRerankTop)
	s.MaxAgentIterations = intSetting(ctx, store, SettingMaxAgentIterations, s.MaxAgentIterations)
	s.RRFK = intSetting(ctx, store, SettingRRFK, s.RRFK)
	s.ShortDocThreshold = intSetting(ctx, store, SettingShortDocThreshold, s.ShortDocThreshold)
	s.MaxSectionSize = intSetting(ctx, store, SettingMaxSectionSize, s.MaxSectionSize)
	s.MinSectionSize = intSetting(ctx, store, SettingMinSectionSize, s.MinSectionSize)
	s.MaxConcurrent = intSetting(ctx, store, SettingMaxConcurrent, s.MaxConcurrent)

	if v, ok, err := store.Get(ctx, SettingPromptSummary); err == nil && ok {
		s.PromptSummary = v
	}
	if v, ok, err := store.Get(ctx, SettingPromptQA); err == nil && ok {
		s.PromptQA = v
	}
	return s
}

func intSetting(ctx context.Context, store ports.SettingsStore, key string, fallback int) int {
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
