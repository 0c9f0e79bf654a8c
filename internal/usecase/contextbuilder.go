package usecase

import (
	"context"
	"encoding/json"
	"strings"

	"manga-translate-pipeline/internal/domain/model"
	"manga-translate-pipeline/internal/domain/ports/repository"
	"manga-translate-pipeline/internal/domain/ports/storage"
)

// neighborSummaryLimit bounds each neighbor summary to keep the Stage A
// prompt small.
const neighborSummaryLimit = 500

// ContextBuilder assembles the auxiliary text sent with a Stage A request:
// summaries of the neighboring pages' extracted text plus directionality
// hints from the effective configuration. It is best-effort enrichment:
// a missing or unparseable neighbor contributes nothing.
type ContextBuilder struct {
	pages     repository.PageRepository
	artifacts storage.ArtifactStore
}

func NewContextBuilder(pages repository.PageRepository, artifacts storage.ArtifactStore) *ContextBuilder {
	return &ContextBuilder{pages: pages, artifacts: artifacts}
}

// Build returns the context string for a page: previous-page summary, then
// next-page summary, then config hints, newline-joined.
func (b *ContextBuilder) Build(ctx context.Context, page *model.Page, eff Effective) string {
	var parts []string
	if s, ok := b.neighborSummary(ctx, page.JobID, page.PageIndex-1); ok && s != "" {
		parts = append(parts, "上一页摘要: "+s)
	}
	if s, ok := b.neighborSummary(ctx, page.JobID, page.PageIndex+1); ok && s != "" {
		parts = append(parts, "下一页摘要: "+s)
	}
	parts = append(parts, "reading_direction="+eff.String("reading_direction", "auto"))
	return strings.Join(parts, "\n")
}

// neighborSummary concatenates the neighbor's extracted text fields in item
// order, preferring cn_text and falling back to jp_text. The ok result is
// false when the neighbor does not exist or has no readable Stage A
// artifact; every failure path degrades to an absent summary.
func (b *ContextBuilder) neighborSummary(ctx context.Context, jobID string, pageIndex int) (string, bool) {
	if pageIndex < 1 {
		return "", false
	}
	neighbor, err := b.pages.FindByJobAndIndex(ctx, nil, jobID, pageIndex)
	if err != nil || neighbor.JSONPath == "" {
		return "", false
	}
	raw, err := b.artifacts.Read(neighbor.JSONPath)
	if err != nil {
		return "", false
	}
	var layout model.PageLayout
	if err := json.Unmarshal(raw, &layout); err != nil {
		return "", false
	}

	texts := make([]string, 0, len(layout.Items))
	for _, it := range layout.Items {
		switch {
		case it.CNText != "":
			texts = append(texts, it.CNText)
		case it.JPText != "":
			texts = append(texts, it.JPText)
		}
	}
	return truncateRunes(strings.Join(texts, " "), neighborSummaryLimit), true
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
