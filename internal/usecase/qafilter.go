package usecase

import "manga-translate-pipeline/internal/domain/model"

type QAMode string

const (
	QAModeAuto   QAMode = "auto"
	QAModeStrict QAMode = "strict"
)

// QADecision is the outcome of classifying a page's structured data before
// Stage B. When Proceed is true, Filtered is the item list to render; when
// false, Reason explains why the page must wait for a human.
type QADecision struct {
	Proceed  bool
	Reason   string
	Filtered *model.PageLayout
}

// ClassifyLayout applies the QA gating policy. Strict mode blocks the whole
// page if any item needs confirmation, otherwise proceeds with the data
// unfiltered. Auto mode never blocks: items needing confirmation are
// silently dropped and rendering proceeds on the remainder.
func ClassifyLayout(layout *model.PageLayout, mode QAMode) QADecision {
	if mode == QAModeStrict {
		if layout.AnyNeedsConfirm() {
			return QADecision{Reason: "items need user confirmation"}
		}
		return QADecision{Proceed: true, Filtered: layout}
	}

	filtered := &model.PageLayout{Items: make([]model.LayoutItem, 0, len(layout.Items))}
	for _, it := range layout.Items {
		if it.NeedsConfirm() {
			continue
		}
		filtered.Items = append(filtered.Items, it)
	}
	return QADecision{Proceed: true, Filtered: filtered}
}
