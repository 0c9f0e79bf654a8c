package model

// Stage A produces a structured layout: one item per text region of the
// source page. Field names are the wire format shared with the extraction
// model and the page editor, so they stay snake_case.

const ActionReplace = "replace"

type LayoutItem struct {
	JPText           string    `json:"jp_text,omitempty"`
	CNText           string    `json:"cn_text,omitempty"`
	Action           string    `json:"action,omitempty"`
	BBox             []float64 `json:"bbox,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	NeedsUserConfirm bool      `json:"needs_user_confirm,omitempty"`
}

// NeedsConfirm reports whether the item is ineligible for automatic
// rendering: either the model flagged it, or it asks to replace text with
// nothing.
func (it LayoutItem) NeedsConfirm() bool {
	return it.NeedsUserConfirm || (it.Action == ActionReplace && it.CNText == "")
}

type PageLayout struct {
	Items []LayoutItem `json:"items"`
}

// AnyNeedsConfirm reports whether any item blocks automatic rendering.
func (l *PageLayout) AnyNeedsConfirm() bool {
	for _, it := range l.Items {
		if it.NeedsConfirm() {
			return true
		}
	}
	return false
}
