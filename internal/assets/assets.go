// Package assets holds the static prompt and schema files shipped with the
// binary. They are loaded once at startup and reused for every call.
package assets

import _ "embed"

//go:embed prompts/stage_a.txt
var StageAPrompt string

//go:embed prompts/stage_b.txt
var StageBPrompt string

//go:embed prompts/layout_schema.json
var LayoutSchema []byte
