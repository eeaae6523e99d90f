package domain

import "time"

// ModelRequest is a provider-neutral single-turn model call.
type ModelRequest struct {
	Instruction    string         `json:"instruction"`
	Content        string         `json:"content,omitempty"`
	Image          *ImagePayload  `json:"image,omitempty"`
	Temperature    float64        `json:"temperature"`
	TopP           float64        `json:"top_p"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat string         `json:"response_format"`
	ResponseSchema map[string]any `json:"response_schema,omitempty"`
}

type ImagePayload struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

// DataURL renders the image as an inline data URL.
func (p ImagePayload) DataURL() string {
	return "data:" + p.MimeType + ";base64," + p.Base64
}

type ParsePath string

const (
	ParsePathArray       ParsePath = "array"
	ParsePathItems       ParsePath = "object.items"
	ParsePathData        ParsePath = "object.data"
	ParsePathBracketScan ParsePath = "bracket_scan"
	ParsePathNone        ParsePath = "none"
)

// CoerceDiagnostics describes what the coercer had to do with a model reply.
// It is informational only.
type CoerceDiagnostics struct {
	MarkdownStripped bool      `json:"markdown_stripped"`
	ParsePath        ParsePath `json:"parse_path"`
	ParseFailed      bool      `json:"parse_failed"`
	Accepted         int       `json:"accepted"`
	Rejected         int       `json:"rejected"`
	Rejections       []string  `json:"rejections,omitempty"`
	RawExcerpt       string    `json:"raw_excerpt,omitempty"`
}

// CoerceContext is the per-run information attached to every surviving item.
type CoerceContext struct {
	SourceType SourceType
	Method     string
	SourceURL  string
	MimeType   string
	AnalyzedAt time.Time
}

type ExtractOptions struct {
	ListName        string
	ListDescription string
}

type Stage string

const (
	StageAcquiring  Stage = "acquiring"
	StagePrompting  Stage = "prompting"
	StageCoercing   Stage = "coercing"
	StagePersisting Stage = "persisting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

type ExtractionResult struct {
	RunID       string            `json:"run_id"`
	Stage       Stage             `json:"stage"`
	List        *List             `json:"list,omitempty"`
	Items       []ListItem        `json:"items"`
	Diagnostics CoerceDiagnostics `json:"diagnostics"`
	Content     ContentMetadata   `json:"content"`
	Message     string            `json:"message,omitempty"`
}

const NothingFoundMessage = "No items were found. Try a clearer photo, a more specific page, or more detailed text."
