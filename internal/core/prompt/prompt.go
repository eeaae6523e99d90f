package prompt

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/coerce"
	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

const (
	Temperature    = 0.1
	TopP           = 0.1
	MaxTokens      = 4096
	ResponseFormat = "json_object"
)

// Builder renders the single model request of a pipeline run. It performs no
// I/O and keeps no per-run state.
type Builder struct {
	schema map[string]any
}

func New() *Builder {
	return &Builder{schema: ResponseSchema()}
}

func (b *Builder) Build(content domain.AcquiredContent) domain.ModelRequest {
	req := domain.ModelRequest{
		Instruction:    buildInstruction(content),
		Temperature:    Temperature,
		TopP:           TopP,
		MaxTokens:      MaxTokens,
		ResponseFormat: ResponseFormat,
		ResponseSchema: b.schema,
	}

	if content.Kind == domain.ContentImage {
		req.Image = &domain.ImagePayload{
			MimeType: content.MimeType,
			Base64:   base64.StdEncoding.EncodeToString(content.Image),
		}
		return req
	}

	req.Content = content.Text
	return req
}

// ResponseSchema is the JSON schema of the reply the model is asked to produce.
func ResponseSchema() map[string]any {
	candidate := coerce.CandidateSchema()
	props := candidate["properties"].(map[string]any)

	categories := make([]any, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		categories = append(categories, c)
	}
	props["category"] = map[string]any{"type": "string", "enum": categories}
	props["quantity"] = map[string]any{"type": []any{"string", "null"}}
	props["notes"] = map[string]any{"type": []any{"string", "null"}}
	props["explanation"] = map[string]any{"type": []any{"string", "null"}}

	return map[string]any{
		"type":     "object",
		"required": []any{"items"},
		"properties": map[string]any{
			"items": map[string]any{
				"type":  "array",
				"items": candidate,
			},
		},
	}
}

func buildInstruction(content domain.AcquiredContent) string {
	var sb strings.Builder
	sb.WriteString("You extract list items from user content.\n")
	sb.WriteString(sourceHint(content))
	sb.WriteString(`
Return ONLY a JSON object of the form {"items":[...]}.
Each element of "items" is an object with these keys:
  item_name (string, required, never empty)
  category (string, one of: `)
	sb.WriteString(strings.Join(domain.Categories, ", "))
	sb.WriteString(`)
  quantity (string or null)
  notes (string or null)
  explanation (string or null, a short reason the item was extracted)
Use "other" when no category fits.
If nothing list-like is present, return {"items":[]}.
Do not wrap the JSON in markdown code fences. Do not add any text before or after the JSON.
`)
	return sb.String()
}

func sourceHint(content domain.AcquiredContent) string {
	switch content.SourceType {
	case domain.SourceTypePhoto:
		return "The content is a photo. Read every handwritten or printed entry you can see."
	case domain.SourceTypeScreenshot:
		return "The content is a screenshot. Ignore interface chrome such as menus and buttons."
	case domain.SourceTypeURL:
		if content.Metadata.SourceURL != "" {
			return fmt.Sprintf("The content was taken from the web page %s. Ignore navigation, ads and footers.", content.Metadata.SourceURL)
		}
		return "The content was taken from a web page. Ignore navigation, ads and footers."
	case domain.SourceTypePDF:
		return "The content is text extracted from a PDF document."
	default:
		return "The content is free-form text written by the user."
	}
}
