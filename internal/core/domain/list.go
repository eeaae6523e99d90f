package domain

import (
	"strings"
	"time"
)

type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusCompleted ItemStatus = "completed"
)

func (s ItemStatus) Valid() bool {
	return s == ItemStatusPending || s == ItemStatusCompleted
}

type SourceType string

const (
	SourceTypePhoto      SourceType = "photo"
	SourceTypeText       SourceType = "text"
	SourceTypeURL        SourceType = "url"
	SourceTypeScreenshot SourceType = "screenshot"
	SourceTypePDF        SourceType = "pdf"
	SourceTypeAudio      SourceType = "audio"
)

// MapSourceType folds the loose source labels used by callers onto the stored enum.
// Unknown labels map to text.
func MapSourceType(raw string) SourceType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "photo", "image", "picture", "camera":
		return SourceTypePhoto
	case "screenshot", "screen":
		return SourceTypeScreenshot
	case "url", "link", "web", "webpage", "website":
		return SourceTypeURL
	case "pdf", "document", "doc":
		return SourceTypePDF
	case "audio", "voice", "recording":
		return SourceTypeAudio
	default:
		return SourceTypeText
	}
}

const CategoryOther = "other"

// Categories is the closed category set items are normalized into.
var Categories = []string{
	"groceries",
	"tasks",
	"contacts",
	"events",
	"inventory",
	"ideas",
	"recipes",
	"shopping",
	"work",
	CategoryOther,
}

var categorySet = func() map[string]struct{} {
	out := make(map[string]struct{}, len(Categories))
	for _, c := range Categories {
		out[c] = struct{}{}
	}
	return out
}()

func IsCategory(value string) bool {
	_, ok := categorySet[value]
	return ok
}

// NormalizeCategory lower-cases and trims a category and falls back to "other"
// for blank or unknown values.
func NormalizeCategory(raw string) string {
	c := strings.ToLower(strings.TrimSpace(raw))
	if IsCategory(c) {
		return c
	}
	return CategoryOther
}

type List struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ListItem struct {
	ID          int64          `json:"id,omitempty"`
	ListID      int64          `json:"list_id,omitempty"`
	ItemName    string         `json:"item_name"`
	Category    string         `json:"category"`
	Quantity    *string        `json:"quantity"`
	Notes       *string        `json:"notes"`
	Explanation *string        `json:"explanation"`
	SourceType  SourceType     `json:"source_type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Status      ItemStatus     `json:"status"`
	ExtractedAt time.Time      `json:"extracted_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type ListWithItems struct {
	List  List       `json:"list"`
	Items []ListItem `json:"items"`
}

// ItemPatch carries a partial single-item mutation. Nil fields are left unchanged.
type ItemPatch struct {
	ItemName *string     `json:"item_name,omitempty"`
	Category *string     `json:"category,omitempty"`
	Quantity *string     `json:"quantity,omitempty"`
	Notes    *string     `json:"notes,omitempty"`
	Status   *ItemStatus `json:"status,omitempty"`
}

func (p ItemPatch) Empty() bool {
	return p.ItemName == nil && p.Category == nil && p.Quantity == nil && p.Notes == nil && p.Status == nil
}
