package ports

import (
	"context"
	"io"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

// Extractor is the inbound contract for one extraction pipeline run per source type.
type Extractor interface {
	ExtractFromImage(ctx context.Context, data []byte, mimeType string, opts domain.ExtractOptions) (*domain.ExtractionResult, error)
	ExtractFromText(ctx context.Context, text string, opts domain.ExtractOptions) (*domain.ExtractionResult, error)
	ExtractFromURL(ctx context.Context, address string, opts domain.ExtractOptions) (*domain.ExtractionResult, error)
	ExtractFromDocument(ctx context.Context, data []byte, mimeType string, opts domain.ExtractOptions) (*domain.ExtractionResult, error)
}

// ListManager is the inbound contract for reading and mutating persisted lists.
type ListManager interface {
	GetList(ctx context.Context, listID int64) (*domain.ListWithItems, error)
	ListLists(ctx context.Context, limit int) ([]domain.List, error)
	UpdateItem(ctx context.Context, listID, itemID int64, patch domain.ItemPatch) (*domain.ListItem, error)
	DeleteList(ctx context.Context, listID int64) error
	ExportList(ctx context.Context, listID int64, w io.Writer) error
}
