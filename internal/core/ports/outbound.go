package ports

import (
	"context"
	"io"
	"time"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

// ContentAcquirer turns a source descriptor into model-ready content.
type ContentAcquirer interface {
	Acquire(ctx context.Context, source domain.SourceDescriptor) (domain.AcquiredContent, error)
}

// Prompter builds the single model request of a run. It performs no I/O.
type Prompter interface {
	Build(content domain.AcquiredContent) domain.ModelRequest
}

// ModelClient sends one model request and returns the raw reply text.
type ModelClient interface {
	Complete(ctx context.Context, req domain.ModelRequest) (string, error)
}

// Coercer turns raw model text into canonical items. It never fails.
type Coercer interface {
	Coerce(raw string, cc domain.CoerceContext) ([]domain.ListItem, domain.CoerceDiagnostics)
}

// ListStore persists lists and their items.
type ListStore interface {
	CreateListWithItems(ctx context.Context, list domain.List, items []domain.ListItem) (*domain.ListWithItems, error)
	GetList(ctx context.Context, listID int64) (*domain.List, error)
	ListLists(ctx context.Context, limit int) ([]domain.List, error)
	ListItems(ctx context.Context, listID int64) ([]domain.ListItem, error)
	UpdateItem(ctx context.Context, listID, itemID int64, patch domain.ItemPatch) (*domain.ListItem, error)
	DeleteList(ctx context.Context, listID int64) error
}

// ListEventPublisher announces persisted lists to other services.
type ListEventPublisher interface {
	PublishListCreated(ctx context.Context, list domain.List, itemCount int) error
}

// ListExporter renders a list to a spreadsheet.
type ListExporter interface {
	Export(w io.Writer, list domain.ListWithItems) error
}

// PipelineObserver receives pipeline boundary events. All methods must be cheap
// and safe for concurrent use.
type PipelineObserver interface {
	StageStarted(ctx context.Context, runID string, stage domain.Stage)
	StageFinished(ctx context.Context, runID string, stage domain.Stage, elapsed time.Duration, err error)
	PersistAttempt(ctx context.Context, operation string, attempt int, err error)
}
