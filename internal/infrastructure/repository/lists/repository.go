package lists

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/store"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"

	defaultListLimit = 50
	maxListLimit     = 500
)

// Fixed-width UTC timestamps keep TEXT ordering chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const listColumns = `id, name, description, created_at, updated_at`

const itemColumns = `id, list_id, item_name, category, quantity, notes, explanation, status, source_type, extracted_at, metadata, created_at, updated_at`

var errNoRows = errors.New("no rows affected")

// Repository stores lists and their items through the persistence gateway.
// Every write goes through one gateway transaction.
type Repository struct {
	gw      *store.Gateway
	dialect string
	now     func() time.Time
}

func New(gw *store.Gateway, dialect string) *Repository {
	if dialect != DialectPostgres {
		dialect = DialectSQLite
	}
	return &Repository{gw: gw, dialect: dialect, now: time.Now}
}

func (r *Repository) CreateListWithItems(ctx context.Context, list domain.List, items []domain.ListItem) (*domain.ListWithItems, error) {
	now := r.now().UTC()
	list.CreatedAt = now
	list.UpdatedAt = now

	saved := make([]domain.ListItem, 0, len(items))
	err := r.gw.Transaction(ctx, func(tx *store.Tx) error {
		listID, err := tx.Insert(ctx, store.NewStatement(`
INSERT INTO lists (name, description, created_at, updated_at)
VALUES (?, ?, ?, ?)
RETURNING id`, list.Name, nullable(list.Description), formatTime(now), formatTime(now)))
		if err != nil {
			return fmt.Errorf("insert list: %w", err)
		}
		list.ID = listID

		for idx, item := range items {
			item.ListID = listID
			item.CreatedAt = now
			item.UpdatedAt = now
			if item.ExtractedAt.IsZero() {
				item.ExtractedAt = now
			}
			if item.Status == "" {
				item.Status = domain.ItemStatusPending
			}
			item.SourceType = domain.MapSourceType(string(item.SourceType))

			metadata, err := encodeMetadata(item.Metadata)
			if err != nil {
				return fmt.Errorf("encode item %d metadata: %w", idx, err)
			}

			itemID, err := tx.Insert(ctx, store.NewStatement(`
INSERT INTO list_items (list_id, item_name, category, quantity, notes, explanation, status, source_type, extracted_at, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`,
				listID,
				item.ItemName,
				item.Category,
				nullablePtr(item.Quantity),
				nullablePtr(item.Notes),
				nullablePtr(item.Explanation),
				string(item.Status),
				string(item.SourceType),
				formatTime(item.ExtractedAt.UTC()),
				metadata,
				formatTime(now),
				formatTime(now),
			))
			if err != nil {
				return fmt.Errorf("insert item %d: %w", idx, err)
			}
			item.ID = itemID
			saved = append(saved, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("lists.created", "list_id", list.ID, "items", len(saved))
	return &domain.ListWithItems{List: list, Items: saved}, nil
}

func (r *Repository) GetList(ctx context.Context, listID int64) (*domain.List, error) {
	rows, err := r.gw.Query(ctx, store.NewStatement(`SELECT `+listColumns+` FROM lists WHERE id = ?`, listID))
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrListNotFound, "get list", fmt.Errorf("list %d", listID))
	}
	list := scanList(rows[0])
	return &list, nil
}

func (r *Repository) ListLists(ctx context.Context, limit int) ([]domain.List, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := r.gw.Query(ctx, store.NewStatement(`
SELECT `+listColumns+`
FROM lists
ORDER BY created_at DESC, id DESC
LIMIT ?`, limit))
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}

	out := make([]domain.List, 0, len(rows))
	for _, row := range rows {
		out = append(out, scanList(row))
	}
	return out, nil
}

func (r *Repository) ListItems(ctx context.Context, listID int64) ([]domain.ListItem, error) {
	rows, err := r.gw.Query(ctx, store.NewStatement(`
SELECT `+itemColumns+`
FROM list_items
WHERE list_id = ?
ORDER BY id ASC`, listID))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	out := make([]domain.ListItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, scanItem(row))
	}
	return out, nil
}

func (r *Repository) UpdateItem(ctx context.Context, listID, itemID int64, patch domain.ItemPatch) (*domain.ListItem, error) {
	now := formatTime(r.now().UTC())

	sets := make([]string, 0, 6)
	args := make([]any, 0, 8)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.ItemName != nil {
		add("item_name", strings.TrimSpace(*patch.ItemName))
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Quantity != nil {
		add("quantity", nullable(*patch.Quantity))
	}
	if patch.Notes != nil {
		add("notes", nullable(*patch.Notes))
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	add("updated_at", now)
	args = append(args, itemID, listID)

	err := r.gw.Transaction(ctx, func(tx *store.Tx) error {
		n, err := tx.Exec(ctx, store.NewStatement(
			`UPDATE list_items SET `+strings.Join(sets, ", ")+` WHERE id = ? AND list_id = ?`,
			args...,
		))
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		if n == 0 {
			return errNoRows
		}
		if _, err := tx.Exec(ctx, store.NewStatement(`UPDATE lists SET updated_at = ? WHERE id = ?`, now, listID)); err != nil {
			return fmt.Errorf("touch list: %w", err)
		}
		return nil
	})
	if errors.Is(err, errNoRows) {
		return nil, domain.WrapError(domain.ErrItemNotFound, "update item", fmt.Errorf("item %d in list %d", itemID, listID))
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.gw.Query(ctx, store.NewStatement(`SELECT `+itemColumns+` FROM list_items WHERE id = ? AND list_id = ?`, itemID, listID))
	if err != nil {
		return nil, fmt.Errorf("reload item: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrItemNotFound, "reload item", fmt.Errorf("item %d in list %d", itemID, listID))
	}
	item := scanItem(rows[0])
	return &item, nil
}

// DeleteList removes the items first and then the list, in one transaction.
func (r *Repository) DeleteList(ctx context.Context, listID int64) error {
	err := r.gw.Transaction(ctx, func(tx *store.Tx) error {
		if _, err := tx.Exec(ctx, store.NewStatement(`DELETE FROM list_items WHERE list_id = ?`, listID)); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		n, err := tx.Exec(ctx, store.NewStatement(`DELETE FROM lists WHERE id = ?`, listID))
		if err != nil {
			return fmt.Errorf("delete list: %w", err)
		}
		if n == 0 {
			return errNoRows
		}
		return nil
	})
	if errors.Is(err, errNoRows) {
		return domain.WrapError(domain.ErrListNotFound, "delete list", fmt.Errorf("list %d", listID))
	}
	return err
}

func scanList(row store.Row) domain.List {
	return domain.List{
		ID:          row.Int64("id"),
		Name:        row.String("name"),
		Description: row.String("description"),
		CreatedAt:   row.Time("created_at"),
		UpdatedAt:   row.Time("updated_at"),
	}
}

func scanItem(row store.Row) domain.ListItem {
	item := domain.ListItem{
		ID:          row.Int64("id"),
		ListID:      row.Int64("list_id"),
		ItemName:    row.String("item_name"),
		Category:    row.String("category"),
		Quantity:    row.NullString("quantity"),
		Notes:       row.NullString("notes"),
		Explanation: row.NullString("explanation"),
		Status:      domain.ItemStatus(row.String("status")),
		SourceType:  domain.MapSourceType(row.String("source_type")),
		ExtractedAt: row.Time("extracted_at"),
		CreatedAt:   row.Time("created_at"),
		UpdatedAt:   row.Time("updated_at"),
	}
	if raw := row.String("metadata"); raw != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(raw), &meta); err == nil {
			item.Metadata = meta
		}
	}
	return item
}

func encodeMetadata(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullable(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullablePtr(value *string) any {
	if value == nil {
		return nil
	}
	return nullable(*value)
}
