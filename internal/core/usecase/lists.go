package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
	"github.com/Macrina/Listify-Agent-sub000/internal/core/ports"
)

type ListService struct {
	store    ports.ListStore
	exporter ports.ListExporter
}

func NewListService(store ports.ListStore, exporter ports.ListExporter) *ListService {
	return &ListService{store: store, exporter: exporter}
}

func (s *ListService) GetList(ctx context.Context, listID int64) (*domain.ListWithItems, error) {
	if listID <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get list", fmt.Errorf("invalid list id %d", listID))
	}
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	items, err := s.store.ListItems(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if items == nil {
		items = []domain.ListItem{}
	}
	return &domain.ListWithItems{List: *list, Items: items}, nil
}

func (s *ListService) ListLists(ctx context.Context, limit int) ([]domain.List, error) {
	lists, err := s.store.ListLists(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	if lists == nil {
		lists = []domain.List{}
	}
	return lists, nil
}

func (s *ListService) UpdateItem(ctx context.Context, listID, itemID int64, patch domain.ItemPatch) (*domain.ListItem, error) {
	if listID <= 0 || itemID <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update item", fmt.Errorf("invalid ids %d/%d", listID, itemID))
	}
	clean, err := normalizePatch(patch)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update item", err)
	}
	item, err := s.store.UpdateItem(ctx, listID, itemID, clean)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return item, nil
}

func (s *ListService) DeleteList(ctx context.Context, listID int64) error {
	if listID <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "delete list", fmt.Errorf("invalid list id %d", listID))
	}
	if err := s.store.DeleteList(ctx, listID); err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	return nil
}

func (s *ListService) ExportList(ctx context.Context, listID int64, w io.Writer) error {
	if s.exporter == nil {
		return errors.New("export list: no exporter configured")
	}
	list, err := s.GetList(ctx, listID)
	if err != nil {
		return err
	}
	if err := s.exporter.Export(w, *list); err != nil {
		return fmt.Errorf("export list: %w", err)
	}
	return nil
}

// normalizePatch trims every set field and rejects values the store would
// not accept. Categories are matched exactly after lower-casing; unknown ones
// are an error here, unlike model output which falls back to "other".
func normalizePatch(patch domain.ItemPatch) (domain.ItemPatch, error) {
	if patch.Empty() {
		return patch, errors.New("patch has no fields")
	}
	out := domain.ItemPatch{
		Quantity: trimmed(patch.Quantity),
		Notes:    trimmed(patch.Notes),
	}
	if patch.ItemName != nil {
		name := strings.TrimSpace(*patch.ItemName)
		if name == "" {
			return patch, errors.New("item_name must not be blank")
		}
		out.ItemName = &name
	}
	if patch.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*patch.Category))
		if !domain.IsCategory(category) {
			return patch, fmt.Errorf("unknown category %q", *patch.Category)
		}
		out.Category = &category
	}
	if patch.Status != nil {
		status := domain.ItemStatus(strings.ToLower(strings.TrimSpace(string(*patch.Status))))
		if !status.Valid() {
			return patch, fmt.Errorf("unknown status %q", *patch.Status)
		}
		out.Status = &status
	}
	return out, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	return &s
}
