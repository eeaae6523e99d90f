package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

type modelFake struct {
	reply string
	err   error
	block bool

	calls    int
	requests []domain.ModelRequest
}

func (f *modelFake) Complete(ctx context.Context, req domain.ModelRequest) (string, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type memoryStore struct {
	mu        sync.Mutex
	nextID    int64
	lists     map[int64]domain.List
	items     map[int64][]domain.ListItem
	createErr error
	creates   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{lists: map[int64]domain.List{}, items: map[int64][]domain.ListItem{}}
}

func (s *memoryStore) CreateListWithItems(_ context.Context, list domain.List, items []domain.ListItem) (*domain.ListWithItems, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.createErr != nil {
		return nil, s.createErr
	}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.nextID++
	list.ID = s.nextID
	list.CreatedAt, list.UpdatedAt = now, now
	saved := make([]domain.ListItem, 0, len(items))
	for _, item := range items {
		s.nextID++
		item.ID = s.nextID
		item.ListID = list.ID
		if item.Status == "" {
			item.Status = domain.ItemStatusPending
		}
		saved = append(saved, item)
	}
	s.lists[list.ID] = list
	s.items[list.ID] = saved
	return &domain.ListWithItems{List: list, Items: saved}, nil
}

func (s *memoryStore) GetList(_ context.Context, listID int64) (*domain.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[listID]
	if !ok {
		return nil, domain.WrapError(domain.ErrListNotFound, "get list", errors.New("no such list"))
	}
	return &list, nil
}

func (s *memoryStore) ListLists(context.Context, int) ([]domain.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.List, 0, len(s.lists))
	for _, l := range s.lists {
		out = append(out, l)
	}
	return out, nil
}

func (s *memoryStore) ListItems(_ context.Context, listID int64) ([]domain.ListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ListItem(nil), s.items[listID]...), nil
}

func (s *memoryStore) UpdateItem(_ context.Context, listID, itemID int64, patch domain.ItemPatch) (*domain.ListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items[listID] {
		if item.ID != itemID {
			continue
		}
		if patch.ItemName != nil {
			item.ItemName = *patch.ItemName
		}
		if patch.Category != nil {
			item.Category = *patch.Category
		}
		if patch.Quantity != nil {
			item.Quantity = patch.Quantity
		}
		if patch.Notes != nil {
			item.Notes = patch.Notes
		}
		if patch.Status != nil {
			item.Status = *patch.Status
		}
		s.items[listID][i] = item
		return &item, nil
	}
	return nil, domain.WrapError(domain.ErrItemNotFound, "update item", errors.New("no such item"))
}

func (s *memoryStore) DeleteList(_ context.Context, listID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[listID]; !ok {
		return domain.WrapError(domain.ErrListNotFound, "delete list", errors.New("no such list"))
	}
	delete(s.lists, listID)
	delete(s.items, listID)
	return nil
}

type stageEvent struct {
	stage    domain.Stage
	finished bool
	err      error
}

type recordingObserver struct {
	mu     sync.Mutex
	events []stageEvent
}

func (o *recordingObserver) StageStarted(_ context.Context, _ string, stage domain.Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, stageEvent{stage: stage})
}

func (o *recordingObserver) StageFinished(_ context.Context, _ string, stage domain.Stage, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, stageEvent{stage: stage, finished: true, err: err})
}

func (o *recordingObserver) PersistAttempt(context.Context, string, int, error) {}

func (o *recordingObserver) startedStages() []domain.Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.Stage
	for _, e := range o.events {
		if !e.finished {
			out = append(out, e.stage)
		}
	}
	return out
}

type publisherFake struct {
	err    error
	events []domain.List
	counts []int
}

func (p *publisherFake) PublishListCreated(_ context.Context, list domain.List, itemCount int) error {
	p.events = append(p.events, list)
	p.counts = append(p.counts, itemCount)
	return p.err
}
