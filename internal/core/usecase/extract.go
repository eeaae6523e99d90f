package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
	"github.com/Macrina/Listify-Agent-sub000/internal/core/ports"
)

const publishTimeout = 5 * time.Second

type ExtractConfig struct {
	RunTimeout     time.Duration
	AcquireTimeout time.Duration
	ModelTimeout   time.Duration
	PersistTimeout time.Duration
}

func DefaultExtractConfig() ExtractConfig {
	return ExtractConfig{
		RunTimeout:     3 * time.Minute,
		AcquireTimeout: 60 * time.Second,
		ModelTimeout:   90 * time.Second,
		PersistTimeout: 30 * time.Second,
	}
}

type ExtractOption func(*ExtractUseCase)

func WithObserver(observer ports.PipelineObserver) ExtractOption {
	return func(uc *ExtractUseCase) {
		if observer != nil {
			uc.observer = observer
		}
	}
}

func WithPublisher(publisher ports.ListEventPublisher) ExtractOption {
	return func(uc *ExtractUseCase) { uc.publisher = publisher }
}

// ExtractUseCase runs one source through acquire, prompt, model, coerce and
// persist. It never retries a step itself.
type ExtractUseCase struct {
	cfg       ExtractConfig
	acquirer  ports.ContentAcquirer
	prompter  ports.Prompter
	model     ports.ModelClient
	coercer   ports.Coercer
	store     ports.ListStore
	publisher ports.ListEventPublisher
	observer  ports.PipelineObserver

	now      func() time.Time
	newRunID func() string
}

func NewExtractUseCase(
	cfg ExtractConfig,
	acquirer ports.ContentAcquirer,
	prompter ports.Prompter,
	model ports.ModelClient,
	coercer ports.Coercer,
	store ports.ListStore,
	opts ...ExtractOption,
) *ExtractUseCase {
	def := DefaultExtractConfig()
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = def.RunTimeout
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = def.AcquireTimeout
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = def.ModelTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}

	uc := &ExtractUseCase{
		cfg:      cfg,
		acquirer: acquirer,
		prompter: prompter,
		model:    model,
		coercer:  coercer,
		store:    store,
		observer: noopObserver{},
		now:      func() time.Time { return time.Now().UTC() },
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *ExtractUseCase) ExtractFromImage(ctx context.Context, data []byte, mimeType string, opts domain.ExtractOptions) (*domain.ExtractionResult, error) {
	return uc.Run(ctx, domain.NewImageSource(data, mimeType), opts)
}

func (uc *ExtractUseCase) ExtractFromText(ctx context.Context, text string, opts domain.ExtractOptions) (*domain.ExtractionResult, error) {
	return uc.Run(ctx, domain.NewTextSource(text), opts)
}

func (uc *ExtractUseCase) ExtractFromURL(ctx context.Context, address string, opts domain.ExtractOptions) (*domain.ExtractionResult, error) {
	return uc.Run(ctx, domain.NewURLSource(address), opts)
}

func (uc *ExtractUseCase) ExtractFromDocument(ctx context.Context, data []byte, mimeType string, opts domain.ExtractOptions) (*domain.ExtractionResult, error) {
	return uc.Run(ctx, domain.NewDocumentSource(data, mimeType), opts)
}

// Run executes a single pipeline run. On failure the returned result is in
// StageFailed and carries a user facing message next to the error.
func (uc *ExtractUseCase) Run(ctx context.Context, source domain.SourceDescriptor, opts domain.ExtractOptions) (*domain.ExtractionResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, uc.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	result := &domain.ExtractionResult{
		RunID: uc.newRunID(),
		Stage: domain.StageAcquiring,
		Items: []domain.ListItem{},
	}
	slog.Info("pipeline.run_started", "run_id", result.RunID, "source_kind", source.Kind)

	var content domain.AcquiredContent
	err := uc.step(runCtx, result, domain.StageAcquiring, uc.cfg.AcquireTimeout, func(stepCtx context.Context) error {
		var err error
		content, err = uc.acquirer.Acquire(stepCtx, source)
		if err != nil {
			return fmt.Errorf("acquire content: %w", err)
		}
		return nil
	})
	if err != nil {
		return uc.fail(result, err)
	}
	result.Content = content.Metadata

	var raw string
	err = uc.step(runCtx, result, domain.StagePrompting, uc.cfg.ModelTimeout, func(stepCtx context.Context) error {
		req := uc.prompter.Build(content)
		var err error
		raw, err = uc.model.Complete(stepCtx, req)
		if err != nil {
			return fmt.Errorf("model completion: %w", err)
		}
		return nil
	})
	if err != nil {
		return uc.fail(result, err)
	}

	var items []domain.ListItem
	_ = uc.step(runCtx, result, domain.StageCoercing, 0, func(context.Context) error {
		items, result.Diagnostics = uc.coercer.Coerce(raw, domain.CoerceContext{
			SourceType: content.SourceType,
			Method:     content.Metadata.Method,
			SourceURL:  content.Metadata.SourceURL,
			MimeType:   content.MimeType,
			AnalyzedAt: uc.now(),
		})
		return nil
	})

	if len(items) == 0 {
		result.Stage = domain.StageDone
		result.Message = domain.NothingFoundMessage
		slog.Info("pipeline.nothing_found",
			"run_id", result.RunID,
			"parse_path", result.Diagnostics.ParsePath,
			"parse_failed", result.Diagnostics.ParseFailed,
			"rejected", result.Diagnostics.Rejected,
		)
		return result, nil
	}

	list := domain.List{
		Name:        listName(opts, source),
		Description: strings.TrimSpace(opts.ListDescription),
	}
	var saved *domain.ListWithItems
	err = uc.step(runCtx, result, domain.StagePersisting, uc.cfg.PersistTimeout, func(stepCtx context.Context) error {
		var err error
		saved, err = uc.store.CreateListWithItems(stepCtx, list, items)
		if err != nil {
			return fmt.Errorf("persist list: %w", err)
		}
		return nil
	})
	if err != nil {
		return uc.fail(result, err)
	}

	result.Stage = domain.StageDone
	result.List = &saved.List
	result.Items = saved.Items
	uc.publish(ctx, saved)

	slog.Info("pipeline.run_done",
		"run_id", result.RunID,
		"list_id", saved.List.ID,
		"items", len(saved.Items),
		"rejected", result.Diagnostics.Rejected,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (uc *ExtractUseCase) step(
	ctx context.Context,
	result *domain.ExtractionResult,
	stage domain.Stage,
	timeout time.Duration,
	fn func(context.Context) error,
) error {
	result.Stage = stage
	uc.observer.StageStarted(ctx, result.RunID, stage)

	stepCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(stepCtx)
	if err != nil && !domain.IsKind(err, domain.ErrTimeout) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(stepCtx.Err(), context.DeadlineExceeded)) {
		err = domain.WrapError(domain.ErrTimeout, "pipeline."+string(stage), err)
	}
	uc.observer.StageFinished(ctx, result.RunID, stage, time.Since(start), err)
	return err
}

func (uc *ExtractUseCase) fail(result *domain.ExtractionResult, err error) (*domain.ExtractionResult, error) {
	slog.Error("pipeline.stage_failed", "run_id", result.RunID, "stage", result.Stage, "error", err)
	result.Stage = domain.StageFailed
	result.Message = domain.UserMessage(err)
	return result, err
}

func (uc *ExtractUseCase) publish(ctx context.Context, saved *domain.ListWithItems) {
	if uc.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := uc.publisher.PublishListCreated(pubCtx, saved.List, len(saved.Items)); err != nil {
		slog.Warn("pipeline.publish_failed", "list_id", saved.List.ID, "error", err)
	}
}

func listName(opts domain.ExtractOptions, source domain.SourceDescriptor) string {
	if name := strings.TrimSpace(opts.ListName); name != "" {
		return name
	}
	switch source.SourceType() {
	case domain.SourceTypeURL:
		if u, err := url.Parse(strings.TrimSpace(source.Address)); err == nil && u.Hostname() != "" {
			return "Items from " + strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		}
		return "Items from web page"
	case domain.SourceTypePhoto:
		return "Items from photo"
	case domain.SourceTypeScreenshot:
		return "Items from screenshot"
	case domain.SourceTypePDF:
		return "Items from PDF"
	default:
		return "Items from text"
	}
}

type noopObserver struct{}

func (noopObserver) StageStarted(context.Context, string, domain.Stage) {}
func (noopObserver) StageFinished(context.Context, string, domain.Stage, time.Duration, error) {
}
func (noopObserver) PersistAttempt(context.Context, string, int, error) {}
