// Package core wires the M2M client, list management, product selection and
// the download orchestrator into one batch operation.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scenefetch/scenefetch/internal/api"
	"github.com/scenefetch/scenefetch/internal/config"
	"github.com/scenefetch/scenefetch/internal/events"
	"github.com/scenefetch/scenefetch/internal/fetch"
	ihttp "github.com/scenefetch/scenefetch/internal/http"
	"github.com/scenefetch/scenefetch/internal/logging"
	"github.com/scenefetch/scenefetch/internal/models"
	"github.com/scenefetch/scenefetch/internal/orchestrator"
	"github.com/scenefetch/scenefetch/internal/scenelist"
	"github.com/scenefetch/scenefetch/internal/selector"
	"github.com/scenefetch/scenefetch/internal/storage"
	"github.com/scenefetch/scenefetch/internal/transfer"
)

// Options customizes an Engine beyond what the config carries.
type Options struct {
	Logger     *logging.Logger
	Progress   fetch.Progress
	Mirror     storage.Mirror
	APIOptions []api.Option

	// Sleep replaces the poll timer; tests use it to skip waiting.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Engine runs download batches against one M2M session.
type Engine struct {
	config    *config.Config
	apiClient *api.Client
	lists     *scenelist.Manager
	fetcher   *fetch.Fetcher
	orch      *orchestrator.Orchestrator
	eventBus  *events.EventBus
	queue     *transfer.Queue
	logger    *logging.Logger

	mu sync.Mutex // one batch at a time per engine
}

// NewEngine creates an engine for cfg. The session is not opened; call Login
// or install a token on API().
func NewEngine(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := logging.OrNop(opts.Logger)

	apiOpts := append([]api.Option{api.WithLogger(logger)}, opts.APIOptions...)
	apiClient, err := api.NewClient(cfg, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	fetchClient, err := ihttp.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create download client: %w", err)
	}

	eventBus := events.NewEventBus(events.DefaultBufferSize)
	queue := transfer.NewQueue(eventBus)

	fetchOpts := []fetch.Option{
		fetch.WithLogger(logger),
		fetch.WithQueue(queue),
		fetch.WithRetry(ihttp.Config{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.RetryInitialDelay,
			MaxDelay:     cfg.RetryMaxDelay,
			RetryAll:     true,
		}),
	}
	if opts.Progress != nil {
		fetchOpts = append(fetchOpts, fetch.WithProgress(opts.Progress))
	}
	if opts.Mirror != nil {
		fetchOpts = append(fetchOpts, fetch.WithMirror(opts.Mirror))
	}
	fetcher := fetch.New(fetchClient, cfg.OutputDir, fetchOpts...)

	// a configured max wait of zero means no polling rounds
	maxWait := cfg.MaxWait
	if maxWait == 0 {
		maxWait = -1
	}
	orch := orchestrator.New(apiClient, fetcher, orchestrator.Options{
		PollInterval:  cfg.PollInterval,
		MaxWait:       maxWait,
		MaxConcurrent: cfg.MaxConcurrent,
		Sleep:         opts.Sleep,
		Logger:        logger,
		EventBus:      eventBus,
	})

	return &Engine{
		config:    cfg,
		apiClient: apiClient,
		lists:     scenelist.NewManager(apiClient, logger),
		fetcher:   fetcher,
		orch:      orch,
		eventBus:  eventBus,
		queue:     queue,
		logger:    logger,
	}, nil
}

// GetConfig returns the engine configuration.
func (e *Engine) GetConfig() *config.Config { return e.config }

// API returns the M2M client.
func (e *Engine) API() *api.Client { return e.apiClient }

// Events returns the event bus batches publish to.
func (e *Engine) Events() *events.EventBus { return e.eventBus }

// Queue returns the fetch tracker.
func (e *Engine) Queue() *transfer.Queue { return e.queue }

// Close shuts down the event bus.
func (e *Engine) Close() { e.eventBus.Close() }

// Login opens a session with the configured application token, or with the
// password when no token is set.
func (e *Engine) Login(ctx context.Context) error {
	if err := e.config.ValidateForLogin(); err != nil {
		return err
	}
	var err error
	if e.config.Token != "" {
		_, err = e.apiClient.LoginToken(ctx, e.config.Username, e.config.Token)
	} else {
		_, err = e.apiClient.Login(ctx, e.config.Username, e.config.Password)
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return nil
}

// Logout closes the session.
func (e *Engine) Logout(ctx context.Context) error {
	return e.apiClient.Logout(ctx)
}

// BatchRequest names the scenes of one batch and how to select products.
type BatchRequest struct {
	ListID    string
	EntityIDs []string
	// Mode and Filters default to the configured download mode and suffix filters.
	Mode    selector.Mode
	Filters []string
}

// ProductOptions registers ids on a temporary working list and returns their
// download options. The list is removed afterwards.
func (e *Engine) ProductOptions(ctx context.Context, listID string, entityIDs []string) ([]models.ProductDescriptor, error) {
	list := models.WorkingList{ID: listID, Dataset: e.config.Dataset, Members: entityIDs}

	var descriptors []models.ProductDescriptor
	err := e.lists.Scoped(ctx, list, func(ctx context.Context) error {
		var err error
		descriptors, err = e.apiClient.DownloadOptions(ctx, list.ID, list.Dataset)
		if err != nil {
			return fmt.Errorf("download options failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return descriptors, nil
}

// Plan resolves a batch request into download items without requesting them.
func (e *Engine) Plan(ctx context.Context, req BatchRequest) ([]models.DownloadRequestItem, error) {
	mode, filters, err := e.selection(req)
	if err != nil {
		return nil, err
	}
	descriptors, err := e.ProductOptions(ctx, req.ListID, req.EntityIDs)
	if err != nil {
		return nil, err
	}
	items := selector.Select(descriptors, mode, filters)
	e.logger.Info().
		Int("scenes", len(req.EntityIDs)).
		Int("products", len(descriptors)).
		Int("items", len(items)).
		Str("mode", string(mode)).
		Strs("filters", filters).
		Msg("Selected download items")
	return items, nil
}

// DownloadScenes runs one batch end to end: list add, download options,
// selection, list removal, then request, poll and fetch.
func (e *Engine) DownloadScenes(ctx context.Context, req BatchRequest) (*orchestrator.BatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	items, err := e.Plan(ctx, req)
	if err != nil {
		return nil, err
	}

	label := orchestrator.NewLabel(req.ListID, time.Now())
	if len(items) == 0 {
		e.logger.Warn().Str("list", req.ListID).Msg("No products matched the selection, nothing to download")
		return &orchestrator.BatchResult{Label: label}, nil
	}

	return e.orch.Run(ctx, items, label)
}

func (e *Engine) selection(req BatchRequest) (selector.Mode, []string, error) {
	mode := req.Mode
	if mode == "" {
		m, err := selector.ParseMode(e.config.DownloadMode)
		if err != nil {
			return "", nil, err
		}
		mode = m
	}
	filters := req.Filters
	if filters == nil {
		filters = e.config.SuffixFilters
	}
	return mode, filters, nil
}

// AddToList registers entity ids on a working list that outlives the call.
func (e *Engine) AddToList(ctx context.Context, listID string, entityIDs []string) (int, error) {
	return e.lists.Add(ctx, listID, e.config.Dataset, entityIDs)
}

// RemoveList deletes a working list. Removing a missing list succeeds.
func (e *Engine) RemoveList(ctx context.Context, listID string) error {
	return e.lists.Remove(ctx, listID)
}
