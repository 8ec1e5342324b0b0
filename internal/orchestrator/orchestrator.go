// Package orchestrator drives one batch through download-request, polling
// and fetching, and correlates the fetched files back to their scenes.
//
// A batch moves through REQUESTED, then each item is either available now or
// preparing. Preparing tickets are polled with download-retrieve until they
// carry a URL or the wait budget runs out, in which case they are abandoned.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/scenefetch/scenefetch/internal/constants"
	"github.com/scenefetch/scenefetch/internal/events"
	"github.com/scenefetch/scenefetch/internal/fetch"
	"github.com/scenefetch/scenefetch/internal/logging"
	"github.com/scenefetch/scenefetch/internal/models"
	"github.com/scenefetch/scenefetch/internal/selector"
)

// Service is the fulfillment subset of the M2M client.
type Service interface {
	DownloadRequest(ctx context.Context, downloads []models.DownloadSpec, label string) (*models.DownloadRequestResponse, error)
	DownloadRetrieve(ctx context.Context, label string) (*models.DownloadRetrieveResponse, error)
}

// Options tunes polling and fetching.
type Options struct {
	PollInterval  time.Duration
	// MaxWait is the polling budget. Zero means the default budget; a
	// negative value disables polling after the immediate retrieve.
	MaxWait       time.Duration
	MaxConcurrent int

	// Sleep waits between polls. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger   *logging.Logger
	EventBus *events.EventBus
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = constants.PollInterval
	}
	switch {
	case o.MaxWait == 0:
		o.MaxWait = constants.MaxPollWait
	case o.MaxWait < 0:
		// only the immediate retrieve, no polling rounds
		o.MaxWait = 0
	}
	if o.MaxConcurrent < 1 {
		o.MaxConcurrent = constants.DefaultMaxConcurrent
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// BatchResult is the outcome of one Run.
type BatchResult struct {
	Label string
	// Results holds one entry per fetched file, ordered like the request items.
	Results []models.DownloadResult
	// Abandoned lists download ids still preparing when the wait budget ran out.
	Abandoned []string
	// Failed lists URLs whose fetch attempts were exhausted.
	Failed []fetch.Failure
	// Rejected lists downloads the service refused at request time.
	Rejected []models.DownloadEntry
	// Dropped counts fetched files that could not be correlated to a request item.
	Dropped int
	// Retrieves counts download-retrieve calls.
	Retrieves int
	Duration  time.Duration
}

// Orchestrator runs batches against one service and one fetcher.
type Orchestrator struct {
	svc     Service
	fetcher *fetch.Fetcher
	opts    Options
}

// New creates an Orchestrator.
func New(svc Service, fetcher *fetch.Fetcher, opts Options) *Orchestrator {
	return &Orchestrator{svc: svc, fetcher: fetcher, opts: opts.withDefaults()}
}

// NewLabel returns the fulfillment label for a list: "<listID>_<unix seconds>".
func NewLabel(listID string, now time.Time) string {
	return listID + "_" + strconv.FormatInt(now.Unix(), 10)
}

// Run requests items under label, fetches everything that becomes available
// within the wait budget and returns the correlated results.
//
// A transport error from download-request is returned with a nil result. A
// transport error while polling, or cancellation of ctx, stops polling; the
// fetches already dispatched are joined and the partial result is returned
// together with the error.
func (o *Orchestrator) Run(ctx context.Context, items []models.DownloadRequestItem, label string) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{Label: label}
	if len(items) == 0 {
		return result, nil
	}

	log := o.opts.Logger.Child("label", label)
	correlation := selector.CorrelationMap(items)

	specs := make([]models.DownloadSpec, len(items))
	for i, it := range items {
		specs[i] = it.Spec()
	}

	resp, err := o.svc.DownloadRequest(ctx, specs, label)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	result.Rejected = resp.FailedDownloads
	for _, f := range resp.FailedDownloads {
		log.Warn().Str("entity_id", f.EntityID).Str("download_id", string(f.DownloadID)).Msg("Download rejected by service")
	}

	batch := o.fetcher.NewBatch(o.opts.MaxConcurrent)
	pending := make(map[models.DownloadID]models.PreparationTicket)

	for _, d := range resp.AvailableDownloads {
		if d.URL == "" {
			if d.DownloadID != "" {
				pending[d.DownloadID] = models.PreparationTicket{DownloadID: d.DownloadID}
			}
			continue
		}
		batch.Dispatch(ctx, d.URL, d.EntityID)
	}
	for _, d := range resp.PreparingDownloads {
		if d.DownloadID == "" {
			log.Warn().Str("entity_id", d.EntityID).Msg("Preparing download has no id, skipping")
			continue
		}
		pending[d.DownloadID] = models.PreparationTicket{DownloadID: d.DownloadID}
	}

	total := len(pending)
	log.Info().
		Int("items", len(items)).
		Int("available", len(resp.AvailableDownloads)).
		Int("preparing", total).
		Msg("Download request accepted")

	pollErr := o.poll(ctx, batch, label, pending, result)
	for id := range pending {
		result.Abandoned = append(result.Abandoned, string(id))
	}
	sort.Strings(result.Abandoned)
	if len(result.Abandoned) > 0 {
		log.Warn().Int("abandoned", len(result.Abandoned)).Msg("Downloads still preparing were abandoned")
	}

	fetched, failures := batch.Wait()
	result.Failed = failures
	result.Results, result.Dropped = correlate(fetched, correlation, items, log)
	result.Duration = time.Since(start)

	o.opts.EventBus.Publish(&events.BatchEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventBatchComplete, Time: time.Now()},
		Label:     label,
		Results:   len(result.Results),
		Abandoned: len(result.Abandoned),
		Failed:    len(result.Failed),
		Duration:  result.Duration,
	})

	return result, pollErr
}

// poll resolves pending tickets until none remain or the wait budget is spent.
// pending is owned by the calling goroutine.
func (o *Orchestrator) poll(ctx context.Context, batch *fetch.Batch, label string, pending map[models.DownloadID]models.PreparationTicket, result *BatchResult) error {
	if len(pending) == 0 {
		return nil
	}
	total := len(pending)
	log := o.opts.Logger.Child("label", label)

	var elapsed time.Duration
	for round := 0; ; round++ {
		if round > 0 {
			if elapsed >= o.opts.MaxWait {
				return nil
			}
			if err := o.opts.Sleep(ctx, o.opts.PollInterval); err != nil {
				return err
			}
			elapsed += o.opts.PollInterval
		}

		resp, err := o.svc.DownloadRetrieve(ctx, label)
		result.Retrieves++
		if err != nil {
			return fmt.Errorf("download retrieve failed: %w", err)
		}

		resolved := resolve(ctx, batch, pending, resp)
		log.Debug().
			Int("round", round).
			Int("resolved", resolved).
			Int("pending", len(pending)).
			Int("queue_size", resp.QueueSize).
			Dur("elapsed", elapsed).
			Msg("Polled preparing downloads")
		o.opts.EventBus.Publish(events.NewPollEvent(label, round, len(pending), total-len(pending), total, elapsed))

		if len(pending) == 0 {
			return nil
		}
	}
}

// resolve dispatches every pending ticket that now carries a URL and removes
// it from pending. Both the available and the requested sections count.
func resolve(ctx context.Context, batch *fetch.Batch, pending map[models.DownloadID]models.PreparationTicket, resp *models.DownloadRetrieveResponse) int {
	n := 0
	for _, section := range [][]models.DownloadEntry{resp.Available, resp.Requested} {
		for _, d := range section {
			if _, ok := pending[d.DownloadID]; !ok || d.URL == "" {
				continue
			}
			delete(pending, d.DownloadID)
			batch.Dispatch(ctx, d.URL, d.EntityID)
			n++
		}
	}
	return n
}

// correlate maps fetched files to request items. The filename-derived entity
// id is tried first, then the entity id the service attached to the download.
// Files matching neither are dropped. Results follow the order of items.
func correlate(fetched []fetch.Result, correlation map[string]string, items []models.DownloadRequestItem, log *logging.Logger) ([]models.DownloadResult, int) {
	order := make(map[string]int, len(items))
	for i, it := range items {
		if _, ok := order[it.EntityID]; !ok {
			order[it.EntityID] = i
		}
	}

	results := make([]models.DownloadResult, 0, len(fetched))
	dropped := 0
	for _, f := range fetched {
		entityID := f.EntityID
		scene, ok := correlation[entityID]
		if !ok && f.DispatchEntityID != "" {
			entityID = f.DispatchEntityID
			scene, ok = correlation[entityID]
		}
		if !ok {
			dropped++
			log.Warn().
				Str("derived_entity_id", f.EntityID).
				Str("path", f.Path).
				Msg("Fetched file does not match any requested item")
			continue
		}
		results = append(results, models.DownloadResult{EntityID: entityID, SceneEntityID: scene, Path: f.Path})
	}

	sort.SliceStable(results, func(i, j int) bool {
		oi, oj := order[results[i].EntityID], order[results[j].EntityID]
		if oi != oj {
			return oi < oj
		}
		return results[i].Path < results[j].Path
	})
	return results, dropped
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
