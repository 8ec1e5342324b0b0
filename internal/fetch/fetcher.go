// Package fetch downloads resolved product URLs with bounded parallelism and
// bounded retry.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scenefetch/scenefetch/internal/constants"
	"github.com/scenefetch/scenefetch/internal/diskspace"
	ihttp "github.com/scenefetch/scenefetch/internal/http"
	"github.com/scenefetch/scenefetch/internal/logging"
	"github.com/scenefetch/scenefetch/internal/storage"
	"github.com/scenefetch/scenefetch/internal/transfer"
	"github.com/scenefetch/scenefetch/internal/validation"
	"github.com/scenefetch/scenefetch/internal/version"
)

// Result is one successfully persisted file.
type Result struct {
	URL string
	// EntityID is derived from the filename.
	EntityID string
	// DispatchEntityID is the entity id the service reported for the
	// download, if any.
	DispatchEntityID string
	Path             string
	Size             int64
	Attempts         int
	Mirror           string // remote location when mirrored
}

// Failure is a URL whose attempts were exhausted or cancelled.
type Failure struct {
	URL      string
	Attempts int
	Err      error
}

// Progress receives per-attempt progress. Implementations must be safe for
// concurrent use.
type Progress interface {
	Begin(name string, size int64, attempt int) FileProgress
}

// FileProgress tracks one attempt.
type FileProgress interface {
	// Wrap returns a reader that reports bytes read from r.
	Wrap(r io.Reader) io.Reader
	Finish(err error)
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(f *Fetcher) { f.logger = logging.OrNop(l) }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg ihttp.Config) Option {
	return func(f *Fetcher) { f.retry = cfg }
}

// WithProgress attaches a progress sink.
func WithProgress(p Progress) Option {
	return func(f *Fetcher) { f.progress = p }
}

// WithQueue records every fetch in q.
func WithQueue(q *transfer.Queue) Option {
	return func(f *Fetcher) { f.queue = q }
}

// WithMirror copies each persisted file to m.
func WithMirror(m storage.Mirror) Option {
	return func(f *Fetcher) { f.mirror = m }
}

// WithAttemptTimeout bounds a single attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.attemptTimeout = d }
}

// Fetcher downloads files into one output directory.
type Fetcher struct {
	client         *http.Client
	outDir         string
	retry          ihttp.Config
	attemptTimeout time.Duration
	logger         *logging.Logger
	progress       Progress
	queue          *transfer.Queue
	mirror         storage.Mirror
}

// New creates a Fetcher. The retry policy defaults to every failure being
// retried up to constants.MaxRetries attempts.
func New(client *http.Client, outDir string, opts ...Option) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	retry := ihttp.DefaultConfig()
	retry.RetryAll = true

	f := &Fetcher{
		client:         client,
		outDir:         outDir,
		retry:          retry,
		attemptTimeout: constants.FetchTimeout,
		logger:         logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// OutputDir returns the directory files are written to.
func (f *Fetcher) OutputDir() string { return f.outDir }

// Batch scopes one admission gate and one result collector. Create one per
// orchestrated batch with NewBatch.
type Batch struct {
	f    *Fetcher
	gate chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	results  []Result
	failures []Failure

	held    atomic.Int32
	maxHeld atomic.Int32
}

// NewBatch creates a batch admitting at most concurrency attempts at a time.
// Values below 1 fall back to constants.DefaultMaxConcurrent.
func (f *Fetcher) NewBatch(concurrency int) *Batch {
	if concurrency < 1 {
		concurrency = constants.DefaultMaxConcurrent
	}
	return &Batch{f: f, gate: make(chan struct{}, concurrency)}
}

// Capacity returns the admission limit.
func (b *Batch) Capacity() int { return cap(b.gate) }

// MaxHeld returns the largest number of slots held at once so far.
func (b *Batch) MaxHeld() int { return int(b.maxHeld.Load()) }

// Dispatch starts fetching url in a new goroutine and returns immediately.
// dispatchEntityID is the entity id the service attached to the download.
func (b *Batch) Dispatch(ctx context.Context, url, dispatchEntityID string) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(ctx, url, dispatchEntityID)
	}()
}

// Wait blocks until every dispatched fetch has finished and returns the
// collected results and failures.
func (b *Batch) Wait() ([]Result, []Failure) {
	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	results := make([]Result, len(b.results))
	copy(results, b.results)
	failures := make([]Failure, len(b.failures))
	copy(failures, b.failures)
	return results, failures
}

func (b *Batch) run(ctx context.Context, url, dispatchEntityID string) {
	f := b.f
	log := f.logger.Child("url", url)

	var task *transfer.Task
	if f.queue != nil {
		task = f.queue.Track(url)
	}

	retry := f.retry
	userOnRetry := retry.OnRetry
	retry.OnRetry = func(attempt int, err error, errType ihttp.ErrorType, backoff time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("class", ihttp.ErrorTypeName(errType)).
			Dur("backoff", backoff).
			Msg("Fetch attempt failed, retrying")
		if task != nil {
			f.queue.Retry(task.ID, err)
		}
		if userOnRetry != nil {
			userOnRetry(attempt, err, errType, backoff)
		}
	}

	var res Result
	var attempts int
	err := ihttp.ExecuteWithRetry(ctx, retry, func(ctx context.Context, attempt int) error {
		attempts = attempt
		if err := b.acquire(ctx); err != nil {
			return err
		}
		defer b.release()

		if task != nil {
			f.queue.Start(task.ID, attempt)
		}
		r, err := f.attempt(ctx, url, attempt, task)
		if err != nil {
			return err
		}
		res = r
		return nil
	})

	if err != nil {
		var exhausted *ihttp.ExhaustedError
		if errors.As(err, &exhausted) {
			attempts = exhausted.Attempts
			err = exhausted.Err
		}
		log.Error().Err(err).Int("attempts", attempts).Msg("Fetch failed")
		if task != nil {
			f.queue.Fail(task.ID, err)
		}
		b.mu.Lock()
		b.failures = append(b.failures, Failure{URL: url, Attempts: attempts, Err: err})
		b.mu.Unlock()
		return
	}

	res.URL = url
	res.DispatchEntityID = dispatchEntityID
	res.Attempts = attempts

	if f.mirror != nil {
		loc, mErr := f.mirrorFile(ctx, res.Path)
		if mErr != nil {
			log.Warn().Err(mErr).Str("mirror", f.mirror.Name()).Msg("Mirror upload failed")
		} else {
			res.Mirror = loc
		}
	}

	if task != nil {
		f.queue.Complete(task.ID, res.Path)
	}
	log.Info().
		Str("file", filepath.Base(res.Path)).
		Str("entity_id", res.EntityID).
		Int("attempts", attempts).
		Msg("Fetched")

	b.mu.Lock()
	b.results = append(b.results, res)
	b.mu.Unlock()
}

// acquire takes one gate slot, honouring ctx.
func (b *Batch) acquire(ctx context.Context) error {
	select {
	case b.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	n := b.held.Add(1)
	for {
		cur := b.maxHeld.Load()
		if n <= cur || b.maxHeld.CompareAndSwap(cur, n) {
			break
		}
	}
	return nil
}

func (b *Batch) release() {
	b.held.Add(-1)
	<-b.gate
}

// attempt performs one GET and persists the body.
func (f *Fetcher) attempt(ctx context.Context, url string, attempt int, task *transfer.Task) (Result, error) {
	if f.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.attemptTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, &FetchError{URL: url, Op: "request", Err: err}
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, &FetchError{URL: url, Op: "get", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{}, &FetchError{URL: url, Op: "get", Err: &ihttp.StatusError{Code: resp.StatusCode, Status: resp.Status}}
	}

	name, err := ParseFilename(resp.Header.Get("Content-Disposition"))
	if err != nil {
		return Result{}, &FetchError{URL: url, Op: "filename", Err: err}
	}
	dest, err := validation.SafeJoin(f.outDir, name)
	if err != nil {
		return Result{}, &FetchError{URL: url, Op: "filename", Err: err}
	}
	if task != nil {
		f.queue.SetFile(task.ID, name, resp.ContentLength)
	}

	var body io.Reader = resp.Body
	var fp FileProgress
	if f.progress != nil {
		fp = f.progress.Begin(name, resp.ContentLength, attempt)
		body = fp.Wrap(body)
	}

	size, err := persist(dest, body, resp.ContentLength)
	if fp != nil {
		fp.Finish(err)
	}
	if err != nil {
		return Result{}, &FetchError{URL: url, Op: "persist", Err: err}
	}

	return Result{EntityID: DeriveEntityID(name), Path: dest, Size: size}, nil
}

// persist streams body into a temp file next to dest and renames it into
// place once complete. A short body is io.ErrUnexpectedEOF.
func persist(dest string, body io.Reader, expected int64) (int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := diskspace.CheckAvailableSpace(dest, expected, constants.DiskSpaceSafetyMargin); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		return n, err
	}
	if expected > 0 && n != expected {
		tmp.Close()
		return n, fmt.Errorf("received %d of %d bytes: %w", n, expected, io.ErrUnexpectedEOF)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return n, fmt.Errorf("failed to move file into place: %w", err)
	}
	committed = true
	return n, nil
}

func (f *Fetcher) mirrorFile(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.MirrorUploadTimeout)
	defer cancel()
	return f.mirror.Upload(ctx, path)
}
