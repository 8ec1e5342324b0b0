package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scenefetch/scenefetch/internal/api"
	"github.com/scenefetch/scenefetch/internal/constants"
	"github.com/scenefetch/scenefetch/internal/events"
	"github.com/scenefetch/scenefetch/internal/fetch"
	ihttp "github.com/scenefetch/scenefetch/internal/http"
	"github.com/scenefetch/scenefetch/internal/models"
)

// fileServer serves /<name> as an attachment called <name>.
func fileServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		_, _ = io.WriteString(w, "data:"+name)
	}))
	t.Cleanup(server.Close)
	return server
}

type fakeService struct {
	mu         sync.Mutex
	request    *models.DownloadRequestResponse
	requestErr error
	// retrieves[i] answers the i-th retrieve; the last entry repeats.
	retrieves   []*models.DownloadRetrieveResponse
	retrieveErr error
	retrieveN   int
	gotLabel    string
	gotSpecs    []models.DownloadSpec
}

func (f *fakeService) DownloadRequest(ctx context.Context, downloads []models.DownloadSpec, label string) (*models.DownloadRequestResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotLabel = label
	f.gotSpecs = downloads
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return f.request, nil
}

func (f *fakeService) DownloadRetrieve(ctx context.Context, label string) (*models.DownloadRetrieveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieveN++
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	if len(f.retrieves) == 0 {
		return &models.DownloadRetrieveResponse{}, nil
	}
	i := f.retrieveN - 1
	if i >= len(f.retrieves) {
		i = len(f.retrieves) - 1
	}
	return f.retrieves[i], nil
}

// virtualSleep records requested sleeps without waiting.
type virtualSleep struct {
	mu    sync.Mutex
	total time.Duration
	calls int
}

func (v *virtualSleep) Sleep(ctx context.Context, d time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	v.total += d
	return ctx.Err()
}

func newFetcher(t *testing.T) *fetch.Fetcher {
	t.Helper()
	return fetch.New(http.DefaultClient, t.TempDir(), fetch.WithRetry(ihttp.Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		RetryAll:     true,
	}))
}

func bandItem(band, scene string) models.DownloadRequestItem {
	return models.DownloadRequestItem{EntityID: band, ProductID: "P_" + band, SceneEntityID: scene}
}

func TestNewLabel(t *testing.T) {
	got := NewLabel("batch7", time.Unix(1700000000, 0))
	if got != "batch7_1700000000" {
		t.Errorf("NewLabel() = %q", got)
	}
}

// Three band ids: two available immediately, one resolved by the first
// retrieve. Expect three results and exactly one retrieve call.
func TestRunAvailableAndFirstRetrieve(t *testing.T) {
	files := fileServer(t)
	items := []models.DownloadRequestItem{
		bandItem("L2ST_A_ST_B10_TIF", "SCENE_A"),
		bandItem("L2ST_B_ST_B10_TIF", "SCENE_B"),
		bandItem("L2ST_C_ST_B10_TIF", "SCENE_C"),
	}
	svc := &fakeService{
		request: &models.DownloadRequestResponse{
			AvailableDownloads: []models.DownloadEntry{
				{DownloadID: "1", URL: files.URL + "/A_ST_B10.TIF"},
				{DownloadID: "2", URL: files.URL + "/B_ST_B10.TIF"},
			},
			PreparingDownloads: []models.DownloadEntry{{DownloadID: "3"}},
		},
		retrieves: []*models.DownloadRetrieveResponse{{
			Requested: []models.DownloadEntry{{DownloadID: "3", URL: files.URL + "/C_ST_B10.TIF"}},
		}},
	}
	sleeper := &virtualSleep{}

	o := New(svc, newFetcher(t), Options{PollInterval: 30 * time.Second, MaxWait: 300 * time.Second, Sleep: sleeper.Sleep})
	res, err := o.Run(context.Background(), items, "batch_1700000000")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Results) != 3 {
		t.Fatalf("results = %+v, want 3", res.Results)
	}
	for i, want := range []string{"SCENE_A", "SCENE_B", "SCENE_C"} {
		if res.Results[i].SceneEntityID != want || res.Results[i].EntityID != items[i].EntityID {
			t.Errorf("result[%d] = %+v, want scene %s", i, res.Results[i], want)
		}
	}
	if svc.retrieveN != 1 || res.Retrieves != 1 {
		t.Errorf("retrieve calls = %d/%d, want 1", svc.retrieveN, res.Retrieves)
	}
	if sleeper.calls != 0 {
		t.Errorf("slept %d times, want 0", sleeper.calls)
	}
	if svc.gotLabel != "batch_1700000000" || len(svc.gotSpecs) != 3 {
		t.Errorf("request label/specs = %q / %d", svc.gotLabel, len(svc.gotSpecs))
	}
	if len(res.Abandoned) != 0 || len(res.Failed) != 0 || res.Dropped != 0 {
		t.Errorf("abandoned=%v failed=%v dropped=%d", res.Abandoned, res.Failed, res.Dropped)
	}
}

// A ticket that never resolves: polling stops once the accumulated wait
// reaches MaxWait, and everything resolved before that is returned.
func TestRunAbandonsAfterMaxWait(t *testing.T) {
	files := fileServer(t)
	items := []models.DownloadRequestItem{
		bandItem("L2ST_A_ST_B10_TIF", "SCENE_A"),
		bandItem("L2ST_B_ST_B10_TIF", "SCENE_B"),
		bandItem("L2ST_C_ST_B10_TIF", "SCENE_C"),
	}
	svc := &fakeService{
		request: &models.DownloadRequestResponse{
			PreparingDownloads: []models.DownloadEntry{{DownloadID: "1"}, {DownloadID: "2"}, {DownloadID: "3"}},
		},
		retrieves: []*models.DownloadRetrieveResponse{
			{Requested: []models.DownloadEntry{{DownloadID: "1"}, {DownloadID: "2"}, {DownloadID: "3"}}},
			{Available: []models.DownloadEntry{{DownloadID: "1", URL: files.URL + "/A_ST_B10.TIF"}}},
			{Available: []models.DownloadEntry{
				{DownloadID: "1", URL: files.URL + "/A_ST_B10.TIF"},
				{DownloadID: "2", URL: files.URL + "/B_ST_B10.TIF"},
			}},
			{Requested: []models.DownloadEntry{{DownloadID: "3", StatusText: "Processing"}}},
		},
	}
	sleeper := &virtualSleep{}
	interval, maxWait := 30*time.Second, 100*time.Second

	o := New(svc, newFetcher(t), Options{PollInterval: interval, MaxWait: maxWait, Sleep: sleeper.Sleep})
	res, err := o.Run(context.Background(), items, "batch_1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if sleeper.total < maxWait || sleeper.total >= maxWait+interval {
		t.Errorf("total wait = %v, want within [%v, %v)", sleeper.total, maxWait, maxWait+interval)
	}
	if svc.retrieveN != sleeper.calls+1 {
		t.Errorf("retrieves = %d, sleeps = %d; want one immediate retrieve plus one per sleep", svc.retrieveN, sleeper.calls)
	}
	if len(res.Abandoned) != 1 || res.Abandoned[0] != "3" {
		t.Errorf("abandoned = %v, want [3]", res.Abandoned)
	}
	if len(res.Results) != 2 {
		t.Fatalf("results = %+v, want 2", res.Results)
	}
	if res.Results[0].SceneEntityID != "SCENE_A" || res.Results[1].SceneEntityID != "SCENE_B" {
		t.Errorf("results = %+v", res.Results)
	}
}

func TestRunNegativeMaxWaitOnlyImmediateRetrieve(t *testing.T) {
	svc := &fakeService{
		request: &models.DownloadRequestResponse{PreparingDownloads: []models.DownloadEntry{{DownloadID: "9"}}},
	}
	sleeper := &virtualSleep{}
	o := New(svc, newFetcher(t), Options{MaxWait: -1, Sleep: sleeper.Sleep})

	res, err := o.Run(context.Background(), []models.DownloadRequestItem{bandItem("X", "S")}, "l")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if svc.retrieveN != 1 || sleeper.calls != 0 {
		t.Errorf("retrieves = %d, sleeps = %d", svc.retrieveN, sleeper.calls)
	}
	if len(res.Abandoned) != 1 {
		t.Errorf("abandoned = %v", res.Abandoned)
	}
}

// Zero options poll with the default interval until the default budget is spent.
func TestRunDefaultOptionsPollFullBudget(t *testing.T) {
	svc := &fakeService{
		request: &models.DownloadRequestResponse{PreparingDownloads: []models.DownloadEntry{{DownloadID: "9"}}},
	}
	sleeper := &virtualSleep{}
	o := New(svc, newFetcher(t), Options{Sleep: sleeper.Sleep})

	res, err := o.Run(context.Background(), []models.DownloadRequestItem{bandItem("X", "S")}, "l")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sleeper.total != constants.MaxPollWait {
		t.Errorf("slept %v, want %v", sleeper.total, constants.MaxPollWait)
	}
	wantSleeps := int(constants.MaxPollWait / constants.PollInterval)
	if sleeper.calls != wantSleeps || svc.retrieveN != wantSleeps+1 {
		t.Errorf("sleeps = %d, retrieves = %d, want %d and %d", sleeper.calls, svc.retrieveN, wantSleeps, wantSleeps+1)
	}
	if len(res.Abandoned) != 1 || res.Abandoned[0] != "9" {
		t.Errorf("abandoned = %v, want [9]", res.Abandoned)
	}
}

// Every result references a requested entity; files that match nothing are
// dropped instead of surfacing as orphans.
func TestRunDropsUncorrelatedFiles(t *testing.T) {
	files := fileServer(t)
	items := []models.DownloadRequestItem{bandItem("L2ST_A_ST_B10_TIF", "SCENE_A")}
	svc := &fakeService{
		request: &models.DownloadRequestResponse{
			AvailableDownloads: []models.DownloadEntry{
				{DownloadID: "1", URL: files.URL + "/A_ST_B10.TIF"},
				{DownloadID: "2", URL: files.URL + "/UNRELATED.TIF"},
			},
		},
	}
	o := New(svc, newFetcher(t), Options{})

	res, err := o.Run(context.Background(), items, "l")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Results) != 1 || res.Dropped != 1 {
		t.Fatalf("results = %+v, dropped = %d", res.Results, res.Dropped)
	}
	corr := map[string]string{"L2ST_A_ST_B10_TIF": "SCENE_A"}
	for _, r := range res.Results {
		if corr[r.EntityID] != r.SceneEntityID {
			t.Errorf("orphan result %+v", r)
		}
	}
	if svc.retrieveN != 0 {
		t.Errorf("retrieve called %d times with nothing pending", svc.retrieveN)
	}
}

// Bundle files are named after the product, not the band; the entity id the
// service attaches to the download links them back.
func TestRunCorrelatesBundlesByDispatchEntity(t *testing.T) {
	files := fileServer(t)
	items := []models.DownloadRequestItem{{EntityID: "LC80440342023", ProductID: "5e83d0b8", SceneEntityID: "LC80440342023"}}
	svc := &fakeService{
		request: &models.DownloadRequestResponse{
			AvailableDownloads: []models.DownloadEntry{
				{DownloadID: "1", EntityID: "LC80440342023", URL: files.URL + "/LC08_L2SP_044034.tar"},
			},
		},
	}
	o := New(svc, newFetcher(t), Options{})

	res, err := o.Run(context.Background(), items, "l")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].SceneEntityID != "LC80440342023" {
		t.Errorf("results = %+v", res.Results)
	}
}

func TestRunReportsFetchFailures(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer broken.Close()

	svc := &fakeService{
		request: &models.DownloadRequestResponse{
			AvailableDownloads: []models.DownloadEntry{{DownloadID: "1", URL: broken.URL + "/x"}},
		},
	}
	o := New(svc, newFetcher(t), Options{})
	res, err := o.Run(context.Background(), []models.DownloadRequestItem{bandItem("X", "S")}, "l")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0].Attempts != 2 {
		t.Errorf("failed = %+v", res.Failed)
	}
	if len(res.Results) != 0 {
		t.Errorf("results = %+v", res.Results)
	}
}

func TestRunPropagatesTransportErrors(t *testing.T) {
	authErr := &api.TransportError{Kind: api.KindAuthError, Endpoint: "download-request", StatusCode: 401}

	t.Run("request", func(t *testing.T) {
		o := New(&fakeService{requestErr: authErr}, newFetcher(t), Options{})
		res, err := o.Run(context.Background(), []models.DownloadRequestItem{bandItem("X", "S")}, "l")
		if res != nil || !api.IsAuthError(err) {
			t.Errorf("Run() = %v, %v", res, err)
		}
	})

	t.Run("retrieve keeps partial result", func(t *testing.T) {
		files := fileServer(t)
		svc := &fakeService{
			request: &models.DownloadRequestResponse{
				AvailableDownloads: []models.DownloadEntry{{DownloadID: "1", URL: files.URL + "/A.TIF"}},
				PreparingDownloads: []models.DownloadEntry{{DownloadID: "2"}},
			},
			retrieveErr: &api.TransportError{Kind: api.KindServerError, Endpoint: "download-retrieve", StatusCode: 503},
		}
		o := New(svc, newFetcher(t), Options{})
		items := []models.DownloadRequestItem{bandItem("L2ST_A_TIF", "SA"), bandItem("L2ST_B_TIF", "SB")}
		res, err := o.Run(context.Background(), items, "l")
		if !api.IsKind(err, api.KindServerError) {
			t.Fatalf("error = %v, want ServerError", err)
		}
		if res == nil || len(res.Results) != 1 || len(res.Abandoned) != 1 {
			t.Errorf("partial result = %+v", res)
		}
	})
}

func TestRunCancelledWhilePolling(t *testing.T) {
	svc := &fakeService{
		request: &models.DownloadRequestResponse{PreparingDownloads: []models.DownloadEntry{{DownloadID: "1"}}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := New(svc, newFetcher(t), Options{
		PollInterval: time.Hour,
		MaxWait:      10 * time.Hour,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})

	res, err := o.Run(ctx, []models.DownloadRequestItem{bandItem("X", "S")}, "l")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if res == nil || len(res.Abandoned) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunPublishesEvents(t *testing.T) {
	files := fileServer(t)
	eb := events.NewEventBus(16)
	defer eb.Close()
	polls := eb.Subscribe(events.EventPoll)
	done := eb.Subscribe(events.EventBatchComplete)

	svc := &fakeService{
		request: &models.DownloadRequestResponse{PreparingDownloads: []models.DownloadEntry{{DownloadID: "1"}}},
		retrieves: []*models.DownloadRetrieveResponse{
			{Available: []models.DownloadEntry{{DownloadID: "1", URL: files.URL + "/A.TIF"}}},
		},
	}
	o := New(svc, newFetcher(t), Options{EventBus: eb})
	if _, err := o.Run(context.Background(), []models.DownloadRequestItem{bandItem("L2ST_A_TIF", "S")}, "l"); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-polls:
		pe := ev.(*events.PollEvent)
		if pe.Pending != 0 || pe.Resolved != 1 || pe.Total != 1 {
			t.Errorf("poll event = %+v", pe)
		}
	default:
		t.Error("no poll event")
	}
	select {
	case ev := <-done:
		if be := ev.(*events.BatchEvent); be.Results != 1 {
			t.Errorf("batch event = %+v", be)
		}
	default:
		t.Error("no batch event")
	}
}

func TestRunEmptyItems(t *testing.T) {
	svc := &fakeService{}
	res, err := New(svc, newFetcher(t), Options{}).Run(context.Background(), nil, "l")
	if err != nil || res == nil || len(res.Results) != 0 {
		t.Errorf("Run(nil) = %+v, %v", res, err)
	}
	if svc.gotLabel != "" {
		t.Error("download-request should not be called without items")
	}
}
