package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavortown/enrich-cli/internal/enrich"
	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/search"
	"github.com/flavortown/enrich-cli/internal/store"
)

// fakeStore is an in-memory store.Store with write counters.
type fakeStore struct {
	mu          sync.Mutex
	byID        map[string]*model.Restaurant
	bySlug      map[string]string
	listResult  []model.Restaurant
	countResult int

	creates       int
	contentWrites int
	statusWrites  int
	stampWrites   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:   make(map[string]*model.Restaurant),
		bySlug: make(map[string]string),
	}
}

func (f *fakeStore) add(r model.Restaurant) {
	f.byID[r.ID] = &r
	f.bySlug[r.Slug] = r.ID
}

func (f *fakeStore) GetRestaurantByID(_ context.Context, id string) (*model.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.byID[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStore) GetRestaurantBySlug(ctx context.Context, slug string) (*model.Restaurant, error) {
	f.mu.Lock()
	id, ok := f.bySlug[slug]
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return f.GetRestaurantByID(ctx, id)
}

func (f *fakeStore) GetRestaurantsByIDs(_ context.Context, ids []string) ([]model.Restaurant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Restaurant
	for _, id := range ids {
		if r, ok := f.byID[id]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRestaurants(_ context.Context, _ store.RestaurantCriteria) ([]model.Restaurant, error) {
	return f.listResult, nil
}

func (f *fakeStore) CountRestaurants(_ context.Context, _ store.RestaurantCriteria) (int, error) {
	if f.countResult > 0 {
		return f.countResult, nil
	}
	return len(f.listResult), nil
}

func (f *fakeStore) CreateRestaurant(_ context.Context, r *model.Restaurant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if r.ID == "" {
		r.ID = "gen-" + r.Slug
	}
	cp := *r
	f.byID[r.ID] = &cp
	f.bySlug[r.Slug] = r.ID
	return nil
}

func (f *fakeStore) UpdateRestaurantContent(_ context.Context, id string, content model.RestaurantContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentWrites++
	if r, ok := f.byID[id]; ok {
		r.Description = content.Description
		r.Cuisines = content.Cuisines
		r.PriceTier = content.PriceTier
	}
	return nil
}

func (f *fakeStore) UpdateRestaurantStatus(_ context.Context, id string, status model.RestaurantStatus, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusWrites++
	if r, ok := f.byID[id]; ok {
		r.Status = status
	}
	return nil
}

func (f *fakeStore) UpdateRestaurantContact(context.Context, string, model.ContactInfo) error {
	return nil
}

func (f *fakeStore) SetEnrichmentStatus(_ context.Context, id string, status model.EnrichmentStatus, _ *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stampWrites++
	if r, ok := f.byID[id]; ok {
		r.EnrichmentStatus = status
	}
	return nil
}

func (f *fakeStore) ImportRestaurants(context.Context, []model.Restaurant) (int64, error) {
	return 0, nil
}
func (f *fakeStore) ImportEpisodes(context.Context, []model.Episode) (int64, error) { return 0, nil }
func (f *fakeStore) GetEpisodeBySlug(context.Context, string) (*model.Episode, error) { return nil, nil }
func (f *fakeStore) ListEpisodesMissingMeta(context.Context, int) ([]model.Episode, error) {
	return nil, nil
}
func (f *fakeStore) UpdateEpisodeDescriptions(context.Context, string, string, string) error {
	return nil
}
func (f *fakeStore) GetCityBySlug(context.Context, string) (*model.City, error)  { return nil, nil }
func (f *fakeStore) UpdateCityDescription(context.Context, string, string) error { return nil }
func (f *fakeStore) GetCachedSearch(context.Context, string) (*model.CachedSearch, error) {
	return nil, nil
}
func (f *fakeStore) PutCachedSearch(context.Context, model.CachedSearch) error { return nil }
func (f *fakeStore) PruneExpiredSearches(context.Context) (int, error)         { return 0, nil }
func (f *fakeStore) Migrate(context.Context) error                             { return nil }
func (f *fakeStore) Close() error                                              { return nil }

type fakeSearcher struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ search.Options) (*model.SearchResponse, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &model.SearchResponse{
		Query:   query,
		Results: []model.SearchResultItem{{Title: "hit", URL: "https://example.com", Content: "exists"}},
	}, nil
}

type fakeEnricher struct {
	calls atomic.Int32
	fail  bool
}

func (f *fakeEnricher) Enrich(context.Context, *model.Restaurant) enrich.ContentResult {
	f.calls.Add(1)
	if f.fail {
		return enrich.ContentResult{
			TokensUsed: model.NewTokenUsage(100, 0),
			Err:        assert.AnError,
		}
	}
	return enrich.ContentResult{
		Content: &model.RestaurantContent{
			Description: "A fine establishment with a long history of feeding people well.",
			Cuisines:    []string{"american"},
			PriceTier:   model.PriceModerate,
		},
		TokensUsed: model.NewTokenUsage(2000, 500),
		Success:    true,
	}
}

// fakeVerifier returns scripted results keyed by slug, with a default.
type fakeVerifier struct {
	calls      atomic.Int32
	bySlug     map[string]enrich.StatusResult
	defaultRes enrich.StatusResult
}

func (f *fakeVerifier) Verify(_ context.Context, r *model.Restaurant) enrich.StatusResult {
	f.calls.Add(1)
	if res, ok := f.bySlug[r.Slug]; ok {
		return res
	}
	return f.defaultRes
}

func openVerifier(conf float64) *fakeVerifier {
	return &fakeVerifier{defaultRes: enrich.StatusResult{
		Status:     model.StatusOpen,
		Confidence: conf,
		Source:     enrich.SourceWebSearch,
		TokensUsed: model.NewTokenUsage(500, 100),
		Success:    true,
	}}
}

func TestAddRestaurantHappyPath(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	searcher := &fakeSearcher{}
	w := NewAddRestaurant(st, searcher, &fakeEnricher{}, openVerifier(0.9), testCalc(), testModel, Limits{})

	res := w.Execute(context.Background(), AddRestaurantInput{
		Name: "Duke's Diner", City: "Tulsa", State: "OK",
	})
	require.Equal(t, model.WorkflowCompleted, res.Status, "errors: %v", res.Errors)
	require.True(t, res.Success)

	out, ok := res.Output.(*AddRestaurantOutput)
	require.True(t, ok)
	assert.Equal(t, "duke-s-diner-tulsa", out.Slug)
	assert.NotEmpty(t, out.RestaurantID)
	assert.Equal(t, model.StatusOpen, out.Status)
	assert.True(t, out.StatusPersisted)

	assert.Equal(t, 1, st.creates)
	assert.Equal(t, 1, st.contentWrites)
	assert.Equal(t, 1, st.statusWrites)
	assert.Equal(t, 1, st.stampWrites)
	assert.Greater(t, res.TotalCost.Tokens, 0)
	require.Len(t, res.Steps, 5)
}

func TestAddRestaurantValidationBeforeNetwork(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{}
	w := NewAddRestaurant(newFakeStore(), searcher, &fakeEnricher{}, openVerifier(0.9), testCalc(), testModel, Limits{})

	res := w.Execute(context.Background(), AddRestaurantInput{Name: ""})
	assert.Equal(t, model.WorkflowFailed, res.Status)
	assert.Equal(t, model.CodeValidationFailed, res.FirstErrorCode())
	assert.Empty(t, res.Steps)
	assert.Zero(t, searcher.calls.Load(), "no network before validation passes")
}

func TestAddRestaurantCostGateBlocksSteps(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{}
	w := NewAddRestaurant(newFakeStore(), searcher, &fakeEnricher{}, openVerifier(0.9), testCalc(), testModel,
		Limits{MaxCostUSD: 0.0001})

	res := w.Execute(context.Background(), AddRestaurantInput{Name: "X", City: "Y", State: "Z"})
	assert.Equal(t, model.WorkflowFailed, res.Status)
	assert.Equal(t, model.CodeCostLimitExceeded, res.FirstErrorCode())
	assert.Empty(t, res.Steps)
	assert.Zero(t, searcher.calls.Load())
}

func TestAddRestaurantDryRunWritesNothing(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	w := NewAddRestaurant(st, &fakeSearcher{}, &fakeEnricher{}, openVerifier(0.9), testCalc(), testModel, Limits{})

	res := w.Execute(context.Background(), AddRestaurantInput{
		Name: "Duke's Diner", City: "Tulsa", State: "OK", DryRun: true,
	})
	require.Equal(t, model.WorkflowCompleted, res.Status)

	out := res.Output.(*AddRestaurantOutput)
	assert.True(t, out.DryRun)
	assert.NotNil(t, out.Content, "dry run still computes content")
	assert.False(t, out.StatusPersisted)

	assert.Zero(t, st.creates)
	assert.Zero(t, st.contentWrites)
	assert.Zero(t, st.statusWrites)
	assert.Zero(t, st.stampWrites)
}

func TestAddRestaurantContentFailureIsFatal(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	w := NewAddRestaurant(st, &fakeSearcher{}, &fakeEnricher{fail: true}, openVerifier(0.9), testCalc(), testModel, Limits{})

	res := w.Execute(context.Background(), AddRestaurantInput{Name: "X", City: "Y", State: "Z"})
	assert.Equal(t, model.WorkflowFailed, res.Status)
	assert.Equal(t, model.CodeExecutionFailed, res.FirstErrorCode())
	assert.Zero(t, st.contentWrites)
}

func TestAddRestaurantStatusFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	verifier := &fakeVerifier{defaultRes: enrich.StatusResult{Err: assert.AnError}}
	w := NewAddRestaurant(st, &fakeSearcher{}, &fakeEnricher{}, verifier, testCalc(), testModel, Limits{})

	res := w.Execute(context.Background(), AddRestaurantInput{Name: "X", City: "Y", State: "Z"})
	require.Equal(t, model.WorkflowCompleted, res.Status, "status verification failure must not abort onboarding")
	assert.Equal(t, 1, st.contentWrites)
	assert.Zero(t, st.statusWrites)
	require.NotEmpty(t, res.Errors)
	assert.False(t, res.Errors[0].Fatal)
}

func TestAddRestaurantLowConfidenceStatusNotPersisted(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	w := NewAddRestaurant(st, &fakeSearcher{}, &fakeEnricher{}, openVerifier(0.5), testCalc(), testModel, Limits{})

	res := w.Execute(context.Background(), AddRestaurantInput{Name: "X", City: "Y", State: "Z"})
	require.Equal(t, model.WorkflowCompleted, res.Status)
	out := res.Output.(*AddRestaurantOutput)
	assert.False(t, out.StatusPersisted)
	assert.Zero(t, st.statusWrites)
}

func TestRefreshRestaurantScopes(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.add(model.Restaurant{ID: "r1", Slug: "dukes-diner", Name: "Duke's Diner", Status: model.StatusOpen})
	enricher := &fakeEnricher{}
	verifier := openVerifier(0.9)
	w := NewRefreshRestaurant(st, enricher, verifier, testCalc(), testModel, Limits{})

	res := w.Execute(context.Background(), RefreshRestaurantInput{
		Slug:  "dukes-diner",
		Scope: RefreshScope{Status: true},
	})
	require.Equal(t, model.WorkflowCompleted, res.Status)
	assert.Zero(t, enricher.calls.Load(), "status-only scope skips content")
	assert.Equal(t, int32(1), verifier.calls.Load())
	assert.Equal(t, 1, st.statusWrites)
	assert.Zero(t, st.contentWrites)
	assert.Zero(t, st.stampWrites, "no enrichment stamp without a content refresh")
}

func TestRefreshRestaurantNotFound(t *testing.T) {
	t.Parallel()

	w := NewRefreshRestaurant(newFakeStore(), &fakeEnricher{}, openVerifier(0.9), testCalc(), testModel, Limits{})
	res := w.Execute(context.Background(), RefreshRestaurantInput{
		Slug:  "missing",
		Scope: RefreshScope{Content: true},
	})
	assert.Equal(t, model.WorkflowFailed, res.Status)
	assert.Equal(t, model.CodeExecutionFailed, res.FirstErrorCode())
}

func TestRefreshRestaurantRequiresScope(t *testing.T) {
	t.Parallel()

	w := NewRefreshRestaurant(newFakeStore(), &fakeEnricher{}, openVerifier(0.9), testCalc(), testModel, Limits{})
	res := w.Execute(context.Background(), RefreshRestaurantInput{Slug: "x"})
	assert.Equal(t, model.WorkflowFailed, res.Status)
	assert.Equal(t, model.CodeValidationFailed, res.FirstErrorCode())
}

func sweepFixture() (*fakeStore, *fakeVerifier) {
	st := newFakeStore()
	st.listResult = []model.Restaurant{
		{ID: "r1", Slug: "first", Status: model.StatusOpen},
		{ID: "r2", Slug: "second", Status: model.StatusOpen},
		{ID: "r3", Slug: "third", Status: model.StatusOpen},
	}
	for _, r := range st.listResult {
		st.add(r)
	}
	closed := enrich.StatusResult{
		Status:     model.StatusClosed,
		Confidence: 0.9,
		Source:     enrich.SourceWebSearch,
		TokensUsed: model.NewTokenUsage(500, 100),
		Success:    true,
	}
	unknown := enrich.StatusResult{
		Status:     model.StatusUnknown,
		Confidence: 0.2,
		Source:     enrich.SourceWebSearch,
		TokensUsed: model.NewTokenUsage(500, 100),
		Success:    true,
	}
	verifier := &fakeVerifier{bySlug: map[string]enrich.StatusResult{
		"first":  closed,
		"second": unknown,
		"third":  closed,
	}}
	return st, verifier
}

func TestStatusSweepScenario(t *testing.T) {
	t.Parallel()

	st, verifier := sweepFixture()
	w := NewStatusSweep(st, verifier, testCalc(), testModel, Limits{})

	res := w.Execute(context.Background(), StatusSweepInput{
		Criteria:      SweepCriteria{NotVerifiedInDays: 30},
		BatchSize:     2,
		MinConfidence: 0.7,
	})
	require.Equal(t, model.WorkflowCompleted, res.Status, "errors: %v", res.Errors)

	out := res.Output.(*StatusSweepOutput)
	assert.Equal(t, 3, out.TotalProcessed)
	assert.Equal(t, 2, out.TotalUpdated)
	assert.Equal(t, 1, out.TotalSkipped)
	assert.Equal(t, 0, out.TotalFailed)

	require.Len(t, out.Updates, 2)
	slugs := []string{out.Updates[0].Slug, out.Updates[1].Slug}
	assert.ElementsMatch(t, []string{"first", "third"}, slugs)
	for _, u := range out.Updates {
		assert.Equal(t, model.StatusOpen, u.OldStatus)
		assert.Equal(t, model.StatusClosed, u.NewStatus)
	}
	assert.Equal(t, 2, st.statusWrites)
}

func TestStatusSweepDryRunMatchesLiveRun(t *testing.T) {
	t.Parallel()

	st, verifier := sweepFixture()
	w := NewStatusSweep(st, verifier, testCalc(), testModel, Limits{})

	res := w.Execute(context.Background(), StatusSweepInput{
		Criteria:      SweepCriteria{NotVerifiedInDays: 30},
		BatchSize:     2,
		MinConfidence: 0.7,
		DryRun:        true,
	})
	require.Equal(t, model.WorkflowCompleted, res.Status)

	out := res.Output.(*StatusSweepOutput)
	assert.Equal(t, 2, out.TotalUpdated, "dry run computes the same updates")
	require.Len(t, out.Updates, 2)
	assert.Zero(t, st.statusWrites, "dry run performs zero writes")
}

func TestStatusSweepItemFailureIsolated(t *testing.T) {
	t.Parallel()

	st, verifier := sweepFixture()
	verifier.bySlug["second"] = enrich.StatusResult{Err: assert.AnError}
	w := NewStatusSweep(st, verifier, testCalc(), testModel, Limits{})

	res := w.Execute(context.Background(), StatusSweepInput{
		Criteria: SweepCriteria{NotVerifiedInDays: 30},
	})
	require.Equal(t, model.WorkflowCompleted, res.Status)

	out := res.Output.(*StatusSweepOutput)
	assert.Equal(t, 3, out.TotalProcessed)
	assert.Equal(t, 2, out.TotalUpdated)
	assert.Equal(t, 1, out.TotalFailed)
	assert.Zero(t, out.TotalSkipped)
}

func TestStatusSweepByIDs(t *testing.T) {
	t.Parallel()

	st, verifier := sweepFixture()
	w := NewStatusSweep(st, verifier, testCalc(), testModel, Limits{})

	res := w.Execute(context.Background(), StatusSweepInput{IDs: []string{"r1"}})
	require.Equal(t, model.WorkflowCompleted, res.Status)

	out := res.Output.(*StatusSweepOutput)
	assert.Equal(t, 1, out.TotalProcessed)
	assert.Equal(t, 1, out.TotalUpdated)
	assert.Equal(t, int32(1), verifier.calls.Load())
}

func TestStatusSweepRequiresSelection(t *testing.T) {
	t.Parallel()

	w := NewStatusSweep(newFakeStore(), openVerifier(0.9), testCalc(), testModel, Limits{})
	res := w.Execute(context.Background(), StatusSweepInput{})
	assert.Equal(t, model.WorkflowFailed, res.Status)
	assert.Equal(t, model.CodeValidationFailed, res.FirstErrorCode())
}

func TestStatusSweepCostGate(t *testing.T) {
	t.Parallel()

	st, verifier := sweepFixture()
	w := NewStatusSweep(st, verifier, testCalc(), testModel, Limits{MaxCostUSD: 0.00001})

	res := w.Execute(context.Background(), StatusSweepInput{
		Criteria: SweepCriteria{NotVerifiedInDays: 30},
	})
	assert.Equal(t, model.WorkflowFailed, res.Status)
	assert.Equal(t, model.CodeCostLimitExceeded, res.FirstErrorCode())
	assert.Empty(t, res.Steps)
	assert.Zero(t, verifier.calls.Load())
}
