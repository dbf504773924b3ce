package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grail-oracle/config"
	"grail-oracle/models"
	"grail-oracle/services"
	"grail-oracle/utils"
)

type fakeStore struct {
	items map[string]*models.TrackedItem // keyed by ticker
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: make(map[string]*models.TrackedItem)}
}

func (f *fakeStore) UpsertItem(item *models.TrackedItem) (*models.TrackedItem, error) {
	if existing, ok := f.items[item.Ticker]; ok {
		return existing, nil
	}
	stored := *item
	stored.ID = uuid.NewString()
	f.items[item.Ticker] = &stored
	return &stored, nil
}

func (f *fakeStore) GetItemByTicker(ticker string) (*models.TrackedItem, error) {
	return f.items[ticker], nil
}

func (f *fakeStore) GetItemByTitle(title string) (*models.TrackedItem, error) {
	for _, item := range f.items {
		if strings.EqualFold(item.Title, title) {
			return item, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) TitleExists(title string) (bool, error) {
	item, _ := f.GetItemByTitle(title)
	return item != nil, nil
}

func (f *fakeStore) StaleItems(int) ([]*models.TrackedItem, error) { return nil, nil }
func (f *fakeStore) UpdatePrice(string, float64, models.ConditionGrade, float64, string) error {
	return nil
}
func (f *fakeStore) MarkScanned(string, time.Time) error               { return nil }
func (f *fakeStore) DeleteItem(string) error                           { return nil }
func (f *fakeStore) InsertOffers([]*models.Offer) error                { return nil }
func (f *fakeStore) ActiveAlerts(string) ([]*models.PriceAlert, error) { return nil, nil }
func (f *fakeStore) DeactivateAlert(int64) error                       { return nil }
func (f *fakeStore) InsertFeedEvent(*models.FeedEvent) error           { return nil }
func (f *fakeStore) SeedCursor(int) (int, error)                       { return 0, nil }
func (f *fakeStore) SaveSeedCursor(int, int) error                     { return nil }
func (f *fakeStore) Close() error                                      { return nil }

type fakeTrigger struct {
	keywords []string
	cycles   int
	full     bool
}

func (t *fakeTrigger) TriggerKeyword(keyword string) bool {
	if t.full {
		return false
	}
	t.keywords = append(t.keywords, keyword)
	return true
}

func (t *fakeTrigger) TriggerCycle() bool {
	if t.full {
		return false
	}
	t.cycles++
	return true
}

type alwaysSane struct{}

func (alwaysSane) SanityCheck(context.Context, string) bool { return true }

func newTestServer(store *fakeStore, trigger *fakeTrigger) *Server {
	logger := utils.NewLogger("error")
	seeds := services.NewSeedGenerator(config.SeedsConfig{ShardTotal: 1})
	catalog := services.NewCatalogManager(store, seeds, alwaysSane{}, logger)
	return New(store, catalog, trigger, 10*time.Minute, logger)
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestScanNewKeywordStartsScrape(t *testing.T) {
	store := newFakeStore()
	trigger := &fakeTrigger{}
	router := newTestServer(store, trigger).Router()

	w := postJSON(t, router, "/api/v1/scan", map[string]any{"keyword": "Rolex Submariner"})

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "scraping", resp["status"])
	assert.NotEmpty(t, resp["ticker"])
	assert.Equal(t, []string{"Rolex Submariner"}, trigger.keywords)
}

func TestScanFreshItemIsCached(t *testing.T) {
	store := newFakeStore()
	price := 12500.0
	item, _ := store.UpsertItem(&models.TrackedItem{
		Title:  "Rolex Submariner",
		Ticker: services.MakeTicker("Rolex Submariner"),
	})
	item.CanonicalPrice = &price
	item.LastScannedAt = time.Now()

	trigger := &fakeTrigger{}
	router := newTestServer(store, trigger).Router()

	w := postJSON(t, router, "/api/v1/scan", map[string]any{"keyword": "Rolex Submariner"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cached", resp["status"])
	assert.Empty(t, trigger.keywords, "a fresh item must not launch a scrape")
}

func TestScanStaleItemRescans(t *testing.T) {
	store := newFakeStore()
	item, _ := store.UpsertItem(&models.TrackedItem{
		Title:  "Rolex Submariner",
		Ticker: services.MakeTicker("Rolex Submariner"),
	})
	item.LastScannedAt = time.Now().Add(-time.Hour)

	trigger := &fakeTrigger{}
	router := newTestServer(store, trigger).Router()

	w := postJSON(t, router, "/api/v1/scan", map[string]any{"keyword": "Rolex Submariner"})

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"Rolex Submariner"}, trigger.keywords)
}

func TestScanRejectsMissingKeyword(t *testing.T) {
	router := newTestServer(newFakeStore(), &fakeTrigger{}).Router()
	w := postJSON(t, router, "/api/v1/scan", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCycleBusyReturnsConflict(t *testing.T) {
	trigger := &fakeTrigger{full: true}
	router := newTestServer(newFakeStore(), trigger).Router()

	w := postJSON(t, router, "/api/v1/cycle", map[string]any{})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCycleQueued(t *testing.T) {
	trigger := &fakeTrigger{}
	router := newTestServer(newFakeStore(), trigger).Router()

	w := postJSON(t, router, "/api/v1/cycle", map[string]any{})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, trigger.cycles)
}

func TestGetItemUnknownTicker(t *testing.T) {
	router := newTestServer(newFakeStore(), &fakeTrigger{}).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items/NOPE-0000", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetItemByTicker(t *testing.T) {
	store := newFakeStore()
	price := 80.0
	item, _ := store.UpsertItem(&models.TrackedItem{
		Title:  "Leica M6",
		Ticker: services.MakeTicker("Leica M6"),
	})
	item.CanonicalPrice = &price
	item.ConditionGrade = models.GradeB

	router := newTestServer(store, &fakeTrigger{}).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items/"+item.Ticker, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var dto map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dto))
	assert.Equal(t, "Leica M6", dto["title"])
	assert.Equal(t, 80.0, dto["canonical_price"])
	assert.Equal(t, "B", dto["condition_grade"])
}

func TestHealthz(t *testing.T) {
	router := newTestServer(newFakeStore(), &fakeTrigger{}).Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
