package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grail-oracle/config"
	"grail-oracle/models"
	"grail-oracle/scraper"
	"grail-oracle/utils"
)

// stubPages hands out plain cancellable contexts and tracks that every
// page handed out was closed again.
type stubPages struct {
	mu     sync.Mutex
	opened int
	closed int
}

func (p *stubPages) NewPage(parent context.Context) (context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(parent)

	p.mu.Lock()
	p.opened++
	p.mu.Unlock()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			p.mu.Lock()
			p.closed++
			p.mu.Unlock()
			cancel()
		})
	}, nil
}

func (p *stubPages) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened, p.closed
}

type stubAdapter struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context) (*scraper.Result, error)
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Scrape(ctx context.Context, _ string, _ config.Node) (*scraper.Result, error) {
	a.calls.Add(1)
	return a.fn(ctx)
}

func testExecutor(pages *stubPages, maxAttempts int, attemptTimeout time.Duration) *Executor {
	return NewExecutor(pages, config.BrowserConfig{
		AttemptTimeout: attemptTimeout,
		MaxAttempts:    maxAttempts,
		BackoffMin:     time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	}, utils.NewLogger("error"))
}

func usNode() config.Node {
	return config.Node{Region: "US", TLD: "com", Currency: "USD", Sources: []string{"stub"}}
}

func TestRunReturnsOffersOnSuccess(t *testing.T) {
	pages := &stubPages{}
	adapter := &stubAdapter{name: "stub", fn: func(context.Context) (*scraper.Result, error) {
		return &scraper.Result{Offers: []*models.Offer{{LocalPrice: 100}}}, nil
	}}

	res := testExecutor(pages, 3, time.Second).Run(context.Background(), adapter, "rolex", usNode())

	require.NotNil(t, res)
	assert.Len(t, res.Offers, 1)
	assert.Equal(t, int32(1), adapter.calls.Load())

	opened, closed := pages.counts()
	assert.Equal(t, opened, closed)
}

func TestRunRetryBoundOnPersistentFailure(t *testing.T) {
	pages := &stubPages{}
	adapter := &stubAdapter{name: "stub", fn: func(context.Context) (*scraper.Result, error) {
		return nil, fmt.Errorf("%w: host down", scraper.ErrSourceUnavailable)
	}}

	res := testExecutor(pages, 3, time.Second).Run(context.Background(), adapter, "rolex", usNode())

	// Exactly maxAttempts attempts, then nil — never a panic or error.
	assert.Nil(t, res)
	assert.Equal(t, int32(3), adapter.calls.Load())

	opened, closed := pages.counts()
	assert.Equal(t, 3, opened)
	assert.Equal(t, opened, closed)
}

func TestRunTimeoutIsolation(t *testing.T) {
	pages := &stubPages{}
	adapter := &stubAdapter{name: "stub", fn: func(ctx context.Context) (*scraper.Result, error) {
		<-ctx.Done() // never resolves on its own
		return nil, ctx.Err()
	}}

	start := time.Now()
	res := testExecutor(pages, 2, 50*time.Millisecond).Run(context.Background(), adapter, "rolex", usNode())
	elapsed := time.Since(start)

	assert.Nil(t, res)
	assert.Less(t, elapsed, time.Second, "executor must not block past the timeout window")

	// Give the stray attempt goroutines a beat to observe cancellation.
	time.Sleep(20 * time.Millisecond)
	opened, closed := pages.counts()
	assert.Equal(t, 2, opened)
	assert.Equal(t, opened, closed, "every page must be confirmed closed")
}

func TestRunParseErrorIsEmptyResult(t *testing.T) {
	pages := &stubPages{}
	adapter := &stubAdapter{name: "stub", fn: func(context.Context) (*scraper.Result, error) {
		return nil, fmt.Errorf("%w: selector moved", scraper.ErrParse)
	}}

	res := testExecutor(pages, 3, time.Second).Run(context.Background(), adapter, "rolex", usNode())

	// The site answered; its markup moved. One attempt, empty result.
	require.NotNil(t, res)
	assert.Empty(t, res.Offers)
	assert.Equal(t, int32(1), adapter.calls.Load())
}

func TestRunRecoversAfterTransientFailure(t *testing.T) {
	pages := &stubPages{}
	adapter := &stubAdapter{name: "stub"}
	adapter.fn = func(context.Context) (*scraper.Result, error) {
		if adapter.calls.Load() == 1 {
			return nil, fmt.Errorf("%w: flaky", scraper.ErrTimeout)
		}
		return &scraper.Result{Offers: []*models.Offer{{LocalPrice: 42}}}, nil
	}

	res := testExecutor(pages, 3, time.Second).Run(context.Background(), adapter, "rolex", usNode())

	require.NotNil(t, res)
	assert.Len(t, res.Offers, 1)
	assert.Equal(t, int32(2), adapter.calls.Load())
}
