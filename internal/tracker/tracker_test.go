package tracker

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = util.InitLogger("development")
}

// fakeSender records delivered batches and can be told to fail.
type fakeSender struct {
	mu      sync.Mutex
	batches [][]models.Event
	fails   int // fail this many sends before succeeding
	calls   int
}

func (f *fakeSender) SendEvents(ctx context.Context, events []models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return fmt.Errorf("send failed")
	}
	batch := make([]models.Event, len(events))
	copy(batch, events)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeSender) snapshot() (int, [][]models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.batches
}

func newTestTracker(t *testing.T, sender Sender) *Tracker {
	t.Helper()
	tr, err := New(sender, NewMemoryStorage())
	require.NoError(t, err)
	tr.retryBase = time.Millisecond
	return tr
}

func TestSessionIDPersists(t *testing.T) {
	storage := NewMemoryStorage()

	first, err := New(&fakeSender{}, storage)
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionID())

	second, err := New(&fakeSender{}, storage)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID(), second.SessionID())
}

func TestSessionIDSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.json")

	storage, err := NewFileStorage(path)
	require.NoError(t, err)
	first, err := New(&fakeSender{}, storage)
	require.NoError(t, err)

	reloaded, err := NewFileStorage(path)
	require.NoError(t, err)
	second, err := New(&fakeSender{}, reloaded)
	require.NoError(t, err)

	assert.Equal(t, first.SessionID(), second.SessionID())
}

func TestFullQueueFlushes(t *testing.T) {
	sender := &fakeSender{}
	tr := newTestTracker(t, sender)

	for i := 0; i < maxQueueSize; i++ {
		tr.Track(models.Event{EventType: models.EventPageView, Page: fmt.Sprintf("/p/%d", i)})
	}
	tr.Close()

	_, batches := sender.snapshot()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], maxQueueSize)
	// every event carries the session ID
	for _, e := range batches[0] {
		assert.Equal(t, tr.SessionID(), e.SessionID)
	}
}

func TestHighValueEventFlushesImmediately(t *testing.T) {
	sender := &fakeSender{}
	tr := newTestTracker(t, sender)

	tr.Track(models.Event{EventType: models.EventPageView, Page: "/"})
	tr.Track(models.Event{EventType: models.EventProductView, ProductID: "shirt"})
	tr.Close()

	_, batches := sender.snapshot()
	require.Len(t, batches, 1)
	// both the buffered page view and the trigger event went out together
	assert.Len(t, batches[0], 2)
	assert.Equal(t, models.EventProductView, batches[0][1].EventType)
}

func TestCloseFlushesRemaining(t *testing.T) {
	sender := &fakeSender{}
	tr := newTestTracker(t, sender)

	tr.Track(models.Event{EventType: models.EventPageView, Page: "/a"})
	tr.Track(models.Event{EventType: models.EventCheckoutStart})
	tr.Close()

	_, batches := sender.snapshot()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)

	// events after Close are dropped
	tr.Track(models.Event{EventType: models.EventPageView})
	calls, _ := sender.snapshot()
	assert.Equal(t, 1, calls)
}

func TestRetryThenDeliver(t *testing.T) {
	sender := &fakeSender{fails: 1}
	tr := newTestTracker(t, sender)

	tr.Track(models.Event{EventType: models.EventProductClick, ProductID: "cap"})
	tr.Close()

	calls, batches := sender.snapshot()
	assert.Equal(t, 2, calls)
	require.Len(t, batches, 1)
	assert.Equal(t, "cap", batches[0][0].ProductID)
}

func TestDropAfterRetriesExhausted(t *testing.T) {
	sender := &fakeSender{fails: maxAttempts}
	tr := newTestTracker(t, sender)

	tr.Track(models.Event{EventType: models.EventAddToCart, ProductID: "cap"})
	tr.Close()

	calls, batches := sender.snapshot()
	assert.Equal(t, maxAttempts, calls)
	assert.Empty(t, batches)
}

func TestWishlist(t *testing.T) {
	tr := newTestTracker(t, &fakeSender{})

	require.NoError(t, tr.AddToWishlist(WishlistItem{ProductID: "shirt", Name: "Shirt", Price: 100}))
	require.NoError(t, tr.AddToWishlist(WishlistItem{ProductID: "cap", Name: "Cap", Price: 50}))
	// adding the same product twice is a no-op
	require.NoError(t, tr.AddToWishlist(WishlistItem{ProductID: "shirt", Name: "Shirt", Price: 100}))

	items, err := tr.Wishlist()
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.NoError(t, tr.RemoveFromWishlist("shirt"))
	items, err = tr.Wishlist()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "cap", items[0].ProductID)
}
