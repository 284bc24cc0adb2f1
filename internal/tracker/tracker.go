package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Storage keys
const (
	sessionKey  = "session_id"
	wishlistKey = "guest_wishlist"
)

// Queue tuning. The queue flushes when full, when a high-value event
// arrives, when the flush timer fires, and on Close.
const (
	maxQueueSize  = 20
	flushInterval = 4 * time.Second
	maxAttempts   = 3
	baseDelay     = 2 * time.Second
)

// highValueEvents bypass batching and flush immediately.
var highValueEvents = map[string]bool{
	models.EventProductView:  true,
	models.EventProductClick: true,
	models.EventAddToCart:    true,
}

// Sender delivers event batches to the collection endpoint.
type Sender interface {
	SendEvents(ctx context.Context, events []models.Event) error
}

// HTTPSender posts batches to the events batch endpoint.
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSender creates a sender for the given base URL.
func NewHTTPSender(baseURL string) *HTTPSender {
	return &HTTPSender{
		endpoint: baseURL + "/api/v1/events/batch",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SendEvents posts one batch.
func (hs *HTTPSender) SendEvents(ctx context.Context, events []models.Event) error {
	body, err := json.Marshal(map[string]interface{}{"events": events})
	if err != nil {
		return fmt.Errorf("failed to encode event batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hs.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hs.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send event batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("event batch rejected: status %d", resp.StatusCode)
	}
	return nil
}

// Tracker queues interaction events and flushes them in batches.
// Construct one per client; there is no shared instance.
type Tracker struct {
	sender    Sender
	storage   Storage
	logger    *zap.Logger
	retryBase time.Duration

	mu         sync.Mutex
	queue      []models.Event
	flushTimer *time.Timer
	sessionID  string
	closed     bool
	wg         sync.WaitGroup
}

// New creates a tracker. The session ID is loaded from storage, or
// generated and persisted on first use.
func New(sender Sender, storage Storage) (*Tracker, error) {
	t := &Tracker{
		sender:    sender,
		storage:   storage,
		logger:    util.GetLogger(),
		retryBase: baseDelay,
	}

	var sessionID string
	found, err := storage.Get(sessionKey, &sessionID)
	if err != nil {
		return nil, err
	}
	if !found || sessionID == "" {
		sessionID = uuid.New().String()
		if err := storage.Set(sessionKey, sessionID); err != nil {
			return nil, err
		}
	}
	t.sessionID = sessionID

	return t, nil
}

// SessionID returns the persistent session identifier.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Track enqueues one event, stamping the session ID. High-value events
// and a full queue flush immediately; otherwise a single 4s timer is
// armed.
func (t *Tracker) Track(event models.Event) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	event.SessionID = t.sessionID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	t.queue = append(t.queue, event)

	if highValueEvents[event.EventType] || len(t.queue) >= maxQueueSize {
		batch := t.takeQueueLocked()
		t.mu.Unlock()
		t.sendAsync(batch)
		return
	}

	if t.flushTimer == nil {
		t.flushTimer = time.AfterFunc(flushInterval, t.flushOnTimer)
	}
	t.mu.Unlock()
}

// Flush sends everything currently queued.
func (t *Tracker) Flush() {
	t.mu.Lock()
	batch := t.takeQueueLocked()
	t.mu.Unlock()
	t.sendAsync(batch)
}

// Close performs the final flush and waits for in-flight sends. The
// tracker drops events tracked after Close.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	batch := t.takeQueueLocked()
	t.mu.Unlock()

	t.send(batch, 1)
	t.wg.Wait()
}

// takeQueueLocked drains the queue and disarms the timer. Callers hold
// t.mu.
func (t *Tracker) takeQueueLocked() []models.Event {
	if t.flushTimer != nil {
		t.flushTimer.Stop()
		t.flushTimer = nil
	}
	batch := t.queue
	t.queue = nil
	return batch
}

func (t *Tracker) flushOnTimer() {
	t.mu.Lock()
	t.flushTimer = nil
	batch := t.takeQueueLocked()
	t.mu.Unlock()
	t.sendAsync(batch)
}

// sendAsync delivers in the background so Track never blocks on the
// network.
func (t *Tracker) sendAsync(batch []models.Event) {
	if len(batch) == 0 {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.send(batch, 1)
	}()
}

// send delivers a batch, scheduling a delayed retry on failure. After
// maxAttempts the batch is dropped with a log line.
func (t *Tracker) send(batch []models.Event, attempt int) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := t.sender.SendEvents(ctx, batch)
	if err == nil {
		return
	}

	if attempt >= maxAttempts {
		t.logger.Warn("Dropping events after retries exhausted",
			zap.Int("count", len(batch)),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return
	}

	delay := t.retryBase * time.Duration(attempt)
	t.logger.Warn("Event batch send failed, scheduling retry",
		zap.Int("count", len(batch)),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(err))

	t.wg.Add(1)
	time.AfterFunc(delay, func() {
		defer t.wg.Done()
		t.send(batch, attempt+1)
	})
}

// WishlistItem is one product snapshot in the guest wishlist.
type WishlistItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Image     string  `json:"image,omitempty"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
}

// Wishlist returns the guest wishlist from client storage.
func (t *Tracker) Wishlist() ([]WishlistItem, error) {
	var items []WishlistItem
	if _, err := t.storage.Get(wishlistKey, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// AddToWishlist appends an item unless the product is already present.
func (t *Tracker) AddToWishlist(item WishlistItem) error {
	items, err := t.Wishlist()
	if err != nil {
		return err
	}
	for _, existing := range items {
		if existing.ProductID == item.ProductID {
			return nil
		}
	}
	return t.storage.Set(wishlistKey, append(items, item))
}

// RemoveFromWishlist removes a product from the wishlist.
func (t *Tracker) RemoveFromWishlist(productID string) error {
	items, err := t.Wishlist()
	if err != nil {
		return err
	}
	kept := items[:0]
	for _, item := range items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	return t.storage.Set(wishlistKey, kept)
}
