package handlers

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"notifyd/internal/eventbus"
	"notifyd/internal/notification"
	rtsup "notifyd/internal/runtime/supervisor"
	logx "notifyd/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrPopupQueueFull = errors.New("popup queue full")
	ErrPopupStopped   = errors.New("popup handler stopped")
)

// Popup is one message handed to a PopupSink.
type Popup struct {
	EventType string        `json:"event_type,omitempty"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Group     string        `json:"group,omitempty"`
	Icon      []byte        `json:"-"`
	Tag       any           `json:"tag,omitempty"`
	Timeout   time.Duration `json:"timeout"` // < 0: never auto-dismiss
}

// PopupSink displays popups. ShowPopup should return promptly; it is called
// with a bounded context.
type PopupSink interface {
	ShowPopup(ctx context.Context, p Popup) error
}

type PopupSinkFunc func(ctx context.Context, p Popup) error

func (f PopupSinkFunc) ShowPopup(ctx context.Context, p Popup) error { return f(ctx, p) }

type PopupOptions struct {
	RatePerSec  float64 // <= 0: unlimited
	Burst       int
	QueueSize   int
	DedupWindow time.Duration
	// Sink receives every popup that passes dedup and the limiter. Nil
	// publishes on the bus only.
	Sink PopupSink
}

// PopupEvent is the Data of popup.* bus events.
type PopupEvent struct {
	Popup Popup     `json:"popup"`
	Key   string    `json:"key,omitempty"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

type PopupRecord struct {
	At    time.Time `json:"at"`
	Title string    `json:"title"`
	Text  string    `json:"text"`
	Group string    `json:"group,omitempty"`
}

const (
	popupHistoryMax  = 300
	popupDedupMax    = 2000
	popupSendTimeout = 5 * time.Second
)

// PopupHandler delivers popups asynchronously: queue, one worker, rate
// limit and dedup. Start must be called before popups are accepted.
//
// It is safe for concurrent use.
type PopupHandler struct {
	toggle

	log logx.Logger
	bus eventbus.Bus

	mu        sync.Mutex
	opts      PopupOptions
	limiter   *rate.Limiter
	queue     chan Popup
	accepting bool
	sendWG    sync.WaitGroup
	sup       *rtsup.Supervisor
	stopDone  chan struct{}

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []PopupRecord
}

func NewPopup(opts PopupOptions, log logx.Logger, bus eventbus.Bus) *PopupHandler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &PopupHandler{
		toggle: toggle{kind: notification.KindPopup},
		log:    log,
		bus:    bus,
		dedup:  map[string]time.Time{},
	}
	h.applyLocked(opts)
	return h
}

// Apply swaps limiter and dedup settings. Queue size changes take effect on
// the next Start.
func (h *PopupHandler) Apply(opts PopupOptions) {
	h.mu.Lock()
	h.applyLocked(opts)
	h.mu.Unlock()
}

func (h *PopupHandler) applyLocked(opts PopupOptions) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.DedupWindow < 0 {
		opts.DedupWindow = 0
	}
	if opts.Sink == nil {
		opts.Sink = h.opts.Sink
	}
	h.opts = opts
	h.limiter = nil
	if opts.RatePerSec > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = max(1, int(opts.RatePerSec))
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
}

// Start launches the delivery worker. It is idempotent.
func (h *PopupHandler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	h.mu.Lock()
	if h.stopDone != nil {
		done := h.stopDone
		h.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		h.mu.Lock()
	}
	if h.queue != nil {
		h.mu.Unlock()
		return
	}
	h.queue = make(chan Popup, h.opts.QueueSize)
	h.accepting = true
	h.sup = rtsup.New(ctx, rtsup.WithLogger(h.log.With(logx.String("comp", "popup"))))
	sup, q := h.sup, h.queue
	h.mu.Unlock()

	sup.GoRestart("popup.worker", func(c context.Context) error {
		h.workerLoop(c, q)
		h.mu.Lock()
		stopping := h.stopDone != nil
		h.mu.Unlock()
		if stopping || c.Err() != nil {
			return context.Canceled
		}
		return errors.New("popup worker exited unexpectedly")
	}, 250*time.Millisecond, 5*time.Second)
}

// Stop stops intake and drains queued popups until ctx is done.
func (h *PopupHandler) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	h.mu.Lock()
	q, sup := h.queue, h.sup
	if q == nil {
		h.mu.Unlock()
		return
	}
	if h.stopDone != nil {
		done := h.stopDone
		h.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	h.stopDone = done
	h.accepting = false
	h.mu.Unlock()

	go func() {
		defer close(done)
		h.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		h.mu.Lock()
		h.queue = nil
		h.sup = nil
		h.stopDone = nil
		h.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// PopupMessage queues a popup. An empty message falls back to the action's
// default message.
func (h *PopupHandler) PopupMessage(a *notification.PopupMessageAction, title, message string, icon []byte, tag any) error {
	if !h.Enabled() {
		return nil
	}
	if message == "" {
		message = a.DefaultMessage
	}
	p := Popup{Title: title, Message: message, Group: a.GroupName, Icon: icon, Tag: tag, Timeout: -1}
	if a.Timeout >= 0 {
		p.Timeout = time.Duration(a.Timeout) * time.Millisecond
	}
	return h.Enqueue(p)
}

// Enqueue applies dedup and queues p without blocking.
func (h *PopupHandler) Enqueue(p Popup) error {
	h.mu.Lock()
	if !h.accepting || h.queue == nil {
		h.mu.Unlock()
		return ErrPopupStopped
	}
	q := h.queue
	window := h.opts.DedupWindow
	h.sendWG.Add(1)
	h.mu.Unlock()
	defer h.sendWG.Done()

	key := popupKey(p)
	if window > 0 && !h.dedupAllow(key, window) {
		publish(h.bus, TopicPopupDeduped, PopupEvent{Popup: p, Key: key, At: time.Now()})
		return nil
	}

	select {
	case q <- p:
		publish(h.bus, TopicPopupQueued, PopupEvent{Popup: p, Key: key, At: time.Now()})
		return nil
	default:
		publish(h.bus, TopicPopupDropped, PopupEvent{Popup: p, Key: key, At: time.Now(), Error: ErrPopupQueueFull.Error()})
		return ErrPopupQueueFull
	}
}

// History returns the most recent delivered popups, oldest first.
func (h *PopupHandler) History() []PopupRecord {
	h.hmu.Lock()
	defer h.hmu.Unlock()
	return append([]PopupRecord(nil), h.history...)
}

func (h *PopupHandler) appendHistory(p Popup) {
	h.hmu.Lock()
	h.history = append(h.history, PopupRecord{At: time.Now(), Title: p.Title, Text: p.Message, Group: p.Group})
	if len(h.history) > popupHistoryMax {
		h.history = h.history[len(h.history)-popupHistoryMax:]
	}
	h.hmu.Unlock()
}

func (h *PopupHandler) workerLoop(ctx context.Context, q <-chan Popup) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-q:
			if !ok {
				return
			}
			h.deliver(ctx, p)
		}
	}
}

func (h *PopupHandler) deliver(ctx context.Context, p Popup) {
	h.mu.Lock()
	lim, sink := h.limiter, h.opts.Sink
	h.mu.Unlock()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}
	if sink != nil {
		cctx, cancel := context.WithTimeout(ctx, popupSendTimeout)
		err := sink.ShowPopup(cctx, p)
		cancel()
		if err != nil {
			h.log.Warn("popup delivery failed", logx.String("title", p.Title), logx.Err(err))
			publish(h.bus, TopicPopupFailed, PopupEvent{Popup: p, At: time.Now(), Error: err.Error()})
			return
		}
	}
	h.appendHistory(p)
	h.log.Debug("popup shown", logx.String("title", p.Title), logx.String("group", p.Group))
	publish(h.bus, TopicPopupShown, PopupEvent{Popup: p, At: time.Now()})
}

func popupKey(p Popup) string {
	f := fnv.New64a()
	_, _ = f.Write([]byte(p.Group))
	_, _ = f.Write([]byte("|"))
	_, _ = f.Write([]byte(p.Title))
	_, _ = f.Write([]byte("|"))
	_, _ = f.Write([]byte(p.Message))
	return fmt.Sprintf("%x", f.Sum64())
}

// dedupAllow reports whether key is outside its suppression window and, if
// so, opens a new one. Expired entries are pruned and the map is capped.
func (h *PopupHandler) dedupAllow(key string, window time.Duration) bool {
	now := time.Now()
	h.dmu.Lock()
	defer h.dmu.Unlock()
	if until, ok := h.dedup[key]; ok && now.Before(until) {
		return false
	}
	h.dedup[key] = now.Add(window)

	for k, until := range h.dedup {
		if !now.Before(until) {
			delete(h.dedup, k)
		}
	}
	for len(h.dedup) > popupDedupMax {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range h.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(h.dedup, minKey)
	}
	return true
}
