package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"agendazap/internal/models"

	"github.com/rs/zerolog"
)

// Batch is the joined text of every message a contact sent before going quiet.
type Batch struct {
	TenantID int64
	Phone    string
	Name     string
	Texts    []string
}

func (b Batch) Key() string {
	return models.ConversationKey(b.TenantID, b.Phone)
}

func (b Batch) Text() string {
	return strings.TrimSpace(strings.Join(b.Texts, " "))
}

type FlushFunc func(ctx context.Context, batch Batch)

type buffer struct {
	tenantID  int64
	phone     string
	name      string
	texts     []string
	timer     *time.Timer
	composing bool
	flushing  bool
}

// Debouncer coalesces rapid messages per conversation and flushes them once
// the contact has been quiet for the window. A conversation is never flushed
// concurrently with itself; different conversations share a bounded pool.
type Debouncer struct {
	window time.Duration
	flush  FlushFunc
	slots  chan struct{}
	logger *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	buffers map[string]*buffer
	closed  bool
}

func NewDebouncer(window time.Duration, workers int, flush FlushFunc, logger *zerolog.Logger) *Debouncer {
	if window <= 0 {
		window = models.DefaultDebounceWindow
	}
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		window:  window,
		flush:   flush,
		slots:   make(chan struct{}, workers),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		buffers: make(map[string]*buffer),
	}
}

// Add buffers text and restarts the quiet window unless the contact is typing.
func (d *Debouncer) Add(tenantID int64, phone, name, text string) {
	key := models.ConversationKey(tenantID, phone)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	b, ok := d.buffers[key]
	if !ok {
		b = &buffer{tenantID: tenantID, phone: phone}
		d.buffers[key] = b
	}
	if name != "" {
		b.name = name
	}
	b.texts = append(b.texts, text)
	if !b.composing {
		d.arm(key, b)
	}
}

// Touch records typing presence. Composing holds the flush back; paused or
// available starts the quiet window again.
func (d *Debouncer) Touch(tenantID int64, phone, presence string) {
	key := models.ConversationKey(tenantID, phone)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	b, ok := d.buffers[key]
	if !ok {
		return
	}
	switch presence {
	case models.PresenceComposing:
		b.composing = true
		if b.timer != nil {
			b.timer.Stop()
		}
	default:
		b.composing = false
		if len(b.texts) > 0 {
			d.arm(key, b)
		}
	}
}

// Pending returns how many conversations hold unflushed text.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, b := range d.buffers {
		if len(b.texts) > 0 {
			n++
		}
	}
	return n
}

// Close drops unflushed buffers and waits for running flushes.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	for key, b := range d.buffers {
		if b.timer != nil {
			b.timer.Stop()
		}
		delete(d.buffers, key)
	}
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

// arm must be called with d.mu held.
func (d *Debouncer) arm(key string, b *buffer) {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(d.window, func() { d.fire(key) })
}

func (d *Debouncer) fire(key string) {
	d.mu.Lock()
	b, ok := d.buffers[key]
	if !ok || d.closed || len(b.texts) == 0 || b.composing {
		d.mu.Unlock()
		return
	}
	if b.flushing {
		// the running flush re-arms when it sees leftover text
		d.mu.Unlock()
		return
	}
	batch := Batch{TenantID: b.tenantID, Phone: b.phone, Name: b.name, Texts: b.texts}
	b.texts = nil
	b.flushing = true
	d.wg.Add(1)
	d.mu.Unlock()

	defer d.wg.Done()
	d.run(batch)

	d.mu.Lock()
	defer d.mu.Unlock()
	b.flushing = false
	if d.closed {
		return
	}
	if len(b.texts) > 0 {
		if !b.composing {
			d.arm(key, b)
		}
		return
	}
	delete(d.buffers, key)
}

func (d *Debouncer) run(batch Batch) {
	select {
	case d.slots <- struct{}{}:
	case <-d.ctx.Done():
		return
	}
	defer func() { <-d.slots }()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("conversation", batch.Key()).Msg("Flush panicked")
		}
	}()

	d.flush(d.ctx, batch)
}
