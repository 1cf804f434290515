// Package writebehind асинхронно сохраняет снимки аукционов в хранилище.
package writebehind

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/vehicle-auction/internal/model"
)

const (
	saveTimeout     = 10 * time.Second
	saveAttempts    = 5
	baseBackoff     = 100 * time.Millisecond
	maxBackoff      = 5 * time.Second
	shutdownTimeout = 15 * time.Second
)

// Store сохраняет снимки аукционов.
type Store interface {
	SaveAuction(ctx context.Context, a *model.Auction) error
}

// Worker накапливает снимки и сохраняет их в фоне. Для каждого аукциона
// хранится только самый свежий снимок по Version.
type Worker struct {
	store     Store
	logger    *zap.Logger
	interval  time.Duration
	retryable func(error) bool
	backoff   time.Duration

	mu      sync.Mutex
	pending map[string]*model.Auction
	notify  chan struct{}
}

// Option настраивает Worker.
type Option func(*Worker)

// WithRetryable задаёт классификатор ошибок, после которых запись повторяется.
func WithRetryable(fn func(error) bool) Option {
	return func(w *Worker) {
		w.retryable = fn
	}
}

// WithBackoff задаёт начальную задержку между повторами записи.
func WithBackoff(d time.Duration) Option {
	return func(w *Worker) {
		w.backoff = d
	}
}

// NewWorker создаёт воркер. interval задаёт период принудительного сброса очереди.
func NewWorker(store Store, logger *zap.Logger, interval time.Duration, opts ...Option) *Worker {
	w := &Worker{
		store:     store,
		logger:    logger,
		interval:  interval,
		retryable: func(error) bool { return true },
		backoff:   baseBackoff,
		pending:   make(map[string]*model.Auction),
		notify:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue ставит снимок в очередь. Не блокируется.
func (w *Worker) Enqueue(a *model.Auction) {
	w.mu.Lock()
	if cur, ok := w.pending[a.ID]; !ok || cur.Version < a.Version {
		w.pending[a.ID] = a
	}
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Pending возвращает число аукционов, ожидающих записи.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Run сохраняет очередь до отмены ctx, после чего выполняет финальный сброс.
// ctx нужно отменять только после остановки всех, кто вызывает Enqueue:
// снимок, поставленный после возврата Run, не будет записан.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			// Снимки, поставленные во время сброса, тоже записываются.
			for w.Pending() > 0 && flushCtx.Err() == nil {
				w.Flush(flushCtx)
			}
			if n := w.Pending(); n > 0 {
				w.logger.Error("write-behind queue not drained on shutdown", zap.Int("pending", n))
			}
			return nil
		case <-w.notify:
			w.Flush(ctx)
		case <-ticker.C:
			w.Flush(ctx)
		}
	}
}

// Flush сохраняет всё, что накоплено в очереди. Снимки, которые не удалось
// записать из-за временной ошибки, возвращаются в очередь.
func (w *Worker) Flush(ctx context.Context) {
	batch := w.drain()
	if len(batch) == 0 {
		return
	}

	for _, a := range batch {
		if err := w.save(ctx, a); err != nil {
			if w.retryable(err) || ctx.Err() != nil {
				w.requeue(a)
				w.logger.Warn("auction snapshot requeued",
					zap.String("auctionID", a.ID),
					zap.Int64("version", a.Version),
					zap.Error(err),
				)
				continue
			}
			w.logger.Error("auction snapshot dropped",
				zap.String("auctionID", a.ID),
				zap.Int64("version", a.Version),
				zap.Error(err),
			)
		}
	}
}

func (w *Worker) save(ctx context.Context, a *model.Auction) error {
	backoff := retry.NewExponential(w.backoff)
	backoff = retry.WithCappedDuration(maxBackoff, backoff)
	backoff = retry.WithMaxRetries(saveAttempts, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
		defer cancel()

		err := w.store.SaveAuction(saveCtx, a)
		if err != nil && w.retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (w *Worker) drain() []*model.Auction {
	w.mu.Lock()
	defer w.mu.Unlock()

	batch := make([]*model.Auction, 0, len(w.pending))
	for id, a := range w.pending {
		batch = append(batch, a)
		delete(w.pending, id)
	}
	sort.Slice(batch, func(i, j int) bool {
		return batch[i].ID < batch[j].ID
	})
	return batch
}

func (w *Worker) requeue(a *model.Auction) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if cur, ok := w.pending[a.ID]; !ok || cur.Version < a.Version {
		w.pending[a.ID] = a
	}
}
