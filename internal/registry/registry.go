// Package registry хранит живые аукционы и сериализует операции над каждым из них.
//
// Каждый аукцион обслуживается своим юнитом: мьютекс и запись. Внутри
// критической секции нет ввода-вывода. Снимок состояния уходит на запись,
// а события в канал публикации уже после освобождения блокировки.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/vehicle-auction/internal/auction"
	"github.com/mmeshcher/vehicle-auction/internal/clock"
	"github.com/mmeshcher/vehicle-auction/internal/model"
)

const (
	publishTimeout  = 5 * time.Second
	publishAttempts = 3
	publishBackoff  = 50 * time.Millisecond
)

// ErrAlreadyTracked возвращается при повторном добавлении аукциона.
var ErrAlreadyTracked = errors.New("auction already tracked")

// Persister принимает снимки для асинхронной записи.
type Persister interface {
	Enqueue(a *model.Auction)
}

// Publisher доставляет события подписчикам.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

type unit struct {
	mu      sync.Mutex
	auction *model.Auction
}

// mutation выполняется под блокировкой юнита. changed сообщает,
// изменилась ли запись и нужно ли её сохранять.
type mutation func(a *model.Auction, now time.Time) (events []model.Event, changed bool, err error)

// Registry хранит живые аукционы.
type Registry struct {
	engine    *auction.Engine
	clock     clock.Clock
	persister Persister
	publisher Publisher
	logger    *zap.Logger

	units   *xsync.MapOf[string, *unit]
	retired *lru.Cache
}

// NewRegistry создаёт реестр. retiredSize задаёт число последних
// завершённых аукционов, доступных для чтения из памяти.
func NewRegistry(engine *auction.Engine, clk clock.Clock, persister Persister, publisher Publisher, logger *zap.Logger, retiredSize int) (*Registry, error) {
	retired, err := lru.New(retiredSize)
	if err != nil {
		return nil, fmt.Errorf("create retired cache: %w", err)
	}

	return &Registry{
		engine:    engine,
		clock:     clk,
		persister: persister,
		publisher: publisher,
		logger:    logger,
		units:     xsync.NewMapOf[string, *unit](),
		retired:   retired,
	}, nil
}

// Add начинает обслуживание аукциона в статусе scheduled или active.
// events содержит события, порождённые публикацией аукциона.
func (r *Registry) Add(ctx context.Context, a *model.Auction, events []model.Event) error {
	if a.Status != model.AuctionStatusScheduled && a.Status != model.AuctionStatusActive {
		return auction.NotActive(a)
	}

	if _, loaded := r.units.LoadOrStore(a.ID, &unit{auction: a}); loaded {
		return fmt.Errorf("%w: %s", ErrAlreadyTracked, a.ID)
	}

	r.persister.Enqueue(a.Clone())
	r.publish(ctx, events)
	return nil
}

// SubmitBid принимает ставку в аукцион id.
func (r *Registry) SubmitBid(ctx context.Context, id string, req auction.BidRequest) (model.Bid, error) {
	var placed model.Bid
	err := r.apply(ctx, id, func(a *model.Auction, now time.Time) ([]model.Event, bool, error) {
		adm, err := r.engine.SubmitBid(a, req, now)
		if adm == nil {
			return nil, false, err
		}
		placed = adm.Bid
		return adm.Events, true, err
	})
	return placed, err
}

// WithdrawBid снимает невыигрывающую ставку участника.
func (r *Registry) WithdrawBid(ctx context.Context, id, bidID, bidderID string) (model.Bid, error) {
	var withdrawn model.Bid
	err := r.apply(ctx, id, func(a *model.Auction, now time.Time) ([]model.Event, bool, error) {
		b, err := r.engine.WithdrawBid(a, bidID, bidderID, now)
		if err != nil {
			return nil, false, err
		}
		withdrawn = *b
		return nil, true, nil
	})
	return withdrawn, err
}

// RegisterBidder регистрирует участника торгов.
func (r *Registry) RegisterBidder(ctx context.Context, id, bidderID string) (model.Registration, error) {
	var reg model.Registration
	err := r.apply(ctx, id, func(a *model.Auction, now time.Time) ([]model.Event, bool, error) {
		var err error
		reg, err = auction.RegisterBidder(a, bidderID, now)
		return nil, err == nil, err
	})
	return reg, err
}

// MarkDepositPaid отмечает внесение залога. Повторная отметка ничего не меняет.
func (r *Registry) MarkDepositPaid(ctx context.Context, id, bidderID string) (model.Registration, error) {
	var reg model.Registration
	err := r.apply(ctx, id, func(a *model.Auction, now time.Time) ([]model.Event, bool, error) {
		var (
			changed bool
			err     error
		)
		reg, changed, err = auction.MarkDepositPaid(a, bidderID, now)
		return nil, changed, err
	})
	return reg, err
}

// ToggleWatch переключает наблюдение и возвращает новое состояние.
func (r *Registry) ToggleWatch(ctx context.Context, id, userID string) (bool, error) {
	var watching bool
	err := r.apply(ctx, id, func(a *model.Auction, now time.Time) ([]model.Event, bool, error) {
		var err error
		watching, err = auction.ToggleWatch(a, userID, now)
		return nil, err == nil, err
	})
	return watching, err
}

// Extend продлевает аукцион на hours часов и возвращает новый срок окончания.
func (r *Registry) Extend(ctx context.Context, id string, hours int) (model.Timing, error) {
	var timing model.Timing
	err := r.apply(ctx, id, func(a *model.Auction, now time.Time) ([]model.Event, bool, error) {
		events, err := auction.Extend(a, hours, now)
		if err != nil {
			return nil, false, err
		}
		timing = a.Timing()
		return events, true, nil
	})
	return timing, err
}

// Cancel отменяет аукцион.
func (r *Registry) Cancel(ctx context.Context, id string) error {
	return r.apply(ctx, id, func(a *model.Auction, now time.Time) ([]model.Event, bool, error) {
		events, err := auction.Cancel(a, now)
		return events, err == nil, err
	})
}

// Close завершает аукцион досрочно по решению оператора.
func (r *Registry) Close(ctx context.Context, id string) error {
	return r.apply(ctx, id, func(a *model.Auction, now time.Time) ([]model.Event, bool, error) {
		events, err := auction.Close(a, now, true)
		return events, err == nil, err
	})
}

// CloseDue завершает аукцион, если его срок истёк. Иначе возвращает
// auction.ErrNotDue и текущие сроки, чтобы планировщик перевзвёл таймер.
// Для уже удалённого из реестра аукциона возвращается ошибка AuctionNotActive.
func (r *Registry) CloseDue(ctx context.Context, id string) (model.Timing, error) {
	var timing model.Timing
	err := r.apply(ctx, id, func(a *model.Auction, now time.Time) ([]model.Event, bool, error) {
		events, err := auction.Close(a, now, false)
		timing = a.Timing()
		return events, err == nil, err
	})
	return timing, err
}

// Activate открывает запланированный аукцион, если наступило время начала.
func (r *Registry) Activate(ctx context.Context, id string) (model.Timing, error) {
	var timing model.Timing
	err := r.apply(ctx, id, func(a *model.Auction, now time.Time) ([]model.Event, bool, error) {
		events, err := auction.Activate(a, now)
		timing = a.Timing()
		return events, len(events) > 0, err
	})
	return timing, err
}

// Get возвращает копию аукциона, живого или недавно завершённого.
func (r *Registry) Get(id string) (*model.Auction, error) {
	if u, ok := r.units.Load(id); ok {
		u.mu.Lock()
		defer u.mu.Unlock()
		return u.auction.Clone(), nil
	}
	if a, ok := r.retiredSnapshot(id); ok {
		return a.Clone(), nil
	}
	return nil, auction.NotFound(id)
}

// Bids возвращает копию журнала ставок аукциона.
func (r *Registry) Bids(id string) ([]model.Bid, error) {
	a, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return a.Bids, nil
}

// FindOpenByItem возвращает id незавершённого аукциона по лоту, если такой есть.
func (r *Registry) FindOpenByItem(itemID string) (string, bool) {
	var found string
	r.units.Range(func(id string, u *unit) bool {
		u.mu.Lock()
		match := u.auction.ItemID == itemID && !u.auction.Status.Terminal()
		u.mu.Unlock()
		if match {
			found = id
			return false
		}
		return true
	})
	return found, found != ""
}

// Timings возвращает сроки всех живых аукционов, упорядоченные по id.
func (r *Registry) Timings() []model.Timing {
	timings := make([]model.Timing, 0, r.units.Size())
	r.units.Range(func(_ string, u *unit) bool {
		u.mu.Lock()
		timings = append(timings, u.auction.Timing())
		u.mu.Unlock()
		return true
	})
	sort.Slice(timings, func(i, j int) bool {
		return timings[i].AuctionID < timings[j].AuctionID
	})
	return timings
}

// Snapshots возвращает копии живых аукционов и завершённых, ещё хранящихся
// в памяти, упорядоченные по id.
func (r *Registry) Snapshots() []*model.Auction {
	seen := make(map[string]*model.Auction, r.units.Size()+r.retired.Len())
	r.units.Range(func(id string, u *unit) bool {
		u.mu.Lock()
		seen[id] = u.auction.Clone()
		u.mu.Unlock()
		return true
	})
	for _, key := range r.retired.Keys() {
		id := key.(string)
		if _, ok := seen[id]; ok {
			continue
		}
		if v, ok := r.retired.Peek(id); ok {
			seen[id] = v.(*model.Auction).Clone()
		}
	}

	snapshots := make([]*model.Auction, 0, len(seen))
	for _, a := range seen {
		snapshots = append(snapshots, a)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].ID < snapshots[j].ID
	})
	return snapshots
}

// Len возвращает число живых аукционов.
func (r *Registry) Len() int {
	return r.units.Size()
}

func (r *Registry) apply(ctx context.Context, id string, fn mutation) error {
	u, ok := r.units.Load(id)
	if !ok {
		if a, retired := r.retiredSnapshot(id); retired {
			return auction.NotActive(a)
		}
		return auction.NotFound(id)
	}

	u.mu.Lock()
	events, changed, err := fn(u.auction, r.clock.Now())
	var snapshot *model.Auction
	if changed {
		snapshot = u.auction.Clone()
	}
	u.mu.Unlock()

	if snapshot != nil {
		r.persister.Enqueue(snapshot)
	}
	r.publish(ctx, events)
	if snapshot != nil && snapshot.Status.Terminal() {
		r.retire(id, u, snapshot)
	}

	return err
}

func (r *Registry) retire(id string, u *unit, snapshot *model.Auction) {
	r.retired.Add(id, snapshot)
	r.units.Compute(id, func(current *unit, loaded bool) (*unit, bool) {
		return current, loaded && current == u
	})
	r.logger.Info("auction retired",
		zap.String("auctionID", id),
		zap.String("status", string(snapshot.Status)),
		zap.Int64("version", snapshot.Version),
	)
}

func (r *Registry) retiredSnapshot(id string) (*model.Auction, bool) {
	v, ok := r.retired.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*model.Auction), true
}

// publish доставляет события с повторами. Отмена запроса клиента
// не прерывает доставку уже принятого изменения.
func (r *Registry) publish(ctx context.Context, events []model.Event) {
	if len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, ev := range events {
		backoff := retry.WithMaxRetries(publishAttempts, retry.NewExponential(publishBackoff))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := r.publisher.Publish(ctx, ev); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			r.logger.Warn("failed to publish event",
				zap.String("eventID", ev.ID),
				zap.String("type", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
}
