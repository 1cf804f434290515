package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/vehicle-auction/internal/auction"
	"github.com/mmeshcher/vehicle-auction/internal/clock"
	"github.com/mmeshcher/vehicle-auction/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubPersister struct {
	mu        sync.Mutex
	snapshots []*model.Auction
}

func (s *stubPersister) Enqueue(a *model.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, a)
}

func (s *stubPersister) last() *model.Auction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return nil
	}
	return s.snapshots[len(s.snapshots)-1]
}

type stubPublisher struct {
	mu       sync.Mutex
	events   []model.Event
	failures int
	onEvent  func(ev model.Event)
}

func (s *stubPublisher) Publish(_ context.Context, ev model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("channel unavailable")
	}
	s.events = append(s.events, ev)
	if s.onEvent != nil {
		s.onEvent(ev)
	}
	return nil
}

func (s *stubPublisher) types() []model.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]model.EventType, 0, len(s.events))
	for _, ev := range s.events {
		types = append(types, ev.Type)
	}
	return types
}

type fixture struct {
	reg       *Registry
	engine    *auction.Engine
	clock     *clock.Fake
	persister *stubPersister
	publisher *stubPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		engine:    auction.NewEngine(),
		clock:     clock.NewFake(testNow),
		persister: &stubPersister{},
		publisher: &stubPublisher{},
	}
	reg, err := NewRegistry(f.engine, f.clock, f.persister, f.publisher, zap.NewNop(), 16)
	require.NoError(t, err)
	f.reg = reg
	return f
}

func (f *fixture) params() model.NewAuctionParams {
	return model.NewAuctionParams{
		ItemID:        "item-1",
		SellerID:      "seller",
		Title:         "2019 Volvo XC60",
		StartingPrice: 10000,
		BidIncrement:  500,
		Currency:      "USD",
		StartTime:     testNow.Add(-time.Hour),
		EndTime:       testNow.Add(24 * time.Hour),
	}
}

func (f *fixture) open(t *testing.T, p model.NewAuctionParams) *model.Auction {
	t.Helper()

	a := f.engine.New(p, testNow)
	events, err := auction.Publish(a, testNow)
	require.NoError(t, err)
	require.NoError(t, f.reg.Add(context.Background(), a, events))
	return a.Clone()
}

func amount(bidder string, v int64) auction.BidRequest {
	return auction.BidRequest{BidderID: bidder, Amount: v}
}

func TestAdd(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, f.params())

	assert.Equal(t, 1, f.reg.Len())
	assert.Equal(t, []model.EventType{model.EventActivated}, f.publisher.types())
	require.NotNil(t, f.persister.last())
	assert.Equal(t, a.ID, f.persister.last().ID)

	err := f.reg.Add(context.Background(), a, nil)
	require.ErrorIs(t, err, ErrAlreadyTracked)

	draft := f.engine.New(f.params(), testNow)
	err = f.reg.Add(context.Background(), draft, nil)
	require.ErrorIs(t, err, auction.ErrAuctionNotActive)
}

func TestSubmitBid_PersistsAndPublishesAfterMutation(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, f.params())
	ctx := context.Background()

	first, err := f.reg.SubmitBid(ctx, a.ID, amount("A", 10000))
	require.NoError(t, err)
	assert.Equal(t, model.BidStatusWinning, first.Status)

	second, err := f.reg.SubmitBid(ctx, a.ID, amount("B", 12000))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Sequence)

	snapshot := f.persister.last()
	assert.Equal(t, int64(10500), snapshot.CurrentPrice)
	assert.Equal(t, "B", snapshot.CurrentWinner)

	assert.Equal(t, []model.EventType{
		model.EventActivated,
		model.EventPriceChanged,
		model.EventPriceChanged,
		model.EventOutbid,
	}, f.publisher.types())

	// Снимок в очереди не разделяет память с живой записью.
	snapshot.CurrentPrice = 1
	live, err := f.reg.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10500), live.CurrentPrice)
}

func TestSubmitBid_RejectionIsRecorded(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, f.params())

	placed, err := f.reg.SubmitBid(context.Background(), a.ID, amount("A", 100))
	require.ErrorIs(t, err, auction.ErrBidTooLow)
	assert.Equal(t, model.BidStatusRejected, placed.Status)

	bids, err := f.reg.Bids(a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, string(auction.ReasonBidTooLow), bids[0].Reason)
}

func TestApply_UnknownAuction(t *testing.T) {
	f := newFixture(t)

	_, err := f.reg.SubmitBid(context.Background(), "missing", amount("A", 10000))
	require.ErrorIs(t, err, auction.ErrAuctionNotFound)

	_, err = f.reg.Get("missing")
	require.ErrorIs(t, err, auction.ErrAuctionNotFound)
}

func TestClose_RetiresAfterFinalEvent(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, f.params())
	ctx := context.Background()

	liveAtFinalEvent := -1
	f.publisher.onEvent = func(ev model.Event) {
		if ev.Type == model.EventEnded || ev.Type == model.EventCancelled {
			liveAtFinalEvent = f.reg.Len()
		}
	}

	require.NoError(t, f.reg.Close(ctx, a.ID))
	assert.Equal(t, 1, liveAtFinalEvent)
	assert.Equal(t, 0, f.reg.Len())

	b := f.open(t, f.params())
	liveAtFinalEvent = -1
	require.NoError(t, f.reg.Cancel(ctx, b.ID))
	assert.Equal(t, 1, liveAtFinalEvent)
	assert.Equal(t, 0, f.reg.Len())
}

func TestClose_RetiresAuction(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, f.params())
	ctx := context.Background()

	_, err := f.reg.SubmitBid(ctx, a.ID, amount("A", 10000))
	require.NoError(t, err)

	require.NoError(t, f.reg.Close(ctx, a.ID))
	assert.Equal(t, 0, f.reg.Len())

	ended, err := f.reg.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStatusEnded, ended.Status)
	assert.Equal(t, "A", ended.WinnerID)

	_, err = f.reg.SubmitBid(ctx, a.ID, amount("B", 20000))
	require.ErrorIs(t, err, auction.ErrAuctionNotActive)

	err = f.reg.Cancel(ctx, a.ID)
	require.ErrorIs(t, err, auction.ErrAuctionNotActive)

	assert.Equal(t, model.AuctionStatusEnded, f.persister.last().Status)
	types := f.publisher.types()
	assert.Equal(t, model.EventEnded, types[len(types)-1])
}

func TestCloseDue(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, f.params())
	ctx := context.Background()

	timing, err := f.reg.CloseDue(ctx, a.ID)
	require.ErrorIs(t, err, auction.ErrNotDue)
	assert.Equal(t, a.EndTime, timing.EndTime)
	assert.Equal(t, 1, f.reg.Len())

	f.clock.Advance(25 * time.Hour)

	_, err = f.reg.CloseDue(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.reg.Len())
}

func TestActivate(t *testing.T) {
	f := newFixture(t)
	p := f.params()
	p.StartTime = testNow.Add(time.Hour)
	a := f.open(t, p)
	require.Equal(t, model.AuctionStatusScheduled, a.Status)
	ctx := context.Background()

	_, err := f.reg.SubmitBid(ctx, a.ID, amount("A", 10000))
	require.ErrorIs(t, err, auction.ErrAuctionNotActive)

	_, err = f.reg.Activate(ctx, a.ID)
	require.ErrorIs(t, err, auction.ErrNotDue)

	f.clock.Advance(time.Hour)

	timing, err := f.reg.Activate(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuctionStatusActive, timing.Status)

	_, err = f.reg.SubmitBid(ctx, a.ID, amount("A", 10000))
	require.NoError(t, err)
}

func TestParticipationOperations(t *testing.T) {
	f := newFixture(t)
	p := f.params()
	p.Policy = model.Policy{RequiresRegistration: true, RequiresDeposit: true, DepositAmount: 50000}
	a := f.open(t, p)
	ctx := context.Background()

	_, err := f.reg.SubmitBid(ctx, a.ID, amount("A", 10000))
	require.ErrorIs(t, err, auction.ErrRegistrationRequired)

	_, err = f.reg.RegisterBidder(ctx, a.ID, "A")
	require.NoError(t, err)

	_, err = f.reg.SubmitBid(ctx, a.ID, amount("A", 10000))
	require.ErrorIs(t, err, auction.ErrDepositRequired)

	reg, err := f.reg.MarkDepositPaid(ctx, a.ID, "A")
	require.NoError(t, err)
	assert.True(t, reg.DepositPaid)

	before := f.persister.last().Version
	_, err = f.reg.MarkDepositPaid(ctx, a.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, before, f.persister.last().Version)

	_, err = f.reg.SubmitBid(ctx, a.ID, amount("A", 10000))
	require.NoError(t, err)

	watching, err := f.reg.ToggleWatch(ctx, a.ID, "W")
	require.NoError(t, err)
	assert.True(t, watching)

	timing, err := f.reg.Extend(ctx, a.ID, 24)
	require.NoError(t, err)
	assert.Equal(t, a.EndTime.Add(24*time.Hour), timing.EndTime)
}

func TestWithdrawBid(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, f.params())
	ctx := context.Background()

	first, err := f.reg.SubmitBid(ctx, a.ID, amount("A", 10000))
	require.NoError(t, err)
	_, err = f.reg.SubmitBid(ctx, a.ID, amount("B", 11000))
	require.NoError(t, err)

	withdrawn, err := f.reg.WithdrawBid(ctx, a.ID, first.ID, "A")
	require.NoError(t, err)
	assert.True(t, withdrawn.Withdrawn)

	live, err := f.reg.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", live.CurrentWinner)
}

func TestFindOpenByItemAndTimings(t *testing.T) {
	f := newFixture(t)
	first := f.open(t, f.params())

	p := f.params()
	p.ItemID = "item-2"
	second := f.open(t, p)

	id, ok := f.reg.FindOpenByItem("item-2")
	require.True(t, ok)
	assert.Equal(t, second.ID, id)

	_, ok = f.reg.FindOpenByItem("item-3")
	assert.False(t, ok)

	timings := f.reg.Timings()
	require.Len(t, timings, 2)
	ids := []string{timings[0].AuctionID, timings[1].AuctionID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)
}

func TestSnapshots_IncludesRetired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	live := f.open(t, f.params())

	p := f.params()
	p.ItemID = "item-2"
	ended := f.open(t, p)
	require.NoError(t, f.reg.Close(ctx, ended.ID))

	snapshots := f.reg.Snapshots()
	require.Len(t, snapshots, 2)
	byID := map[string]model.AuctionStatus{}
	for _, a := range snapshots {
		byID[a.ID] = a.Status
	}
	assert.Equal(t, model.AuctionStatusActive, byID[live.ID])
	assert.Equal(t, model.AuctionStatusEnded, byID[ended.ID])

	snapshots[0].Title = "changed"
	again := f.reg.Snapshots()
	assert.NotEqual(t, "changed", again[0].Title)
}

func TestPublish_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, f.params())
	f.publisher.failures = 2

	_, err := f.reg.SubmitBid(context.Background(), a.ID, amount("A", 10000))
	require.NoError(t, err)

	types := f.publisher.types()
	assert.Equal(t, model.EventPriceChanged, types[len(types)-1])
}

// Параллельные ставки должны дать тот же результат, что и их последовательное
// применение в порядке журнала.
func TestSubmitBid_ConcurrentIsSerializable(t *testing.T) {
	f := newFixture(t)
	a := f.open(t, f.params())
	ctx := context.Background()

	const bidders = 8
	const perBidder = 25

	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bidder := fmt.Sprintf("bidder-%d", i)
			for j := 0; j < perBidder; j++ {
				v := int64(10000 + (i*perBidder+j)*300)
				req := amount(bidder, v)
				if j%3 == 0 {
					ceiling := v + int64(i*700)
					req.Ceiling = &ceiling
				}
				_, _ = f.reg.SubmitBid(ctx, a.ID, req)
			}
		}(i)
	}
	wg.Wait()

	got, err := f.reg.Get(a.ID)
	require.NoError(t, err)
	require.Len(t, got.Bids, bidders*perBidder)

	replay := auction.NewEngine().New(f.params(), testNow)
	_, err = auction.Publish(replay, testNow)
	require.NoError(t, err)

	for _, b := range got.Bids {
		req := amount(b.BidderID, b.Amount)
		if b.Proxy {
			ceiling := b.Ceiling
			req.Ceiling = &ceiling
		}
		_, _ = auction.NewEngine().SubmitBid(replay, req, testNow)
	}

	assert.Equal(t, replay.CurrentPrice, got.CurrentPrice)
	assert.Equal(t, replay.CurrentWinner, got.CurrentWinner)
	assert.Equal(t, replay.WinnerCeiling, got.WinnerCeiling)
	assert.Equal(t, replay.TotalBids, got.TotalBids)
	require.Len(t, replay.Bids, len(got.Bids))
	for i := range got.Bids {
		assert.Equal(t, replay.Bids[i].Outcome, got.Bids[i].Outcome, "entry %d", i)
		assert.Equal(t, replay.Bids[i].Status, got.Bids[i].Status, "entry %d", i)
		assert.Equal(t, replay.Bids[i].Sequence, got.Bids[i].Sequence, "entry %d", i)
	}

	var last int64
	for _, b := range got.Bids {
		if b.Outcome != model.BidOutcomeAccepted {
			continue
		}
		assert.Greater(t, b.Sequence, last)
		last = b.Sequence
	}
}
