package auction

import "github.com/mmeshcher/vehicle-auction/internal/model"

func findBid(a *model.Auction, bidID string) int {
	for i := range a.Bids {
		if a.Bids[i].ID == bidID {
			return i
		}
	}
	return -1
}

// winningIndex возвращает позицию единственной ставки со статусом winning.
func winningIndex(a *model.Auction) int {
	for i := len(a.Bids) - 1; i >= 0; i-- {
		if a.Bids[i].Status == model.BidStatusWinning {
			return i
		}
	}
	return -1
}

func demoteWinning(a *model.Auction, to model.BidStatus) {
	if i := winningIndex(a); i >= 0 {
		a.Bids[i].Status = to
	}
}

// settleLedger переводит все живые ставки, кроме keep, в статус lost.
func settleLedger(a *model.Auction, keep string) {
	for i := range a.Bids {
		b := &a.Bids[i]
		if b.ID == keep {
			continue
		}
		if b.Status == model.BidStatusWinning || b.Status == model.BidStatusOutbid {
			b.Status = model.BidStatusLost
		}
	}
}

// WinningBid возвращает текущую выигрывающую ставку.
func WinningBid(a *model.Auction) (model.Bid, bool) {
	i := winningIndex(a)
	if i < 0 {
		return model.Bid{}, false
	}
	return a.Bids[i], true
}

// AcceptedCount возвращает число принятых ставок в журнале.
func AcceptedCount(a *model.Auction) int {
	n := 0
	for _, b := range a.Bids {
		if b.Outcome == model.BidOutcomeAccepted {
			n++
		}
	}
	return n
}
