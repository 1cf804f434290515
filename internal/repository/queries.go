package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmeshcher/vehicle-auction/internal/model"
)

var sortColumns = map[model.AuctionSort]string{
	model.SortByEndTime:      "end_time",
	model.SortByStartTime:    "start_time",
	model.SortByCreatedAt:    "created_at",
	model.SortByCurrentPrice: "current_price",
}

// whereBuilder собирает условие WHERE с позиционными параметрами.
type whereBuilder struct {
	conds []string
	args  []any
}

func (b *whereBuilder) add(cond string, arg any) {
	b.args = append(b.args, arg)
	b.conds = append(b.conds, fmt.Sprintf(cond, fmt.Sprintf("$%d", len(b.args))))
}

func (b *whereBuilder) String() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// next возвращает номер следующего позиционного параметра.
func (b *whereBuilder) next(arg any) string {
	b.args = append(b.args, arg)
	return fmt.Sprintf("$%d", len(b.args))
}

func auctionOrder(f model.AuctionFilter) string {
	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = sortColumns[model.SortByEndTime]
	}
	dir := "ASC"
	if f.Descending {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id", column, dir)
}

// pageClause добавляет LIMIT и OFFSET. Страница без размера не ограничена.
func pageClause(b *whereBuilder, p model.Page) string {
	if p.Size <= 0 {
		return ""
	}
	return ` LIMIT ` + b.next(p.Size) + ` OFFSET ` + b.next(p.Offset())
}

// ListAuctions возвращает страницу аукционов по фильтру вместе с журналами ставок.
func (r *PostgresRepository) ListAuctions(ctx context.Context, f model.AuctionFilter) (model.AuctionList, error) {
	var res model.AuctionList
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var where whereBuilder
		if f.Status != "" {
			where.add("status = %s", string(f.Status))
		}
		if f.SellerID != "" {
			where.add("seller_id = %s", f.SellerID)
		}
		if f.WatcherID != "" {
			where.add("%s = ANY(watchers)", f.WatcherID)
		}

		if err := r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM auctions`+where.String(),
			where.args...,
		).Scan(&res.Total); err != nil {
			return fmt.Errorf("count auctions: %w", err)
		}

		query := `SELECT ` + auctionColumns + ` FROM auctions` + where.String() + auctionOrder(f) + pageClause(&where, f.Page)

		rows, err := r.pool.Query(ctx, query, where.args...)
		if err != nil {
			return fmt.Errorf("select auctions: %w", err)
		}
		defer rows.Close()

		res.Auctions = res.Auctions[:0]
		var ids []string
		for rows.Next() {
			a, err := scanAuction(rows)
			if err != nil {
				return fmt.Errorf("scan auction: %w", err)
			}
			res.Auctions = append(res.Auctions, a)
			ids = append(ids, a.ID)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		if len(ids) == 0 {
			return nil
		}

		bids, err := r.loadBids(ctx, ids)
		if err != nil {
			return err
		}
		for _, a := range res.Auctions {
			a.Bids = bids[a.ID]
		}
		return nil
	})
	if err != nil {
		return model.AuctionList{}, err
	}
	return res, nil
}

// ListBids возвращает страницу ставок участника, новые первыми.
func (r *PostgresRepository) ListBids(ctx context.Context, f model.BidFilter) (model.BidList, error) {
	var res model.BidList
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var where whereBuilder
		where.add("bidder_id = %s", f.BidderID)
		if f.Status != "" {
			where.add("status = %s", string(f.Status))
		}

		if err := r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM bids`+where.String(),
			where.args...,
		).Scan(&res.Total); err != nil {
			return fmt.Errorf("count bids: %w", err)
		}

		query := `SELECT ` + bidColumns + ` FROM bids` + where.String() + ` ORDER BY placed_at DESC, id` + pageClause(&where, f.Page)

		rows, err := r.pool.Query(ctx, query, where.args...)
		if err != nil {
			return fmt.Errorf("select bids: %w", err)
		}
		defer rows.Close()

		res.Bids = res.Bids[:0]
		for rows.Next() {
			b, err := scanBid(rows)
			if err != nil {
				return fmt.Errorf("scan bid: %w", err)
			}
			res.Bids = append(res.Bids, b)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.BidList{}, err
	}
	return res, nil
}
