// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/vehicle-auction/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrAuctionNotFound возвращается, если аукцион отсутствует в хранилище.
var ErrAuctionNotFound = errors.New("auction not found")

const auctionColumns = `id, item_id, seller_id, title, description,
	starting_price, reserve_price, bid_increment, currency,
	status, current_price, current_winner, winner_ceiling, total_bids, reserve_met,
	start_time, end_time, extension_count, last_extended_at,
	requires_registration, requires_deposit, deposit_amount, registrations, watchers,
	winner_id, winning_bid_id, final_price, ended_at,
	next_sequence, version, created_at, updated_at`

const bidColumns = `id, auction_id, bidder_id, amount, ceiling, proxy, outcome, reason,
	status, sequence, placed_at, withdrawn, withdrawn_at`

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет чтение при временных ошибках БД.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(time.Second))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsRetryable сообщает, имеет ли смысл повторить операцию после ошибки.
// Повторяются конфликты сериализации, взаимоблокировки и обрывы соединения.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Ошибку контекста не повторяем
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgerrcode.IsConnectionException(pgErr.Code)
	}

	return pgconn.SafeToRetry(err) || isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// SaveAuction сохраняет снимок аукциона и его журнал ставок в одной транзакции.
// Снимок с версией не новее сохранённой игнорируется.
func (r *PostgresRepository) SaveAuction(ctx context.Context, a *model.Auction) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	watchers := a.WatcherIDs()
	if watchers == nil {
		watchers = []string{}
	}
	registrations := a.Registrations
	if registrations == nil {
		registrations = map[string]model.Registration{}
	}

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO auctions (`+auctionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		         $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			current_price = EXCLUDED.current_price,
			current_winner = EXCLUDED.current_winner,
			winner_ceiling = EXCLUDED.winner_ceiling,
			total_bids = EXCLUDED.total_bids,
			reserve_met = EXCLUDED.reserve_met,
			end_time = EXCLUDED.end_time,
			extension_count = EXCLUDED.extension_count,
			last_extended_at = EXCLUDED.last_extended_at,
			registrations = EXCLUDED.registrations,
			watchers = EXCLUDED.watchers,
			winner_id = EXCLUDED.winner_id,
			winning_bid_id = EXCLUDED.winning_bid_id,
			final_price = EXCLUDED.final_price,
			ended_at = EXCLUDED.ended_at,
			next_sequence = EXCLUDED.next_sequence,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		 WHERE auctions.version < EXCLUDED.version`,
		a.ID, a.ItemID, a.SellerID, a.Title, a.Description,
		a.StartingPrice, a.ReservePrice, a.BidIncrement, a.Currency,
		string(a.Status), a.CurrentPrice, a.CurrentWinner, a.WinnerCeiling, a.TotalBids, a.ReserveMet,
		a.StartTime, a.EndTime, a.ExtensionCount, a.LastExtendedAt,
		a.Policy.RequiresRegistration, a.Policy.RequiresDeposit, a.Policy.DepositAmount, registrations, watchers,
		a.WinnerID, a.WinningBidID, a.FinalPrice, a.EndedAt,
		a.NextSequence, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert auction: %w", err)
	}

	// Сохранена более новая версия, этот снимок устарел.
	if cmdTag.RowsAffected() == 0 {
		return nil
	}

	if len(a.Bids) > 0 {
		batch := &pgx.Batch{}
		for i, b := range a.Bids {
			batch.Queue(
				`INSERT INTO bids (position, `+bidColumns+`)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
				 ON CONFLICT (id) DO UPDATE SET
					status = EXCLUDED.status,
					withdrawn = EXCLUDED.withdrawn,
					withdrawn_at = EXCLUDED.withdrawn_at`,
				i, b.ID, a.ID, b.BidderID, b.Amount, b.Ceiling, b.Proxy, string(b.Outcome), b.Reason,
				string(b.Status), b.Sequence, b.PlacedAt, b.Withdrawn, b.WithdrawnAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range a.Bids {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("upsert bid: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetAuction возвращает аукцион вместе с журналом ставок.
func (r *PostgresRepository) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	var a *model.Auction
	err := r.withRetry(ctx, func(ctx context.Context) error {
		row := r.pool.QueryRow(ctx,
			`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`,
			id,
		)

		var err error
		a, err = scanAuction(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrAuctionNotFound, id)
			}
			return fmt.Errorf("get auction: %w", err)
		}

		bids, err := r.loadBids(ctx, []string{id})
		if err != nil {
			return err
		}
		a.Bids = bids[id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListOpenAuctions возвращает все запланированные и активные аукционы.
func (r *PostgresRepository) ListOpenAuctions(ctx context.Context) ([]*model.Auction, error) {
	var res []*model.Auction
	err := r.withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+auctionColumns+`
			 FROM auctions
			 WHERE status IN ($1, $2)
			 ORDER BY created_at`,
			string(model.AuctionStatusScheduled),
			string(model.AuctionStatusActive),
		)
		if err != nil {
			return fmt.Errorf("select open auctions: %w", err)
		}
		defer rows.Close()

		res = res[:0]
		var ids []string
		for rows.Next() {
			a, err := scanAuction(rows)
			if err != nil {
				return fmt.Errorf("scan auction: %w", err)
			}
			res = append(res, a)
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
		for _, a := range res {
			a.Bids = bids[a.ID]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// HasOpenAuctionForItem сообщает, есть ли у лота незавершённый аукцион.
func (r *PostgresRepository) HasOpenAuctionForItem(ctx context.Context, itemID string) (bool, error) {
	var exists bool
	err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM auctions
				WHERE item_id = $1 AND status IN ($2, $3, $4)
			)`,
			itemID,
			string(model.AuctionStatusDraft),
			string(model.AuctionStatusScheduled),
			string(model.AuctionStatusActive),
		).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("check open auction: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) loadBids(ctx context.Context, auctionIDs []string) (map[string][]model.Bid, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bidColumns+`
		 FROM bids
		 WHERE auction_id = ANY($1)
		 ORDER BY auction_id, position`,
		auctionIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select bids: %w", err)
	}
	defer rows.Close()

	res := make(map[string][]model.Bid, len(auctionIDs))
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		res[b.AuctionID] = append(res[b.AuctionID], b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanBid(row pgx.Row) (model.Bid, error) {
	var (
		b       model.Bid
		outcome string
		status  string
	)
	err := row.Scan(
		&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.Ceiling, &b.Proxy, &outcome, &b.Reason,
		&status, &b.Sequence, &b.PlacedAt, &b.Withdrawn, &b.WithdrawnAt,
	)
	b.Outcome = model.BidOutcome(outcome)
	b.Status = model.BidStatus(status)
	return b, err
}

func scanAuction(row pgx.Row) (*model.Auction, error) {
	var (
		a        model.Auction
		status   string
		watchers []string
	)
	err := row.Scan(
		&a.ID, &a.ItemID, &a.SellerID, &a.Title, &a.Description,
		&a.StartingPrice, &a.ReservePrice, &a.BidIncrement, &a.Currency,
		&status, &a.CurrentPrice, &a.CurrentWinner, &a.WinnerCeiling, &a.TotalBids, &a.ReserveMet,
		&a.StartTime, &a.EndTime, &a.ExtensionCount, &a.LastExtendedAt,
		&a.Policy.RequiresRegistration, &a.Policy.RequiresDeposit, &a.Policy.DepositAmount, &a.Registrations, &watchers,
		&a.WinnerID, &a.WinningBidID, &a.FinalPrice, &a.EndedAt,
		&a.NextSequence, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = model.AuctionStatus(status)
	if a.Registrations == nil {
		a.Registrations = make(map[string]model.Registration)
	}
	a.Watchers = make(map[string]struct{}, len(watchers))
	for _, w := range watchers {
		a.Watchers[w] = struct{}{}
	}

	return &a, nil
}
