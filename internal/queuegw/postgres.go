package queuegw

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// PostgresGateway implements Gateway on top of a single messages table
// shared by every queue name, modelled directly on the teacher's
// claimed-job pattern: a visible_at timestamp substitutes for SQS
// visibility timeout, and SELECT ... FOR UPDATE SKIP LOCKED lets many
// concurrent wrapper/coordinator/invoker processes claim disjoint rows
// without a distributed lock.
type PostgresGateway struct {
	pool *pgxpool.Pool
}

// NewPostgresGateway opens a pool against dsn and runs embedded
// migrations using the same goose + //go:embed wiring the teacher's
// internal/storage/sql package used for its own schema.
func NewPostgresGateway(ctx context.Context, dsn string) (*PostgresGateway, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("queuegw: failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("queuegw: failed to ping postgres: %w", err)
	}
	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("queuegw: failed to run migrations: %w", err)
	}
	return &PostgresGateway{pool: pool}, nil
}

func runMigrations(dsn string) error {
	db, err := stdlib.OpenDB(*mustParseConfig(dsn))
	if err != nil {
		return fmt.Errorf("open stdlib db for migrations: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func mustParseConfig(dsn string) *pgx.ConnConfig {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		panic(fmt.Sprintf("queuegw: invalid postgres dsn: %v", err))
	}
	return cfg
}

// Close releases the underlying connection pool.
func (g *PostgresGateway) Close() {
	g.pool.Close()
}

func (g *PostgresGateway) Send(ctx context.Context, queue string, payload []byte) error {
	_, err := g.pool.Exec(ctx, `
		INSERT INTO queue_messages (id, queue_name, body, visible_at)
		VALUES ($1, $2, $3, now())`,
		uuid.NewString(), queue, payload)
	if err != nil {
		return fmt.Errorf("queuegw: send to %s: %w", queue, err)
	}
	return nil
}

// ReceiveOne claims the oldest visible message on queue, the same
// SKIP LOCKED shape as the teacher's ClaimNextJob: WHERE visible_at <=
// now() ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 1, followed by
// an UPDATE that pushes visible_at out by the visibility window. wait
// is honored by a short polling loop bounded by wait — Postgres has no
// native long-poll primitive, so this approximates SQS's long-poll with
// bounded client-side retries instead of idle-waiting on the server.
func (g *PostgresGateway) ReceiveOne(ctx context.Context, queue string, visibility, wait time.Duration) (*Message, error) {
	deadline := time.Now().Add(wait)
	const pollInterval = 200 * time.Millisecond

	for {
		msg, err := g.claimOnce(ctx, queue, visibility)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
		if wait <= 0 || time.Now().After(deadline) {
			return nil, nil
		}
		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (g *PostgresGateway) claimOnce(ctx context.Context, queue string, visibility time.Duration) (*Message, error) {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("queuegw: begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id, body string
	err = tx.QueryRow(ctx, `
		SELECT id, body FROM queue_messages
		WHERE queue_name = $1 AND visible_at <= now()
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, queue).Scan(&id, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queuegw: claim query on %s: %w", queue, err)
	}

	receipt := uuid.NewString()
	_, err = tx.Exec(ctx, `
		UPDATE queue_messages SET visible_at = now() + $1, receipt_token = $2
		WHERE id = $3`, visibility, receipt, id)
	if err != nil {
		return nil, fmt.Errorf("queuegw: claim update on %s: %w", queue, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("queuegw: commit claim tx: %w", err)
	}
	return &Message{Body: []byte(body), ReceiptToken: receipt}, nil
}

func (g *PostgresGateway) Delete(ctx context.Context, queue, receiptToken string) error {
	tag, err := g.pool.Exec(ctx, `
		DELETE FROM queue_messages WHERE queue_name = $1 AND receipt_token = $2`,
		queue, receiptToken)
	if err != nil {
		return fmt.Errorf("queuegw: delete from %s: %w", queue, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("queuegw: delete from %s: receipt %s not found (already reclaimed?)", queue, receiptToken)
	}
	return nil
}

// ApproximateDepth counts visible-or-claimed rows for queue, bounded by
// a statement timeout so a large table never turns a status-measurement
// pass into a blocking call — spec.md §4.7 step 3 treats an individual
// measurement failure as logged-and-nulled, not fatal. When retention is
// positive, rows older than retention are excluded so a crashed
// worker's never-decremented ledger row doesn't inflate the count
// forever (spec.md §3, §4.4).
func (g *PostgresGateway) ApproximateDepth(ctx context.Context, queue string, retention time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var depth int
	var err error
	if retention > 0 {
		err = g.pool.QueryRow(ctx, `
			SELECT count(*) FROM queue_messages
			WHERE queue_name = $1 AND created_at >= now() - $2::interval`, queue, retention).Scan(&depth)
	} else {
		err = g.pool.QueryRow(ctx, `
			SELECT count(*) FROM queue_messages WHERE queue_name = $1`, queue).Scan(&depth)
	}
	if err != nil {
		return 0, fmt.Errorf("queuegw: approximateDepth on %s: %w", queue, err)
	}
	return depth, nil
}

// ReapStale deletes rows on queue older than retention — the physical
// cleanup side of the same crash-recovery bound ApproximateDepth's
// retention filter enforces logically.
func (g *PostgresGateway) ReapStale(ctx context.Context, queue string, retention time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	tag, err := g.pool.Exec(ctx, `
		DELETE FROM queue_messages
		WHERE queue_name = $1 AND created_at < now() - $2::interval`, queue, retention)
	if err != nil {
		return 0, fmt.Errorf("queuegw: reapStale on %s: %w", queue, err)
	}
	return int(tag.RowsAffected()), nil
}
