package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cuemby/fleetdrain/pkg/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const progressTable = "drain_progress"

const createProgressTable = `
create table if not exists drain_progress (
	instance_id           text primary key,
	claimed_at            timestamptz not null,
	cordoned              boolean not null default false,
	drain_confirmed_empty boolean not null default false,
	awaiting_termination  boolean not null default false
);
`

// PostgresLedger stores one row per instance. The claim is an insert that
// ignores conflicts on the primary key; flags are independent boolean columns.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger connects to the database and creates the table if needed
func NewPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, createProgressTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create %s table: %w", progressTable, err)
	}
	return &PostgresLedger{db: pool}, nil
}

func claimQuery(id string, now time.Time) (string, []any, error) {
	return squirrel.Insert(progressTable).
		Columns("instance_id", "claimed_at").
		Values(id, now).
		Suffix("on conflict (instance_id) do nothing").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
}

func setFlagQuery(id string, flag types.Flag) (string, []any, error) {
	return squirrel.Update(progressTable).
		Set(string(flag), true).
		Where(squirrel.Eq{"instance_id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
}

func progressQuery(id string) (string, []any, error) {
	return squirrel.Select(
		"claimed_at",
		string(types.FlagCordoned),
		string(types.FlagDrainConfirmedEmpty),
		string(types.FlagAwaitingTermination),
	).
		From(progressTable).
		Where(squirrel.Eq{"instance_id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
}

func (p *PostgresLedger) ClaimIfAbsent(ctx context.Context, id string) (bool, error) {
	if err := checkID("ledger claim", id); err != nil {
		return false, err
	}

	sql, args, err := claimQuery(id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to create db request: %w", err)
	}
	tag, err := p.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, transient("ledger claim", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresLedger) GetFlag(ctx context.Context, id string, flag types.Flag) (bool, error) {
	if err := checkFlag("ledger get flag", id, flag); err != nil {
		return false, err
	}
	progress, err := p.Progress(ctx, id)
	if err != nil {
		return false, err
	}
	return progress.Flag(flag), nil
}

func (p *PostgresLedger) SetFlag(ctx context.Context, id string, flag types.Flag) error {
	if err := checkFlag("ledger set flag", id, flag); err != nil {
		return err
	}

	sql, args, err := setFlagQuery(id, flag)
	if err != nil {
		return fmt.Errorf("failed to create db request: %w", err)
	}
	tag, err := p.db.Exec(ctx, sql, args...)
	if err != nil {
		return transient("ledger set flag", err)
	}
	if tag.RowsAffected() == 0 {
		return notClaimed("ledger set flag", id)
	}
	return nil
}

func (p *PostgresLedger) Progress(ctx context.Context, id string) (types.DrainProgress, error) {
	if err := checkID("ledger progress", id); err != nil {
		return types.DrainProgress{}, err
	}

	sql, args, err := progressQuery(id)
	if err != nil {
		return types.DrainProgress{}, fmt.Errorf("failed to create db request: %w", err)
	}

	progress := types.DrainProgress{Claimed: true}
	err = p.db.QueryRow(ctx, sql, args...).Scan(
		&progress.ClaimedAt,
		&progress.Cordoned,
		&progress.DrainConfirmedEmpty,
		&progress.AwaitingTermination,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.DrainProgress{}, nil
	}
	if err != nil {
		return types.DrainProgress{}, transient("ledger progress", err)
	}
	return progress, nil
}

func (p *PostgresLedger) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *PostgresLedger) Close() error {
	p.db.Close()
	return nil
}
