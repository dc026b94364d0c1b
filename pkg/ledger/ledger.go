package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/fleetdrain/pkg/config"
	"github.com/cuemby/fleetdrain/pkg/metrics"
	"github.com/cuemby/fleetdrain/pkg/types"
)

// Ledger is the per-instance progress store of drain episodes. The claim is
// the only "first seen" truth; flags are write-once and there is no way to
// clear a record.
type Ledger interface {
	// ClaimIfAbsent creates the record for id. It reports true only for the
	// caller whose write created it.
	ClaimIfAbsent(ctx context.Context, id string) (bool, error)

	// GetFlag reads one flag. Unclaimed instances read as false.
	GetFlag(ctx context.Context, id string, flag types.Flag) (bool, error)

	// SetFlag sets one flag to true. Setting a flag on an unclaimed instance
	// is an ErrorKindInvalid error.
	SetFlag(ctx context.Context, id string, flag types.Flag) error

	// Progress reads the whole record. Unclaimed instances return the zero value.
	Progress(ctx context.Context, id string) (types.DrainProgress, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open creates the ledger selected by cfg.Backend, instrumented with latency metrics
func Open(ctx context.Context, cfg config.LedgerConfig) (Ledger, error) {
	var (
		l   Ledger
		err error
	)

	switch cfg.Backend {
	case config.LedgerMemory:
		l = NewMemoryLedger()
	case config.LedgerBolt:
		l, err = NewBoltLedger(cfg.BoltPath)
	case config.LedgerRedis:
		l, err = NewRedisLedger(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			TTL:      cfg.TTL,
		})
	case config.LedgerPostgres:
		l, err = NewPostgresLedger(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return Instrument(l, cfg.Backend), nil
}

func checkID(op, id string) error {
	if id == "" {
		return types.NewError(types.ErrorKindInvalid, op, fmt.Errorf("empty instance id"))
	}
	return nil
}

func checkFlag(op, id string, flag types.Flag) error {
	if err := checkID(op, id); err != nil {
		return err
	}
	if !flag.Valid() {
		return types.NewError(types.ErrorKindInvalid, op, fmt.Errorf("unknown flag %q", flag))
	}
	return nil
}

func notClaimed(op, id string) error {
	return types.NewError(types.ErrorKindInvalid, op, fmt.Errorf("instance %s has not been claimed", id))
}

func transient(op string, err error) error {
	return types.NewError(types.ErrorKindTransient, op, err)
}

// instrumented records the latency of every ledger call
type instrumented struct {
	Ledger
	backend string
}

// Instrument wraps l so that every call is observed on
// fleetdrain_ledger_operation_duration_seconds
func Instrument(l Ledger, backend string) Ledger {
	return &instrumented{Ledger: l, backend: backend}
}

func (i *instrumented) observe(op string, start time.Time) {
	metrics.LedgerOperationDuration.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
}

func (i *instrumented) ClaimIfAbsent(ctx context.Context, id string) (bool, error) {
	defer i.observe("claim", time.Now())
	return i.Ledger.ClaimIfAbsent(ctx, id)
}

func (i *instrumented) GetFlag(ctx context.Context, id string, flag types.Flag) (bool, error) {
	defer i.observe("get_flag", time.Now())
	return i.Ledger.GetFlag(ctx, id, flag)
}

func (i *instrumented) SetFlag(ctx context.Context, id string, flag types.Flag) error {
	defer i.observe("set_flag", time.Now())
	return i.Ledger.SetFlag(ctx, id, flag)
}

func (i *instrumented) Progress(ctx context.Context, id string) (types.DrainProgress, error) {
	defer i.observe("progress", time.Now())
	return i.Ledger.Progress(ctx, id)
}
