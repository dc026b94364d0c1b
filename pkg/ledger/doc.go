/*
Package ledger implements the dedup ledger: the per-instance record that makes
at-least-once delivery of instance status events safe to replay.

Each record holds a claim and three write-once flags:

	claimed ──▶ cordoned ──▶ drain_confirmed_empty ──▶ awaiting_termination

ClaimIfAbsent is atomic on every backend. When several deliveries of the first
event for an instance race, exactly one caller sees true and goes on to
register the instance; the others see false. Flags are stored independently
and only ever move from false to true. Nothing in the package deletes a
record; the Redis backend can expire records through a TTL policy.

# Architecture

	┌──────────────────────────── LEDGER ─────────────────────────────┐
	│                                                                   │
	│   drain.Controller            fleetdrain ledger get               │
	│         │                            │                            │
	│         ▼                            ▼                            │
	│  ┌────────────────────────────────────────────────────┐          │
	│  │              Ledger interface                        │          │
	│  │  ClaimIfAbsent  GetFlag  SetFlag  Progress  Ping     │          │
	│  └──────────────────────┬─────────────────────────────┘          │
	│                         │                                          │
	│  ┌──────────────────────▼─────────────────────────────┐          │
	│  │       Instrument (operation latency histogram)       │          │
	│  └──────────────────────┬─────────────────────────────┘          │
	│                         │ Open(config.LedgerConfig)                │
	│      ┌──────────────┬───┴──────────┬──────────────────┐           │
	│      ▼              ▼              ▼                  ▼           │
	│  ┌────────┐   ┌───────────┐  ┌─────────────┐  ┌──────────────┐  │
	│  │ memory │   │   bolt     │  │   redis      │  │  postgres     │  │
	│  │ map +  │   │ bucket     │  │ hash per     │  │ row per       │  │
	│  │ mutex  │   │ JSON value │  │ instance,Lua │  │ instance      │  │
	│  └────────┘   └───────────┘  └─────────────┘  └──────────────┘  │
	└───────────────────────────────────────────────────────────────────┘

# Backends

	memory    map + mutex                    tests, one-shot runs
	bolt      bbolt bucket drain_progress    single replica
	redis     hash <prefix>:instances:<id>   shared across replicas
	postgres  table drain_progress           shared across replicas

Open picks the backend from config.LedgerConfig and wraps it with Instrument,
which records every call on fleetdrain_ledger_operation_duration_seconds.

MemoryLedger:
  - Progress lives in a map guarded by a mutex
  - Lost on restart; the CLI warns when it is selected

BoltLedger:
  - One JSON encoded DrainProgress per instance id in bucket drain_progress
  - The claim runs inside db.Update, which serializes writers, so the check
    for an existing key and the put are one transaction
  - The file is locked while open. A second process (for example
    `fleetdrain ledger get` next to a running serve) waits up to five
    seconds and then fails

RedisLedger:
  - One hash per instance under <prefix>:instances:<id> with the fields
    claimed, claimed_at and one field per flag
  - The claim is a Lua script around HSETNX, which also applies the TTL
  - SetFlag is a Lua script that writes only when the hash holds a claim, so
    a flag can never appear on an unclaimed record even after expiry
  - Works with any redis.UniversalClient (single node, sentinel, cluster)

PostgresLedger:
  - Table drain_progress with one boolean column per flag, created on open
  - The claim is insert ... on conflict (instance_id) do nothing; the
    affected row count says who won
  - SetFlag is an update ... where instance_id, and zero affected rows means
    the instance was never claimed
  - Queries are built with squirrel using dollar placeholders and run on a
    pgxpool.Pool

# Error Handling

Errors are types.Error values: storage failures are transient, and writing a
flag for an instance that was never claimed is invalid. An empty instance id
or an unknown flag is rejected before the backend is touched. Reading an
unknown instance is not an error; it returns the zero DrainProgress, whose
phase is UNREGISTERED.

# Usage

	l, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	defer l.Close()

	won, err := l.ClaimIfAbsent(ctx, "i-0abc")
	if err != nil {
		return err
	}
	if won {
		// first delivery: register the instance
	}
	if err := l.SetFlag(ctx, "i-0abc", types.FlagCordoned); err != nil {
		return err
	}

# Testing

ledger_test.go runs one contract suite against every backend: claims are won
once, concurrent claims have a single winner, flags are independent and
monotone, and unclaimed writes are rejected. The memory and bolt backends
always run. The Redis and Postgres runs need FLEETDRAIN_TEST_REDIS_ADDR and
FLEETDRAIN_TEST_POSTGRES_DSN and are skipped otherwise.
*/
package ledger
