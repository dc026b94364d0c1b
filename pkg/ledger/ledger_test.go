package ledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fleetdrain/pkg/config"
	"github.com/cuemby/fleetdrain/pkg/metrics"
	"github.com/cuemby/fleetdrain/pkg/types"
)

// runLedgerContract checks the behaviour every backend must share. ids are
// prefixed so the shared Redis and Postgres backends can be reused.
func runLedgerContract(t *testing.T, l Ledger, prefix string) {
	ctx := context.Background()
	id := prefix + "i-contract"

	t.Run("unclaimed reads as empty", func(t *testing.T) {
		p, err := l.Progress(ctx, prefix+"i-unknown")
		require.NoError(t, err)
		assert.Equal(t, types.DrainProgress{}, p)

		set, err := l.GetFlag(ctx, prefix+"i-unknown", types.FlagCordoned)
		require.NoError(t, err)
		assert.False(t, set)
	})

	t.Run("set flag on unclaimed is invalid", func(t *testing.T) {
		err := l.SetFlag(ctx, prefix+"i-unknown", types.FlagCordoned)
		require.Error(t, err)
		assert.Equal(t, types.ErrorKindInvalid, types.KindOf(err))
	})

	t.Run("claim once", func(t *testing.T) {
		won, err := l.ClaimIfAbsent(ctx, id)
		require.NoError(t, err)
		assert.True(t, won)

		won, err = l.ClaimIfAbsent(ctx, id)
		require.NoError(t, err)
		assert.False(t, won)

		p, err := l.Progress(ctx, id)
		require.NoError(t, err)
		assert.True(t, p.Claimed)
		assert.False(t, p.Cordoned)
		assert.False(t, p.DrainConfirmedEmpty)
		assert.False(t, p.AwaitingTermination)
		assert.False(t, p.ClaimedAt.IsZero())
	})

	t.Run("flags are independent", func(t *testing.T) {
		require.NoError(t, l.SetFlag(ctx, id, types.FlagDrainConfirmedEmpty))

		cordoned, err := l.GetFlag(ctx, id, types.FlagCordoned)
		require.NoError(t, err)
		assert.False(t, cordoned)

		empty, err := l.GetFlag(ctx, id, types.FlagDrainConfirmedEmpty)
		require.NoError(t, err)
		assert.True(t, empty)

		awaiting, err := l.GetFlag(ctx, id, types.FlagAwaitingTermination)
		require.NoError(t, err)
		assert.False(t, awaiting)
	})

	t.Run("set flag is idempotent", func(t *testing.T) {
		require.NoError(t, l.SetFlag(ctx, id, types.FlagCordoned))
		require.NoError(t, l.SetFlag(ctx, id, types.FlagCordoned))

		p, err := l.Progress(ctx, id)
		require.NoError(t, err)
		assert.True(t, p.Claimed)
		assert.True(t, p.Cordoned)
		assert.True(t, p.DrainConfirmedEmpty)
		assert.False(t, p.AwaitingTermination)

		won, err := l.ClaimIfAbsent(ctx, id)
		require.NoError(t, err)
		assert.False(t, won, "re-claim must not reset progress")

		p, err = l.Progress(ctx, id)
		require.NoError(t, err)
		assert.True(t, p.Cordoned)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := l.ClaimIfAbsent(ctx, "")
		assert.Equal(t, types.ErrorKindInvalid, types.KindOf(err))

		err = l.SetFlag(ctx, id, types.Flag("is_cordoned"))
		assert.Equal(t, types.ErrorKindInvalid, types.KindOf(err))

		_, err = l.GetFlag(ctx, id, types.Flag(""))
		assert.Equal(t, types.ErrorKindInvalid, types.KindOf(err))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, l.Ping(ctx))
	})
}

// runConcurrentClaim races n claimers for one id and expects a single winner
func runConcurrentClaim(t *testing.T, l Ledger, id string, n int) {
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
		errs atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			won, err := l.ClaimIfAbsent(ctx, id)
			if err != nil {
				errs.Add(1)
				return
			}
			if won {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Zero(t, errs.Load())
	assert.Equal(t, int32(1), wins.Load())
}

func TestOpenMemoryInstrumented(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, config.LedgerConfig{Backend: config.LedgerMemory})
	require.NoError(t, err)
	defer l.Close()

	before := testutil.CollectAndCount(metrics.LedgerOperationDuration)

	runLedgerContract(t, l, "")

	assert.Greater(t, testutil.CollectAndCount(metrics.LedgerOperationDuration), before)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.LedgerConfig{Backend: "etcd"})
	assert.Error(t, err)
}

func TestMemoryLedger(t *testing.T) {
	runLedgerContract(t, NewMemoryLedger(), "")
}

func TestMemoryLedgerConcurrentClaim(t *testing.T) {
	l := NewMemoryLedger()
	for i := 0; i < 10; i++ {
		runConcurrentClaim(t, l, fmt.Sprintf("i-%d", i), 32)
	}
}
