package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/fleetdrain/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketProgress = []byte("drain_progress")

// BoltLedger stores one JSON document per instance in a bbolt file. Claims
// run inside a write transaction, which bbolt serializes.
type BoltLedger struct {
	db *bolt.DB
}

// NewBoltLedger opens (or creates) the ledger file at path
func NewBoltLedger(path string) (*BoltLedger, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketProgress); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketProgress, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltLedger{db: db}, nil
}

func (b *BoltLedger) ClaimIfAbsent(ctx context.Context, id string) (bool, error) {
	if err := checkID("ledger claim", id); err != nil {
		return false, err
	}

	claimed := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketProgress)
		if bkt.Get([]byte(id)) != nil {
			return nil
		}
		data, err := json.Marshal(types.DrainProgress{Claimed: true, ClaimedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		if err := bkt.Put([]byte(id), data); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, transient("ledger claim", err)
	}
	return claimed, nil
}

func (b *BoltLedger) GetFlag(ctx context.Context, id string, flag types.Flag) (bool, error) {
	if err := checkFlag("ledger get flag", id, flag); err != nil {
		return false, err
	}
	p, err := b.Progress(ctx, id)
	if err != nil {
		return false, err
	}
	return p.Flag(flag), nil
}

func (b *BoltLedger) SetFlag(ctx context.Context, id string, flag types.Flag) error {
	if err := checkFlag("ledger set flag", id, flag); err != nil {
		return err
	}

	var missing bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketProgress)
		data := bkt.Get([]byte(id))
		if data == nil {
			missing = true
			return nil
		}
		var p types.DrainProgress
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.Flag(flag) {
			return nil
		}
		updated, err := json.Marshal(p.WithFlag(flag))
		if err != nil {
			return err
		}
		return bkt.Put([]byte(id), updated)
	})
	if err != nil {
		return transient("ledger set flag", err)
	}
	if missing {
		return notClaimed("ledger set flag", id)
	}
	return nil
}

func (b *BoltLedger) Progress(ctx context.Context, id string) (types.DrainProgress, error) {
	if err := checkID("ledger progress", id); err != nil {
		return types.DrainProgress{}, err
	}

	var p types.DrainProgress
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProgress).Get([]byte(id))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return types.DrainProgress{}, transient("ledger progress", err)
	}
	return p, nil
}

// Ping checks that the database file is still open
func (b *BoltLedger) Ping(ctx context.Context) error {
	return b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketProgress) == nil {
			return fmt.Errorf("bucket %s is missing", bucketProgress)
		}
		return nil
	})
}

// Close closes the database
func (b *BoltLedger) Close() error {
	return b.db.Close()
}
