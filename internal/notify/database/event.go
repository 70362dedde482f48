package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-scimm/scimm/internal/database"
	"github.com/go-scimm/scimm/internal/notify/model"
	bolt "go.etcd.io/bbolt"
)

const pendingBucket = "notify:pending"

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

// DB keeps undelivered notifications between restarts.
type DB struct {
	sDB *database.DB
}

func (db *DB) Store(_ context.Context, events ...model.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(pendingBucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		for _, e := range events {
			bytes, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(e.ID.String()), bytes); err != nil {
				return fmt.Errorf("put to bucket error: %w", err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}
	return nil
}

func (db *DB) Delete(_ context.Context, events ...model.Event) error {
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(pendingBucket))
		if b == nil {
			return nil
		}
		for _, e := range events {
			if err := b.Delete([]byte(e.ID.String())); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}
	return nil
}

func (db *DB) FindAll(_ context.Context) ([]model.Event, error) {
	var events []model.Event
	err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(pendingBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var e model.Event
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("event %s unmarshal error: %w", k, err)
			}
			events = append(events, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}
	return events, nil
}
