package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-scimm/scimm/internal/database"
	"github.com/go-scimm/scimm/internal/profile/model"
	bolt "go.etcd.io/bbolt"
)

const bucket = "profile:"

var ErrNotFound = errors.New("profile not found")

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

// DB stores the latest profile of each class, keyed by class name.
type DB struct {
	sDB *database.DB
}

func (db *DB) Keys() ([]string, error) {
	var classes []string
	err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			classes = append(classes, string(k))
			return nil
		})
	})
	return classes, err
}

// Store replaces the profile of its class.
func (db *DB) Store(_ context.Context, profile model.Profile) error {
	data, err := profile.MarshalBinary()
	if err != nil {
		return err
	}
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		if err := b.Put([]byte(profile.Class), data); err != nil {
			return fmt.Errorf("put to bucket error: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}
	return nil
}

func (db *DB) Delete(_ context.Context, class string) error {
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(class))
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}
	return nil
}

func (db *DB) Find(_ context.Context, class string) (model.Profile, error) {
	var profile model.Profile
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, class)
		}
		v := b.Get([]byte(class))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, class)
		}
		return profile.UnmarshalBinary(v)
	}); err != nil {
		return model.Profile{}, fmt.Errorf("view transaction error: %w", err)
	}
	return profile, nil
}

func (db *DB) FindAll(_ context.Context) ([]model.Profile, error) {
	var profiles []model.Profile
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var p model.Profile
			if err := p.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("profile %s: %w", k, err)
			}
			profiles = append(profiles, p)
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}
	return profiles, nil
}
