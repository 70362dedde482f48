package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-scimm/scimm/internal/database"
	"github.com/go-scimm/scimm/internal/sample/model"
	bolt "go.etcd.io/bbolt"
)

const (
	classKeys = "sample:keys:"
	prefix    = "sample:"
)

type FilterFn func(sample model.Sample) bool

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

// DB keeps the samples of every class in a bucket of their own and the
// class names in a keys bucket.
type DB struct {
	sDB *database.DB
}

func (db *DB) extractKey(key string) string {
	return strings.TrimPrefix(key, prefix)
}

func bucketName(class string) []byte {
	return []byte(prefix + class)
}

// Keys returns every class that has ever stored a sample.
func (db *DB) Keys() ([]string, error) {
	var classes []string
	err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(classKeys))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			classes = append(classes, db.extractKey(string(k)))
		}
		return nil
	})

	return classes, err
}

func put(tx *bolt.Tx, sample model.Sample) error {
	b, err := tx.CreateBucketIfNotExists(bucketName(sample.Class))
	if err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	bytes, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal sample %s: %w", sample.ID, err)
	}
	if err := b.Put([]byte(sample.ID.String()), bytes); err != nil {
		return fmt.Errorf("put to bucket: %w", err)
	}
	keys, err := tx.CreateBucketIfNotExists([]byte(classKeys))
	if err != nil {
		return fmt.Errorf("create class keys bucket: %w", err)
	}
	if err := keys.Put(bucketName(sample.Class), []byte{0x0}); err != nil {
		return fmt.Errorf("put to class keys bucket: %w", err)
	}
	return nil
}

func (db *DB) Store(_ context.Context, sample model.Sample) error {
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		return put(tx, sample)
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}

// AppendMany stores or overwrites samples by id in a single batch.
func (db *DB) AppendMany(_ context.Context, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := db.sDB.DB.Batch(func(tx *bolt.Tx) error {
		for _, sample := range samples {
			if err := put(tx, sample); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("batch transaction error: %w", err)
	}

	return nil
}

// UpdateExisting overwrites the samples that are still stored and skips
// the ones deleted meanwhile. It returns the number of samples written.
func (db *DB) UpdateExisting(_ context.Context, samples []model.Sample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	var n int
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		n = 0
		for _, sample := range samples {
			b := tx.Bucket(bucketName(sample.Class))
			if b == nil || b.Get([]byte(sample.ID.String())) == nil {
				continue
			}
			if err := put(tx, sample); err != nil {
				return err
			}
			n++
		}
		return nil
	}); err != nil {
		return 0, fmt.Errorf("update transaction error: %w", err)
	}

	return n, nil
}

func (db *DB) DeleteMany(_ context.Context, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := db.sDB.DB.Batch(func(tx *bolt.Tx) error {
		for _, sample := range samples {
			b := tx.Bucket(bucketName(sample.Class))
			if b == nil {
				continue
			}
			if err := b.Delete([]byte(sample.ID.String())); err != nil {
				return fmt.Errorf("unable delete: %w", err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("batch transaction error: %w", err)
	}

	return nil
}

func (db *DB) Delete(_ context.Context, sample model.Sample) error {
	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(sample.Class))
		if b == nil {
			return nil
		}

		return b.Delete([]byte(sample.ID.String()))
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}

	return nil
}

// FindAll returns the samples of every class that pass filter.
func (db *DB) FindAll(_ context.Context, filter FilterFn) ([]model.Sample, error) {
	var samples []model.Sample
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		keys := tx.Bucket([]byte(classKeys))
		if keys == nil {
			return nil
		}
		return keys.ForEach(func(k, _ []byte) error {
			b := tx.Bucket(k)
			if b == nil {
				return nil
			}
			found, err := collect(b, filter)
			if err != nil {
				return err
			}
			samples = append(samples, found...)
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	return samples, nil
}

func (db *DB) CountByClass(class string) (int, error) {
	var length int
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(class))
		if b == nil {
			return nil
		}
		length = b.Stats().KeyN
		return nil
	}); err != nil {
		return 0, fmt.Errorf("view transaction error: %w", err)
	}

	return length, nil
}

func (db *DB) FindByClass(class string, filter FilterFn) ([]model.Sample, error) {
	var list []model.Sample
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(class))
		if b == nil {
			return nil
		}
		found, err := collect(b, filter)
		list = found
		return err
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %w", err)
	}

	return list, nil
}

func collect(b *bolt.Bucket, filter FilterFn) ([]model.Sample, error) {
	var list []model.Sample
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var sample model.Sample
		if err := json.Unmarshal(v, &sample); err != nil {
			return nil, fmt.Errorf("json unmarshal error, %q", err)
		}
		if filter == nil || filter(sample) {
			list = append(list, sample)
		}
	}
	return list, nil
}
