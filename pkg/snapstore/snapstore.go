// Package snapstore keeps named bank snapshots in a bbolt file, compressed
// with zstd.
package snapstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
	"k8s.io/klog/v2"
)

var (
	ErrNotFound  = errors.New("snapshot not found")
	ErrEmptyName = errors.New("snapshot name is empty")
)

var bucketSnapshots = []byte("snapshots")

type Store struct {
	db      *bolt.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open creates the database file and its parent directory if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, err
	}

	klog.V(2).Infof("opened snapshot store %s", path)
	return &Store{db: db, encoder: encoder, decoder: decoder}, nil
}

func (s *Store) Close() error {
	s.decoder.Close()
	s.encoder.Close()
	return s.db.Close()
}

// Put stores blob under name, replacing any previous snapshot.
func (s *Store) Put(name string, blob []byte) error {
	if name == "" {
		return ErrEmptyName
	}
	compressed := s.encoder.EncodeAll(blob, nil)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(name), compressed)
	})
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", name, err)
	}
	klog.V(2).Infof("stored snapshot %s (%d bytes, %d compressed)", name, len(blob), len(compressed))
	return nil
}

func (s *Store) Get(name string) ([]byte, error) {
	var compressed []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get([]byte(name))
		if v == nil {
			return ErrNotFound
		}
		// bbolt values are only valid inside the transaction
		compressed = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	blob, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot %s: %w", name, err)
	}
	return blob, nil
}

// List returns snapshot names in byte order.
func (s *Store) List() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

func (s *Store) Delete(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		if b.Get([]byte(name)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(name))
	})
}
