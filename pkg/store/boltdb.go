package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/atharvakapadnis/ctOS/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketArtifacts = []byte("artifacts")
	bucketInstances = []byte("instances")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "ctos.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketArtifacts,
			bucketInstances,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Artifact operations

func (s *BoltStore) CreateArtifact(artifact *types.Artifact) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		data, err := json.Marshal(artifact)
		if err != nil {
			return err
		}
		return b.Put([]byte(artifact.Tag), data)
	})
}

func (s *BoltStore) GetArtifact(tag string) (*types.Artifact, error) {
	var artifact types.Artifact
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		data := b.Get([]byte(tag))
		if data == nil {
			return fmt.Errorf("artifact %s: %w", tag, ErrNotFound)
		}
		return json.Unmarshal(data, &artifact)
	})
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

func (s *BoltStore) ListArtifacts() ([]*types.Artifact, error) {
	var artifacts []*types.Artifact
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		return b.ForEach(func(k, v []byte) error {
			var artifact types.Artifact
			if err := json.Unmarshal(v, &artifact); err != nil {
				return err
			}
			artifacts = append(artifacts, &artifact)
			return nil
		})
	})
	return artifacts, err
}

func (s *BoltStore) DeleteArtifact(tag string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArtifacts)
		return b.Delete([]byte(tag))
	})
}

// Instance state operations

func (s *BoltStore) SaveInstanceState(state *types.InstanceState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return b.Put([]byte(state.Name), data)
	})
}

func (s *BoltStore) GetInstanceState(name string) (*types.InstanceState, error) {
	var state types.InstanceState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("instance %s: %w", name, ErrNotFound)
		}
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}
