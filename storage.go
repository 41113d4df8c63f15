package main

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/sha3"

	"github.com/blocknetprivacy/blocksim/chain"
	"github.com/blocknetprivacy/blocksim/protocol/params"
)

// Bucket names
var (
	bucketBlocks  = []byte("blocks")  // block id -> block JSON
	bucketMempool = []byte("mempool") // sequence (big-endian) -> transaction JSON
	bucketMeta    = []byte("meta")    // snapshot metadata

	metaKeyNetwork    = []byte("network")
	metaKeyVersion    = []byte("version")
	metaKeyGenesis    = []byte("genesis")
	metaKeyTips       = []byte("tips")
	metaKeySelected   = []byte("selected")
	metaKeyDifficulty = []byte("difficulty")
	metaKeyChecksum   = []byte("checksum")
)

var ErrSnapshotCorrupt = errors.New("snapshot checksum mismatch")

// Snapshot is the persisted session state. Every identifier and hash must
// survive a Save/Load round trip byte for byte.
type Snapshot struct {
	Blocks     chain.BlockMap      `json:"blocks"`
	Tips       chain.Tips          `json:"tips"`
	GenesisID  string              `json:"genesisId"`
	Selected   string              `json:"selectedTipId"`
	Difficulty int                 `json:"difficulty"`
	Mempool    []chain.Transaction `json:"mempool"`
}

// Checksum is SHA3-256 over the snapshot's JSON encoding, with nil and
// empty lists treated alike. Map keys are sorted by encoding/json, so the
// encoding is stable.
func (s *Snapshot) Checksum() (string, error) {
	norm := *s
	if norm.Tips == nil {
		norm.Tips = chain.Tips{}
	}
	if norm.Mempool == nil {
		norm.Mempool = []chain.Transaction{}
	}
	data, err := json.Marshal(&norm)
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Storage wraps bbolt for snapshot persistence
type Storage struct {
	db *bolt.DB
}

func seqKey(n uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, n)
	return key
}

// NewStorage opens or creates the snapshot database
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultDBFilename)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		NoSync: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBlocks, bucketMempool, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to create buckets: %w (additionally failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// ============================================================================
// Snapshot Operations
// ============================================================================

// Save replaces the stored snapshot in a single transaction.
func (s *Storage) Save(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot save nil snapshot")
	}
	checksum, err := snap.Checksum()
	if err != nil {
		return fmt.Errorf("failed to checksum snapshot: %w", err)
	}
	tipsData, err := json.Marshal(snap.Tips)
	if err != nil {
		return fmt.Errorf("failed to encode tips: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBlocks, bucketMempool} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		blocks := tx.Bucket(bucketBlocks)
		for id, b := range snap.Blocks {
			data, err := json.Marshal(b)
			if err != nil {
				return fmt.Errorf("failed to encode block %s: %w", id, err)
			}
			if err := blocks.Put([]byte(id), data); err != nil {
				return err
			}
		}

		mempool := tx.Bucket(bucketMempool)
		for i, t := range snap.Mempool {
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("failed to encode transaction %s: %w", t.ID, err)
			}
			if err := mempool.Put(seqKey(uint64(i)), data); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMeta)
		for k, v := range map[string][]byte{
			string(metaKeyNetwork):    []byte(params.NetworkID),
			string(metaKeyVersion):    []byte(strconv.FormatUint(uint64(params.SnapshotVersion), 10)),
			string(metaKeyGenesis):    []byte(snap.GenesisID),
			string(metaKeyTips):       tipsData,
			string(metaKeySelected):   []byte(snap.Selected),
			string(metaKeyDifficulty): []byte(strconv.Itoa(snap.Difficulty)),
			string(metaKeyChecksum):   []byte(checksum),
		} {
			if err := meta.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads the stored snapshot. found is false for an empty database.
func (s *Storage) Load() (snap *Snapshot, found bool, err error) {
	var stored string

	err = s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta.Get(metaKeyChecksum) == nil {
			return nil
		}

		if network := string(meta.Get(metaKeyNetwork)); network != params.NetworkID {
			return fmt.Errorf("snapshot belongs to network %q, want %q", network, params.NetworkID)
		}
		version, err := strconv.ParseUint(string(meta.Get(metaKeyVersion)), 10, 32)
		if err != nil || uint32(version) != params.SnapshotVersion {
			return fmt.Errorf("unsupported snapshot version %q", meta.Get(metaKeyVersion))
		}

		snap = &Snapshot{
			Blocks:    make(chain.BlockMap),
			GenesisID: string(meta.Get(metaKeyGenesis)),
			Selected:  string(meta.Get(metaKeySelected)),
		}
		if snap.Difficulty, err = strconv.Atoi(string(meta.Get(metaKeyDifficulty))); err != nil {
			return fmt.Errorf("invalid difficulty metadata: %w", err)
		}
		if err := json.Unmarshal(meta.Get(metaKeyTips), &snap.Tips); err != nil {
			return fmt.Errorf("invalid tips metadata: %w", err)
		}
		stored = string(meta.Get(metaKeyChecksum))

		if err := tx.Bucket(bucketBlocks).ForEach(func(k, v []byte) error {
			b := &chain.Block{}
			if err := json.Unmarshal(v, b); err != nil {
				return fmt.Errorf("invalid block %s: %w", k, err)
			}
			if b.ID != string(k) {
				return fmt.Errorf("block stored under %s has id %s", k, b.ID)
			}
			snap.Blocks[b.ID] = b
			return nil
		}); err != nil {
			return err
		}

		return tx.Bucket(bucketMempool).ForEach(func(_, v []byte) error {
			var t chain.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("invalid mempool transaction: %w", err)
			}
			snap.Mempool = append(snap.Mempool, t)
			return nil
		})
	})
	if err != nil || snap == nil {
		return nil, false, err
	}

	got, err := snap.Checksum()
	if err != nil {
		return nil, false, err
	}
	if got != stored {
		return nil, false, fmt.Errorf("%w: stored %s, computed %s", ErrSnapshotCorrupt, stored, got)
	}
	return snap, true, nil
}

// Clear removes the stored snapshot.
func (s *Storage) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBlocks, bucketMempool, bucketMeta} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}
