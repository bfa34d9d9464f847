package store

import (
	"context"
	"time"

	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/logging"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	leveldb_errors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore keeps state in an embedded leveldb database.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens or creates the database at path. A corrupted
// database is recovered; a locked one is retried for a short while.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	log := logging.Logger()
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		if leveldb_errors.IsCorrupted(err) {
			log.Warnf("Recovering leveldb store %s", path)
			db, err = leveldb.RecoverFile(path, nil)
		} else if errors.Is(err, storage.ErrLocked) {
			log.Debugf("Another process is accessing leveldb: %s, retrying", path)
			for i := 0; i < 50; i++ {
				time.Sleep(20 * time.Millisecond)
				db, err = leveldb.OpenFile(path, nil)
				if !errors.Is(err, storage.ErrLocked) {
					break
				}
			}
		}
		if err != nil {
			return nil, cstmerr.NewStoreError("failed to open leveldb store", errors.Wrap(err, path))
		}
	}
	return &LevelDBStore{db: db}, nil
}

// NewLevelDBStore opens a store on an arbitrary leveldb storage, e.g. storage.NewMemStorage().
func NewLevelDBStore(stor storage.Storage) (*LevelDBStore, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, cstmerr.NewStoreError("failed to open leveldb store", errors.Wrap(err, ""))
	}
	return &LevelDBStore{db: db}, nil
}

func (l *LevelDBStore) Get(_ context.Context, key string) (string, error) {
	v, err := l.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return "", notFound(key)
		}
		return "", cstmerr.NewStoreError("leveldb get failed", errors.Wrap(err, key))
	}
	return string(v), nil
}

func (l *LevelDBStore) Put(_ context.Context, key, value string) error {
	if err := l.db.Put([]byte(key), []byte(value), nil); err != nil {
		return cstmerr.NewStoreError("leveldb put failed", errors.Wrap(err, key))
	}
	return nil
}

func (l *LevelDBStore) Delete(_ context.Context, key string) error {
	if err := l.db.Delete([]byte(key), nil); err != nil {
		return cstmerr.NewStoreError("leveldb delete failed", errors.Wrap(err, key))
	}
	return nil
}

func (l *LevelDBStore) List(_ context.Context, prefix string) (map[string]string, error) {
	result := make(map[string]string)
	iter := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	for iter.Next() {
		result[string(iter.Key())] = string(iter.Value())
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, cstmerr.NewStoreError("leveldb iteration failed", errors.Wrap(err, ""))
	}
	return result, nil
}

// PutBounded counts and writes inside one leveldb transaction.
func (l *LevelDBStore) PutBounded(_ context.Context, prefix, key, value string, limit int) (bool, error) {
	tr, err := l.db.OpenTransaction()
	if err != nil {
		return false, cstmerr.NewStoreError("leveldb transaction failed", errors.Wrap(err, key))
	}
	count := 0
	iter := tr.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	for iter.Next() {
		count++
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		tr.Discard()
		return false, cstmerr.NewStoreError("leveldb iteration failed", errors.Wrap(err, prefix))
	}
	if count >= limit {
		tr.Discard()
		return false, nil
	}
	if err := tr.Put([]byte(key), []byte(value), nil); err != nil {
		tr.Discard()
		return false, cstmerr.NewStoreError("leveldb put failed", errors.Wrap(err, key))
	}
	if err := tr.Commit(); err != nil {
		return false, cstmerr.NewStoreError("leveldb commit failed", errors.Wrap(err, key))
	}
	return true, nil
}

func (l *LevelDBStore) Close() error {
	return l.db.Close()
}
