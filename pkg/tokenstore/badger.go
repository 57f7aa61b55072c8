package tokenstore

import (
	"errors"

	badger "github.com/dgraph-io/badger/v4"
)

const keyPrefix = "session/"

// Badger is a restart-durable Store backed by a badger database on disk.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the token database in dir.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

func (s *Badger) Load(origin string) (string, error) {
	var token string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + origin))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			token = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Badger) Save(origin, token string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+origin), []byte(token))
	})
}

func (s *Badger) Close() error {
	return s.db.Close()
}
