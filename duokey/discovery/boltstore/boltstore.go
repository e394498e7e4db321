// Package boltstore is a discovery directory persisted in a bbolt
// database, so pinned keys survive restarts.
package boltstore

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/TheusHen/duokey/duokey/discovery"
	"github.com/TheusHen/duokey/duokey/identity"
)

const (
	metadataBucket = "metadata"
	entriesBucket  = "entries"
	versionKey     = "version"
	version        = 0
)

var ErrCorruptEntry = errors.New("boltstore: corrupt entry")

// record is the stored form of an entry, keyed by fingerprint.
type record struct {
	Name     string `cbor:"1,keyasint,omitempty"`
	Modulus  int    `cbor:"2,keyasint"`
	Exponent int    `cbor:"3,keyasint"`
	Addr     string `cbor:"4,keyasint,omitempty"`
}

// Store is a discovery.Store backed by a bbolt database file.
type Store struct {
	db *bolt.DB
}

// New creates (or loads) a directory with the given file name f.
func New(f string) (*Store, error) {
	db, err := bolt.Open(f, 0o600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(entriesBucket)); err != nil {
			return err
		}
		if b := bkt.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != version {
				return fmt.Errorf("boltstore: incompatible version: %v", b)
			}
			return nil
		}
		return bkt.Put([]byte(versionKey), []byte{version})
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Announce adds e, or replaces the entry with the same fingerprint.
func (s *Store) Announce(e discovery.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	rec := record{Name: e.Name, Modulus: e.PublicKey.Modulus, Exponent: e.PublicKey.Exponent}
	if e.Addr.IsValid() {
		rec.Addr = e.Addr.String()
	}
	b, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).Put(e.Fingerprint[:], b)
	})
}

func (s *Store) Lookup(fp identity.Fingerprint) (discovery.Entry, error) {
	var e discovery.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket)).Get(fp[:])
		if b == nil {
			return discovery.ErrNotFound
		}
		var err error
		e, err = decode(fp[:], b)
		return err
	})
	return e, err
}

// List returns every entry ordered by name, then fingerprint.
func (s *Store) List() ([]discovery.Entry, error) {
	var out []discovery.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).ForEach(func(k, v []byte) error {
			e, err := decode(k, v)
			if err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	discovery.SortEntries(out)
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// decode rebuilds an entry and checks it still belongs under key.
func decode(key, b []byte) (discovery.Entry, error) {
	var rec record
	if err := cbor.Unmarshal(b, &rec); err != nil {
		return discovery.Entry{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	var addr netip.AddrPort
	if rec.Addr != "" {
		var err error
		if addr, err = netip.ParseAddrPort(rec.Addr); err != nil {
			return discovery.Entry{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
		}
	}
	e := discovery.NewEntry(rec.Name, identity.PublicKey{Modulus: rec.Modulus, Exponent: rec.Exponent}, addr)
	if string(e.Fingerprint[:]) != string(key) {
		return discovery.Entry{}, fmt.Errorf("%w: fingerprint mismatch", ErrCorruptEntry)
	}
	return e, nil
}
