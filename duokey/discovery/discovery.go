// Package discovery maps identity fingerprints to public keys and
// addresses. Sessions consult it to pin the keys peers announce.
package discovery

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"sort"

	"github.com/TheusHen/duokey/duokey/identity"
)

var (
	ErrNotFound            = errors.New("discovery: peer not found")
	ErrFingerprintMismatch = errors.New("discovery: fingerprint does not match public key")
)

// Entry is what the directory knows about one identity. Addr may be the
// zero value when the identity is only known by key.
type Entry struct {
	Name        string
	Fingerprint identity.Fingerprint
	PublicKey   identity.PublicKey
	Addr        netip.AddrPort
}

// NewEntry derives the fingerprint of pk.
func NewEntry(name string, pk identity.PublicKey, addr netip.AddrPort) Entry {
	return Entry{Name: name, Fingerprint: pk.Fingerprint(), PublicKey: pk, Addr: addr}
}

// Validate checks the key and that the fingerprint belongs to it.
func (e Entry) Validate() error {
	if err := e.PublicKey.Validate(); err != nil {
		return err
	}
	if e.PublicKey.Fingerprint() != e.Fingerprint {
		return fmt.Errorf("%w: %s", ErrFingerprintMismatch, e.Fingerprint)
	}
	return nil
}

// Resolver is a generic directory interface.
// Implementations can be backed by a static file, a shared store, etc.
type Resolver interface {
	Announce(e Entry) error
	Lookup(fp identity.Fingerprint) (Entry, error)
	List() ([]Entry, error)
}

// Store is a Resolver holding resources that Close releases.
type Store interface {
	Resolver
	Close() error
}

// SortEntries orders entries by name, then fingerprint.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return bytes.Compare(entries[i].Fingerprint[:], entries[j].Fingerprint[:]) < 0
	})
}
