package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TheusHen/duokey/duokey/identity"
)

const (
	// MinAnnounceModulus is the smallest modulus that can carry a proof.
	MinAnnounceModulus = 17
	// MaxAnnounceModulus is the largest modulus whose signatures always
	// map back to a symbol.
	MaxAnnounceModulus = 81
)

var (
	ErrModulusTooSmall         = errors.New("protocol: modulus too small to sign an announcement")
	ErrModulusTooLarge         = errors.New("protocol: modulus too large for the alphabet")
	ErrAnnounceFingerprint     = errors.New("protocol: announced fingerprint does not match public key")
	ErrAnnounceBadProof        = errors.New("protocol: announcement proof does not verify")
	ErrAnnounceMissingIdentity = errors.New("protocol: announcement without identity")
)

// Announce binds a stream to an identity's public key. Proof is the
// identity's signature of the fingerprint spelled by Fingerprint.Proof.
type Announce struct {
	Name        string `json:"name,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Modulus     int    `json:"modulus"`
	Exponent    int    `json:"exponent"`
	Proof       string `json:"proof"`
}

// NewAnnounce builds and signs the announcement of id.
func NewAnnounce(id *identity.Identity) (Announce, error) {
	if id == nil {
		return Announce{}, ErrAnnounceMissingIdentity
	}
	pk, err := id.PublicKey()
	if err != nil {
		return Announce{}, err
	}
	if err := checkModulus(pk.Modulus); err != nil {
		return Announce{}, err
	}
	fp := pk.Fingerprint()
	proof, err := id.SignMessage(fp.Proof())
	if err != nil {
		return Announce{}, err
	}
	return Announce{
		Name:        id.Name(),
		Fingerprint: fp.String(),
		Modulus:     pk.Modulus,
		Exponent:    pk.Exponent,
		Proof:       proof,
	}, nil
}

// PublicKey returns the announced key, so an Announce can stand in for the
// remote identity.
func (a Announce) PublicKey() (identity.PublicKey, error) {
	pk := identity.PublicKey{Modulus: a.Modulus, Exponent: a.Exponent}
	if err := pk.Validate(); err != nil {
		return identity.PublicKey{}, err
	}
	return pk, nil
}

func (a Announce) Verify() error {
	pk, err := a.PublicKey()
	if err != nil {
		return err
	}
	if err := checkModulus(pk.Modulus); err != nil {
		return err
	}
	claimed, err := identity.ParseFingerprintHex(a.Fingerprint)
	if err != nil {
		return err
	}
	derived := pk.Fingerprint()
	if derived != claimed {
		return ErrAnnounceFingerprint
	}
	if !identity.ConfirmAuthenticity(derived.Proof(), a.Proof, pk.Exponent, pk.Modulus) {
		return ErrAnnounceBadProof
	}
	return nil
}

func checkModulus(n int) error {
	switch {
	case n < MinAnnounceModulus:
		return fmt.Errorf("%w: %d", ErrModulusTooSmall, n)
	case n > MaxAnnounceModulus:
		return fmt.Errorf("%w: %d", ErrModulusTooLarge, n)
	}
	return nil
}

func EncodeAnnounce(a Announce) ([]byte, error) {
	return json.Marshal(a)
}

func DecodeAnnounce(b []byte) (Announce, error) {
	var a Announce
	if err := json.Unmarshal(b, &a); err != nil {
		return Announce{}, err
	}
	if a.Fingerprint == "" {
		return Announce{}, fmt.Errorf("protocol: announcement missing fingerprint")
	}
	return a, nil
}
