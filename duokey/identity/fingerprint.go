package identity

import (
	"encoding/binary"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

const fingerprintDomain = "duokey-public-key"

var ErrInvalidFingerprint = errors.New("identity: invalid fingerprint")

// Fingerprint is the stable identifier of a public key:
// BLAKE2b-256(domain || modulus || exponent), integers big endian.
type Fingerprint [32]byte

// Fingerprint returns the identifier of pk.
func (pk PublicKey) Fingerprint() Fingerprint {
	buf := make([]byte, 0, len(fingerprintDomain)+16)
	buf = append(buf, fingerprintDomain...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(pk.Modulus))
	buf = binary.BigEndian.AppendUint64(buf, uint64(pk.Exponent))
	return Fingerprint(blake2b.Sum256(buf))
}

func ParseFingerprintHex(s string) (Fingerprint, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, err
	}
	if len(b) != len(Fingerprint{}) {
		return Fingerprint{}, ErrInvalidFingerprint
	}
	var fp Fingerprint
	copy(fp[:], b)
	return fp, nil
}

func (fp Fingerprint) String() string {
	return hex.EncodeToString(fp[:])
}

// Proof spells the fingerprint with the letters a..p, one per nibble.
// Every letter has an alphabet index below 16, so the text survives a
// sign/verify round trip under any modulus greater than 16.
func (fp Fingerprint) Proof() string {
	out := make([]byte, 0, 2*len(fp))
	for _, b := range fp {
		out = append(out, 'a'+b>>4, 'a'+b&0x0f)
	}
	return string(out)
}
