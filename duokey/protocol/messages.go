package protocol

// EnvelopeMessage carries an asymmetric ciphertext and the sender's
// signature of it.
type EnvelopeMessage struct {
	Ciphertext string `json:"ciphertext"`
	Signature  string `json:"signature"`
}

// VerdictMessage is the receiver's answer to an envelope. The plaintext
// never leaves the receiver.
type VerdictMessage struct {
	Authenticated bool `json:"authenticated"`
}

// PartialKeyMessage opens or answers a key agreement. The answer repeats
// the group it agreed to.
type PartialKeyMessage struct {
	Prime      int `json:"prime"`
	Base       int `json:"base"`
	PartialKey int `json:"partial_key"`
}

type CipherMessage struct {
	Ciphertext string `json:"ciphertext"`
}
