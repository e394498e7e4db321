package identity

// Outcome tells whether a received message passed the authenticity check.
type Outcome uint8

const (
	OutcomeUnauthenticated Outcome = iota
	OutcomeAuthenticated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "AUTHENTICATED"
	default:
		return "UNAUTHENTICATED"
	}
}

// Result is the outcome of ReceiveMessage. An unauthenticated result never
// carries text, so no plaintext can be mistaken for a failure marker.
// The zero value is unauthenticated.
type Result struct {
	outcome   Outcome
	plaintext string
	remote    bool
}

// Authenticated wraps a plaintext that passed the authenticity check.
func Authenticated(plaintext string) Result {
	return Result{outcome: OutcomeAuthenticated, plaintext: plaintext}
}

// Unauthenticated is the result of a failed authenticity check.
func Unauthenticated() Result {
	return Result{outcome: OutcomeUnauthenticated}
}

// Acknowledged is an authenticated result reported by a remote receiver.
// The plaintext stayed with the receiver, so Plaintext reports false.
func Acknowledged() Result {
	return Result{outcome: OutcomeAuthenticated, remote: true}
}

func (r Result) Outcome() Outcome { return r.outcome }

func (r Result) Authenticated() bool { return r.outcome == OutcomeAuthenticated }

// Remote reports whether the result was decided by a remote receiver.
func (r Result) Remote() bool { return r.remote }

// Plaintext returns the decrypted text and true, or "" and false when the
// message was not authenticated or was decrypted elsewhere.
func (r Result) Plaintext() (string, bool) {
	if r.outcome != OutcomeAuthenticated || r.remote {
		return "", false
	}
	return r.plaintext, true
}
