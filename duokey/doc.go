// Package duokey provides two toy cryptographic protocols and the plumbing
// to run them between peers.
//
// The identity package implements textbook RSA over a fixed 81 symbol
// alphabet: key pairs derived from two small primes, encryption,
// signatures and an authenticated send/receive exchange. The exchange
// package implements a Diffie-Hellman style agreement on a small shared
// secret and an XOR cipher keyed by it. Neither is secure; both exist to
// show how the pieces fit.
//
// Peer ties an identity to the QUIC transport and the session handshake so
// the same exchanges can run across a network.
package duokey
