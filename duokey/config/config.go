// Package config loads the TOML configuration of the duokey command.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/TheusHen/duokey/duokey/discovery"
	"github.com/TheusHen/duokey/duokey/discovery/boltstore"
	"github.com/TheusHen/duokey/duokey/discovery/memory"
	"github.com/TheusHen/duokey/duokey/exchange"
	"github.com/TheusHen/duokey/duokey/identity"
	"github.com/TheusHen/duokey/duokey/log"
	"github.com/TheusHen/duokey/duokey/transport/quic"
)

const (
	defaultLogLevel = "info"
	defaultListen   = "127.0.0.1:4242"
)

// Identity holds either two primes to derive a key pair from, or the key
// pair itself.
type Identity struct {
	Name string `toml:",omitempty"`

	P int `toml:",omitempty"`
	Q int `toml:",omitempty"`

	Modulus         int `toml:",omitempty"`
	PublicExponent  int `toml:",omitempty"`
	PrivateExponent int `toml:",omitempty"`
}

func (i *Identity) hasPrimes() bool { return i.P != 0 || i.Q != 0 }

func (i *Identity) hasKeys() bool {
	return i.Modulus != 0 || i.PublicExponent != 0 || i.PrivateExponent != 0
}

// Empty reports whether no key material is configured.
func (i *Identity) Empty() bool { return !i.hasPrimes() && !i.hasKeys() }

func (i *Identity) validate() error {
	switch {
	case i.hasPrimes() && i.hasKeys():
		return errors.New("config: Identity sets both primes and a key pair")
	case i.hasPrimes():
		if i.P < 2 || i.Q < 2 {
			return errors.New("config: Identity needs both P and Q")
		}
	case i.hasKeys():
		kp := identity.KeyPair{Modulus: i.Modulus, PublicExponent: i.PublicExponent, PrivateExponent: i.PrivateExponent}
		if err := kp.Validate(); err != nil {
			return fmt.Errorf("config: Identity: %w", err)
		}
	}
	return nil
}

// KeyPair derives or returns the configured key pair.
func (i *Identity) KeyPair() (identity.KeyPair, error) {
	if i.hasPrimes() {
		return identity.GenerateKeyPair(i.P, i.Q)
	}
	if i.Empty() {
		return identity.KeyPair{}, errors.New("config: Identity has no key material")
	}
	kp := identity.KeyPair{Modulus: i.Modulus, PublicExponent: i.PublicExponent, PrivateExponent: i.PrivateExponent}
	return kp, kp.Validate()
}

// Exchange is the key agreement group and the draw limit for private
// integers.
type Exchange struct {
	Prime    int
	Base     int
	KeyLimit int
}

func (e *Exchange) applyDefaults() {
	if e.Prime == 0 {
		e.Prime = exchange.DefaultPrime
	}
	if e.Base == 0 {
		e.Base = exchange.DefaultBase
	}
	if e.KeyLimit == 0 {
		e.KeyLimit = exchange.DefaultKeyLimit
	}
}

func (e *Exchange) validate() error {
	if e.Prime < 2 {
		return fmt.Errorf("config: Exchange.Prime %d is not a prime", e.Prime)
	}
	if e.Base <= 0 {
		return fmt.Errorf("config: Exchange.Base %d must be positive", e.Base)
	}
	if e.KeyLimit < 0 {
		return fmt.Errorf("config: Exchange.KeyLimit %d must not be negative", e.KeyLimit)
	}
	return nil
}

type Network struct {
	Listen           string
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	KeepAlive        time.Duration
	// RequireKnown refuses peers missing from the directory.
	RequireKnown bool
	// Learn records peers that are not in the directory yet.
	Learn bool
	// Directory is a bbolt file persisting known peers. Empty keeps the
	// directory in memory.
	Directory string
}

func (n *Network) applyDefaults() {
	if n.Listen == "" {
		n.Listen = defaultListen
	}
	if n.HandshakeTimeout == 0 {
		n.HandshakeTimeout = quic.DefaultHandshakeIdleTimeout
	}
	if n.IdleTimeout == 0 {
		n.IdleTimeout = quic.DefaultMaxIdleTimeout
	}
}

func (n *Network) validate() error {
	if n.HandshakeTimeout < 0 || n.IdleTimeout < 0 || n.KeepAlive < 0 {
		return errors.New("config: Network timeouts must not be negative")
	}
	if n.Learn && n.RequireKnown {
		return errors.New("config: Network.Learn has no effect with RequireKnown")
	}
	return nil
}

type Logging struct {
	Disable bool
	Level   string
	JSON    bool
}

// Peer is a directory entry: a public key known by name, optionally with
// the address it listens on.
type Peer struct {
	Name     string
	Modulus  int
	Exponent int
	Addr     string
}

func (p *Peer) entry() (discovery.Entry, error) {
	if p.Name == "" {
		return discovery.Entry{}, errors.New("config: Peer without Name")
	}
	pk := identity.PublicKey{Modulus: p.Modulus, Exponent: p.Exponent}
	if err := pk.Validate(); err != nil {
		return discovery.Entry{}, fmt.Errorf("config: Peer %q: %w", p.Name, err)
	}
	var addr netip.AddrPort
	if p.Addr != "" {
		var err error
		if addr, err = netip.ParseAddrPort(p.Addr); err != nil {
			return discovery.Entry{}, fmt.Errorf("config: Peer %q: %w", p.Name, err)
		}
	}
	return discovery.NewEntry(p.Name, pk, addr), nil
}

// Config is the top level duokey configuration.
type Config struct {
	Identity Identity
	Exchange Exchange
	Network  Network
	Logging  Logging
	Peers    []Peer
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := new(Config)
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	cfg.Exchange.applyDefaults()
	cfg.Network.applyDefaults()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
}

// Validate returns nil if the config is valid
// and otherwise an error is returned.
func (cfg *Config) Validate() error {
	if err := cfg.Identity.validate(); err != nil {
		return err
	}
	if err := cfg.Exchange.validate(); err != nil {
		return err
	}
	if err := cfg.Network.validate(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("config: Logging.Level: %w", err)
	}
	names := make(map[string]struct{}, len(cfg.Peers))
	for i := range cfg.Peers {
		if _, err := cfg.Peers[i].entry(); err != nil {
			return err
		}
		if _, dup := names[cfg.Peers[i].Name]; dup {
			return fmt.Errorf("config: Peer %q listed twice", cfg.Peers[i].Name)
		}
		names[cfg.Peers[i].Name] = struct{}{}
	}
	return nil
}

// Group is the configured key agreement group.
func (cfg *Config) Group() exchange.Group {
	return exchange.Group{Prime: cfg.Exchange.Prime, Base: cfg.Exchange.Base}
}

func (cfg *Config) Transport() quic.Config {
	return quic.Config{
		HandshakeIdleTimeout: cfg.Network.HandshakeTimeout,
		MaxIdleTimeout:       cfg.Network.IdleTimeout,
		KeepAlivePeriod:      cfg.Network.KeepAlive,
	}
}

// Logger builds the configured logger writing to stderr.
func (cfg *Config) Logger() (log.Logger, error) {
	if cfg.Logging.Disable {
		return log.Nop(), nil
	}
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return log.New(nil, level, cfg.Logging.JSON), nil
}

// Directory opens the configured peer directory and adds every configured
// peer to it. The caller must Close it.
func (cfg *Config) Directory() (discovery.Store, error) {
	var (
		dir discovery.Store = memory.New()
		err error
	)
	if cfg.Network.Directory != "" {
		if dir, err = boltstore.New(cfg.Network.Directory); err != nil {
			return nil, err
		}
	}
	for i := range cfg.Peers {
		e, err := cfg.Peers[i].entry()
		if err == nil {
			err = dir.Announce(e)
		}
		if err != nil {
			dir.Close()
			return nil, err
		}
	}
	return dir, nil
}

// Parse parses, defaults and validates the provided buffer b as a config
// file body.
func Parse(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads, parses and validates the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}
