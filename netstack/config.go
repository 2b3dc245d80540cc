package netstack

import (
	"bytes"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

////////////////////////////////////////////////////////////////////////////////
// Configuration.
////////////////////////////////////////////////////////////////////////////////

// Defaults applied to zero Config fields.
const (
	DefaultCapacity    = 64000 // bytes buffered per stream direction
	DefaultRetxTimeout = 1000  // initial RTO in ms
	DefaultMaxRetx     = 8     // consecutive retransmissions before reset
	DefaultMaxPayload  = 1000  // payload bytes per segment
)

// Config carries the tunables of a connection. A zero Config is usable:
// every field falls back to its default. It can be placed next to a
// deployment as YAML and loaded with LoadConfig.
type Config struct {
	// SendCapacity bounds the outbound byte stream.
	SendCapacity int `yaml:"send_capacity"`
	// RecvCapacity bounds reassembly plus the inbound byte stream.
	RecvCapacity int `yaml:"recv_capacity"`
	// RetxTimeout is the initial retransmission timeout in milliseconds.
	RetxTimeout uint64 `yaml:"retx_timeout_ms"`
	// MaxRetxAttempts is how many consecutive retransmissions are tolerated
	// before the connection resets.
	MaxRetxAttempts int `yaml:"max_retx_attempts"`
	// MaxPayloadSize caps the payload of a single segment.
	MaxPayloadSize int `yaml:"max_payload_size"`
	// FixedISN pins the initial sequence number. Leave nil to draw one from
	// crypto/rand; set it for reproducible tests.
	FixedISN *uint32 `yaml:"fixed_isn"`
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() Config {
	return Config{
		SendCapacity:    DefaultCapacity,
		RecvCapacity:    DefaultCapacity,
		RetxTimeout:     DefaultRetxTimeout,
		MaxRetxAttempts: DefaultMaxRetx,
		MaxPayloadSize:  DefaultMaxPayload,
	}
}

// withDefaults backfills zero fields. MaxRetxAttempts of 0 is meaningless
// (the first retransmission would reset the connection), so 0 means default
// there too.
func (c Config) withDefaults() Config {
	if c.SendCapacity == 0 {
		c.SendCapacity = DefaultCapacity
	}
	if c.RecvCapacity == 0 {
		c.RecvCapacity = DefaultCapacity
	}
	if c.RetxTimeout == 0 {
		c.RetxTimeout = DefaultRetxTimeout
	}
	if c.MaxRetxAttempts == 0 {
		c.MaxRetxAttempts = DefaultMaxRetx
	}
	if c.MaxPayloadSize == 0 {
		c.MaxPayloadSize = DefaultMaxPayload
	}
	return c
}

// LoadConfig reads a YAML config file. Unknown fields are rejected so typos
// surface instead of silently falling back to defaults.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

// isn resolves the configured or random initial sequence number.
func (c Config) isn() SeqNum {
	if c.FixedISN != nil {
		return SeqNum(*c.FixedISN)
	}
	return randomISN()
}

// randomISN draws an unpredictable ISN. Guessable sequence numbers let an
// off-path attacker forge segments, so this must not fall back to a weaker
// source.
func randomISN() SeqNum {
	var b [4]byte
	if _, err := cryptoRand.Read(b[:]); err != nil {
		panic("netstack: reading random isn: " + err.Error())
	}
	return SeqNum(binary.BigEndian.Uint32(b[:]))
}
