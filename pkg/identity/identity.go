// Package identity derives Substrate-compatible signing keypairs from recovery
// phrases and provides the sign / verify primitives used by the verifier.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Layr-Labs/ink-verifier/pkg/ss58"
)

type Algorithm string

func (a Algorithm) String() string {
	return string(a)
}

const (
	AlgorithmEd25519 Algorithm = "ed25519"
	AlgorithmSr25519 Algorithm = "sr25519"
	AlgorithmECDSA   Algorithm = "ecdsa"
)

var (
	ErrInvalidPhrase            = errors.New("invalid recovery phrase")
	ErrSignatureSelfCheckFailed = errors.New("signature self-check failed")
	ErrUnsupportedAlgorithm     = errors.New("unsupported signing algorithm")
)

// SupportedAlgorithms returns every algorithm Derive accepts.
func SupportedAlgorithms() []Algorithm {
	return []Algorithm{AlgorithmEd25519, AlgorithmSr25519, AlgorithmECDSA}
}

func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case AlgorithmEd25519, AlgorithmSr25519, AlgorithmECDSA:
		return a, nil
	case "secp256k1":
		return AlgorithmECDSA, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}

// keypair is implemented once per signature scheme.
type keypair interface {
	publicKey() []byte
	accountID() []byte
	sign(message []byte) ([]byte, error)
}

// Identity is an in-memory keypair plus its SS58 address. The recovery phrase it
// was derived from is not retained.
type Identity struct {
	algorithm Algorithm
	label     string
	prefix    uint16
	address   string
	keys      keypair
}

// SignedMessage is the product of a successful self-check.
type SignedMessage struct {
	Message   []byte
	Signature []byte
	Signer    string
}

type Option func(*options)

type options struct {
	prefix uint16
}

// WithSS58Prefix selects the network prefix used to render the address.
func WithSS58Prefix(prefix uint16) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// Derive builds the deterministic keypair for (phrase, algorithm). The phrase is a
// BIP-39 mnemonic, optionally suffixed with "///password", or a 0x-prefixed 32-byte seed.
func Derive(phrase string, algorithm Algorithm, label string, opts ...Option) (*Identity, error) {
	o := &options{prefix: ss58.GenericPrefix}
	for _, opt := range opts {
		opt(o)
	}

	seed, err := seedFromPhrase(phrase)
	if err != nil {
		return nil, err
	}
	defer wipe(seed)

	var keys keypair
	switch algorithm {
	case AlgorithmEd25519:
		keys, err = newEd25519Keypair(seed)
	case AlgorithmSr25519:
		keys, err = newSr25519Keypair(seed)
	case AlgorithmECDSA:
		keys, err = newECDSAKeypair(seed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPhrase, err)
	}

	address, err := ss58.Encode(keys.accountID(), o.prefix)
	if err != nil {
		return nil, err
	}

	return &Identity{
		algorithm: algorithm,
		label:     label,
		prefix:    o.prefix,
		address:   address,
		keys:      keys,
	}, nil
}

func (id *Identity) Algorithm() Algorithm { return id.algorithm }
func (id *Identity) Label() string        { return id.label }
func (id *Identity) Address() string      { return id.address }
func (id *Identity) SS58Prefix() uint16   { return id.prefix }

// PublicKey returns a copy of the raw public key (33 bytes for ecdsa, 32 otherwise).
func (id *Identity) PublicKey() []byte {
	return append([]byte{}, id.keys.publicKey()...)
}

// AccountID returns the 32-byte on-chain account id.
func (id *Identity) AccountID() []byte {
	return append([]byte{}, id.keys.accountID()...)
}

func (id *Identity) Sign(message []byte) ([]byte, error) {
	return id.keys.sign(message)
}

func (id *Identity) Verify(message, signature []byte) bool {
	return Verify(id.address, message, signature)
}

// SelfCheck signs message and verifies the signature against address, or against
// the identity's own address when address is empty. It runs before any network use.
func (id *Identity) SelfCheck(message []byte, address string) (*SignedMessage, error) {
	if address == "" {
		address = id.address
	}

	sig, err := id.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureSelfCheckFailed, err)
	}
	if !Verify(address, message, sig) {
		return nil, fmt.Errorf("%w: %s signature by %s does not verify for %s",
			ErrSignatureSelfCheckFailed, id.algorithm, id.address, address)
	}

	return &SignedMessage{
		Message:   append([]byte{}, message...),
		Signature: sig,
		Signer:    id.address,
	}, nil
}

// Verify reports whether signature is a valid signature of message by the account
// encoded in address under any supported scheme. It never panics.
func Verify(address string, message, signature []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	account, _, err := ss58.Decode(address)
	if err != nil {
		return false
	}

	switch len(signature) {
	case 64:
		if len(account) != 32 {
			return false
		}
		return verifyEd25519(account, message, signature) || verifySr25519(account, message, signature)
	case 65:
		return verifyECDSA(account, message, signature)
	default:
		return false
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
