package identity

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"fmt"

	"github.com/ChainSafe/go-schnorrkel"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

// signingContext is the schnorrkel transcript label used by Substrate.
var signingContext = []byte("substrate")

type ed25519Keypair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func newEd25519Keypair(seed []byte) (*ed25519Keypair, error) {
	priv := ed25519.NewKeyFromSeed(seed)
	return &ed25519Keypair{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func (k *ed25519Keypair) publicKey() []byte { return k.pub }
func (k *ed25519Keypair) accountID() []byte { return k.pub }

func (k *ed25519Keypair) sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, message), nil
}

func verifyEd25519(pub, message, signature []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub), message, signature)
}

type sr25519Keypair struct {
	secret *schnorrkel.SecretKey
	pub    [32]byte
}

func newSr25519Keypair(seed []byte) (*sr25519Keypair, error) {
	var raw [32]byte
	copy(raw[:], seed)
	defer wipe(raw[:])

	mini, err := schnorrkel.NewMiniSecretKeyFromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("sr25519 mini secret: %w", err)
	}
	secret := mini.ExpandEd25519()
	pub, err := secret.Public()
	if err != nil {
		return nil, fmt.Errorf("sr25519 public key: %w", err)
	}
	return &sr25519Keypair{secret: secret, pub: pub.Encode()}, nil
}

func (k *sr25519Keypair) publicKey() []byte { return k.pub[:] }
func (k *sr25519Keypair) accountID() []byte { return k.pub[:] }

func (k *sr25519Keypair) sign(message []byte) ([]byte, error) {
	sig, err := k.secret.Sign(schnorrkel.NewSigningContext(signingContext, message))
	if err != nil {
		return nil, err
	}
	enc := sig.Encode()
	return enc[:], nil
}

func verifySr25519(pub, message, signature []byte) bool {
	var pk schnorrkel.PublicKey
	var rawPub [32]byte
	copy(rawPub[:], pub)
	if err := pk.Decode(rawPub); err != nil {
		return false
	}

	var sig schnorrkel.Signature
	var rawSig [64]byte
	copy(rawSig[:], signature)
	if err := sig.Decode(rawSig); err != nil {
		return false
	}

	ok, err := pk.Verify(&sig, schnorrkel.NewSigningContext(signingContext, message))
	return err == nil && ok
}

// ecdsaKeypair follows the Substrate ecdsa scheme: secp256k1 over blake2b-256(message),
// 65-byte recoverable signatures, account id = blake2b-256(compressed public key).
type ecdsaKeypair struct {
	priv       *ecdsa.PrivateKey
	compressed []byte
	account    []byte
}

func newECDSAKeypair(seed []byte) (*ecdsaKeypair, error) {
	priv, err := crypto.ToECDSA(seed)
	if err != nil {
		return nil, fmt.Errorf("secp256k1 key: %w", err)
	}
	compressed := crypto.CompressPubkey(&priv.PublicKey)
	account := blake2b.Sum256(compressed)
	return &ecdsaKeypair{
		priv:       priv,
		compressed: compressed,
		account:    account[:],
	}, nil
}

func (k *ecdsaKeypair) publicKey() []byte { return k.compressed }
func (k *ecdsaKeypair) accountID() []byte { return k.account }

func (k *ecdsaKeypair) sign(message []byte) ([]byte, error) {
	digest := blake2b.Sum256(message)
	return crypto.Sign(digest[:], k.priv)
}

func verifyECDSA(account, message, signature []byte) bool {
	sig := append([]byte{}, signature...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	digest := blake2b.Sum256(message)

	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return false
	}
	compressed := crypto.CompressPubkey(pub)
	if !crypto.VerifySignature(compressed, digest[:], sig[:64]) {
		return false
	}

	switch len(account) {
	case 33:
		return string(account) == string(compressed)
	case 32:
		want := blake2b.Sum256(compressed)
		return string(account) == string(want[:])
	default:
		return false
	}
}
