package identity

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPhrase  = "model action demand click genius pizza pumpkin develop muffin acquire supreme expand"
	devPhrase   = "bottom drive obey lake curtain smoke basket hold race lonely fit walk"
	testMessage = "0xa00f94828aebefb421b1180ffe372e0fd5fbdc90bc7348c1ad4a0819910f1dfe"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	message := hexutil.MustDecode(testMessage)

	for _, alg := range SupportedAlgorithms() {
		t.Run(alg.String(), func(t *testing.T) {
			id, err := Derive(testPhrase, alg, "know pair")
			require.NoError(t, err)

			sig, err := id.Sign(message)
			require.NoError(t, err)
			assert.True(t, id.Verify(message, sig))
			assert.True(t, Verify(id.Address(), message, sig))

			assert.False(t, Verify(id.Address(), []byte("some other message"), sig))
		})
	}
}

func TestVerifyRejectsSingleBitFlips(t *testing.T) {
	message := hexutil.MustDecode(testMessage)

	for _, alg := range SupportedAlgorithms() {
		t.Run(alg.String(), func(t *testing.T) {
			id, err := Derive(testPhrase, alg, "know pair")
			require.NoError(t, err)
			sig, err := id.Sign(message)
			require.NoError(t, err)

			for i := range sig {
				for _, bit := range []byte{0x01, 0x10, 0x80} {
					tampered := append([]byte{}, sig...)
					tampered[i] ^= bit
					assert.False(t, Verify(id.Address(), message, tampered),
						"byte %d bit %#x accepted", i, bit)
				}
			}
		})
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	for _, alg := range SupportedAlgorithms() {
		first, err := Derive(testPhrase, alg, "a")
		require.NoError(t, err)
		second, err := Derive(testPhrase, alg, "b")
		require.NoError(t, err)

		assert.Equal(t, first.Address(), second.Address(), alg)
		assert.Equal(t, first.PublicKey(), second.PublicKey(), alg)
	}

	ed, err := Derive(testPhrase, AlgorithmEd25519, "")
	require.NoError(t, err)
	sr, err := Derive(testPhrase, AlgorithmSr25519, "")
	require.NoError(t, err)
	assert.NotEqual(t, ed.Address(), sr.Address())
}

func TestDerive_KnownAddresses(t *testing.T) {
	tests := []struct {
		phrase  string
		alg     Algorithm
		address string
	}{
		// root key of the Substrate development phrase
		{devPhrase, AlgorithmSr25519, "5DfhGyQdFobKM8NsWvEeAKk5EQQgYe9AydgJ7rMB6E1EqRzV"},
		{testPhrase, AlgorithmEd25519, "5H1HaCP2oXJwTP35esrDTqpeuqqJVnuyzEyAAYahbwmkBEHz"},
	}
	for _, tt := range tests {
		t.Run(tt.alg.String(), func(t *testing.T) {
			id, err := Derive(tt.phrase, tt.alg, "")
			require.NoError(t, err)
			assert.Equal(t, tt.address, id.Address())
		})
	}
}

func TestEd25519SignaturesAreDeterministic(t *testing.T) {
	id, err := Derive(testPhrase, AlgorithmEd25519, "")
	require.NoError(t, err)

	a, err := id.Sign([]byte("msg"))
	require.NoError(t, err)
	b, err := id.Sign([]byte("msg"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeriveWhitespaceAndPassword(t *testing.T) {
	plain, err := Derive(devPhrase, AlgorithmEd25519, "")
	require.NoError(t, err)

	spaced, err := Derive("  bottom drive obey lake   curtain smoke basket hold race lonely fit walk ", AlgorithmEd25519, "")
	require.NoError(t, err)
	assert.Equal(t, plain.Address(), spaced.Address())

	withPassword, err := Derive(devPhrase+"///secret", AlgorithmEd25519, "")
	require.NoError(t, err)
	assert.NotEqual(t, plain.Address(), withPassword.Address())
}

func TestDeriveFromHexSeed(t *testing.T) {
	seed := "0x" + "11223344556677881122334455667788112233445566778811223344556677ff"
	a, err := Derive(seed, AlgorithmSr25519, "")
	require.NoError(t, err)
	b, err := Derive(seed, AlgorithmSr25519, "")
	require.NoError(t, err)
	assert.Equal(t, a.Address(), b.Address())

	_, err = Derive("0x1234", AlgorithmEd25519, "")
	assert.ErrorIs(t, err, ErrInvalidPhrase)
}

func TestDeriveInvalidPhrase(t *testing.T) {
	for _, phrase := range []string{
		"",
		"   ",
		"not a real recovery phrase at all",
		"model action demand click genius pizza pumpkin develop muffin acquire supreme",
		"model action demand click genius pizza pumpkin develop muffin acquire supreme zzzz",
	} {
		_, err := Derive(phrase, AlgorithmEd25519, "")
		assert.ErrorIs(t, err, ErrInvalidPhrase, "%q", phrase)
	}
}

func TestDeriveUnsupportedAlgorithm(t *testing.T) {
	_, err := Derive(testPhrase, Algorithm("rsa"), "")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm(" ED25519 ")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmEd25519, alg)

	alg, err = ParseAlgorithm("secp256k1")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmECDSA, alg)

	_, err = ParseAlgorithm("ethereum")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestSelfCheck(t *testing.T) {
	message := hexutil.MustDecode(testMessage)

	for _, alg := range SupportedAlgorithms() {
		id, err := Derive(testPhrase, alg, "know pair")
		require.NoError(t, err)

		signed, err := id.SelfCheck(message, "")
		require.NoError(t, err, alg)
		assert.Equal(t, id.Address(), signed.Signer)
		assert.Equal(t, message, signed.Message)
		assert.True(t, Verify(signed.Signer, signed.Message, signed.Signature))
	}
}

func TestSelfCheckFailsForMismatchedAlgorithm(t *testing.T) {
	message := hexutil.MustDecode(testMessage)

	sr, err := Derive(testPhrase, AlgorithmSr25519, "")
	require.NoError(t, err)
	ed, err := Derive(testPhrase, AlgorithmEd25519, "")
	require.NoError(t, err)

	_, err = ed.SelfCheck(message, sr.Address())
	require.ErrorIs(t, err, ErrSignatureSelfCheckFailed)
}

func TestVerifyMalformedInput(t *testing.T) {
	id, err := Derive(testPhrase, AlgorithmEd25519, "")
	require.NoError(t, err)
	sig, err := id.Sign([]byte("m"))
	require.NoError(t, err)

	assert.False(t, Verify("not-an-address", []byte("m"), sig))
	assert.False(t, Verify(id.Address(), []byte("m"), nil))
	assert.False(t, Verify(id.Address(), []byte("m"), sig[:63]))
	assert.False(t, Verify(id.Address(), []byte("m"), append(sig, 0, 0)))
	assert.False(t, Verify("", nil, nil))
}
