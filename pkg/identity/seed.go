package identity

import (
	"crypto/sha512"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordSeparator = "///"
	seedRounds        = 2048
)

// seedFromPhrase returns the 32-byte mini secret for phrase. Mnemonics use the
// substrate-bip39 scheme: PBKDF2-SHA512 over the mnemonic entropy (not the words).
func seedFromPhrase(phrase string) ([]byte, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil, fmt.Errorf("%w: empty phrase", ErrInvalidPhrase)
	}

	if strings.HasPrefix(phrase, "0x") {
		seed, err := hexutil.Decode(phrase)
		if err != nil || len(seed) != 32 {
			return nil, fmt.Errorf("%w: hex seed must be 32 bytes", ErrInvalidPhrase)
		}
		return seed, nil
	}

	password := ""
	if i := strings.Index(phrase, passwordSeparator); i >= 0 {
		password = phrase[i+len(passwordSeparator):]
		phrase = strings.TrimSpace(phrase[:i])
	}
	mnemonic := strings.Join(strings.Fields(phrase), " ")

	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: not a valid bip39 mnemonic", ErrInvalidPhrase)
	}
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPhrase, err)
	}
	defer wipe(entropy)

	full := pbkdf2.Key(entropy, []byte("mnemonic"+password), seedRounds, 64, sha512.New)
	seed := append([]byte{}, full[:32]...)
	wipe(full)
	return seed, nil
}
