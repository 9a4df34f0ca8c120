package testutil

import (
	_ "embed"
	"os"
	"path/filepath"
	"testing"
)

// polkasignMetadata is a reduced polkasign ABI. Message labels, argument
// shapes, page types and ink! 3 selectors match the deployed contract;
// AgreementInfo keeps a subset of its fields and the source hash is zeroed.
//
//go:embed testdata/polkasign.json
var polkasignMetadata []byte

const (
	// TestPhrase is the recovery phrase used by the polkasign verification script
	TestPhrase = "model action demand click genius pizza pumpkin develop muffin acquire supreme expand"

	// TestMessage is the 32-byte message checked by check_sign
	TestMessage = "0xa00f94828aebefb421b1180ffe372e0fd5fbdc90bc7348c1ad4a0819910f1dfe"

	// ContractAddress is where tests deploy the polkasign simulator
	ContractAddress = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
)

// PolkasignMetadata returns a copy of the polkasign contract metadata
func PolkasignMetadata() []byte {
	out := make([]byte, len(polkasignMetadata))
	copy(out, polkasignMetadata)
	return out
}

// WritePolkasignMetadata writes the metadata into a temp dir and returns its path
func WritePolkasignMetadata(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "polkasign.json")
	if err := os.WriteFile(path, polkasignMetadata, 0o600); err != nil {
		t.Fatalf("Failed to write metadata fixture: %v", err)
	}
	return path
}
