package metadata_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Layr-Labs/ink-verifier/pkg/metadata"
	"github.com/Layr-Labs/ink-verifier/pkg/scale"
	"github.com/Layr-Labs/ink-verifier/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Polkasign(t *testing.T) {
	md, err := metadata.Parse(testutil.PolkasignMetadata())
	require.NoError(t, err)

	assert.Equal(t, "V3", md.Version)
	assert.Equal(t, "polkasign", md.Contract.Name)
	assert.Len(t, md.Constructors, 1)
	assert.Equal(t, []string{
		"check_sign",
		"create_agreement",
		"query_agreement_by_collaborator",
		"query_agreement_by_creator",
		"query_agreement_by_id",
	}, md.MessageNames())

	msg, ok := md.Message("check_sign")
	require.True(t, ok)
	assert.Equal(t, "0x5f8c8c05", msg.SelectorHex())
	require.Len(t, msg.Args, 2)
	assert.Equal(t, "msg", msg.Args[0].Label)
	assert.Equal(t, scale.TypeID(1), msg.Args[0].Type)
	require.NotNil(t, msg.ReturnType)
	assert.True(t, msg.Mutates)

	create, ok := md.Message("create_agreement")
	require.True(t, ok)
	assert.True(t, create.Mutates)

	// the bitsequence entry is unused by any message and is skipped
	_, err = md.Registry.Lookup(12)
	assert.ErrorIs(t, err, scale.ErrUnknownType)
}

func TestMessage_Lookup(t *testing.T) {
	md, err := metadata.Parse(testutil.PolkasignMetadata())
	require.NoError(t, err)

	for _, name := range []string{"check_sign", "checkSign", "CheckSign", "queryAgreementByCreator"} {
		_, ok := md.Message(name)
		assert.True(t, ok, name)
	}
	_, ok := md.Message("transfer")
	assert.False(t, ok)
}

func TestParse_Flat(t *testing.T) {
	doc := `{
		"version": 5,
		"contract": {"name": "flipper", "version": "5.0.0"},
		"spec": {"constructors": [], "messages": [
			{"label": "Flipper::get", "selector": "0x2f865bd9", "args": [], "returnType": {"type": 0, "displayName": ["bool"]}, "mutates": false, "payable": false}
		]},
		"types": [{"id": 0, "type": {"def": {"primitive": "bool"}}}]
	}`
	md, err := metadata.Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "V5", md.Version)

	msg, ok := md.Message("get")
	require.True(t, ok)
	assert.Equal(t, "Flipper::get", msg.Label)
}

func TestParse_Legacy(t *testing.T) {
	doc := `{
		"metadataVersion": "0.1.0",
		"spec": {"constructors": [], "messages": [
			{"name": ["get_value"], "selector": "0x1e5ca456", "args": [{"name": "key", "type": {"type": 2}}], "returnType": {"type": 1}, "mutates": false}
		]},
		"types": [
			{"def": {"primitive": "u32"}},
			{"def": {"sequence": {"type": 3}}},
			{"def": {"primitive": "u8"}}
		]
	}`
	md, err := metadata.Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "legacy", md.Version)

	msg, ok := md.Message("get_value")
	require.True(t, ok)
	assert.Equal(t, "key", msg.Args[0].Label)

	def, err := md.Registry.Lookup(msg.Args[0].Type)
	require.NoError(t, err)
	assert.Equal(t, scale.KindSequence, def.Kind)
	assert.Equal(t, scale.TypeID(3), def.Elem)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"V3":`},
		{"no types", `{"V3": {"spec": {"messages": []}}}`},
		{"no spec", `{"V3": {"types": []}}`},
		{"no messages", `{"V3": {"spec": {"messages": []}, "types": []}}`},
		{"bad selector", `{"V3": {"spec": {"messages": [{"label": "a", "selector": "0x01", "args": []}]}, "types": []}}`},
		{"missing label", `{"V3": {"spec": {"messages": [{"selector": "0x01020304", "args": []}]}, "types": []}}`},
		{"duplicate label", `{"V3": {"spec": {"messages": [
			{"label": "a", "selector": "0x01020304", "args": []},
			{"label": "a", "selector": "0x01020305", "args": []}
		]}, "types": []}}`},
		{"dangling arg type", `{"V3": {"spec": {"messages": [{"label": "a", "selector": "0x01020304", "args": [{"label": "x", "type": {"type": 9}}]}]}, "types": []}}`},
		{"dangling nested type", `{"V3": {"spec": {"messages": [{"label": "a", "selector": "0x01020304", "args": [{"label": "x", "type": {"type": 0}}]}]},
			"types": [{"id": 0, "type": {"def": {"sequence": {"type": 4}}}}]}}`},
		{"two def kinds", `{"V3": {"spec": {"messages": [{"label": "a", "selector": "0x01020304", "args": []}]},
			"types": [{"id": 0, "type": {"def": {"primitive": "u8", "sequence": {"type": 0}}}}]}}`},
		{"unknown primitive", `{"V3": {"spec": {"messages": [{"label": "a", "selector": "0x01020304", "args": []}]},
			"types": [{"id": 0, "type": {"def": {"primitive": "f64"}}}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := metadata.Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, metadata.ErrMalformedInterface)
		})
	}
}

func TestLoad(t *testing.T) {
	md, err := metadata.Load(testutil.WritePolkasignMetadata(t))
	require.NoError(t, err)
	assert.Len(t, md.Messages, 5)

	_, err = metadata.Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, metadata.ErrMalformedInterface)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o600))
	_, err = metadata.Load(path)
	assert.ErrorIs(t, err, metadata.ErrMalformedInterface)
}
