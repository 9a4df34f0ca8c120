// Package metadata parses ink! contract metadata (the JSON "interface description"
// emitted by cargo-contract) into callable messages and a SCALE type registry.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Layr-Labs/ink-verifier/pkg/scale"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrMalformedInterface = errors.New("malformed contract interface")

type Arg struct {
	Label       string
	Type        scale.TypeID
	DisplayName []string
}

type Message struct {
	Label      string
	Selector   [4]byte
	Args       []Arg
	ReturnType *scale.TypeID
	Mutates    bool
	Payable    bool
	Docs       []string
}

func (m *Message) SelectorHex() string {
	return hexutil.Encode(m.Selector[:])
}

type Contract struct {
	Name    string
	Version string
}

// Metadata is the parsed form of a contract interface description. It is not
// modified after Parse returns.
type Metadata struct {
	Version      string
	Contract     Contract
	Constructors []*Message
	Messages     []*Message
	Registry     *scale.Registry
}

func Load(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract metadata %s: %w", path, err)
	}
	return Parse(data)
}

// Parse accepts versioned ({"V3": {...}}), flat (ink! 4/5) and legacy
// (metadataVersion 0.1.0, 1-based type indices) metadata documents.
func Parse(data []byte) (*Metadata, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, malformed("invalid json: %v", err)
	}

	md := &Metadata{Version: "flat"}
	body := top
	for _, key := range []string{"V3", "V2", "V1", "V0"} {
		raw, ok := top[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, malformed("invalid %s section: %v", key, err)
		}
		md.Version = key
		break
	}
	if raw, ok := top["version"]; ok && md.Version == "flat" {
		md.Version = "V" + strings.Trim(string(raw), `"`)
	}
	if _, ok := top["metadataVersion"]; ok && md.Version == "flat" {
		md.Version = "legacy"
	}

	if raw, ok := top["contract"]; ok {
		var c struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		}
		if err := json.Unmarshal(raw, &c); err == nil {
			md.Contract = Contract{Name: c.Name, Version: c.Version}
		}
	}

	rawTypes, ok := body["types"]
	if !ok {
		return nil, malformed("missing types section")
	}
	registry, err := parseTypes(rawTypes)
	if err != nil {
		return nil, err
	}
	md.Registry = registry

	rawSpec, ok := body["spec"]
	if !ok {
		return nil, malformed("missing spec section")
	}
	var spec struct {
		Constructors []rawMessage `json:"constructors"`
		Messages     []rawMessage `json:"messages"`
	}
	if err := json.Unmarshal(rawSpec, &spec); err != nil {
		return nil, malformed("invalid spec: %v", err)
	}
	if len(spec.Messages) == 0 {
		return nil, malformed("contract declares no messages")
	}

	if md.Messages, err = convertMessages(spec.Messages, "message"); err != nil {
		return nil, err
	}
	if md.Constructors, err = convertMessages(spec.Constructors, "constructor"); err != nil {
		return nil, err
	}

	if err := md.validateTypes(); err != nil {
		return nil, err
	}
	return md, nil
}

// Message looks a message up by label. An exact match wins; otherwise the name is
// compared case- and underscore-insensitively, so checkSign finds check_sign.
// Trait-qualified labels (Trait::method) also match on the method part.
func (md *Metadata) Message(name string) (*Message, bool) {
	for _, m := range md.Messages {
		if m.Label == name {
			return m, true
		}
	}

	want := normalize(name)
	var found *Message
	for _, m := range md.Messages {
		label := m.Label
		if normalize(label) != want {
			if i := strings.LastIndex(label, "::"); i < 0 || normalize(label[i+2:]) != want {
				continue
			}
		}
		if found != nil {
			return nil, false
		}
		found = m
	}
	return found, found != nil
}

func (md *Metadata) MessageNames() []string {
	names := make([]string, 0, len(md.Messages))
	for _, m := range md.Messages {
		names = append(names, m.Label)
	}
	sort.Strings(names)
	return names
}

func (md *Metadata) validateTypes() error {
	var roots []scale.TypeID
	for _, m := range append(append([]*Message{}, md.Messages...), md.Constructors...) {
		for _, a := range m.Args {
			roots = append(roots, a.Type)
		}
		if m.ReturnType != nil {
			roots = append(roots, *m.ReturnType)
		}
	}
	if err := md.Registry.ValidateFrom(roots...); err != nil {
		return malformed("%v", err)
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedInterface, fmt.Sprintf(format, args...))
}
