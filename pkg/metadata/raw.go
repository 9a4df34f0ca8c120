package metadata

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Layr-Labs/ink-verifier/pkg/scale"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type rawTypeSpec struct {
	Type        *uint32  `json:"type"`
	DisplayName []string `json:"displayName"`
}

type rawArg struct {
	Label json.RawMessage `json:"label"`
	Name  json.RawMessage `json:"name"`
	Type  rawTypeSpec     `json:"type"`
}

type rawMessage struct {
	Label      json.RawMessage `json:"label"`
	Name       json.RawMessage `json:"name"`
	Selector   string          `json:"selector"`
	Args       []rawArg        `json:"args"`
	ReturnType *rawTypeSpec    `json:"returnType"`
	Mutates    bool            `json:"mutates"`
	Payable    bool            `json:"payable"`
	Docs       []string        `json:"docs"`
}

type rawField struct {
	Name     *string `json:"name"`
	Type     *uint32 `json:"type"`
	TypeName string  `json:"typeName"`
}

type rawVariant struct {
	Name         string     `json:"name"`
	Fields       []rawField `json:"fields"`
	Index        *uint8     `json:"index"`
	Discriminant *uint8     `json:"discriminant"`
}

type rawType struct {
	Path []string                   `json:"path"`
	Def  map[string]json.RawMessage `json:"def"`
}

type rawTypeEntry struct {
	ID   *uint32  `json:"id"`
	Type *rawType `json:"type"`

	// legacy entries carry the definition inline
	Path []string                   `json:"path"`
	Def  map[string]json.RawMessage `json:"def"`
}

// label reads either a string label or the older ["segment", ...] name form.
func label(primary, fallback json.RawMessage) (string, error) {
	for _, raw := range []json.RawMessage{primary, fallback} {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
		var parts []string
		if err := json.Unmarshal(raw, &parts); err == nil {
			return strings.Join(parts, "::"), nil
		}
		return "", fmt.Errorf("label %s is neither a string nor a list", string(raw))
	}
	return "", nil
}

func convertMessages(raws []rawMessage, kind string) ([]*Message, error) {
	out := make([]*Message, 0, len(raws))
	seen := make(map[string]bool, len(raws))

	for i, rm := range raws {
		name, err := label(rm.Label, rm.Name)
		if err != nil {
			return nil, malformed("%s %d: %v", kind, i, err)
		}
		if name == "" {
			return nil, malformed("%s %d has no label", kind, i)
		}
		if seen[name] {
			return nil, malformed("duplicate %s %q", kind, name)
		}
		seen[name] = true

		sel, err := hexutil.Decode(rm.Selector)
		if err != nil || len(sel) != 4 {
			return nil, malformed("%s %q: selector %q is not 4 hex bytes", kind, name, rm.Selector)
		}

		msg := &Message{
			Label:   name,
			Mutates: rm.Mutates,
			Payable: rm.Payable,
			Docs:    rm.Docs,
		}
		copy(msg.Selector[:], sel)

		for j, ra := range rm.Args {
			argName, err := label(ra.Label, ra.Name)
			if err != nil {
				return nil, malformed("%s %q arg %d: %v", kind, name, j, err)
			}
			if ra.Type.Type == nil {
				return nil, malformed("%s %q arg %d has no type", kind, name, j)
			}
			msg.Args = append(msg.Args, Arg{
				Label:       argName,
				Type:        scale.TypeID(*ra.Type.Type),
				DisplayName: ra.Type.DisplayName,
			})
		}

		if rm.ReturnType != nil && rm.ReturnType.Type != nil {
			id := scale.TypeID(*rm.ReturnType.Type)
			msg.ReturnType = &id
		}
		out = append(out, msg)
	}
	return out, nil
}

func parseTypes(data json.RawMessage) (*scale.Registry, error) {
	var entries []rawTypeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, malformed("invalid types section: %v", err)
	}

	registry := scale.NewRegistry()
	for i, e := range entries {
		var (
			id  scale.TypeID
			def rawType
		)
		switch {
		case e.ID != nil && e.Type != nil:
			id, def = scale.TypeID(*e.ID), *e.Type
		case e.Def != nil:
			id, def = scale.TypeID(i+1), rawType{Path: e.Path, Def: e.Def}
		default:
			return nil, malformed("type entry %d has no definition", i)
		}

		td, err := convertDef(id, def)
		if err != nil {
			return nil, malformed("type %d: %v", id, err)
		}
		if td == nil {
			// unsupported shapes only fail if a message reaches them
			continue
		}
		if err := registry.Add(td); err != nil {
			return nil, malformed("%v", err)
		}
	}
	return registry, nil
}

func convertDef(id scale.TypeID, rt rawType) (*scale.TypeDef, error) {
	if len(rt.Def) != 1 {
		return nil, fmt.Errorf("expected exactly one definition kind, got %d", len(rt.Def))
	}

	td := &scale.TypeDef{ID: id, Path: rt.Path}
	for kind, raw := range rt.Def {
		switch kind {
		case "primitive":
			td.Kind = scale.KindPrimitive
			if err := json.Unmarshal(raw, &td.Primitive); err != nil {
				return nil, err
			}
		case "composite":
			var c struct {
				Fields []rawField `json:"fields"`
			}
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, err
			}
			fields, err := convertFields(c.Fields)
			if err != nil {
				return nil, err
			}
			td.Kind, td.Fields = scale.KindComposite, fields
		case "variant":
			var v struct {
				Variants []rawVariant `json:"variants"`
			}
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			td.Kind = scale.KindVariant
			for pos, rv := range v.Variants {
				fields, err := convertFields(rv.Fields)
				if err != nil {
					return nil, fmt.Errorf("variant %s: %w", rv.Name, err)
				}
				index := uint8(pos)
				if rv.Index != nil {
					index = *rv.Index
				} else if rv.Discriminant != nil {
					index = *rv.Discriminant
				}
				td.Variants = append(td.Variants, scale.Variant{Name: rv.Name, Index: index, Fields: fields})
			}
		case "sequence", "compact":
			var s struct {
				Type *uint32 `json:"type"`
			}
			if err := json.Unmarshal(raw, &s); err != nil || s.Type == nil {
				return nil, fmt.Errorf("%s without element type", kind)
			}
			td.Elem = scale.TypeID(*s.Type)
			td.Kind = scale.KindSequence
			if kind == "compact" {
				td.Kind = scale.KindCompact
			}
		case "array":
			var a struct {
				Len  uint32  `json:"len"`
				Type *uint32 `json:"type"`
			}
			if err := json.Unmarshal(raw, &a); err != nil || a.Type == nil {
				return nil, fmt.Errorf("array without element type")
			}
			td.Kind, td.Len, td.Elem = scale.KindArray, a.Len, scale.TypeID(*a.Type)
		case "tuple":
			var elems []uint32
			if err := json.Unmarshal(raw, &elems); err != nil {
				return nil, err
			}
			td.Kind = scale.KindTuple
			for _, e := range elems {
				td.Tuple = append(td.Tuple, scale.TypeID(e))
			}
		default:
			return nil, nil
		}
	}
	return td, nil
}

func convertFields(raws []rawField) ([]scale.Field, error) {
	fields := make([]scale.Field, 0, len(raws))
	for i, rf := range raws {
		if rf.Type == nil {
			return nil, fmt.Errorf("field %d has no type", i)
		}
		f := scale.Field{Type: scale.TypeID(*rf.Type), TypeName: rf.TypeName}
		if rf.Name != nil {
			f.Name = *rf.Name
		}
		fields = append(fields, f)
	}
	return fields, nil
}
