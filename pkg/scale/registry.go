// Package scale implements the SCALE codec over a portable type registry, the
// encoding ink! contracts use for message arguments and return values.
package scale

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Layr-Labs/ink-verifier/pkg/ss58"
)

type TypeID uint32

type Kind int

const (
	KindPrimitive Kind = iota
	KindComposite
	KindVariant
	KindSequence
	KindArray
	KindTuple
	KindCompact
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindComposite:
		return "composite"
	case KindVariant:
		return "variant"
	case KindSequence:
		return "sequence"
	case KindArray:
		return "array"
	case KindTuple:
		return "tuple"
	case KindCompact:
		return "compact"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Field struct {
	Name     string
	Type     TypeID
	TypeName string
}

type Variant struct {
	Name   string
	Index  uint8
	Fields []Field
}

// TypeDef describes one registry entry. Which fields are meaningful depends on Kind.
type TypeDef struct {
	ID        TypeID
	Path      []string
	Kind      Kind
	Primitive string
	Fields    []Field
	Variants  []Variant
	Elem      TypeID
	Len       uint32
	Tuple     []TypeID
}

// Name is the last path segment, or the primitive name.
func (d *TypeDef) Name() string {
	if len(d.Path) > 0 {
		return d.Path[len(d.Path)-1]
	}
	return d.Primitive
}

func (d *TypeDef) String() string {
	if len(d.Path) > 0 {
		return strings.Join(d.Path, "::")
	}
	if d.Kind == KindPrimitive {
		return d.Primitive
	}
	return fmt.Sprintf("#%d(%s)", d.ID, d.Kind)
}

var (
	ErrUnknownType  = errors.New("unknown type id")
	ErrInvalidValue = errors.New("value does not match type")
	ErrShortInput   = errors.New("unexpected end of input")
)

var primitiveWidths = map[string]int{
	"bool": 1, "char": 4,
	"u8": 1, "u16": 2, "u32": 4, "u64": 8, "u128": 16, "u256": 32,
	"i8": 1, "i16": 2, "i32": 4, "i64": 8, "i128": 16, "i256": 32,
	"str": 0,
}

// Registry is an immutable-after-build set of type definitions keyed by id.
type Registry struct {
	types  map[TypeID]*TypeDef
	prefix uint16
}

func NewRegistry() *Registry {
	return &Registry{
		types:  make(map[TypeID]*TypeDef),
		prefix: ss58.GenericPrefix,
	}
}

// WithSS58Prefix returns a registry sharing r's types that renders AccountId
// values with prefix. r itself is unchanged.
func (r *Registry) WithSS58Prefix(prefix uint16) *Registry {
	return &Registry{types: r.types, prefix: prefix}
}

// SS58Prefix is the network prefix used when rendering AccountId values.
func (r *Registry) SS58Prefix() uint16 {
	return r.prefix
}

func (r *Registry) Add(def *TypeDef) error {
	if def == nil {
		return fmt.Errorf("cannot add nil type definition")
	}
	if _, exists := r.types[def.ID]; exists {
		return fmt.Errorf("duplicate type id %d", def.ID)
	}
	if def.Kind == KindPrimitive {
		if _, ok := primitiveWidths[def.Primitive]; !ok {
			return fmt.Errorf("type %d: unsupported primitive %q", def.ID, def.Primitive)
		}
	}
	r.types[def.ID] = def
	return nil
}

func (r *Registry) Lookup(id TypeID) (*TypeDef, error) {
	def, ok := r.types[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, id)
	}
	return def, nil
}

func (r *Registry) Len() int {
	return len(r.types)
}

// Validate checks that every type reference resolves inside the registry.
func (r *Registry) Validate() error {
	ids := make([]TypeID, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return r.ValidateFrom(ids...)
}

// ValidateFrom checks that roots and every type reachable from them resolve.
func (r *Registry) ValidateFrom(roots ...TypeID) error {
	seen := make(map[TypeID]bool, len(r.types))
	stack := append([]TypeID{}, roots...)

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true

		def, ok := r.types[id]
		if !ok {
			return fmt.Errorf("%w %d", ErrUnknownType, id)
		}
		for _, ref := range def.references() {
			if _, ok := r.types[ref]; !ok {
				return fmt.Errorf("type %d references %w %d", id, ErrUnknownType, ref)
			}
			stack = append(stack, ref)
		}
	}
	return nil
}

func (d *TypeDef) references() []TypeID {
	var refs []TypeID
	switch d.Kind {
	case KindComposite:
		for _, f := range d.Fields {
			refs = append(refs, f.Type)
		}
	case KindVariant:
		for _, v := range d.Variants {
			for _, f := range v.Fields {
				refs = append(refs, f.Type)
			}
		}
	case KindSequence, KindArray, KindCompact:
		refs = append(refs, d.Elem)
	case KindTuple:
		refs = append(refs, d.Tuple...)
	}
	return refs
}

// isByte reports whether id is the u8 primitive.
func (r *Registry) isByte(id TypeID) bool {
	def, ok := r.types[id]
	return ok && def.Kind == KindPrimitive && def.Primitive == "u8"
}

// isAccountID recognises ink!'s AccountId newtype around [u8; 32].
func (r *Registry) isAccountID(def *TypeDef) bool {
	if def.Kind != KindComposite || def.Name() != "AccountId" || len(def.Fields) != 1 {
		return false
	}
	inner, ok := r.types[def.Fields[0].Type]
	return ok && inner.Kind == KindArray && inner.Len == 32 && r.isByte(inner.Elem)
}

func isOption(def *TypeDef) bool {
	return def.Kind == KindVariant && def.Name() == "Option"
}

func namedFields(fields []Field) bool {
	return len(fields) > 0 && fields[0].Name != ""
}
