package ir

import (
	"fmt"
	"strings"
)

// TypeKind discriminates TypeTag variants.
type TypeKind uint8

const (
	KindBool TypeKind = iota + 1
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindU256
	KindAddress
	KindSigner
	KindVector
	KindStruct
)

var primitiveKinds = map[string]TypeKind{
	"bool":    KindBool,
	"u8":      KindU8,
	"u16":     KindU16,
	"u32":     KindU32,
	"u64":     KindU64,
	"u128":    KindU128,
	"u256":    KindU256,
	"address": KindAddress,
	"signer":  KindSigner,
}

var primitiveNames = map[TypeKind]string{
	KindBool:    "bool",
	KindU8:      "u8",
	KindU16:     "u16",
	KindU32:     "u32",
	KindU64:     "u64",
	KindU128:    "u128",
	KindU256:    "u256",
	KindAddress: "address",
	KindSigner:  "signer",
}

// TypeTag is a structural type descriptor such as
// "0x2::coin::Coin<0x2::sui::SUI>" or "vector<u8>".
type TypeTag struct {
	Kind   TypeKind
	Elem   *TypeTag   // KindVector only
	Struct *StructTag // KindStruct only
}

// StructTag names a struct type by defining package, module and name.
type StructTag struct {
	Address    Address
	Module     string
	Name       string
	TypeParams []TypeTag
}

// Primitive returns the tag of a primitive kind.
func Primitive(kind TypeKind) TypeTag {
	return TypeTag{Kind: kind}
}

// VectorOf wraps elem in a vector tag.
func VectorOf(elem TypeTag) TypeTag {
	return TypeTag{Kind: KindVector, Elem: &elem}
}

// StructType builds a struct tag.
func StructType(addr Address, module, name string, params ...TypeTag) TypeTag {
	return TypeTag{Kind: KindStruct, Struct: &StructTag{
		Address:    addr,
		Module:     module,
		Name:       name,
		TypeParams: params,
	}}
}

// StructName returns the unqualified struct name, or "" for non-struct tags.
func (t TypeTag) StructName() string {
	if t.Kind != KindStruct || t.Struct == nil {
		return ""
	}
	return t.Struct.Name
}

// IsZero reports whether the tag is unset.
func (t TypeTag) IsZero() bool {
	return t.Kind == 0
}

func (t TypeTag) String() string {
	switch t.Kind {
	case KindVector:
		if t.Elem == nil {
			return "vector<?>"
		}
		return "vector<" + t.Elem.String() + ">"
	case KindStruct:
		if t.Struct == nil {
			return "?"
		}
		return t.Struct.String()
	case 0:
		return ""
	default:
		return primitiveNames[t.Kind]
	}
}

func (s StructTag) String() string {
	var b strings.Builder
	b.WriteString(s.Address.ShortString())
	b.WriteString("::")
	b.WriteString(s.Module)
	b.WriteString("::")
	b.WriteString(s.Name)
	if len(s.TypeParams) > 0 {
		b.WriteByte('<')
		for i, p := range s.TypeParams {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.String())
		}
		b.WriteByte('>')
	}
	return b.String()
}

// ParseTypeTag parses the textual form produced by TypeTag.String.
func ParseTypeTag(s string) (TypeTag, error) {
	toks, err := tokenizeTypeTag(s)
	if err != nil {
		return TypeTag{}, err
	}
	p := &tagParser{src: s, toks: toks}
	tag, err := p.parseType()
	if err != nil {
		return TypeTag{}, err
	}
	if p.pos != len(p.toks) {
		return TypeTag{}, fmt.Errorf("type tag %q: unexpected %q", s, p.toks[p.pos])
	}
	return tag, nil
}

// MustTypeTag is like ParseTypeTag but panics on error.
func MustTypeTag(s string) TypeTag {
	t, err := ParseTypeTag(s)
	if err != nil {
		panic(err)
	}
	return t
}

// StructNameOf extracts the struct name from a textual type descriptor.
// Unparseable descriptors fall back to the last "::" segment with any
// generic arguments stripped.
func StructNameOf(typ string) string {
	if t, err := ParseTypeTag(typ); err == nil {
		return t.StructName()
	}
	if i := strings.IndexByte(typ, '<'); i >= 0 {
		typ = typ[:i]
	}
	if i := strings.LastIndex(typ, "::"); i >= 0 {
		return typ[i+2:]
	}
	return typ
}

func tokenizeTypeTag(s string) ([]string, error) {
	var toks []string
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '<' || c == '>' || c == ',':
			toks = append(toks, string(c))
			i++
		case c == ':':
			if i+1 >= len(s) || s[i+1] != ':' {
				return nil, fmt.Errorf("type tag %q: single ':' at offset %d", s, i)
			}
			toks = append(toks, "::")
			i += 2
		case isIdentByte(c):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		default:
			return nil, fmt.Errorf("type tag %q: unexpected character %q", s, c)
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("type tag is empty")
	}
	return toks, nil
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

type tagParser struct {
	src  string
	toks []string
	pos  int
}

func (p *tagParser) next() (string, error) {
	if p.pos >= len(p.toks) {
		return "", fmt.Errorf("type tag %q: unexpected end", p.src)
	}
	t := p.toks[p.pos]
	p.pos++
	return t, nil
}

func (p *tagParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *tagParser) expect(want string) error {
	got, err := p.next()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("type tag %q: expected %q, got %q", p.src, want, got)
	}
	return nil
}

func (p *tagParser) parseType() (TypeTag, error) {
	tok, err := p.next()
	if err != nil {
		return TypeTag{}, err
	}
	if kind, ok := primitiveKinds[tok]; ok {
		return Primitive(kind), nil
	}
	if tok == "vector" {
		if err := p.expect("<"); err != nil {
			return TypeTag{}, err
		}
		elem, err := p.parseType()
		if err != nil {
			return TypeTag{}, err
		}
		if err := p.expect(">"); err != nil {
			return TypeTag{}, err
		}
		return VectorOf(elem), nil
	}

	addr, err := ParseAddress(tok)
	if err != nil {
		return TypeTag{}, fmt.Errorf("type tag %q: %w", p.src, err)
	}
	if err := p.expect("::"); err != nil {
		return TypeTag{}, err
	}
	module, err := p.next()
	if err != nil {
		return TypeTag{}, err
	}
	if err := p.expect("::"); err != nil {
		return TypeTag{}, err
	}
	name, err := p.next()
	if err != nil {
		return TypeTag{}, err
	}

	var params []TypeTag
	if p.peek() == "<" {
		p.pos++
		for {
			param, err := p.parseType()
			if err != nil {
				return TypeTag{}, err
			}
			params = append(params, param)
			sep, err := p.next()
			if err != nil {
				return TypeTag{}, err
			}
			if sep == ">" {
				break
			}
			if sep != "," {
				return TypeTag{}, fmt.Errorf("type tag %q: expected ',' or '>', got %q", p.src, sep)
			}
		}
	}
	return StructType(addr, module, name, params...), nil
}
