package ir

import (
	"fmt"
	"strings"
)

// The type pool owns every Type in a Module. Types are interned structurally:
// two types with the same shape are the same TypeID, so type equality is
// integer equality everywhere else in the IR.
//
// Layout follows the word-based model of the target VM: every aggregate
// field and element sits on an 8-byte boundary, and aggregate sizes are
// rounded up to a whole number of words.

// WordSize is the register width of the target VM in bytes.
const WordSize = 8

// TypeKind discriminates the shapes a Type can take.
type TypeKind int

const (
	TypeUnit TypeKind = iota
	TypeBool
	TypeUint    // fixed-width unsigned integer (8, 16, 32 or 64 bits)
	TypeB256    // 256-bit wide integer
	TypeBlob    // fixed-size byte blob
	TypePointer // address of a value of the pointee type
	TypeArray   // fixed-size array
	TypeStruct  // structurally-typed tuple/struct
	TypeEnum    // tagged union with a one-word discriminant
)

// Type is the interned representation of a sable type.
type Type struct {
	Kind   TypeKind
	Bits   int      // TypeUint: integer width in bits
	Count  int      // TypeBlob: byte length, TypeArray: element count
	Elem   TypeID   // TypePointer: pointee, TypeArray: element type
	Fields []TypeID // TypeStruct: field types, TypeEnum: variant types
}

// TypePool interns types for one Module. It is append-only: once published
// to optimization passes it is never mutated, so concurrent readers need no
// locking.
type TypePool struct {
	types []Type
	index map[string]TypeID
}

// NewTypePool creates an empty pool.
func NewTypePool() *TypePool {
	return &TypePool{index: make(map[string]TypeID)}
}

// intern returns the TypeID for t, adding it to the pool if it is new.
// Structural dedup holds inductively because nested types are referenced by
// already-interned TypeIDs.
func (p *TypePool) intern(t Type) TypeID {
	key := typeKey(t)
	if id, ok := p.index[key]; ok {
		return id
	}

	id := TypeID(len(p.types))
	p.types = append(p.types, t)
	p.index[key] = id
	return id
}

func typeKey(t Type) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%d:%d:%d", t.Kind, t.Bits, t.Count, t.Elem)
	for _, f := range t.Fields {
		fmt.Fprintf(&b, ",%d", f)
	}
	return b.String()
}

// Get returns the shape of an interned type.
func (p *TypePool) Get(id TypeID) Type {
	return p.types[id]
}

func (p *TypePool) Unit() TypeID { return p.intern(Type{Kind: TypeUnit}) }
func (p *TypePool) Bool() TypeID { return p.intern(Type{Kind: TypeBool}) }
func (p *TypePool) B256() TypeID { return p.intern(Type{Kind: TypeB256}) }

// Uint interns a fixed-width unsigned integer type.
func (p *TypePool) Uint(bits int) TypeID {
	switch bits {
	case 8, 16, 32, 64:
		return p.intern(Type{Kind: TypeUint, Bits: bits})
	}
	panic(fmt.Sprintf("unsupported integer width u%d", bits))
}

// Blob interns a fixed-size byte blob type of n bytes.
func (p *TypePool) Blob(n int) TypeID {
	return p.intern(Type{Kind: TypeBlob, Count: n})
}

// Pointer interns the address type for a pointee.
func (p *TypePool) Pointer(pointee TypeID) TypeID {
	return p.intern(Type{Kind: TypePointer, Elem: pointee})
}

// Array interns a fixed-size array type.
func (p *TypePool) Array(elem TypeID, count int) TypeID {
	return p.intern(Type{Kind: TypeArray, Elem: elem, Count: count})
}

// Struct interns a structurally-typed tuple/struct.
func (p *TypePool) Struct(fields ...TypeID) TypeID {
	return p.intern(Type{Kind: TypeStruct, Fields: append([]TypeID(nil), fields...)})
}

// Enum interns a tagged union. The discriminant occupies the first word,
// the payload area is sized for the largest variant.
func (p *TypePool) Enum(variants ...TypeID) TypeID {
	return p.intern(Type{Kind: TypeEnum, Fields: append([]TypeID(nil), variants...)})
}

// IsAggregate reports whether values of the type have value/copy semantics
// over a multi-field memory layout: arrays, structs and enums. Blobs and
// wide integers are opaque scalars.
func (p *TypePool) IsAggregate(id TypeID) bool {
	switch p.types[id].Kind {
	case TypeArray, TypeStruct, TypeEnum:
		return true
	}
	return false
}

// SizeOf computes the static byte size of a type.
func (p *TypePool) SizeOf(id TypeID) int {
	t := p.types[id]
	switch t.Kind {
	case TypeUnit:
		return 0
	case TypeBool:
		return 1
	case TypeUint:
		return t.Bits / 8
	case TypeB256:
		return 32
	case TypeBlob:
		return t.Count
	case TypePointer:
		return WordSize
	case TypeArray:
		return t.Count * wordAlign(p.SizeOf(t.Elem))
	case TypeStruct:
		size := 0
		for _, f := range t.Fields {
			size += wordAlign(p.SizeOf(f))
		}
		return size
	case TypeEnum:
		payload := 0
		for _, v := range t.Fields {
			if s := wordAlign(p.SizeOf(v)); s > payload {
				payload = s
			}
		}
		return WordSize + payload
	}
	panic(fmt.Sprintf("unknown type kind %d", t.Kind))
}

// ElemOffset resolves a static field/element path against a base type,
// returning the byte offset and the type at the end of the path. A path
// index out of the static bounds of the base type is an error.
func (p *TypePool) ElemOffset(base TypeID, path []int) (int, TypeID, error) {
	offset := 0
	cur := base

	for depth, idx := range path {
		t := p.types[cur]
		switch t.Kind {
		case TypeArray:
			if idx < 0 || idx >= t.Count {
				return 0, cur, fmt.Errorf("element %d out of bounds for %s at path depth %d", idx, p.String(cur), depth)
			}
			offset += idx * wordAlign(p.SizeOf(t.Elem))
			cur = t.Elem
		case TypeStruct:
			if idx < 0 || idx >= len(t.Fields) {
				return 0, cur, fmt.Errorf("field %d out of bounds for %s at path depth %d", idx, p.String(cur), depth)
			}
			for _, f := range t.Fields[:idx] {
				offset += wordAlign(p.SizeOf(f))
			}
			cur = t.Fields[idx]
		case TypeEnum:
			if idx < 0 || idx >= len(t.Fields) {
				return 0, cur, fmt.Errorf("variant %d out of bounds for %s at path depth %d", idx, p.String(cur), depth)
			}
			offset += WordSize
			cur = t.Fields[idx]
		default:
			return 0, cur, fmt.Errorf("cannot index into non-aggregate %s at path depth %d", p.String(cur), depth)
		}
	}

	return offset, cur, nil
}

// String renders a type in the textual IR syntax.
func (p *TypePool) String(id TypeID) string {
	t := p.types[id]
	switch t.Kind {
	case TypeUnit:
		return "unit"
	case TypeBool:
		return "bool"
	case TypeUint:
		return fmt.Sprintf("u%d", t.Bits)
	case TypeB256:
		return "b256"
	case TypeBlob:
		return fmt.Sprintf("blob<%d>", t.Count)
	case TypePointer:
		return "ptr " + p.String(t.Elem)
	case TypeArray:
		return fmt.Sprintf("[%s; %d]", p.String(t.Elem), t.Count)
	case TypeStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = p.String(f)
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case TypeEnum:
		parts := make([]string, len(t.Fields))
		for i, v := range t.Fields {
			parts[i] = p.String(v)
		}
		return "enum { " + strings.Join(parts, ", ") + " }"
	}
	return fmt.Sprintf("type?%d", t.Kind)
}

func wordAlign(n int) int {
	return (n + WordSize - 1) &^ (WordSize - 1)
}
