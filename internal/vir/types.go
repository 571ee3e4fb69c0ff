package vir

import "fmt"

// TypeKind classifies the static types a place can have.
type TypeKind int

const (
	_ TypeKind = iota
	TypeInt
	TypeBool
	// TypeRef is a reference to a heap object whose shape is described
	// by the predicate of the same name.
	TypeRef
	// TypePtr is a pointer; dereferencing it yields Elem.
	TypePtr
	// TypeArray is an indexable sequence of Elem.
	TypeArray
)

func (k TypeKind) String() string {
	switch k {
	case TypeInt:
		return "Int"
	case TypeBool:
		return "Bool"
	case TypeRef:
		return "Ref"
	case TypePtr:
		return "Ptr"
	case TypeArray:
		return "Array"
	default:
		return "?"
	}
}

// Type is the static type of a local variable or of a projection result.
type Type struct {
	Kind TypeKind
	Name string // valid for TypeRef
	Elem *Type  // valid for TypePtr and TypeArray
}

func IntType() Type  { return Type{Kind: TypeInt} }
func BoolType() Type { return Type{Kind: TypeBool} }

// RefType returns a reference type guarded by the predicate name.
func RefType(name string) Type { return Type{Kind: TypeRef, Name: name} }

func PtrType(elem Type) Type   { return Type{Kind: TypePtr, Elem: &elem} }
func ArrayType(elem Type) Type { return Type{Kind: TypeArray, Elem: &elem} }

// Equal reports whether two types are structurally identical.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind || t.Name != other.Name {
		return false
	}
	if t.Elem == nil || other.Elem == nil {
		return t.Elem == nil && other.Elem == nil
	}
	return t.Elem.Equal(*other.Elem)
}

func (t Type) String() string {
	switch t.Kind {
	case TypeRef:
		return fmt.Sprintf("Ref(%s)", t.Name)
	case TypePtr, TypeArray:
		if t.Elem == nil {
			return t.Kind.String() + "(?)"
		}
		return fmt.Sprintf("%s(%s)", t.Kind, t.Elem)
	default:
		return t.Kind.String()
	}
}

// LocalVar is a procedure-local variable, the root of every place.
type LocalVar struct {
	Name string
	Type Type
}

func (v LocalVar) String() string {
	return v.Name
}
