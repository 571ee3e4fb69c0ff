package loader

import (
	"fmt"
	"strings"

	"github.com/gnolang/permcheck/internal/vir"
)

// parseType parses Int, Bool, Ref(Name), Ptr(T) and Array(T).
func parseType(src string) (vir.Type, error) {
	src = strings.TrimSpace(src)
	switch src {
	case "Int":
		return vir.IntType(), nil
	case "Bool":
		return vir.BoolType(), nil
	}

	open := strings.IndexByte(src, '(')
	if open < 0 || !strings.HasSuffix(src, ")") {
		return vir.Type{}, fmt.Errorf("unknown type %q", src)
	}
	ctor, arg := src[:open], src[open+1:len(src)-1]
	switch ctor {
	case "Ref":
		if arg == "" {
			return vir.Type{}, fmt.Errorf("missing reference name in %q", src)
		}
		return vir.RefType(arg), nil
	case "Ptr", "Array":
		elem, err := parseType(arg)
		if err != nil {
			return vir.Type{}, err
		}
		if ctor == "Ptr" {
			return vir.PtrType(elem), nil
		}
		return vir.ArrayType(elem), nil
	}
	return vir.Type{}, fmt.Errorf("unknown type constructor %q", ctor)
}

// scope resolves place paths against local variables and field types.
type scope struct {
	locals map[string]vir.LocalVar
	fields map[string]vir.Type
}

func newScope(fields map[string]vir.Type, locals ...vir.LocalVar) *scope {
	s := &scope{locals: make(map[string]vir.LocalVar, len(locals)), fields: fields}
	for _, l := range locals {
		s.locals[l.Name] = l
	}
	return s
}

func (s *scope) local(name string) (vir.LocalVar, error) {
	l, ok := s.locals[name]
	if !ok {
		return vir.LocalVar{}, fmt.Errorf("undeclared variable %q", name)
	}
	return l, nil
}

// place parses paths such as x.next.val, a.*[0] or o.@Some.
func (s *scope) place(src string) (vir.Place, error) {
	end := strings.IndexAny(src, ".[")
	if end < 0 {
		end = len(src)
	}
	base, err := s.local(src[:end])
	if err != nil {
		return vir.Place{}, err
	}
	place := vir.NewPlace(base)
	rest := src[end:]

	for rest != "" {
		typ := place.Type()
		switch {
		case strings.HasPrefix(rest, ".*"):
			if typ.Kind != vir.TypePtr {
				return vir.Place{}, fmt.Errorf("%s: cannot dereference %s of type %s", src, place, typ)
			}
			place = place.Deref(*typ.Elem)
			rest = rest[2:]

		case strings.HasPrefix(rest, ".@"):
			name, tail := splitSegment(rest[2:])
			if typ.Kind != vir.TypeRef || name == "" {
				return vir.Place{}, fmt.Errorf("%s: cannot downcast %s of type %s", src, place, typ)
			}
			place = place.Variant(name, vir.RefType(typ.Name+"::"+name))
			rest = tail

		case strings.HasPrefix(rest, "."):
			name, tail := splitSegment(rest[1:])
			ft, ok := s.fields[name]
			if !ok {
				return vir.Place{}, fmt.Errorf("%s: unknown field %q", src, name)
			}
			place = place.Field(name, ft)
			rest = tail

		case strings.HasPrefix(rest, "["):
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return vir.Place{}, fmt.Errorf("%s: missing ]", src)
			}
			if typ.Kind != vir.TypeArray {
				return vir.Place{}, fmt.Errorf("%s: cannot index %s of type %s", src, place, typ)
			}
			place = place.Index(rest[1:end], *typ.Elem)
			rest = rest[end+1:]

		default:
			return vir.Place{}, fmt.Errorf("%s: unexpected %q", src, rest)
		}
	}
	return place, nil
}

func splitSegment(s string) (string, string) {
	end := strings.IndexAny(s, ".[")
	if end < 0 {
		return s, ""
	}
	return s[:end], s[end:]
}
