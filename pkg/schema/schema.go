// Package schema declares the record types persisted by the crawler: their
// fields, field kinds and nullability, and the shape of their primary keys.
package schema

import (
	"fmt"
	"strconv"
)

// Kind is the semantic type of a field.
type Kind int

const (
	KindInt Kind = iota + 1
	KindFloat
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Field describes one column of an entity.
type Field struct {
	Name     string
	Kind     Kind
	Nullable bool
}

type keyKind int

const (
	keySingle keyKind = iota + 1
	keyComposite
)

// KeyShape is the primary key of an entity: either a single field or an
// ordered tuple of fields.
type KeyShape struct {
	kind   keyKind
	fields []string
}

// SingleKey returns a key made of one field.
func SingleKey(name string) KeyShape {
	return KeyShape{kind: keySingle, fields: []string{name}}
}

// CompositeKey returns a key made of the given fields, in order.
func CompositeKey(names ...string) KeyShape {
	return KeyShape{kind: keyComposite, fields: append([]string(nil), names...)}
}

// Composite reports whether the key spans more than one field.
func (k KeyShape) Composite() bool { return k.kind == keyComposite }

// Fields returns the ordered key field names.
func (k KeyShape) Fields() []string { return append([]string(nil), k.fields...) }

// Contains reports whether name is part of the key.
func (k KeyShape) Contains(name string) bool {
	for _, f := range k.fields {
		if f == name {
			return true
		}
	}
	return false
}

// Entity is the static description of a record type.
type Entity struct {
	Name   string
	Table  string
	Key    KeyShape
	Fields []Field
}

// Field returns the named field.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// NonKeyFields returns the fields that are not part of the primary key, in
// declaration order.
func (e *Entity) NonKeyFields() []Field {
	out := make([]Field, 0, len(e.Fields))
	for _, f := range e.Fields {
		if !e.Key.Contains(f.Name) {
			out = append(out, f)
		}
	}
	return out
}

// Value is a scalar held by a record field.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Text  string
}

func IntValue(v int64) Value     { return Value{Kind: KindInt, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func TextValue(v string) Value   { return Value{Kind: KindText, Text: v} }

// Any returns the value as a plain Go scalar, suitable as a driver argument.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindText:
		return v.Text
	default:
		return nil
	}
}

func (v Value) String() string {
	return fmt.Sprint(v.Any())
}

// Record is a populated instance of an entity. Fields are addressed by name so
// that loaders can fill any record type generically.
type Record interface {
	Entity() *Entity
	// Get returns the field value and whether it is set.
	Get(name string) (Value, bool)
	// Set assigns the field. The value kind must match the field kind.
	Set(name string, v Value) error
	// Clear unsets the field.
	Clear(name string) error
}

// Missing returns the required fields of r that are unset.
func Missing(r Record) []string {
	var out []string
	for _, f := range r.Entity().Fields {
		if f.Nullable {
			continue
		}
		if _, ok := r.Get(f.Name); !ok {
			out = append(out, f.Name)
		}
	}
	return out
}

// KeyValues returns the key values of r in key order. Unset key fields are
// returned as the zero Value.
func KeyValues(r Record) []Value {
	names := r.Entity().Key.Fields()
	out := make([]Value, len(names))
	for i, n := range names {
		out[i], _ = r.Get(n)
	}
	return out
}
