package schema

import (
	"database/sql"
	"fmt"
)

// descriptor is the typed accessor for one field of record type R.
type descriptor[R any] struct {
	field Field
	get   func(*R) (Value, bool)
	set   func(*R, Value)
	clear func(*R)
}

type fieldTable[R any] []descriptor[R]

func intField[R any](name string, nullable bool, at func(*R) *sql.NullInt64) descriptor[R] {
	return descriptor[R]{
		field: Field{Name: name, Kind: KindInt, Nullable: nullable},
		get: func(r *R) (Value, bool) {
			n := at(r)
			return IntValue(n.Int64), n.Valid
		},
		set:   func(r *R, v Value) { *at(r) = sql.NullInt64{Int64: v.Int, Valid: true} },
		clear: func(r *R) { *at(r) = sql.NullInt64{} },
	}
}

func floatField[R any](name string, nullable bool, at func(*R) *sql.NullFloat64) descriptor[R] {
	return descriptor[R]{
		field: Field{Name: name, Kind: KindFloat, Nullable: nullable},
		get: func(r *R) (Value, bool) {
			n := at(r)
			return FloatValue(n.Float64), n.Valid
		},
		set:   func(r *R, v Value) { *at(r) = sql.NullFloat64{Float64: v.Float, Valid: true} },
		clear: func(r *R) { *at(r) = sql.NullFloat64{} },
	}
}

func textField[R any](name string, nullable bool, at func(*R) *sql.NullString) descriptor[R] {
	return descriptor[R]{
		field: Field{Name: name, Kind: KindText, Nullable: nullable},
		get: func(r *R) (Value, bool) {
			n := at(r)
			return TextValue(n.String), n.Valid
		},
		set:   func(r *R, v Value) { *at(r) = sql.NullString{String: v.Text, Valid: true} },
		clear: func(r *R) { *at(r) = sql.NullString{} },
	}
}

func (t fieldTable[R]) fields() []Field {
	out := make([]Field, len(t))
	for i, d := range t {
		out[i] = d.field
	}
	return out
}

func (t fieldTable[R]) lookup(entity, name string) (descriptor[R], error) {
	for _, d := range t {
		if d.field.Name == name {
			return d, nil
		}
	}
	return descriptor[R]{}, fmt.Errorf("%s: unknown field %q", entity, name)
}

func (t fieldTable[R]) get(e *Entity, r *R, name string) (Value, bool) {
	d, err := t.lookup(e.Name, name)
	if err != nil {
		return Value{}, false
	}
	return d.get(r)
}

func (t fieldTable[R]) set(e *Entity, r *R, name string, v Value) error {
	d, err := t.lookup(e.Name, name)
	if err != nil {
		return err
	}
	if v.Kind != d.field.Kind {
		return fmt.Errorf("%s.%s: cannot assign %s value to %s field", e.Name, name, v.Kind, d.field.Kind)
	}
	d.set(r, v)
	return nil
}

func (t fieldTable[R]) clear(e *Entity, r *R, name string) error {
	d, err := t.lookup(e.Name, name)
	if err != nil {
		return err
	}
	d.clear(r)
	return nil
}
