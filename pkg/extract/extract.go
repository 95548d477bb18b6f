// Package extract turns raw nested documents (maps, sequences and scalars as
// produced by encoding/json) into typed schema records.
//
// Each field of a record is populated by a Rule: a lookup into the input
// followed by an ordered chain of pure transforms. Rules are compiled into a
// Plan once and a Plan can be applied to any number of inputs concurrently.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/japaniel/leetcrawl/pkg/schema"
)

// Transform is one pure step of a field pipeline. Returning nil marks the
// value as absent.
type Transform func(v any) (any, error)

// Rule describes how to populate one field.
type Rule struct {
	field      string
	path       []string
	hasPath    bool
	literal    any
	hasLiteral bool
	repeatable bool
	capture    string
	then       []Transform
}

// Field starts a rule for the named field. Without At or Literal the field
// name is used as the lookup key.
func Field(name string) Rule {
	return Rule{field: name}
}

// At sets an explicit lookup path. An empty path selects the whole input.
func (r Rule) At(path ...string) Rule {
	r.path = append([]string(nil), path...)
	r.hasPath = true
	return r
}

// Literal makes the rule ignore the input and use v instead.
func (r Rule) Literal(v any) Rule {
	r.literal = v
	r.hasLiteral = true
	return r
}

// Repeatable keeps sequences whole instead of taking their first element.
func (r Rule) Repeatable() Rule {
	r.repeatable = true
	return r
}

// Capture applies a regular expression and keeps a capture group: the first
// named group if any, otherwise group 1, otherwise the whole match.
func (r Rule) Capture(expr string) Rule {
	r.capture = expr
	return r
}

// Then appends a transform that runs after capture and before coercion.
func (r Rule) Then(fn Transform) Rule {
	r.then = append(append([]Transform(nil), r.then...), fn)
	return r
}

type step struct {
	field  schema.Field
	source func(input any) (any, bool)
	chain  []Transform
}

// Plan is a compiled set of rules for one entity.
type Plan struct {
	entity    *schema.Entity
	newRecord func() schema.Record
	steps     []step
}

// NewPlan compiles rules against the entity of the records produced by
// newRecord. Every rule must name a declared field.
func NewPlan(newRecord func() schema.Record, rules ...Rule) (*Plan, error) {
	entity := newRecord().Entity()
	p := &Plan{entity: entity, newRecord: newRecord}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		f, ok := entity.Field(r.field)
		if !ok {
			return nil, fmt.Errorf("%s: unknown field %q", entity.Name, r.field)
		}
		if seen[r.field] {
			return nil, fmt.Errorf("%s: duplicate rule for %q", entity.Name, r.field)
		}
		seen[r.field] = true
		s, err := compile(f, r)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", entity.Name, r.field, err)
		}
		p.steps = append(p.steps, s)
	}
	return p, nil
}

// MustPlan is NewPlan for package-level plans; it panics on error.
func MustPlan(newRecord func() schema.Record, rules ...Rule) *Plan {
	p, err := NewPlan(newRecord, rules...)
	if err != nil {
		panic(err)
	}
	return p
}

func compile(f schema.Field, r Rule) (step, error) {
	s := step{field: f}
	switch {
	case r.hasLiteral:
		lit := r.literal
		s.source = func(any) (any, bool) { return lit, lit != nil }
	case r.hasPath:
		path := r.path
		s.source = func(in any) (any, bool) { return lookup(in, path) }
	default:
		path := []string{r.field}
		s.source = func(in any) (any, bool) { return lookup(in, path) }
	}
	if !r.repeatable {
		s.chain = append(s.chain, collapse)
	}
	if r.capture != "" {
		re, err := regexp.Compile(r.capture)
		if err != nil {
			return step{}, fmt.Errorf("capture pattern: %w", err)
		}
		s.chain = append(s.chain, CaptureWith(re))
	}
	s.chain = append(s.chain, r.then...)
	return s, nil
}

// Entity returns the entity the plan produces.
func (p *Plan) Entity() *schema.Entity { return p.entity }

// Load builds one record from input. The record is always returned, populated
// as far as possible; the error, when non-nil, is an *ExtractionError listing
// the fields that could not be filled.
func (p *Plan) Load(input any) (schema.Record, error) {
	rec := p.newRecord()
	var fieldErrs []FieldError
	for _, s := range p.steps {
		v, err := s.run(input)
		if err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: s.field.Name, Required: !s.field.Nullable, Err: err})
			continue
		}
		if v == nil {
			continue
		}
		val, err := Coerce(s.field.Kind, v)
		if err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: s.field.Name, Required: !s.field.Nullable, Err: err})
			continue
		}
		if err := rec.Set(s.field.Name, val); err != nil {
			fieldErrs = append(fieldErrs, FieldError{Field: s.field.Name, Required: !s.field.Nullable, Err: err})
		}
	}
	for _, name := range schema.Missing(rec) {
		if hasFieldError(fieldErrs, name) {
			continue
		}
		fieldErrs = append(fieldErrs, FieldError{Field: name, Required: true, Err: ErrMissing})
	}
	if len(fieldErrs) == 0 {
		return rec, nil
	}
	return rec, &ExtractionError{Entity: p.entity.Name, Fields: fieldErrs}
}

func (s step) run(input any) (any, error) {
	v, ok := s.source(input)
	if !ok {
		return nil, nil
	}
	for _, t := range s.chain {
		var err error
		if v, err = t(v); err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
	}
	return v, nil
}

func hasFieldError(errs []FieldError, name string) bool {
	for _, e := range errs {
		if e.Field == name {
			return true
		}
	}
	return false
}

// lookup walks maps by key and sequences by decimal index. JSON null counts
// as absent.
func lookup(v any, path []string) (any, bool) {
	for _, p := range path {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[p]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			v = node[i]
		default:
			return nil, false
		}
	}
	return v, v != nil
}

func collapse(v any) (any, error) {
	seq, ok := v.([]any)
	if !ok {
		return v, nil
	}
	if len(seq) == 0 {
		return nil, nil
	}
	return seq[0], nil
}

// CaptureWith returns a transform applying re to the text form of the value.
// A value that does not match is an error.
func CaptureWith(re *regexp.Regexp) Transform {
	group := 0
	if re.NumSubexp() > 0 {
		group = 1
		for i, name := range re.SubexpNames() {
			if name != "" {
				group = i
				break
			}
		}
	}
	return func(v any) (any, error) {
		s, err := ToText(v)
		if err != nil {
			return nil, err
		}
		m := re.FindStringSubmatch(s)
		if m == nil {
			return nil, fmt.Errorf("%q does not match %s", s, re)
		}
		return m[group], nil
	}
}

// ErrMissing marks a required field with no source value.
var ErrMissing = errors.New("required value missing")

// FieldError is a problem with one field.
type FieldError struct {
	Field    string
	Required bool
	Err      error
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

// ExtractionError reports fields that could not be populated from a document.
type ExtractionError struct {
	Entity string
	Fields []FieldError
}

// DocumentError reports a document that could not be read at all.
func DocumentError(entity string, err error) *ExtractionError {
	return &ExtractionError{Entity: entity, Fields: []FieldError{{Required: true, Err: err}}}
}

func (e *ExtractionError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("extract %s: %s", e.Entity, strings.Join(parts, "; "))
}

func (e *ExtractionError) Unwrap() []error {
	out := make([]error, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f.Err
	}
	return out
}

// Dropped reports whether a required field is missing or invalid, in which
// case the record must not be persisted.
func (e *ExtractionError) Dropped() bool {
	for _, f := range e.Fields {
		if f.Required {
			return true
		}
	}
	return false
}
