package schema

import (
	"database/sql"
	"fmt"
)

const (
	required = false
	nullable = true
)

// Entity names.
const (
	PrimaryItemEntity = "primary_item"
	RelatedItemEntity = "related_item"
	TagEntity         = "tag"
	HintEntity        = "hint"
	EnrichmentEntity  = "enrichment"
)

// PrimaryItem is a catalog problem, keyed by its slug.
type PrimaryItem struct {
	SourceID    sql.NullInt64
	ItemID      sql.NullString
	Title       sql.NullString
	Difficulty  sql.NullString
	Likes       sql.NullString
	Dislikes    sql.NullInt64
	Content     sql.NullString
	TextContent sql.NullString
	PaidOnly    sql.NullInt64
	SampleCase  sql.NullString
	Accepted    sql.NullInt64
	Submitted   sql.NullInt64
	AcceptRate  sql.NullFloat64
}

var primaryItemFields = fieldTable[PrimaryItem]{
	intField("source_id", required, func(r *PrimaryItem) *sql.NullInt64 { return &r.SourceID }),
	textField("item_id", required, func(r *PrimaryItem) *sql.NullString { return &r.ItemID }),
	textField("title", nullable, func(r *PrimaryItem) *sql.NullString { return &r.Title }),
	textField("difficulty", nullable, func(r *PrimaryItem) *sql.NullString { return &r.Difficulty }),
	textField("likes", nullable, func(r *PrimaryItem) *sql.NullString { return &r.Likes }),
	intField("dislikes", nullable, func(r *PrimaryItem) *sql.NullInt64 { return &r.Dislikes }),
	textField("content", nullable, func(r *PrimaryItem) *sql.NullString { return &r.Content }),
	textField("text_content", nullable, func(r *PrimaryItem) *sql.NullString { return &r.TextContent }),
	intField("paid_only", nullable, func(r *PrimaryItem) *sql.NullInt64 { return &r.PaidOnly }),
	textField("sample_case", nullable, func(r *PrimaryItem) *sql.NullString { return &r.SampleCase }),
	intField("accepted", nullable, func(r *PrimaryItem) *sql.NullInt64 { return &r.Accepted }),
	intField("submitted", nullable, func(r *PrimaryItem) *sql.NullInt64 { return &r.Submitted }),
	floatField("accept_rate", nullable, func(r *PrimaryItem) *sql.NullFloat64 { return &r.AcceptRate }),
}

var primaryItemEntity = &Entity{
	Name:   PrimaryItemEntity,
	Table:  "items",
	Key:    SingleKey("item_id"),
	Fields: primaryItemFields.fields(),
}

func (r *PrimaryItem) Entity() *Entity { return primaryItemEntity }
func (r *PrimaryItem) Get(name string) (Value, bool) {
	return primaryItemFields.get(primaryItemEntity, r, name)
}
func (r *PrimaryItem) Set(name string, v Value) error {
	return primaryItemFields.set(primaryItemEntity, r, name, v)
}
func (r *PrimaryItem) Clear(name string) error {
	return primaryItemFields.clear(primaryItemEntity, r, name)
}

// RelatedItem links a problem to a similar problem.
type RelatedItem struct {
	SourceID          sql.NullInt64
	ItemID            sql.NullString
	RelatedID         sql.NullString
	RelatedTitle      sql.NullString
	RelatedDifficulty sql.NullString
}

var relatedItemFields = fieldTable[RelatedItem]{
	intField("source_id", nullable, func(r *RelatedItem) *sql.NullInt64 { return &r.SourceID }),
	textField("item_id", required, func(r *RelatedItem) *sql.NullString { return &r.ItemID }),
	textField("related_id", required, func(r *RelatedItem) *sql.NullString { return &r.RelatedID }),
	textField("related_title", nullable, func(r *RelatedItem) *sql.NullString { return &r.RelatedTitle }),
	textField("related_difficulty", nullable, func(r *RelatedItem) *sql.NullString { return &r.RelatedDifficulty }),
}

var relatedItemEntity = &Entity{
	Name:   RelatedItemEntity,
	Table:  "related_items",
	Key:    CompositeKey("item_id", "related_id"),
	Fields: relatedItemFields.fields(),
}

func (r *RelatedItem) Entity() *Entity { return relatedItemEntity }
func (r *RelatedItem) Get(name string) (Value, bool) {
	return relatedItemFields.get(relatedItemEntity, r, name)
}
func (r *RelatedItem) Set(name string, v Value) error {
	return relatedItemFields.set(relatedItemEntity, r, name, v)
}
func (r *RelatedItem) Clear(name string) error {
	return relatedItemFields.clear(relatedItemEntity, r, name)
}

// Tag is a topic tag attached to a problem.
type Tag struct {
	SourceID sql.NullInt64
	ItemID   sql.NullString
	TagID    sql.NullString
	TagName  sql.NullString
}

var tagFields = fieldTable[Tag]{
	intField("source_id", nullable, func(r *Tag) *sql.NullInt64 { return &r.SourceID }),
	textField("item_id", required, func(r *Tag) *sql.NullString { return &r.ItemID }),
	textField("tag_id", required, func(r *Tag) *sql.NullString { return &r.TagID }),
	textField("tag_name", nullable, func(r *Tag) *sql.NullString { return &r.TagName }),
}

var tagEntity = &Entity{
	Name:   TagEntity,
	Table:  "tags",
	Key:    CompositeKey("item_id", "tag_id"),
	Fields: tagFields.fields(),
}

func (r *Tag) Entity() *Entity                { return tagEntity }
func (r *Tag) Get(name string) (Value, bool)  { return tagFields.get(tagEntity, r, name) }
func (r *Tag) Set(name string, v Value) error { return tagFields.set(tagEntity, r, name, v) }
func (r *Tag) Clear(name string) error        { return tagFields.clear(tagEntity, r, name) }

// Hint is one hint string for a problem. The text itself is part of the key.
type Hint struct {
	SourceID sql.NullInt64
	ItemID   sql.NullString
	HintText sql.NullString
}

var hintFields = fieldTable[Hint]{
	intField("source_id", nullable, func(r *Hint) *sql.NullInt64 { return &r.SourceID }),
	textField("item_id", required, func(r *Hint) *sql.NullString { return &r.ItemID }),
	textField("hint_text", required, func(r *Hint) *sql.NullString { return &r.HintText }),
}

var hintEntity = &Entity{
	Name:   HintEntity,
	Table:  "hints",
	Key:    CompositeKey("item_id", "hint_text"),
	Fields: hintFields.fields(),
}

func (r *Hint) Entity() *Entity                { return hintEntity }
func (r *Hint) Get(name string) (Value, bool)  { return hintFields.get(hintEntity, r, name) }
func (r *Hint) Set(name string, v Value) error { return hintFields.set(hintEntity, r, name, v) }
func (r *Hint) Clear(name string) error        { return hintFields.clear(hintEntity, r, name) }

// Enrichment is the optional official solution of a problem.
type Enrichment struct {
	SourceID    sql.NullInt64
	ItemID      sql.NullString
	URL         sql.NullString
	Content     sql.NullString
	Visible     sql.NullInt64
	Rating      sql.NullFloat64
	RatingCount sql.NullInt64
}

var enrichmentFields = fieldTable[Enrichment]{
	intField("source_id", nullable, func(r *Enrichment) *sql.NullInt64 { return &r.SourceID }),
	textField("item_id", required, func(r *Enrichment) *sql.NullString { return &r.ItemID }),
	textField("url", nullable, func(r *Enrichment) *sql.NullString { return &r.URL }),
	textField("content", nullable, func(r *Enrichment) *sql.NullString { return &r.Content }),
	intField("visible", nullable, func(r *Enrichment) *sql.NullInt64 { return &r.Visible }),
	floatField("rating", nullable, func(r *Enrichment) *sql.NullFloat64 { return &r.Rating }),
	intField("rating_count", nullable, func(r *Enrichment) *sql.NullInt64 { return &r.RatingCount }),
}

var enrichmentEntity = &Entity{
	Name:   EnrichmentEntity,
	Table:  "enrichments",
	Key:    SingleKey("item_id"),
	Fields: enrichmentFields.fields(),
}

func (r *Enrichment) Entity() *Entity { return enrichmentEntity }
func (r *Enrichment) Get(name string) (Value, bool) {
	return enrichmentFields.get(enrichmentEntity, r, name)
}
func (r *Enrichment) Set(name string, v Value) error {
	return enrichmentFields.set(enrichmentEntity, r, name, v)
}
func (r *Enrichment) Clear(name string) error {
	return enrichmentFields.clear(enrichmentEntity, r, name)
}

// Entities returns every entity in table-creation order.
func Entities() []*Entity {
	return []*Entity{primaryItemEntity, relatedItemEntity, tagEntity, hintEntity, enrichmentEntity}
}

// Lookup returns the entity with the given name.
func Lookup(name string) (*Entity, error) {
	for _, e := range Entities() {
		if e.Name == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("unknown entity %q", name)
}

// New returns an empty record of the named entity.
func New(name string) (Record, error) {
	switch name {
	case PrimaryItemEntity:
		return &PrimaryItem{}, nil
	case RelatedItemEntity:
		return &RelatedItem{}, nil
	case TagEntity:
		return &Tag{}, nil
	case HintEntity:
		return &Hint{}, nil
	case EnrichmentEntity:
		return &Enrichment{}, nil
	}
	return nil, fmt.Errorf("unknown entity %q", name)
}
