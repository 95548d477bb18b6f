// Package catalog decomposes catalog documents into schema records.
//
// A listing document yields one PrimaryItem per entry. A detail document
// yields one PrimaryItem, then its related items, tags and hints, then at
// most one Enrichment. Records are produced lazily; entities that cannot be
// extracted are reported in-line and skipped so their siblings still flow.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/japaniel/leetcrawl/pkg/extract"
	"github.com/japaniel/leetcrawl/pkg/htmltext"
	"github.com/japaniel/leetcrawl/pkg/schema"
)

// Records is a single-use sequence of records. A nil record is paired with
// the *extract.ExtractionError explaining why the entity was dropped. A
// non-nil record may carry a non-fatal error naming optional fields that
// could not be filled; such records are still meant to be persisted.
type Records = iter.Seq2[schema.Record, error]

func newPrimaryItem() schema.Record { return &schema.PrimaryItem{} }
func newRelatedItem() schema.Record { return &schema.RelatedItem{} }
func newTag() schema.Record         { return &schema.Tag{} }
func newHint() schema.Record        { return &schema.Hint{} }
func newEnrichment() schema.Record  { return &schema.Enrichment{} }

var listingPlan = extract.MustPlan(newPrimaryItem,
	extract.Field("source_id").At("stat", "question_id"),
	extract.Field("item_id").At("stat", "question__title_slug"),
	extract.Field("title").At("stat", "question__title"),
	extract.Field("accepted").At("stat", "total_acs"),
	extract.Field("submitted").At("stat", "total_submitted"),
	extract.Field("paid_only"),
)

// DecodeListing parses a listing response. Both the API envelope
// ({"stat_status_pairs": [...]}) and a bare array of entries are accepted.
func DecodeListing(body []byte) ([]any, error) {
	v, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}
	switch doc := v.(type) {
	case []any:
		return doc, nil
	case map[string]any:
		if pairs, ok := doc["stat_status_pairs"].([]any); ok {
			return pairs, nil
		}
	}
	return nil, errors.New("listing: no entries found")
}

// DecodeDetail parses a detail response. The GraphQL envelope
// ({"data": {"question": {...}}}) is unwrapped; a bare object is returned as-is.
func DecodeDetail(body []byte) (map[string]any, error) {
	v, err := decodeJSON(body)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("detail: document is not an object")
	}
	if data, ok := doc["data"].(map[string]any); ok {
		if _, present := data["question"]; present {
			q, ok := data["question"].(map[string]any)
			if !ok {
				return nil, errors.New("detail: question is null")
			}
			return q, nil
		}
	}
	return doc, nil
}

func decodeJSON(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty document")
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return v, nil
}

// Listing yields one PrimaryItem per listing entry.
func Listing(entries []any) Records {
	return once(func(yield func(schema.Record, error) bool) {
		for _, e := range entries {
			if !emit(yield, listingPlan, e) {
				return
			}
		}
	})
}

// ListingBody decodes body and yields its PrimaryItems. An unreadable body
// yields a single extraction error.
func ListingBody(body []byte) Records {
	entries, err := DecodeListing(body)
	if err != nil {
		return failed(schema.PrimaryItemEntity, err)
	}
	return Listing(entries)
}

// DetailBody decodes body and decomposes it for slug.
func DetailBody(slug string, body []byte) Records {
	doc, err := DecodeDetail(body)
	if err != nil {
		return failed(schema.PrimaryItemEntity, err)
	}
	return Detail(slug, doc)
}

// Detail decomposes one detail document for the item identified by slug.
// doc is not modified.
func Detail(slug string, doc map[string]any) Records {
	return once(func(yield func(schema.Record, error) bool) {
		// Embedded JSON blocks are decoded into a shallow copy.
		d := make(map[string]any, len(doc))
		for k, v := range doc {
			d[k] = v
		}
		var blockErrs []extract.FieldError
		for _, key := range []string{"stats", "similarQuestions"} {
			v, err := decodeEmbedded(d[key])
			if err != nil {
				blockErrs = append(blockErrs, extract.FieldError{Field: key, Err: err})
				v = nil
			}
			d[key] = v
		}

		sourceID := d["questionId"]
		if !emitItem(yield, scoped(slug, sourceID, d), blockErrs) {
			return
		}

		related, _ := d["similarQuestions"].([]any)
		for _, r := range related {
			if !emit(yield, relatedPlan, scoped(slug, sourceID, r)) {
				return
			}
		}

		tags, _ := d["topicTags"].([]any)
		for _, tg := range tags {
			if !emit(yield, tagPlan, scoped(slug, sourceID, tg)) {
				return
			}
		}

		hints, _ := d["hints"].([]any)
		for _, h := range hints {
			if !emit(yield, hintPlan, scoped(slug, sourceID, h)) {
				return
			}
		}

		solution, _ := d["solution"].(map[string]any)
		if len(solution) == 0 {
			return
		}
		rec, err := enrichmentPlan.Load(scoped(slug, sourceID, solution))
		if !hasContent(rec) {
			return
		}
		send(yield, rec, err)
	})
}

// Per-document plans read from scoped input: the node being extracted under
// "node" next to the identifiers of the item it belongs to.
var (
	itemPlan = extract.MustPlan(newPrimaryItem,
		extract.Field("source_id"),
		extract.Field("item_id"),
		extract.Field("title").At("node", "title"),
		extract.Field("difficulty").At("node", "difficulty"),
		extract.Field("likes").At("node", "likes"),
		extract.Field("dislikes").At("node", "dislikes"),
		extract.Field("content").At("node", "content"),
		extract.Field("text_content").At("node", "content").Then(htmltext.Transform),
		extract.Field("paid_only").At("node", "isPaidOnly"),
		extract.Field("sample_case").At("node", "sampleTestCase"),
		extract.Field("accepted").At("node", "stats", "totalAcceptedRaw"),
		extract.Field("submitted").At("node", "stats", "totalSubmissionRaw"),
		extract.Field("accept_rate").At("node", "stats", "acRate").Capture(`(?P<rate>.+)%`),
	)
	relatedPlan = extract.MustPlan(newRelatedItem,
		extract.Field("source_id"),
		extract.Field("item_id"),
		extract.Field("related_id").At("node", "titleSlug"),
		extract.Field("related_title").At("node", "title"),
		extract.Field("related_difficulty").At("node", "difficulty"),
	)
	tagPlan = extract.MustPlan(newTag,
		extract.Field("source_id"),
		extract.Field("item_id"),
		extract.Field("tag_id").At("node", "slug"),
		extract.Field("tag_name").At("node", "name"),
	)
	hintPlan = extract.MustPlan(newHint,
		extract.Field("source_id"),
		extract.Field("item_id"),
		extract.Field("hint_text").At("node"),
	)
	// Rating fields stay unset unless the rating object carries them.
	enrichmentPlan = extract.MustPlan(newEnrichment,
		extract.Field("source_id"),
		extract.Field("item_id"),
		extract.Field("url").At("node", "url"),
		extract.Field("content").At("node", "content"),
		extract.Field("visible").At("node", "canSeeDetail"),
		extract.Field("rating").At("node", "rating", "average"),
		extract.Field("rating_count").At("node", "rating", "count"),
	)
)

var enrichmentContent = []string{"url", "content", "visible", "rating", "rating_count"}

func scoped(slug string, sourceID, node any) map[string]any {
	return map[string]any{"item_id": slug, "source_id": sourceID, "node": node}
}

// hasContent reports whether an enrichment carries anything beyond its keys.
func hasContent(rec schema.Record) bool {
	for _, name := range enrichmentContent {
		if _, ok := rec.Get(name); ok {
			return true
		}
	}
	return false
}

func emitItem(yield func(schema.Record, error) bool, input map[string]any, blockErrs []extract.FieldError) bool {
	rec, err := itemPlan.Load(input)
	if len(blockErrs) > 0 {
		var xerr *extract.ExtractionError
		if !errors.As(err, &xerr) {
			xerr = &extract.ExtractionError{Entity: schema.PrimaryItemEntity}
		}
		xerr.Fields = append(xerr.Fields, blockErrs...)
		err = xerr
	}
	return send(yield, rec, err)
}

func emit(yield func(schema.Record, error) bool, plan *extract.Plan, input any) bool {
	rec, err := plan.Load(input)
	return send(yield, rec, err)
}

func send(yield func(schema.Record, error) bool, rec schema.Record, err error) bool {
	var xerr *extract.ExtractionError
	if errors.As(err, &xerr) && xerr.Dropped() {
		return yield(nil, xerr)
	}
	return yield(rec, err)
}

// decodeEmbedded parses blocks the API ships as serialized JSON strings.
// Already-structured values pass through.
func decodeEmbedded(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	if len(bytes.TrimSpace([]byte(s))) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode embedded block: %w", err)
	}
	return out, nil
}

func failed(entity string, err error) Records {
	return once(func(yield func(schema.Record, error) bool) {
		yield(nil, extract.DocumentError(entity, err))
	})
}

// once makes seq single-use: later traversals yield nothing.
func once(seq Records) Records {
	var used atomic.Bool
	return func(yield func(schema.Record, error) bool) {
		if used.Swap(true) {
			return
		}
		seq(yield)
	}
}
