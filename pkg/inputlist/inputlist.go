// Package inputlist parses the task input format of spec.md §6: a UTF-8
// JSON file holding either a bare array of note descriptors or a
// `{query, notes: [...]}` object, and synthesizes a display URL when a
// descriptor supplies only note_id + xsec_token.
package inputlist

import (
	"encoding/json"
	"fmt"

	"github.com/hejianfang/xhs-crawl/pkg/xhsapi"
)

// DefaultHost is used to synthesize a note's display URL when only
// note_id + xsec_token are given.
const DefaultHost = "www.xiaohongshu.com"

// Descriptor is one input note descriptor (spec.md §3 NoteDescriptor).
// NoteURL is filled in by resolve when only note_id + xsec_token are given.
type Descriptor struct {
	NoteID              string `json:"note_id,omitempty"`
	SignedToken         string `json:"xsec_token,omitempty"`
	NoteURL             string `json:"note_url,omitempty"`
	ExpectedCommentCount int   `json:"expected_comment_count,omitempty"`
}

// List is the parsed form of an input file: an optional originating query
// plus the resolved descriptors.
type List struct {
	Query string
	Notes []Descriptor
}

type wrappedForm struct {
	Query string       `json:"query"`
	Notes []Descriptor `json:"notes"`
}

// Parse reads an input file's raw bytes and resolves every descriptor's
// NoteURL, synthesizing it from note_id + xsec_token when note_url is
// absent (spec.md §6).
func Parse(raw []byte) (List, error) {
	var descriptors []Descriptor

	var wrapped wrappedForm
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Notes != nil {
		for i := range wrapped.Notes {
			if err := resolve(&wrapped.Notes[i]); err != nil {
				return List{}, err
			}
		}
		return List{Query: wrapped.Query, Notes: wrapped.Notes}, nil
	}

	if err := json.Unmarshal(raw, &descriptors); err != nil {
		return List{}, fmt.Errorf("parsing input list: %w", err)
	}
	for i := range descriptors {
		if err := resolve(&descriptors[i]); err != nil {
			return List{}, err
		}
	}
	return List{Notes: descriptors}, nil
}

// resolve fills in NoteURL when absent, and validates that every descriptor
// provides either note_url or both note_id and xsec_token.
func resolve(d *Descriptor) error {
	if d.NoteURL != "" {
		return nil
	}
	if d.NoteID == "" || d.SignedToken == "" {
		return fmt.Errorf("descriptor must provide note_url or both note_id and xsec_token, got %+v", d)
	}
	d.NoteURL = fmt.Sprintf("https://%s/explore/%s?xsec_token=%s", DefaultHost, d.NoteID, d.SignedToken)
	return nil
}

// Encode renders a Descriptor back to its wire JSON form, the inverse of
// Parse+resolve for a single descriptor (spec.md §8's round-trip law:
// encoding a descriptor then parsing it back yields the same
// (note_id, signed_token) pair).
func Encode(d Descriptor) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding descriptor: %w", err)
	}
	return data, nil
}

// EncodeList renders a List back to the wrapped {query, notes} wire form,
// the shape written by the search_to_json.py-derived supplemented feature
// so its output can be read back in by Parse.
func EncodeList(l List) ([]byte, error) {
	data, err := json.MarshalIndent(wrappedForm{Query: l.Query, Notes: l.Notes}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding input list: %w", err)
	}
	return data, nil
}

// FromSearchResults converts a searchNotes response page into input
// descriptors, letting a keyword search seed a crawl without a
// hand-authored note list (the search_to_json.py-derived supplemented
// feature).
func FromSearchResults(query string, items []xhsapi.SearchNoteItem) List {
	notes := make([]Descriptor, 0, len(items))
	for _, it := range items {
		d := Descriptor{NoteID: it.NoteID, SignedToken: it.SignedToken}
		_ = resolve(&d)
		notes = append(notes, d)
	}
	return List{Query: query, Notes: notes}
}
