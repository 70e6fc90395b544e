package caption

import (
	"encoding/json"
	"fmt"
)

// Extractor looks for a caption in one known response shape. ok is false when the shape is absent.
type Extractor func(doc any) (caption string, ok bool)

// extractors run in order; the first hit wins. Remote response schemas drift between
// API versions and model families, so several shapes are tried before giving up.
var extractors = []Extractor{
	topLevelText,
	outputContentText,
	candidateContentText,
	choiceMessageContent,
	plainString,
}

// Extract returns the caption found in doc. When no extractor matches, the whole document
// is serialized so callers always get a value.
func Extract(doc any) string {
	for _, ex := range extractors {
		if s, ok := ex(doc); ok {
			return s
		}
	}
	return serialize(doc)
}

// {"text": "..."}
func topLevelText(doc any) (string, bool) {
	return nonEmptyString(field(doc, "text"))
}

// {"output": [{"content": [{...}, {"text": "..."}]}]}: first content item with text in the first output entry.
func outputContentText(doc any) (string, bool) {
	items, _ := field(index(field(doc, "output"), 0), "content").([]any)
	for _, item := range items {
		if s, ok := nonEmptyString(field(item, "text")); ok {
			return s, true
		}
	}
	return "", false
}

// {"candidates": [{"content": [{"text": "..."}]}]}
func candidateContentText(doc any) (string, bool) {
	return nonEmptyString(field(index(field(index(field(doc, "candidates"), 0), "content"), 0), "text"))
}

// {"choices": [{"message": {"content": "..."}}]}, as returned by OpenAI-compatible providers.
func choiceMessageContent(doc any) (string, bool) {
	return nonEmptyString(field(field(index(field(doc, "choices"), 0), "message"), "content"))
}

// The whole reply is a bare string. Kept as a last resort; not known to be produced by any provider.
func plainString(doc any) (string, bool) {
	s, ok := doc.(string)
	return s, ok
}

func serialize(doc any) string {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Sprintf("%v", doc)
	}
	return string(b)
}

func field(v any, key string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}

func index(v any, i int) any {
	s, ok := v.([]any)
	if !ok || i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
