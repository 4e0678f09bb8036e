// Package jsonutil extracts JSON objects from LLM responses that may be wrapped
// in markdown code fences or surrounded by prose.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrNoObject is returned when the text holds no JSON object at all.
var ErrNoObject = errors.New("no JSON object found")

// StripMarkdownFences removes ```json ... ``` or ``` ... ``` wrapping from text.
// Returns the content between the fences, or the trimmed text if it is not fenced.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return strings.Trim(text, "`")
	}

	endIdx := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}

	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}

// ExtractObject returns the span from the first '{' to the last '}' in text.
func ExtractObject(text string) (string, error) {
	start := strings.Index(text, "{")
	if start == -1 {
		return "", ErrNoObject
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return "", fmt.Errorf("unterminated JSON object")
	}
	return text[start : end+1], nil
}

// ObjectText strips fences and returns the JSON object text inside raw.
func ObjectText(raw string) (string, error) {
	body, err := ExtractObject(StripMarkdownFences(raw))
	if err != nil {
		return "", fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}
	return body, nil
}

// DecodeObject strips fences, extracts the JSON object and decodes it into a
// generic value suitable for schema validation. Numbers decode as float64;
// callers needing exact integers re-read them from ObjectText.
func DecodeObject(raw string) (map[string]any, error) {
	body, err := ObjectText(raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w (text: %s)", err, Preview(body, 200))
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON object (text: %s)", Preview(body, 200))
	}
	return obj, nil
}

// Remarshal converts a generic decoded value into the typed T.
func Remarshal[T any](v any) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Preview truncates s to at most n bytes for log and error messages. The cut
// never splits a UTF-8 sequence.
func Preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
