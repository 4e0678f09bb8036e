// Package assets provides the prompt documents used to instruct the model.
//
// Documents are text files under prompts/ embedded at compile time. A deployment
// can point the store at a directory to override them without rebuilding; the
// override is all-or-nothing, so a missing file there is an error rather than a
// silent fallback to the embedded copy.
package assets

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"
)

// Document keys.
const (
	SystemPromptKey     = "tal-system"
	UserMessageKey      = "user-message"
	RetryInstructionKey = "retry-instruction"
)

//go:embed prompts/*.txt
var promptFS embed.FS

// ErrDocumentNotFound is returned when no document exists for a key.
var ErrDocumentNotFound = errors.New("document not found")

// Store looks up prompt documents by key.
type Store struct {
	fsys   fs.FS
	source string
}

// Embedded returns a Store over the documents compiled into the binary.
func Embedded() *Store {
	sub, err := fs.Sub(promptFS, "prompts")
	if err != nil {
		// prompts/ is part of the embed pattern, Sub cannot fail.
		panic(err)
	}
	return &Store{fsys: sub, source: "embedded"}
}

// Dir returns a Store reading <dir>/<key>.txt from disk.
func Dir(dir string) *Store {
	return &Store{fsys: os.DirFS(dir), source: dir}
}

// Source describes where documents are read from, for logging.
func (s *Store) Source() string {
	return s.source
}

// Document returns the verbatim text stored under key.
func (s *Store) Document(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid document key %q", key)
	}
	data, err := fs.ReadFile(s.fsys, key+".txt")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s (source %s)", ErrDocumentNotFound, key, s.source)
		}
		return "", fmt.Errorf("read document %s from %s: %w", key, s.source, err)
	}
	return string(data), nil
}

// UserMessageData holds the values rendered into the user-message template.
type UserMessageData struct {
	Request     string
	ReferenceID string
	Size        string
	Seed        string
	Style       string
	Assumptions []string
	PolicyNotes []string
	Schema      string
}

// RetryData holds the values rendered into the retry instruction.
type RetryData struct {
	Reason string
}

// RenderUserMessage renders the user-message document with data.
func (s *Store) RenderUserMessage(data UserMessageData) (string, error) {
	return s.render(UserMessageKey, data)
}

// RenderRetryInstruction renders the retry instruction appended on the second attempt.
func (s *Store) RenderRetryInstruction(reason string) (string, error) {
	return s.render(RetryInstructionKey, RetryData{Reason: reason})
}

func (s *Store) render(key string, data any) (string, error) {
	text, err := s.Document(key)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(key).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", key, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", key, err)
	}
	return buf.String(), nil
}
