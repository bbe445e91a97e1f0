// Package schema defines the ordered intake questions.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalidSchema is wrapped by every schema construction failure.
var ErrInvalidSchema = errors.New("invalid schema")

// Field is one question/answer slot of the intake.
type Field struct {
	Key       string `yaml:"key"`
	Label     string `yaml:"label"`
	Prompt    string `yaml:"prompt"`
	Skippable bool   `yaml:"skippable"`
	// Validate names a validator registered in validators.go. Empty accepts any text.
	Validate string `yaml:"validate"`
}

// DisplayLabel returns the summary label, falling back to the key.
func (f Field) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Key
}

// Schema is the immutable ordered sequence of fields.
// Index Len() is the terminal "ready to finalize" position.
type Schema struct {
	fields []Field
	index  map[string]int
}

type document struct {
	Fields []Field `yaml:"fields"`
}

// New validates fields and builds a Schema. The slice is copied.
func New(fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrInvalidSchema)
	}

	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		f.Key = strings.TrimSpace(f.Key)
		if f.Key == "" {
			return nil, fmt.Errorf("%w: field %d has empty key", ErrInvalidSchema, i)
		}
		if strings.TrimSpace(f.Prompt) == "" {
			return nil, fmt.Errorf("%w: field %q has empty prompt", ErrInvalidSchema, f.Key)
		}
		if _, dup := s.index[f.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrInvalidSchema, f.Key)
		}
		if f.Validate != "" {
			if _, ok := validators[f.Validate]; !ok {
				return nil, fmt.Errorf("%w: field %q uses unknown validator %q", ErrInvalidSchema, f.Key, f.Validate)
			}
		}
		s.fields[i] = f
		s.index[f.Key] = i
	}
	return s, nil
}

// Parse builds a Schema from a YAML document with a top-level "fields" list.
func Parse(data []byte) (*Schema, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidSchema, err)
	}
	return New(doc.Fields)
}

// LoadFile reads and parses a schema file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in remodel intake schema.
func Default() *Schema {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic("schema: embedded default is invalid: " + err.Error())
	}
	return s
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Field returns the field at index i.
func (s *Schema) Field(i int) Field {
	return s.fields[i]
}

// Fields returns a copy of the ordered fields.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Index returns the position of key, or -1.
func (s *Schema) Index(key string) int {
	if i, ok := s.index[key]; ok {
		return i
	}
	return -1
}

// Keys returns the field keys in order.
func (s *Schema) Keys() []string {
	keys := make([]string, len(s.fields))
	for i, f := range s.fields {
		keys[i] = f.Key
	}
	return keys
}
