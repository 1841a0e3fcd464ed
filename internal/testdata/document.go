// Package testdata manages the YAML test data document: synthetic record
// generation, shallow updates, rule-table validation, per-type backups and
// named browser environments.
//
// Every mutation is a locked read-modify-write of the whole document (see
// package filelock), so concurrent writers never lose each other's changes.
package testdata

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultUserAgent is the user agent given to new environments
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Viewport is a browser window size
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Environment is one named browser/test target configuration
type Environment struct {
	BaseURL   string   `yaml:"baseUrl" json:"baseUrl"`
	Timeout   int      `yaml:"timeout" json:"timeout"`
	Retries   int      `yaml:"retries" json:"retries"`
	Headless  bool     `yaml:"headless" json:"headless"`
	SlowMo    int      `yaml:"slowMo" json:"slowMo"`
	Viewport  Viewport `yaml:"viewport" json:"viewport"`
	UserAgent string   `yaml:"userAgent" json:"userAgent"`
}

// DefaultEnvironment returns the values a created environment starts from
func DefaultEnvironment() Environment {
	return Environment{
		BaseURL:   "https://example.com",
		Timeout:   30000,
		Retries:   2,
		Headless:  false,
		SlowMo:    1000,
		Viewport:  Viewport{Width: 1920, Height: 1080},
		UserAgent: DefaultUserAgent,
	}
}

// Document is the whole test data file. Keys this package does not manage
// are kept in Extra and written back unchanged.
type Document struct {
	TestData          map[string]interface{}  `yaml:"testData"`
	Environments      map[string]*Environment `yaml:"environments,omitempty"`
	ActiveEnvironment string                  `yaml:"activeEnvironment,omitempty"`
	Extra             map[string]interface{}  `yaml:",inline"`
}

// DefaultDocument is used when the data file does not exist yet
func DefaultDocument() *Document {
	env := func(baseURL string, retries int, headless bool, slowMo int) *Environment {
		e := DefaultEnvironment()
		e.BaseURL = baseURL
		e.Retries = retries
		e.Headless = headless
		e.SlowMo = slowMo
		return &e
	}
	return &Document{
		TestData: map[string]interface{}{
			"validUser": map[string]interface{}{
				"username": "testuser",
				"password": "testpass",
				"email":    "test@example.com",
			},
			"invalidUser": map[string]interface{}{
				"username": "invaliduser",
				"password": "invalidpass",
				"email":    "invalid@example.com",
			},
		},
		Environments: map[string]*Environment{
			"dev":        env("https://dev.example.com", 2, false, 1000),
			"staging":    env("https://staging.example.com", 1, true, 500),
			"production": env("https://example.com", 0, true, 0),
		},
	}
}

// ParseDocument decodes a YAML document
func ParseDocument(data []byte) (*Document, error) {
	doc := &Document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse test data document: %w", err)
	}
	doc.normalize()
	return doc, nil
}

// Marshal encodes the document as YAML with two-space indentation
func (d *Document) Marshal() ([]byte, error) {
	return marshalYAML(d)
}

func (d *Document) normalize() {
	if d.TestData == nil {
		d.TestData = map[string]interface{}{}
	}
	if d.Environments == nil {
		d.Environments = map[string]*Environment{}
	}
}

func marshalYAML(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// overlay applies the keys present in patch onto dst, leaving absent keys
// untouched. dst must be a pointer to a yaml-tagged struct.
func overlay(dst interface{}, patch map[string]interface{}) error {
	if len(patch) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(patch)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, dst)
}
