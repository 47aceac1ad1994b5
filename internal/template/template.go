// Package template provides the subject, bodies and attachments of a
// message. Content is used as given; nothing is rendered.
package template

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoSubject is returned when a template file has no subject.
var ErrNoSubject = errors.New("template has no subject")

// Attachment is a file to attach, shown to recipients as Name.
type Attachment struct {
	Path string `yaml:"path"`
	Name string `yaml:"name"`
}

// DisplayName returns Name, or the base name of Path when Name is empty.
func (a Attachment) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return filepath.Base(a.Path)
}

// Template supplies the content of one message.
type Template interface {
	Subject() string
	// HTMLBody returns the HTML body, or "" for a plaintext message.
	HTMLBody() string
	PlaintextBody() string
	// Attachments returns the attachments in the order they are sent.
	Attachments() []Attachment
}

// Static is a Template whose content is fixed at construction.
type Static struct {
	SubjectText string       `yaml:"subject"`
	HTML        string       `yaml:"html"`
	Text        string       `yaml:"text"`
	Files       []Attachment `yaml:"attachments"`
}

var _ Template = (*Static)(nil)

// Subject returns SubjectText.
func (s *Static) Subject() string { return s.SubjectText }

// HTMLBody returns HTML.
func (s *Static) HTMLBody() string { return s.HTML }

// PlaintextBody returns Text.
func (s *Static) PlaintextBody() string { return s.Text }

// Attachments returns Files.
func (s *Static) Attachments() []Attachment { return s.Files }

// Load reads a YAML template file. Relative attachment paths are resolved
// against the directory of the file.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	var s Static
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse template file: %w", err)
	}

	if strings.TrimSpace(s.SubjectText) == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSubject)
	}

	dir := filepath.Dir(path)
	for i, att := range s.Files {
		if att.Path != "" && !filepath.IsAbs(att.Path) {
			s.Files[i].Path = filepath.Join(dir, att.Path)
		}
	}

	return &s, nil
}
