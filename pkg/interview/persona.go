package interview

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TimelineEvent is one dated fact in a persona's life, used to ground the
// simulated subject's answers.
type TimelineEvent struct {
	Age         int    `yaml:"age"`
	Year        int    `yaml:"year,omitempty"`
	Description string `yaml:"description"`
	Details     string `yaml:"details,omitempty"`
}

// Persona describes a simulated interview subject. Persona files are
// markdown documents with a YAML frontmatter block; the markdown body is
// free-form background the simulation may draw on.
type Persona struct {
	Name        string          `yaml:"name"`
	Age         int             `yaml:"age"`
	Gender      string          `yaml:"gender,omitempty"`
	Personality string          `yaml:"personality,omitempty"`
	Behavior    string          `yaml:"behavior,omitempty"`
	Birthplace  string          `yaml:"birthplace,omitempty"`
	Timeline    []TimelineEvent `yaml:"timeline,omitempty"`

	// Background is the markdown body below the frontmatter.
	Background string `yaml:"-"`

	// Path records where the persona was loaded from, for batch reporting.
	Path string `yaml:"-"`
}

// Validate checks the fields the simulation cannot work without.
func (p *Persona) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("persona has no name")
	}
	if p.Age < 0 {
		return fmt.Errorf("persona %q has negative age %d", p.Name, p.Age)
	}
	return nil
}

var frontmatterDelim = []byte("---")

// splitFrontmatter separates a document into its YAML frontmatter and
// markdown body. Documents without a leading "---" are treated as pure YAML
// with no body, so plain .yaml persona files also load.
func splitFrontmatter(data []byte) (meta, body []byte) {
	trimmed := bytes.TrimLeft(data, "\uFEFF\n\r ")
	if !bytes.HasPrefix(trimmed, frontmatterDelim) {
		return data, nil
	}

	rest := trimmed[len(frontmatterDelim):]
	rest = bytes.TrimPrefix(rest, []byte("\r"))
	if len(rest) > 0 && rest[0] == '\n' {
		rest = rest[1:]
	} else {
		// "---" not on its own line; not frontmatter.
		return data, nil
	}

	for _, end := range [][]byte{[]byte("\n---\n"), []byte("\n---\r\n"), []byte("\n---")} {
		if idx := bytes.Index(rest, end); idx >= 0 {
			return rest[:idx], rest[idx+len(end):]
		}
	}
	// Unterminated frontmatter: treat the whole remainder as YAML.
	return rest, nil
}

// LoadPersona reads and validates a persona file.
func LoadPersona(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file %s: %w", path, err)
	}

	meta, body := splitFrontmatter(data)

	var p Persona
	if err := yaml.Unmarshal(meta, &p); err != nil {
		return nil, fmt.Errorf("failed to parse persona file %s: %w", path, err)
	}
	p.Background = strings.TrimSpace(string(body))
	p.Path = path

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid persona file %s: %w", path, err)
	}
	return &p, nil
}

// PersonaFiles lists the persona files in dir (*.md, *.yaml, *.yml), sorted
// by filename so batch runs are deterministic. Files starting with "_" or
// "." are skipped. The files are not parsed; batch runs contain per-file
// failures instead of refusing the whole directory.
func PersonaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".md", ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("no persona files found in %s", dir)
	}
	return paths, nil
}

// LoadPersonaDir loads every persona file in dir, failing on the first
// invalid one.
func LoadPersonaDir(dir string) ([]*Persona, error) {
	paths, err := PersonaFiles(dir)
	if err != nil {
		return nil, err
	}

	personas := make([]*Persona, 0, len(paths))
	for _, path := range paths {
		p, err := LoadPersona(path)
		if err != nil {
			return nil, err
		}
		personas = append(personas, p)
	}
	return personas, nil
}
