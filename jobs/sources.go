package jobs

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DatasetFormat is the encoding of a jurisprudence dataset
type DatasetFormat string

const (
	FormatJSON DatasetFormat = "json"
	FormatCSV  DatasetFormat = "csv"
	FormatXLSX DatasetFormat = "xlsx"
)

// Source describes where a tribunal publishes its decisions
type Source struct {
	Name     string        `yaml:"name"`
	Tribunal string        `yaml:"tribunal"`
	URL      string        `yaml:"url"`
	Format   DatasetFormat `yaml:"format"`
	Sheet    string        `yaml:"sheet,omitempty"`
}

// Sources is the set of configured ingestion sources, keyed by name
type Sources struct {
	byName map[string]Source
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the YAML source registry at path
func LoadSources(path string) (*Sources, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ingest sources: %w", err)
	}
	return ParseSources(raw)
}

// ParseSources decodes a YAML source registry
func ParseSources(raw []byte) (*Sources, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse ingest sources: %w", err)
	}
	s := &Sources{byName: make(map[string]Source, len(f.Sources))}
	for i, src := range f.Sources {
		src.Name = strings.ToLower(strings.TrimSpace(src.Name))
		if src.Name == "" {
			return nil, fmt.Errorf("ingest source %d has no name", i)
		}
		if _, dup := s.byName[src.Name]; dup {
			return nil, fmt.Errorf("duplicate ingest source %q", src.Name)
		}
		if src.Format == "" {
			src.Format = formatFromPath(src.URL)
		}
		switch src.Format {
		case FormatJSON, FormatCSV, FormatXLSX:
		default:
			return nil, fmt.Errorf("ingest source %q: unsupported format %q", src.Name, src.Format)
		}
		s.byName[src.Name] = src
	}
	return s, nil
}

// Lookup returns the named source
func (s *Sources) Lookup(name string) (Source, bool) {
	if s == nil {
		return Source{}, false
	}
	src, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	return src, ok
}

func formatFromPath(p string) DatasetFormat {
	p = strings.ToLower(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch {
	case strings.HasSuffix(p, ".csv"):
		return FormatCSV
	case strings.HasSuffix(p, ".xlsx"):
		return FormatXLSX
	}
	return FormatJSON
}
