// Package planio reads plan sources (Markdown or YAML) into a
// models.Plan: decompose(source) -> Plan.
package planio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a plan source's encoding.
type Format int

const (
	FormatUnknown Format = iota
	FormatMarkdown
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// DetectFormat infers a Format from a file extension.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// Decomposer reads a plan source and produces a models.Plan.
type Decomposer interface {
	Decompose(r io.Reader) (*PlanSource, error)
}

// New returns the Decomposer for format, or an error for FormatUnknown.
func New(format Format) (Decomposer, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownDecomposer(), nil
	case FormatYAML:
		return NewYAMLDecomposer(), nil
	default:
		return nil, fmt.Errorf("planio: unsupported format %v", format)
	}
}

// DecomposeFile auto-detects path's format, reads it, and decomposes it
// into a PlanSource, stamping every task's SourceFile with path.
func DecomposeFile(path string) (*PlanSource, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("planio: unknown plan format for %s (supported: .md, .markdown, .yaml, .yml)", path)
	}

	decomposer, err := New(format)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("planio: open %s: %w", path, err)
	}
	defer f.Close()

	src, err := decomposer.Decompose(f)
	if err != nil {
		return nil, fmt.Errorf("planio: decompose %s: %w", path, err)
	}
	for i := range src.Plan.Tasks {
		src.Plan.Tasks[i].SourceFile = path
	}
	return src, nil
}
