package planio

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/nexusdev/nexus/internal/models"
)

// MarkdownDecomposer reads a plan expressed as Markdown: optional
// frontmatter for plan-level settings, then one "## Task <id>: <name>"
// section per task. A task section's prose becomes its Description; an
// optional fenced ```yaml block inside the section carries its structured
// fields (depends_on, files, estimate_minutes, acceptance_criterion,
// priority, worktree_group, metadata).
type MarkdownDecomposer struct {
	markdown goldmark.Markdown
}

func NewMarkdownDecomposer() *MarkdownDecomposer {
	return &MarkdownDecomposer{markdown: goldmark.New()}
}

type markdownFrontmatter struct {
	PlanID             string   `yaml:"plan_id"`
	DefaultAgent       string   `yaml:"default_agent"`
	EscalationChannels []string `yaml:"escalation_channels"`
}

var taskHeadingRe = regexp.MustCompile(`^Task\s+(\S+):\s*(.+)$`)

func (d *MarkdownDecomposer) Decompose(r io.Reader) (*PlanSource, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("planio: read markdown plan: %w", err)
	}

	body, frontmatter := extractFrontmatter(raw)
	fm := markdownFrontmatter{}
	if frontmatter != nil {
		if err := yaml.Unmarshal(frontmatter, &fm); err != nil {
			return nil, fmt.Errorf("planio: unmarshal markdown frontmatter: %w", err)
		}
	}

	doc := d.markdown.Parser().Parse(text.NewReader(body))
	tasks, err := extractTaskSections(doc, body)
	if err != nil {
		return nil, err
	}

	return &PlanSource{
		Plan:               &models.Plan{PlanID: fm.PlanID, Version: 1, Tasks: tasks},
		DefaultAgent:       fm.DefaultAgent,
		EscalationChannels: fm.EscalationChannels,
	}, nil
}

// section is one "## Task <id>: <name>" heading plus everything until the
// next level-2 heading.
type section struct {
	id, name string
	body     []byte
}

func extractTaskSections(doc ast.Node, source []byte) ([]models.Task, error) {
	var sections []section
	var current *section

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level != 2 {
			return ast.WalkContinue, nil
		}
		title := string(headingText(heading, source))
		m := taskHeadingRe.FindStringSubmatch(title)
		if m == nil {
			return ast.WalkContinue, nil
		}
		if current != nil {
			sections = append(sections, *current)
		}
		current = &section{id: m[1], name: m[2]}
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, fmt.Errorf("planio: walk markdown ast: %w", err)
	}
	if current != nil {
		sections = append(sections, *current)
	}

	// Re-walk to slice out each section's raw byte range, since goldmark's
	// AST gives us heading positions but not a ready-made "everything
	// until the next heading" span.
	populateSectionBodies(doc, source, sections)

	tasks := make([]models.Task, 0, len(sections))
	for _, s := range sections {
		fields, description, err := parseSectionBody(s.body)
		if err != nil {
			return nil, fmt.Errorf("planio: task %s (%s): %w", s.id, s.name, err)
		}
		fields.ID = s.id
		fields.Name = s.name
		tasks = append(tasks, fields.toTask(description))
	}
	return tasks, nil
}

func headingText(h *ast.Heading, source []byte) []byte {
	var buf bytes.Buffer
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.Bytes()
}

// populateSectionBodies finds each level-2 heading's line offset and
// slices the raw source from just after it to just before the next one.
func populateSectionBodies(doc ast.Node, source []byte, sections []section) {
	var offsets, lineStarts []int
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok && heading.Level == 2 {
			title := string(headingText(heading, source))
			if taskHeadingRe.MatchString(title) {
				lines := heading.Lines()
				if lines.Len() > 0 {
					offsets = append(offsets, lines.At(lines.Len()-1).Stop)
					lineStarts = append(lineStarts, bytes.LastIndexByte(source[:lines.At(0).Start], '\n')+1)
				}
			}
		}
		return ast.WalkContinue, nil
	})

	for i := range sections {
		start := 0
		if i < len(offsets) {
			start = offsets[i]
		}
		end := len(source)
		if i+1 < len(offsets) {
			end = lineStarts[i+1]
		}
		if start > end || start > len(source) {
			continue
		}
		if end > len(source) {
			end = len(source)
		}
		sections[i].body = source[start:end]
	}
}

var fencedYAMLRe = regexp.MustCompile("(?s)```ya?ml\\s*\\n(.*?)\\n```")

// parseSectionBody pulls an optional fenced yaml metadata block out of a
// task section's body and returns it alongside the remaining prose
// (trimmed), which becomes the task's Description.
func parseSectionBody(body []byte) (taskFields, string, error) {
	var fields taskFields
	text := string(body)

	if m := fencedYAMLRe.FindStringSubmatchIndex(text); m != nil {
		block := text[m[2]:m[3]]
		if err := yaml.Unmarshal([]byte(block), &fields); err != nil {
			return fields, "", fmt.Errorf("unmarshal metadata block: %w", err)
		}
		text = text[:m[0]] + text[m[1]:]
	}

	return fields, strings.TrimSpace(text), nil
}

func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))
	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}
	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			frontmatter := bytes.Join(lines[1:i], []byte("\n"))
			body := bytes.Join(lines[i+1:], []byte("\n"))
			return body, frontmatter
		}
	}
	return content, nil
}
