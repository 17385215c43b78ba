package preview

import (
	"bufio"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Heading is one entry of a markdown document's outline.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	Path  string `json:"path"` // e.g. "Invoice > Line items"
	Line  int    `json:"line"`
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

// splitFrontmatter separates a leading YAML block from the body. Malformed
// YAML yields no metadata but still strips the block.
func splitFrontmatter(text string) (map[string]any, string, int) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return nil, text, 0
	}
	end := strings.Index(text[4:], "\n---")
	if end < 0 {
		return nil, text, 0
	}

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(text[4:4+end]), &meta); err != nil {
		meta = nil
	}
	body := text[4+end+4:]
	skipped := strings.Count(text[:4+end+4], "\n") + 1
	if strings.HasPrefix(body, "\n") {
		body = body[1:]
	} else {
		skipped--
	}
	return meta, body, skipped
}

// markdownOutline returns the document title and its heading tree.
// The title comes from frontmatter "title", else the first level-1 heading.
// Headings inside fenced code blocks are ignored.
func markdownOutline(text string) (string, []Heading) {
	meta, body, offset := splitFrontmatter(text)

	var outline []Heading
	var path []string
	var levels []int
	inFence := false

	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := offset
	for sc.Scan() {
		line++
		s := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(s), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingRe.FindStringSubmatch(s)
		if m == nil {
			continue
		}

		level := len(m[1])
		for len(levels) > 0 && levels[len(levels)-1] >= level {
			path = path[:len(path)-1]
			levels = levels[:len(levels)-1]
		}
		path = append(path, m[2])
		levels = append(levels, level)
		outline = append(outline, Heading{Level: level, Text: m[2], Path: strings.Join(path, " > "), Line: line})
	}

	title, _ := meta["title"].(string)
	if title == "" {
		for _, h := range outline {
			if h.Level == 1 {
				title = h.Text
				break
			}
		}
	}
	return title, outline
}
