// Package render turns collaborator output into HTML fragments for the UI.
//
// Markdown handles the restricted dialect the explanation model writes:
// headings (#..####), fenced code, inline code, bold, italic, numbered and
// bulleted lists, and blank-line separated paragraphs. Everything outside a
// recognized construct is HTML-escaped before any markup is produced, so
// model or user text can never inject tags.
package render

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	sqlFence   = regexp.MustCompile("(?s)```sql\n(.*?)\n```")
	plainFence = regexp.MustCompile("(?s)```(.*?)```")
	infoString = regexp.MustCompile(`^[A-Za-z0-9_+.-]+$`)
	blankLine  = regexp.MustCompile(`(?m)^[ \t]+$`)
	inlineCode = regexp.MustCompile("`([^`\n]+)`")
	heading    = regexp.MustCompile(`(?m)^(#{1,4})[ \t]*(\S.*?)[ \t]*$`)
	bold       = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	italic     = regexp.MustCompile(`\*([^*\n]+)\*`)
	numbered   = regexp.MustCompile(`^\d+\.[ \t]+(.+)$`)
	bullet     = regexp.MustCompile(`^[-•][ \t]+(.+)$`)
	blockSplit = regexp.MustCompile(`\n{2,}`)
	marker     = regexp.MustCompile("\x00([BI])([0-9]+)\x00")
)

const (
	codeBlockOpen  = `<pre class="code-block"><code>`
	codeBlockClose = `</code></pre>`
	paragraphOpen  = `<p class="explanation-paragraph">`
)

// Markdown renders explanation text to an HTML fragment.
//
// Empty or whitespace-only input yields "". The function is pure and safe
// for concurrent use.
func Markdown(src string) string {
	src = strings.ReplaceAll(src, "\x00", "")
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\r", "\n")
	if strings.TrimSpace(src) == "" {
		return ""
	}

	var ph placeholders

	// Fences first: their bodies are escaped once and never see another rule.
	s := sqlFence.ReplaceAllStringFunc(src, func(m string) string {
		body := sqlFence.FindStringSubmatch(m)[1]
		return ph.block(codeBlockOpen + html.EscapeString(body) + codeBlockClose)
	})
	s = plainFence.ReplaceAllStringFunc(s, func(m string) string {
		body := fenceBody(plainFence.FindStringSubmatch(m)[1])
		return ph.block(codeBlockOpen + html.EscapeString(body) + codeBlockClose)
	})
	s = blankLine.ReplaceAllString(s, "")

	s = html.EscapeString(s)

	s = inlineCode.ReplaceAllStringFunc(s, func(m string) string {
		return ph.inline(`<code class="inline-code">` + inlineCode.FindStringSubmatch(m)[1] + `</code>`)
	})

	s = heading.ReplaceAllStringFunc(s, func(m string) string {
		sm := heading.FindStringSubmatch(m)
		level := len(sm[1])
		class := "section-title"
		if level <= 2 {
			class = "main-title"
		}
		tag := "h" + strconv.Itoa(level)
		return "\n\n<" + tag + ` class="` + class + `">` + strings.TrimSpace(sm[2]) + "</" + tag + ">\n\n"
	})

	s = bold.ReplaceAllString(s, "<strong>$1</strong>")
	s = italic.ReplaceAllString(s, "<em>$1</em>")

	s = groupLists(s)
	s = paragraphs(s)

	return ph.restore(s)
}

// fenceBody strips the framing newlines of an untagged fence and drops a
// leading info string such as "python".
func fenceBody(body string) string {
	if i := strings.IndexByte(body, '\n'); i > 0 && infoString.MatchString(body[:i]) {
		body = body[i+1:]
	}
	body = strings.TrimPrefix(body, "\n")
	return strings.TrimSuffix(body, "\n")
}

// groupLists converts list lines to items and wraps each contiguous run of
// one kind in its container. Containers are fenced by blank lines so they
// always form their own block.
func groupLists(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines)+4)

	var run []string
	runKind := ""
	flush := func() {
		if len(run) == 0 {
			return
		}
		open, close := `<ol class="explanation-list">`, "</ol>"
		if runKind == "ul" {
			open, close = `<ul class="bullet-list">`, "</ul>"
		}
		out = append(out, "", open)
		out = append(out, run...)
		out = append(out, close, "")
		run = nil
		runKind = ""
	}

	for _, line := range lines {
		kind, item := listItem(line)
		if kind == "" {
			flush()
			out = append(out, line)
			continue
		}
		if kind != runKind {
			flush()
			runKind = kind
		}
		run = append(run, item)
	}
	flush()

	return strings.Join(out, "\n")
}

func listItem(line string) (kind, item string) {
	if m := numbered.FindStringSubmatch(line); m != nil {
		return "ol", `<li class="numbered-item">` + strings.TrimSpace(m[1]) + "</li>"
	}
	if m := bullet.FindStringSubmatch(line); m != nil {
		return "ul", `<li class="bullet-item">` + strings.TrimSpace(m[1]) + "</li>"
	}
	return "", ""
}

// paragraphs wraps every non-block chunk between blank lines in <p>.
func paragraphs(s string) string {
	chunks := blockSplit.Split(s, -1)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !isBlock(c) {
			c = paragraphOpen + c + "</p>"
		}
		out = append(out, c)
	}
	return strings.Join(out, "\n")
}

func isBlock(c string) bool {
	for _, p := range []string{"<h1", "<h2", "<h3", "<h4", "<ol", "<ul", "\x00B"} {
		if strings.HasPrefix(c, p) {
			return true
		}
	}
	return false
}

// placeholders hold finished HTML that later rules must not touch. Markers
// use NUL, which Markdown strips from its input.
type placeholders struct {
	blocks  []string
	inlines []string
}

func (p *placeholders) block(h string) string {
	p.blocks = append(p.blocks, h)
	return "\n\n\x00B" + strconv.Itoa(len(p.blocks)-1) + "\x00\n\n"
}

func (p *placeholders) inline(h string) string {
	p.inlines = append(p.inlines, h)
	return "\x00I" + strconv.Itoa(len(p.inlines)-1) + "\x00"
}

func (p *placeholders) restore(s string) string {
	if len(p.blocks) == 0 && len(p.inlines) == 0 {
		return s
	}
	return marker.ReplaceAllStringFunc(s, func(m string) string {
		sm := marker.FindStringSubmatch(m)
		i, err := strconv.Atoi(sm[2])
		if err != nil {
			return ""
		}
		if sm[1] == "B" && i < len(p.blocks) {
			return p.blocks[i]
		}
		if sm[1] == "I" && i < len(p.inlines) {
			return p.inlines[i]
		}
		return ""
	})
}
