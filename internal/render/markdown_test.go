package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarkdownHeadingAndEmphasis(t *testing.T) {
	got := Markdown("# Title\n\nSome **bold** and *italic* text.")
	want := `<h1 class="main-title">Title</h1>` + "\n" +
		`<p class="explanation-paragraph">Some <strong>bold</strong> and <em>italic</em> text.</p>`
	require.Equal(t, want, got)
}

func TestMarkdownSQLFence(t *testing.T) {
	got := Markdown("```sql\nSELECT 1;\n```")
	require.Equal(t, `<pre class="code-block"><code>SELECT 1;</code></pre>`, got)
}

func TestMarkdownNumberedList(t *testing.T) {
	got := Markdown("1. a\n2. b\n3. c")
	want := `<ol class="explanation-list">` + "\n" +
		`<li class="numbered-item">a</li>` + "\n" +
		`<li class="numbered-item">b</li>` + "\n" +
		`<li class="numbered-item">c</li>` + "\n" +
		`</ol>`
	require.Equal(t, want, got)
}

func TestMarkdownEmpty(t *testing.T) {
	require.Equal(t, "", Markdown(""))
	require.Equal(t, "", Markdown(" \n\t\n"))
}

func TestMarkdownPlainTextIsEscaped(t *testing.T) {
	got := Markdown("<script>alert(1)</script>")
	require.Equal(t, `<p class="explanation-paragraph">&lt;script&gt;alert(1)&lt;/script&gt;</p>`, got)
	require.NotContains(t, got, "<script")
}

func TestMarkdownEscapesInsideCode(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"sql fence", "```sql\nSELECT '<script>x</script>';\n```"},
		{"plain fence", "```\n<script>x</script>\n```"},
		{"inline code", "Run `<script>x</script>` now"},
		{"heading", "## <script>x</script>"},
		{"list item", "- <script>x</script>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Markdown(tt.src)
			require.NotContains(t, got, "<script")
			require.Contains(t, got, "&lt;script&gt;")
		})
	}
}

func TestMarkdownSeparatedListsStaySeparate(t *testing.T) {
	got := Markdown("1. a\n\n2. b")
	require.Equal(t, 2, strings.Count(got, `<ol class="explanation-list">`))
	require.NotContains(t, got, "<p")
}

func TestMarkdownNoEmphasisInFences(t *testing.T) {
	got := Markdown("```sql\nSELECT **x** FROM *t*;\n```")
	require.Equal(t, `<pre class="code-block"><code>SELECT **x** FROM *t*;</code></pre>`, got)
	require.NotContains(t, got, "<strong>")
	require.NotContains(t, got, "<em>")
}

func TestMarkdownPlainFence(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"untagged", "```\nSELECT 1\n```", `<pre class="code-block"><code>SELECT 1</code></pre>`},
		{"info string dropped", "```python\nprint(1)\n```", `<pre class="code-block"><code>print(1)</code></pre>`},
		{"single line", "```SELECT 1```", `<pre class="code-block"><code>SELECT 1</code></pre>`},
		{"sql without newline before close", "```sql\nSELECT 1;```", `<pre class="code-block"><code>SELECT 1;</code></pre>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Markdown(tt.src))
		})
	}
}

func TestMarkdownFenceKeepsBlankLines(t *testing.T) {
	got := Markdown("Before\n```sql\nSELECT 1;\n\nSELECT 2;\n```\nAfter")
	want := `<p class="explanation-paragraph">Before</p>` + "\n" +
		`<pre class="code-block"><code>SELECT 1;` + "\n\n" + `SELECT 2;</code></pre>` + "\n" +
		`<p class="explanation-paragraph">After</p>`
	require.Equal(t, want, got)
}

func TestMarkdownHeadingLevels(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"# A", `<h1 class="main-title">A</h1>`},
		{"## A", `<h2 class="main-title">A</h2>`},
		{"### A", `<h3 class="section-title">A</h3>`},
		{"#### A  ", `<h4 class="section-title">A</h4>`},
		{"##   **A**", `<h2 class="main-title"><strong>A</strong></h2>`},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			require.Equal(t, tt.want, Markdown(tt.src))
		})
	}
}

func TestMarkdownHeadingIsOwnBlock(t *testing.T) {
	got := Markdown("intro\n### Why\nbody")
	want := `<p class="explanation-paragraph">intro</p>` + "\n" +
		`<h3 class="section-title">Why</h3>` + "\n" +
		`<p class="explanation-paragraph">body</p>`
	require.Equal(t, want, got)
}

func TestMarkdownBulletsAndMixedLists(t *testing.T) {
	got := Markdown("Changes:\n- added index\n• removed subquery\n1. step")
	want := `<p class="explanation-paragraph">Changes:</p>` + "\n" +
		`<ul class="bullet-list">` + "\n" +
		`<li class="bullet-item">added index</li>` + "\n" +
		`<li class="bullet-item">removed subquery</li>` + "\n" +
		`</ul>` + "\n" +
		`<ol class="explanation-list">` + "\n" +
		`<li class="numbered-item">step</li>` + "\n" +
		`</ol>`
	require.Equal(t, want, got)
}

func TestMarkdownListMarkerNeedsSpace(t *testing.T) {
	require.Equal(t, `<p class="explanation-paragraph">-5 rows</p>`, Markdown("-5 rows"))
	require.Equal(t, `<p class="explanation-paragraph">3.14 is pi</p>`, Markdown("3.14 is pi"))
}

func TestMarkdownInlineCode(t *testing.T) {
	got := Markdown("Use `**not bold**` here")
	require.Equal(t, `<p class="explanation-paragraph">Use <code class="inline-code">**not bold**</code> here</p>`, got)
}

func TestMarkdownLineEndings(t *testing.T) {
	require.Equal(t, Markdown("a\n\nb"), Markdown("a\r\n\r\nb"))
	require.Equal(t, Markdown("a\n\nb"), Markdown("a\r\rb"))
	require.Equal(t, Markdown("a\n\nb"), Markdown("a\n   \nb"))
}

func TestMarkdownStripsNUL(t *testing.T) {
	got := Markdown("x\x00B0\x00y")
	require.Equal(t, `<p class="explanation-paragraph">xB0y</p>`, got)
}

func TestMarkdownParagraphKeepsSingleNewlines(t *testing.T) {
	got := Markdown("line one\nline two\n\nnext")
	want := `<p class="explanation-paragraph">line one` + "\n" + `line two</p>` + "\n" +
		`<p class="explanation-paragraph">next</p>`
	require.Equal(t, want, got)
}

func TestMarkdownQuotesEscaped(t *testing.T) {
	got := Markdown(`say "hi" & 'bye'`)
	require.Equal(t, `<p class="explanation-paragraph">say &#34;hi&#34; &amp; &#39;bye&#39;</p>`, got)
}
