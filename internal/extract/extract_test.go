package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract_TextAndTitle(t *testing.T) {
	// Given: a page with scripts, styles and entities
	html := `<html><head><title>  Go &amp; SQLite </title>
		<style>body { color: red }</style>
		<script>var secret = "hidden";</script></head>
		<body><h1>Hello&nbsp;world</h1>
		<noscript>enable js</noscript>
		<template><p>tmpl</p></template>
		<p>a &lt;b&gt; &quot;c&quot; &#39;d&#39;</p>
		</body></html>`

	// When: extracting
	c := Extract(html, "https://example.com/page")

	// Then: the title is decoded and trimmed and removed elements contribute no text
	assert.Equal(t, "Go & SQLite", c.PageTitle)
	assert.Equal(t, `Go & SQLite Hello world a <b> "c" 'd'`, c.Text)
	assert.NotContains(t, c.Text, "hidden")
	assert.NotContains(t, c.Text, "enable js")
	assert.NotContains(t, c.Text, "tmpl")
}

func TestExtract_MinifiedMarkupKeepsWordBoundaries(t *testing.T) {
	// Given: markup with no whitespace between elements
	html := `<html><head><title>T</title></head><body><p>hello</p><p>world</p>` +
		`<ul><li>one</li><li>two</li></ul>a<br>b<div><span>deep</span><b>er</b></div></body></html>`

	// When
	c := Extract(html, "https://example.com")

	// Then: every text node stays a separate token
	assert.Equal(t, "T hello world one two a b deep er", c.Text)
}

func TestExtract_TitleFallsBackToURL(t *testing.T) {
	c := Extract("<html><body>text</body></html>", "https://example.com/x")

	assert.Equal(t, "https://example.com/x", c.PageTitle)
	assert.Equal(t, "text", c.Text)
}

func TestExtract_Links(t *testing.T) {
	html := `<body>
		<a href="/docs">docs</a>
		<a href="https://other.org/a">abs</a>
		<a href="/docs">dup</a>
		<a href="#top">anchor</a>
		<a href="javascript:void(0)">js</a>
		<a href="mailto:me@example.com">mail</a>
		<a href="ftp://files.example.com/x">ftp</a>
		<a href="  sub/page  ">relative</a>
		<a>no href</a>
	</body>`

	c := Extract(html, "https://example.com/base/index.html")

	assert.Equal(t, []string{
		"https://example.com/docs",
		"https://other.org/a",
		"https://example.com/base/sub/page",
	}, c.Links)
}

func TestExtract_LinksCapped(t *testing.T) {
	var b strings.Builder
	for i := range 250 {
		fmt.Fprintf(&b, `<a href="/p/%d">p</a>`, i)
	}

	c := Extract(b.String(), "https://example.com")

	assert.Len(t, c.Links, MaxLinks)
	assert.Equal(t, "https://example.com/p/0", c.Links[0])
	assert.Equal(t, "https://example.com/p/199", c.Links[MaxLinks-1])
}

func TestExtract_EmptyDocument(t *testing.T) {
	c := Extract("", "https://example.com")

	assert.Equal(t, "https://example.com", c.PageTitle)
	assert.Empty(t, c.Text)
	assert.Empty(t, c.Links)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"héllo wörld", 4, "héll"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.n), "%q/%d", tt.in, tt.n)
	}
}
