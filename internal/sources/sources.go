// Package sources renders the provenance of an answer as a markdown
// block listing the files and web pages the context nodes came from.
package sources

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/docchat/internal/schema"
)

// source is one citation extracted from node metadata.
type source struct {
	name      string
	uri       string
	pageLabel string // file sources
	pageTitle string // web sources
	web       bool
}

// parseSource classifies a node's metadata as a file or web citation.
// Web-based data sources carry their own type marker; everything else is
// treated as file-based.
func parseSource(metadata map[string]interface{}) source {
	n := schema.Node{Metadata: metadata}
	if n.MetaString(schema.MetaDataSourceType) == schema.DataSourceTypeWebBased {
		return source{
			name:      stripControl(n.MetaString(schema.MetaSourceWebsite)),
			pageTitle: stripControl(n.MetaString(schema.MetaPageTitle)),
			uri:       n.MetaString(schema.MetaSourceURI),
			web:       true,
		}
	}
	return source{
		name:      n.MetaString(schema.MetaFileName),
		pageLabel: n.MetaString(schema.MetaPageLabel),
		uri:       n.MetaString(schema.MetaSourceURI),
	}
}

// valid reports whether the citation has enough metadata to render.
func (s source) valid() bool {
	return s.name != "" && s.uri != ""
}

// stripControl drops control characters that would break markdown.
func stripControl(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}

type fileGroup struct {
	uri   string
	pages []string
}

type webPage struct {
	title string
	url   string
}

// FormatDocumentSources renders the sources block for the given nodes.
// Citations group by file (with deduplicated page labels) or by website
// (with deduplicated page links), in first-seen order. Nodes lacking the
// required metadata are skipped. Returns "" when nothing is citable.
func FormatDocumentSources(nodes []schema.ScoredNode) string {
	files := make(map[string]*fileGroup)
	var fileOrder []string
	webs := make(map[string][]webPage)
	var webOrder []string

	for _, sn := range nodes {
		s := parseSource(sn.Node.Metadata)
		if !s.valid() {
			continue
		}
		if s.web {
			pages, seen := webs[s.name]
			if !seen {
				webOrder = append(webOrder, s.name)
			}
			page := webPage{title: s.pageTitle, url: s.uri}
			if !containsPage(pages, page) {
				webs[s.name] = append(pages, page)
			}
			continue
		}
		g, seen := files[s.name]
		if !seen {
			g = &fileGroup{uri: s.uri}
			files[s.name] = g
			fileOrder = append(fileOrder, s.name)
		}
		if s.pageLabel != "" && !containsString(g.pages, s.pageLabel) {
			g.pages = append(g.pages, s.pageLabel)
		}
	}

	var entries []string
	for _, name := range fileOrder {
		g := files[name]
		entry := fmt.Sprintf("> *File:* [%s](%s)", name, g.uri)
		if len(g.pages) > 0 {
			entry += fmt.Sprintf("<br> *Pages:* %s", strings.Join(g.pages, ", "))
		}
		entries = append(entries, entry)
	}
	for _, site := range webOrder {
		var b strings.Builder
		fmt.Fprintf(&b, "> ###### %s", site)
		for _, p := range webs[site] {
			title := p.title
			if title == "" {
				title = p.url
			}
			fmt.Fprintf(&b, "\n>- [%s](%s)", title, p.url)
		}
		entries = append(entries, b.String())
	}

	if len(entries) == 0 {
		return ""
	}

	plural := ""
	if len(entries) > 1 {
		plural = "s"
	}
	return fmt.Sprintf("\n##### Source%s:\n%s", plural, strings.Join(entries, "\n\n"))
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsPage(list []webPage, v webPage) bool {
	for _, p := range list {
		if p == v {
			return true
		}
	}
	return false
}
