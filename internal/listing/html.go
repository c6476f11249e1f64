package listing

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// ExtractAnchors returns every <a href> of body as an Entry, in document
// order. Parsing stops at the first tokenizer error and whatever anchors were
// recognized up to that point are returned.
func ExtractAnchors(body []byte) []Entry {
	var (
		entries []Entry
		open    = -1 // index of the anchor currently collecting text
		text    strings.Builder
	)

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if open >= 0 {
				entries[open].Text = strings.TrimSpace(text.String())
			}
			return entries

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "a" {
				continue
			}
			if open >= 0 {
				// unclosed anchor; close it before starting the next
				entries[open].Text = strings.TrimSpace(text.String())
				open = -1
			}
			href, ok := attr(tok, "href")
			if !ok {
				continue
			}
			entries = append(entries, Entry{Href: href})
			if tok.Type == html.StartTagToken {
				open = len(entries) - 1
				text.Reset()
			}

		case html.TextToken:
			if open >= 0 {
				text.Write(z.Text())
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if open >= 0 && string(name) == "a" {
				entries[open].Text = strings.TrimSpace(text.String())
				open = -1
			}
		}
	}
}

// ExtractText returns the whitespace-trimmed text of every element whose tag
// name is in tags, ordered by where each element starts. Text of nested
// matching elements is included in each enclosing one.
func ExtractText(body []byte, tags ...string) []string {
	wanted := make(map[string]bool, len(tags))
	for _, t := range tags {
		wanted[strings.ToLower(t)] = true
	}

	type openElem struct {
		tag   string
		index int
	}
	var (
		blocks []*strings.Builder
		stack  []openElem
	)

	z := html.NewTokenizer(bytes.NewReader(body))
loop:
	for {
		switch z.Next() {
		case html.ErrorToken:
			break loop

		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if wanted[tag] {
				blocks = append(blocks, &strings.Builder{})
				stack = append(stack, openElem{tag: tag, index: len(blocks) - 1})
			}

		case html.TextToken:
			for _, o := range stack {
				blocks[o.index].Write(z.Text())
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].tag == tag {
					stack = append(stack[:i], stack[i+1:]...)
					break
				}
			}
		}
	}

	out := make([]string, len(blocks))
	for i := range blocks {
		out[i] = strings.Join(strings.Fields(blocks[i].String()), " ")
	}
	return out
}

func attr(tok html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
