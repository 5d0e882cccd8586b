// Package extract discovers image references in article markup. The
// returned order is the order of first appearance in the document,
// which downstream stages treat as the candidate ordinal.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// contentContainerID scopes extraction to the article body when the
// publisher marks one (WeChat uses js_content). Falls back to the whole
// document.
const contentContainerID = "js_content"

// srcAttrs in preference order. Lazy-loading templates park the real
// URL in data-src or data-original and leave src as a placeholder.
var srcAttrs = []string{"data-src", "data-original", "src"}

var wechatImageRe = regexp.MustCompile(`^(https://mmbiz\.qpic\.cn/[^?]+)`)

// ImageRefs parses markup and returns the ordered, de-duplicated list
// of absolute image URLs. Duplicates keep their first occurrence.
// Relative references are resolved against baseURL.
func ImageRefs(markup []byte, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	root := doc.Selection
	if container := doc.Find("#" + contentContainerID); container.Length() > 0 {
		root = container
	}

	seen := make(map[string]struct{})
	var refs []string
	root.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src := imageSrc(sel)
		if src == "" {
			return
		}
		resolved := resolveRef(base, src)
		if resolved == "" {
			return
		}
		resolved = NormalizeImageURL(resolved)
		if _, ok := seen[resolved]; ok {
			return
		}
		seen[resolved] = struct{}{}
		refs = append(refs, resolved)
	})
	return refs, nil
}

func imageSrc(sel *goquery.Selection) string {
	for _, attr := range srcAttrs {
		if v, ok := sel.Attr(attr); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func resolveRef(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(u)
	scheme := strings.ToLower(resolved.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	return resolved.String()
}

// NormalizeImageURL rewrites known thumbnail URLs to their full-quality
// variant. WeChat image URLs ending in a numeric size selector are
// switched to /0, which serves the original resolution.
func NormalizeImageURL(raw string) string {
	m := wechatImageRe.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	stripped := m[1]
	idx := strings.LastIndex(stripped, "/")
	if idx < 0 {
		return raw
	}
	last := stripped[idx+1:]
	if last == "" || !isDigits(last) {
		return raw
	}
	return stripped[:idx] + "/0"
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
