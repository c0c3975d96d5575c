// Package hydrate owns the server-to-client state handoff: embedding the
// render result into the delivered document, and seeding client state from
// the embedded payload so first paint never re-fetches.
package hydrate

import (
	"fmt"
	"strings"

	"github.com/storelight/storelight/internal/render"
)

// The template markers. Substitution is literal substring replacement, not
// templating, so each marker must appear exactly once.
const (
	MarkerHTMLAttrs    = "data-html-attrs"
	MarkerHeadTags     = "<!--head-tags-->"
	MarkerBodyAttrs    = "data-body-attrs"
	MarkerPreloadLinks = "<!--preload-links-->"
	MarkerAppMarkup    = "<!--ssr-outlet-->"
	MarkerSyncState    = "/*sync-state-outlet*/"
)

// StateGlobal is the well-known global the client reads its seed state from.
const StateGlobal = "__syncState__"

var markers = []string{
	MarkerHTMLAttrs,
	MarkerHeadTags,
	MarkerBodyAttrs,
	MarkerPreloadLinks,
	MarkerAppMarkup,
	MarkerSyncState,
}

// Template is a validated HTML shell.
type Template struct {
	raw string
}

// ParseTemplate validates that each marker appears exactly once.
func ParseTemplate(raw string) (*Template, error) {
	for _, m := range markers {
		switch n := strings.Count(raw, m); n {
		case 1:
		case 0:
			return nil, fmt.Errorf("template is missing marker %q", m)
		default:
			return nil, fmt.Errorf("template has %d occurrences of marker %q, want exactly 1", n, m)
		}
	}
	return &Template{raw: raw}, nil
}

// Build assembles the final document from a render result. The sync state is
// injected as an assignment to the well-known global so the client can
// hydrate without re-fetching.
func (t *Template) Build(res *render.Result) string {
	doc := t.raw
	doc = strings.Replace(doc, MarkerHTMLAttrs, res.HTMLAttrs, 1)
	doc = strings.Replace(doc, MarkerHeadTags, res.HeadTags, 1)
	doc = strings.Replace(doc, MarkerBodyAttrs, res.BodyAttrs, 1)
	doc = strings.Replace(doc, MarkerPreloadLinks, res.PreloadLinks, 1)
	doc = strings.Replace(doc, MarkerAppMarkup, res.AppMarkup, 1)
	doc = strings.Replace(doc, MarkerSyncState,
		fmt.Sprintf("window.%s = %s", StateGlobal, escapeForScript(res.SyncState)), 1)
	return doc
}

// escapeForScript rewrites "</" as "<\/" so a string value containing
// "</script>" cannot terminate the injection block. Valid JSON can only hold
// "</" inside a string, and "\/" is a legal escape there, so the payload
// parses identically.
func escapeForScript(state []byte) string {
	return strings.ReplaceAll(string(state), "</", `<\/`)
}
