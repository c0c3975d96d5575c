// Package app is the storefront application: route table, per-route data
// loaders, and the views that turn loader state into markup.
//
// DESIGN: The same application object runs in both environments. On the
// server it is driven by the render orchestrator with a rejecting gateway;
// in an interactive process it is constructed with a hydration store, which
// is consulted before the gateway so the first paint of a seeded route never
// re-fetches.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/storelight/storelight/internal/api"
	"github.com/storelight/storelight/internal/hydrate"
	"github.com/storelight/storelight/internal/render"
)

// Gateway is the slice of the request gateway the loaders need.
type Gateway interface {
	Request(ctx context.Context, url string, params api.Params, method api.Method, contentType api.ContentType, headers map[string]string) (json.RawMessage, error)
}

// Storefront implements render.App over a route table.
type Storefront struct {
	gateway Gateway
	states  *hydrate.StateStore
}

// New creates the storefront over a gateway.
func New(gateway Gateway) *Storefront {
	return &Storefront{gateway: gateway}
}

// WithStateStore attaches a seeded hydration store. Loaders consult it
// before the gateway, consuming one entry per route name.
func (s *Storefront) WithStateStore(store *hydrate.StateStore) *Storefront {
	s.states = store
	return s
}

// ==========================================================================
// Route table
// ==========================================================================

type route struct {
	name   string // loader state key
	title  string
	module string // bundler module, resolved to preload links via the manifest
	method api.Method
	url    string // backend endpoint; empty for static routes
	view   func(data gjson.Result) string
}

var routes = map[string]route{
	"/": {
		name:   "home",
		title:  "Storelight",
		module: "src/pages/home.js",
		method: api.MethodGet,
		url:    "/api/home",
		view:   homeView,
	},
	"/cart": {
		name:   "cart",
		title:  "Cart | Storelight",
		module: "src/pages/cart.js",
		method: api.MethodCache,
		url:    "/api/cart",
		view:   cartView,
	},
	"/test": {
		name:   "test",
		title:  "Test | Storelight",
		module: "src/pages/test.js",
		view:   testView,
	},
}

// Render resolves the route for url, runs its loader, and produces the page.
// A loader failure still yields markup over empty data so the orchestrator
// can deliver a degraded page.
func (s *Storefront) Render(ctx context.Context, url string, rc render.Context) (render.Page, error) {
	path := url
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}

	rt, ok := routes[path]
	if !ok {
		return render.Page{
			Markup:    notFoundView(path),
			HeadTags:  headTags("Not Found | Storelight"),
			HTMLAttrs: `lang="en"`,
			State:     json.RawMessage("{}"),
			Modules:   []string{"src/pages/not-found.js"},
		}, fmt.Errorf("404 page not found: %s", url)
	}

	data, err := s.load(ctx, rt)
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	state, serr := sjson.SetRawBytes([]byte("{}"), rt.name, data)
	if serr != nil {
		state = []byte("{}")
	}

	return render.Page{
		Markup:    rt.view(gjson.ParseBytes(data)),
		HeadTags:  headTags(rt.title),
		HTMLAttrs: `lang="en"`,
		State:     state,
		Modules:   []string{rt.module},
	}, err
}

// load fetches a route's data: seeded hydration state first, gateway second.
// Routes without a backend endpoint resolve empty.
func (s *Storefront) load(ctx context.Context, rt route) (json.RawMessage, error) {
	if rt.url == "" {
		return nil, nil
	}
	if s.states != nil {
		if seeded, ok := s.states.Take(rt.name); ok {
			return seeded, nil
		}
	}
	return s.gateway.Request(ctx, rt.url, nil, rt.method, api.ContentJSON, nil)
}

func headTags(title string) string {
	return fmt.Sprintf("<title>%s</title>", html.EscapeString(title))
}

// ==========================================================================
// Views
// ==========================================================================

func homeView(data gjson.Result) string {
	var b strings.Builder
	b.WriteString(`<div class="home">`)
	if banner := data.Get("banner").String(); banner != "" {
		b.WriteString(fmt.Sprintf(`<p class="banner">%s</p>`, html.EscapeString(banner)))
	}
	b.WriteString(`<ul class="products">`)
	data.Get("products").ForEach(func(_, p gjson.Result) bool {
		b.WriteString(fmt.Sprintf(`<li>%s <span class="price">%s</span></li>`,
			html.EscapeString(p.Get("name").String()),
			html.EscapeString(p.Get("price").String())))
		return true
	})
	b.WriteString(`</ul></div>`)
	return b.String()
}

func cartView(data gjson.Result) string {
	var b strings.Builder
	b.WriteString(`<div class="cart"><ul class="items">`)
	data.Get("items").ForEach(func(_, it gjson.Result) bool {
		b.WriteString(fmt.Sprintf(`<li>%s x%d</li>`,
			html.EscapeString(it.Get("sku").String()),
			it.Get("qty").Int()))
		return true
	})
	b.WriteString(`</ul>`)
	if total := data.Get("total"); total.Exists() {
		b.WriteString(fmt.Sprintf(`<p class="total">%s</p>`, html.EscapeString(total.String())))
	}
	b.WriteString(`</div>`)
	return b.String()
}

func testView(gjson.Result) string {
	return `<div class="test"><p>test page</p></div>`
}

func notFoundView(path string) string {
	return fmt.Sprintf(`<div class="not-found"><h1>404</h1><p>%s</p></div>`,
		html.EscapeString(path))
}
