package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapbridge/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/catalog>; rel="catalog"`,
		`</api/v1/sessions>; rel="sessions"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/catalog>; rel="catalog"`,
		`</api/v1/diagnostics>; rel="diagnostics"`,
	},
	"/api/v1/catalog": {
		`</api/v1/sessions>; rel="sessions"`,
	},
	"/api/v1/catalog/{id}": {
		`</api/v1/catalog>; rel="collection"`,
	},
	"/api/v1/catalog/{id}/style": {
		`</api/v1/catalog>; rel="collection"`,
	},
	"/api/v1/sessions": {
		`</api/v1/catalog>; rel="catalog"`,
		`</api/v1/diagnostics>; rel="diagnostics"`,
	},
	"/api/v1/sessions/{session}": {
		`</api/v1/sessions>; rel="collection"`,
	},
	"/api/v1/diagnostics": {
		`</api/v1/sessions>; rel="sessions"`,
		`</api/v1/tables>; rel="tables"`,
	},
	"/api/v1/tables": {
		`</api/v1/query>; rel="query"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link
// headers: static navigation, a self link on item endpoints, state actions
// and pagination.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		if a, ok := v.(humastar.Actioner); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		if p, ok := v.(humastar.Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		return v, nil
	}
}
