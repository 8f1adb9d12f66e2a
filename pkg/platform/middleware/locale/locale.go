// Package locale negotiates the request locale used to resolve translated
// status names.
package locale

import (
	"net/http"

	"golang.org/x/text/language"

	"statusable/pkg/requestcontext"
)

// QueryParam overrides Accept-Language when present.
const QueryParam = "locale"

// Negotiator matches requested languages against the supported set.
type Negotiator struct {
	supported []string
	matcher   language.Matcher
	fallback  string
}

// NewNegotiator builds a negotiator. fallback is used when nothing matches and
// is added to the supported set if missing.
func NewNegotiator(fallback string, supported ...string) *Negotiator {
	seen := map[string]bool{}
	var list []string
	for _, s := range append([]string{fallback}, supported...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		list = append(list, s)
	}
	tags := make([]language.Tag, 0, len(list))
	for _, s := range list {
		tags = append(tags, language.Make(s))
	}
	return &Negotiator{supported: list, matcher: language.NewMatcher(tags), fallback: fallback}
}

// Match returns the supported locale best matching an Accept-Language value.
func (n *Negotiator) Match(acceptLanguage string) string {
	if acceptLanguage == "" {
		return n.fallback
	}
	requested, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(requested) == 0 {
		return n.fallback
	}
	_, idx, confidence := n.matcher.Match(requested...)
	if confidence == language.No || idx < 0 || idx >= len(n.supported) {
		return n.fallback
	}
	return n.supported[idx]
}

// Middleware stores the negotiated locale in the request context.
func (n *Negotiator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get(QueryParam)
		if raw == "" {
			raw = r.Header.Get("Accept-Language")
		}
		ctx := requestcontext.WithLocale(r.Context(), n.Match(raw))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
