package registry

import (
	"net/http"

	"statusable/pkg/requestcontext"
)

// ScopePerRequest opens a fresh Scope for every request, resolved in the
// request's negotiated locale. Everything the request looks up shares it.
func (r *Registry) ScopePerRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		scope := r.NewScope(requestcontext.Locale(ctx))
		next.ServeHTTP(w, req.WithContext(WithScope(ctx, scope)))
	})
}
