package sandbox

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
)

// ProviderCreds is what ResolveProvider returns for a profile: where to
// send the request and what Authorization header to stamp on it.
type ProviderCreds struct {
	BaseURL string
	APIKey  string
}

// ResolveProvider maps the X-Amelia-Profile header on a proxied request to
// the upstream base URL and API key to use, keeping real credentials out of
// the sandboxed container's filesystem and environment (spec.md §4.3).
type ResolveProvider func(profile string) (ProviderCreds, error)

var internalHeaders = []string{"X-Amelia-Profile", "Authorization"}

// Mount registers the /proxy/v1 routes on r: chat/completions, embeddings,
// and git/credentials all forward to whatever ResolveProvider returns for
// the caller's profile, after stripping internal headers and stamping a
// fresh Authorization header.
func Mount(r chi.Router, resolve ResolveProvider) {
	r.Route("/proxy/v1", func(pr chi.Router) {
		pr.HandleFunc("/chat/completions", proxyHandler(resolve))
		pr.HandleFunc("/embeddings", proxyHandler(resolve))
		pr.HandleFunc("/git/credentials", proxyHandler(resolve))
	})
}

func proxyHandler(resolve ResolveProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile := r.Header.Get("X-Amelia-Profile")
		if profile == "" {
			http.Error(w, "missing X-Amelia-Profile header", http.StatusBadRequest)
			return
		}
		creds, err := resolve(profile)
		if err != nil {
			http.Error(w, "unknown profile: "+err.Error(), http.StatusUnauthorized)
			return
		}
		target, err := url.Parse(creds.BaseURL)
		if err != nil {
			http.Error(w, "bad upstream base url", http.StatusInternalServerError)
			return
		}

		rp := httputil.NewSingleHostReverseProxy(target)
		originalDirector := rp.Director
		rp.Director = func(req *http.Request) {
			for _, h := range internalHeaders {
				req.Header.Del(h)
			}
			originalDirector(req)
			req.Host = target.Host
			req.Header.Set("Authorization", "Bearer "+creds.APIKey)
		}
		rp.ServeHTTP(w, r)
	}
}
