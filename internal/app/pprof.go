package app

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
)

const pprofPrefix = "/debug/pprof"

// NewPprofHandler serves the runtime profiles under /debug/pprof. When user
// is set every request must present matching basic auth credentials.
// pprof.Index resolves named profiles such as heap from the path itself.
func NewPprofHandler(user, pass string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(pprofPrefix+"/", pprof.Index)
	mux.HandleFunc(pprofPrefix+"/cmdline", pprof.Cmdline)
	mux.HandleFunc(pprofPrefix+"/profile", pprof.Profile)
	mux.HandleFunc(pprofPrefix+"/symbol", pprof.Symbol)
	mux.HandleFunc(pprofPrefix+"/trace", pprof.Trace)
	if user == "" {
		return mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secretEqual(u, user) || !secretEqual(p, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="greenmart-pprof"`)
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
