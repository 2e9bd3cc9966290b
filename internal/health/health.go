// Package health exposes the process's liveness and readiness endpoints
// (spec.md §9, ambient operational surface).
package health

import "net/http"

// LiveFunc reports whether the merger currently has at least one live
// station (spec.md §3 invariant 2).
type LiveFunc func() bool

// HealthzHandler always answers 200 while the process is able to serve
// HTTP at all: process liveness, not station liveness.
func HealthzHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
}

// ReadyzHandler answers 200 iff live() reports at least one station
// currently within its liveness timeout, 503 otherwise, so an
// orchestrator can hold back viewer traffic until a feed has arrived.
func ReadyzHandler(live LiveFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !live() {
			http.Error(w, "no live stations\n", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
}
