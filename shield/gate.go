package shield

import (
	"encoding/json"
	"net/http"
)

// Gate bounds concurrent requests through a route. Requests over the limit
// are rejected immediately with 503 rather than queued.
type Gate struct {
	slots    chan struct{}
	onReject func()
}

// NewGate creates a gate admitting max requests at once. max <= 0 admits
// everything. onReject may be nil.
func NewGate(max int, onReject func()) *Gate {
	g := &Gate{onReject: onReject}
	if max > 0 {
		g.slots = make(chan struct{}, max)
	}
	return g
}

// Middleware applies the gate.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	if g == nil || g.slots == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case g.slots <- struct{}{}:
		default:
			if g.onReject != nil {
				g.onReject()
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   "server busy: too many clone runs in flight",
			})
			return
		}
		defer func() { <-g.slots }()
		next.ServeHTTP(w, r)
	})
}

// InFlight reports the number of admitted requests.
func (g *Gate) InFlight() int {
	if g == nil || g.slots == nil {
		return 0
	}
	return len(g.slots)
}
