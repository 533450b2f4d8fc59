package mesh

import (
	"strings"
	"sync"

	lwbus "github.com/lwedge/lwbus"
)

// RPCHandler answers an RPC call for a matched URL, returning the reply
// payload and status. A handler that produces no data still returns a
// successful empty reply (§4.2).
type RPCHandler func(url string, payload []byte) ([]byte, lwbus.Status)

const exactBuckets = 32

type exactEntry struct {
	url     string
	handler RPCHandler
}

type prefixEntry struct {
	prefix  string // stored without its trailing "/"
	handler RPCHandler
}

// Router implements the two-tier URL routing table of §4.2.1: exact
// handlers bucketed by a character-sum hash, an insertion-ordered list of
// prefix handlers, and an optional default handler for "/".
type Router struct {
	mu       sync.RWMutex
	exact    [exactBuckets][]exactEntry
	prefixes []prefixEntry
	fallback RPCHandler
}

func NewRouter() *Router { return &Router{} }

// charSumHash sums the bytes at even indices of url, mod exactBuckets —
// the simple hash §3/§4.2.1 specifies for the exact-match bucket table.
func charSumHash(url string) int {
	sum := 0
	for i := 0; i < len(url); i += 2 {
		sum += int(url[i])
	}
	return sum % exactBuckets
}

// Register installs handler for url. A url of "/" becomes the default
// handler; a url ending in "/" becomes a prefix handler (keyed by the url
// minus its trailing slash); anything else is an exact handler. Duplicate
// registrations replace the previous handler (§4.2.1).
func (r *Router) Register(url string, handler RPCHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if url == "/" {
		r.fallback = handler
		return
	}
	if strings.HasSuffix(url, "/") {
		prefix := strings.TrimSuffix(url, "/")
		for i := range r.prefixes {
			if r.prefixes[i].prefix == prefix {
				r.prefixes[i].handler = handler
				return
			}
		}
		r.prefixes = append(r.prefixes, prefixEntry{prefix: prefix, handler: handler})
		return
	}
	bucket := charSumHash(url)
	for i := range r.exact[bucket] {
		if r.exact[bucket][i].url == url {
			r.exact[bucket][i].handler = handler
			return
		}
	}
	r.exact[bucket] = append(r.exact[bucket], exactEntry{url: url, handler: handler})
}

// Unregister removes whatever handler is installed for url, symmetric
// with Register's classification rules.
func (r *Router) Unregister(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if url == "/" {
		r.fallback = nil
		return
	}
	if strings.HasSuffix(url, "/") {
		prefix := strings.TrimSuffix(url, "/")
		for i := range r.prefixes {
			if r.prefixes[i].prefix == prefix {
				r.prefixes = append(r.prefixes[:i], r.prefixes[i+1:]...)
				return
			}
		}
		return
	}
	bucket := charSumHash(url)
	entries := r.exact[bucket]
	for i := range entries {
		if entries[i].url == url {
			r.exact[bucket] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Lookup resolves url to a handler: an exact match, else the first
// matching prefix handler in insertion order, else the default handler.
func (r *Router) Lookup(url string) (RPCHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := charSumHash(url)
	for _, e := range r.exact[bucket] {
		if e.url == url {
			return e.handler, true
		}
	}
	for _, e := range r.prefixes {
		if matchesPrefix(e.prefix, url) {
			return e.handler, true
		}
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// matchesPrefix reports whether url is prefix itself, or prefix followed
// by "/" and anything else — the rule §4.2.1 and §4.2's fan-out section
// both use (T3: "/a/" matches "/a", "/a/x", "/a/x/y" but not "/abc").
func matchesPrefix(prefix, url string) bool {
	if !strings.HasPrefix(url, prefix) {
		return false
	}
	rest := url[len(prefix):]
	return rest == "" || rest[0] == '/'
}

// MatchesSubscription implements the publish fan-out matching rule of
// §4.2: "/" matches everything, an equal-length subscription must be
// bytewise equal, and a subscription ending in "/" is a prefix match.
func MatchesSubscription(subscription, url string) bool {
	if subscription == "/" {
		return true
	}
	if strings.HasSuffix(subscription, "/") {
		return matchesPrefix(strings.TrimSuffix(subscription, "/"), url)
	}
	return subscription == url
}
