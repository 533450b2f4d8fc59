package mesh

import (
	"testing"

	"github.com/stretchr/testify/require"

	lwbus "github.com/lwedge/lwbus"
)

func handlerReturning(tag string) RPCHandler {
	return func(url string, payload []byte) ([]byte, lwbus.Status) {
		return []byte(tag), lwbus.StatusSuccess
	}
}

func TestRouterExactMatch(t *testing.T) {
	r := NewRouter()
	r.Register("/tags/update", handlerReturning("exact"))

	h, ok := r.Lookup("/tags/update")
	require.True(t, ok)
	reply, status := h("/tags/update", nil)
	require.Equal(t, lwbus.StatusSuccess, status)
	require.Equal(t, "exact", string(reply))
}

func TestRouterPrefixMatch(t *testing.T) {
	r := NewRouter()
	r.Register("/tags/", handlerReturning("prefix"))

	for _, url := range []string{"/tags", "/tags/x", "/tags/x/y"} {
		h, ok := r.Lookup(url)
		require.True(t, ok, url)
		reply, _ := h(url, nil)
		require.Equal(t, "prefix", string(reply))
	}

	_, ok := r.Lookup("/tagsextra")
	require.False(t, ok)
}

func TestRouterExactBeatsPrefix(t *testing.T) {
	r := NewRouter()
	r.Register("/tags/", handlerReturning("prefix"))
	r.Register("/tags/update", handlerReturning("exact"))

	h, ok := r.Lookup("/tags/update")
	require.True(t, ok)
	reply, _ := h("/tags/update", nil)
	require.Equal(t, "exact", string(reply))
}

func TestRouterDefaultFallback(t *testing.T) {
	r := NewRouter()
	r.Register("/", handlerReturning("default"))
	r.Register("/tags/update", handlerReturning("exact"))

	h, ok := r.Lookup("/unknown/path")
	require.True(t, ok)
	reply, _ := h("/unknown/path", nil)
	require.Equal(t, "default", string(reply))

	_, ok = r.Lookup("/tags/update")
	require.True(t, ok)
}

func TestRouterPrefixInsertionOrder(t *testing.T) {
	r := NewRouter()
	r.Register("/a/", handlerReturning("first"))
	r.Register("/a/b/", handlerReturning("second"))

	h, ok := r.Lookup("/a/b/c")
	require.True(t, ok)
	reply, _ := h("/a/b/c", nil)
	require.Equal(t, "first", string(reply))
}

func TestRouterUnregister(t *testing.T) {
	r := NewRouter()
	r.Register("/tags/update", handlerReturning("exact"))
	r.Unregister("/tags/update")

	_, ok := r.Lookup("/tags/update")
	require.False(t, ok)
}

func TestMatchesSubscription(t *testing.T) {
	require.True(t, MatchesSubscription("/", "/anything/at/all"))
	require.True(t, MatchesSubscription("/tags/update", "/tags/update"))
	require.False(t, MatchesSubscription("/tags/update", "/tags/update2"))
	require.True(t, MatchesSubscription("/tags/", "/tags/update"))
	require.True(t, MatchesSubscription("/tags/", "/tags"))
	require.False(t, MatchesSubscription("/tags/", "/tagsextra"))
}
