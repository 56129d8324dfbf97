package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingCompleter struct {
	calls int
	err   error
}

func (c *countingCompleter) Complete(_ context.Context, req Request) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "answer:" + req.User, nil
}

func TestCacheHit(t *testing.T) {
	next := &countingCompleter{}
	c := NewCache(next, "m", time.Minute, nil)

	ctx, info := WithCallInfo(context.Background())
	for i := 0; i < 3; i++ {
		out, err := c.Complete(ctx, Request{System: "s", User: "u"})
		require.NoError(t, err)
		require.Equal(t, "answer:u", out)
	}
	require.Equal(t, 1, next.calls)
	require.Equal(t, 2, info.CacheHits)
}

func TestCacheKeyDistinguishesInputs(t *testing.T) {
	c := NewCache(&countingCompleter{}, "m", time.Minute, nil)
	base := Request{System: "s", User: "u"}

	require.Equal(t, c.Key(base), c.Key(base))
	require.NotEqual(t, c.Key(base), c.Key(Request{System: "s", User: "u2"}))
	require.NotEqual(t, c.Key(base), c.Key(Request{System: "s2", User: "u"}))
	require.NotEqual(t, c.Key(base), c.Key(Request{System: "s", User: "u", JSON: true}))
	require.NotEqual(t, c.Key(Request{System: "ab", User: "c"}), c.Key(Request{System: "a", User: "bc"}))

	other := NewCache(&countingCompleter{}, "other-model", time.Minute, nil)
	require.NotEqual(t, c.Key(base), other.Key(base))
}

func TestCacheDisabled(t *testing.T) {
	next := &countingCompleter{}
	c := NewCache(next, "m", 0, nil)

	for i := 0; i < 2; i++ {
		_, err := c.Complete(context.Background(), Request{User: "u"})
		require.NoError(t, err)
	}
	require.Equal(t, 2, next.calls)
	require.Equal(t, 0, c.Len())
}

func TestCacheExpires(t *testing.T) {
	next := &countingCompleter{}
	c := NewCache(next, "m", 10*time.Millisecond, nil)

	_, err := c.Complete(context.Background(), Request{User: "u"})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = c.Complete(context.Background(), Request{User: "u"})
	require.NoError(t, err)
	require.Equal(t, 2, next.calls)
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	next := &countingCompleter{err: errors.New("boom")}
	c := NewCache(next, "m", time.Minute, nil)

	_, err := c.Complete(context.Background(), Request{User: "u"})
	require.Error(t, err)
	require.Equal(t, 0, c.Len())
}

func TestCacheBounded(t *testing.T) {
	c := NewCache(&countingCompleter{}, "m", time.Minute, nil)
	for i := 0; i < maxCacheEntries+10; i++ {
		_, err := c.Complete(context.Background(), Request{User: time.Duration(i).String()})
		require.NoError(t, err)
	}
	require.LessOrEqual(t, c.Len(), maxCacheEntries)
}
