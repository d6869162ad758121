package prompts

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestParseSegment(t *testing.T) {
	tests := []struct {
		in   string
		want Segment
	}{
		{"UK:saas", Segment{"UK", "saas"}},
		{"UK", Segment{"UK", "general"}},
		{":saas", Segment{"US", "saas"}},
		{"", Segment{"US", "general"}},
		{"DE:fin:tech", Segment{"DE", "fin:tech"}},
		{"uk:SaaS", Segment{"uk", "SaaS"}},
		{" UK:saas ", Segment{" UK", "saas "}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSegment(tt.in))
		})
	}
	assert.Equal(t, "US:general", NewSegment("", "").Key())
}

func TestResolve_Precedence(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seg := Segment{Country: "UK", Industry: "saas"}

	res, err := store.Resolve(ctx, seg)
	require.NoError(t, err)
	assert.Equal(t, Resolution{Prompt: DefaultPrompt, Level: LevelDefault}, res)

	require.NoError(t, store.SetBase(ctx, "base prompt"))
	res, err = store.Resolve(ctx, seg)
	require.NoError(t, err)
	assert.Equal(t, "base prompt", res.Prompt)
	assert.Equal(t, LevelBase, res.Level)

	require.NoError(t, store.SetIndustry(ctx, "saas", "saas prompt"))
	res, err = store.Resolve(ctx, seg)
	require.NoError(t, err)
	assert.Equal(t, "saas prompt", res.Prompt)
	assert.Equal(t, LevelIndustry, res.Level)
	assert.Equal(t, "prompt:segment:*:saas", res.Key)

	require.NoError(t, store.SetSegment(ctx, seg, "uk saas prompt"))
	res, err = store.Resolve(ctx, seg)
	require.NoError(t, err)
	assert.Equal(t, "uk saas prompt", res.Prompt)
	assert.Equal(t, LevelSegment, res.Level)
	assert.Equal(t, "prompt:segment:UK:saas", res.Key)

	other, err := store.Resolve(ctx, Segment{Country: "US", Industry: "saas"})
	require.NoError(t, err)
	assert.Equal(t, "saas prompt", other.Prompt)
}

func TestResolve_EmptyValueFallsThrough(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("prompt:segment:UK:saas", ""))
	require.NoError(t, mr.Set("prompt:base", "base"))

	res, err := store.Resolve(context.Background(), Segment{"UK", "saas"})
	require.NoError(t, err)
	assert.Equal(t, "base", res.Prompt)
}

func TestResolve_StoreDownStillReturnsPrompt(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	res, err := store.Resolve(context.Background(), Segment{"UK", "saas"})
	assert.Error(t, err)
	assert.Equal(t, DefaultPrompt, res.Prompt)
}

func TestSet_RejectsEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Error(t, store.SetBase(context.Background(), "   "))
}
