package intent

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayhq/relay/internal/registry"
)

func cacheFixture(t *testing.T, fake *fakeProvider) (*CachedClassifier, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	inner := NewLLMClassifier(fake, nil)
	return NewCachedClassifier(inner, client, time.Minute, nil), mr
}

func TestCachedMatchHitsRedisOnRepeat(t *testing.T) {
	fake := &fakeProvider{replies: []string{"enrich_leads"}}
	cached, _ := cacheFixture(t, fake)
	reg := testRegistry(t)
	ctx := context.Background()

	first, err := cached.MatchAutomation(ctx, "find leads", reg)
	require.NoError(t, err)
	require.NotNil(t, first)

	// The fake has no replies left; a second call must come from cache.
	second, err := cached.MatchAutomation(ctx, "find leads", reg)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "enrich_leads", second.Automation)
	assert.Len(t, fake.calls, 1)
}

func TestCachedMatchSkipsStaleAutomation(t *testing.T) {
	fake := &fakeProvider{replies: []string{"enrich_leads", "generate_emails"}}
	cached, _ := cacheFixture(t, fake)
	ctx := context.Background()

	_, err := cached.MatchAutomation(ctx, "find leads", testRegistry(t))
	require.NoError(t, err)

	// Same input against a registry that no longer has the cached name.
	smaller, err := registry.Parse([]byte("- name: generate_emails\n  platform: script\n  script_name: generate_emails\n"))
	require.NoError(t, err)
	match, err := cached.MatchAutomation(ctx, "find leads", smaller)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "generate_emails", match.Automation)
	assert.Len(t, fake.calls, 2)
}

func TestCachedMatchNoMatchIsNotCached(t *testing.T) {
	fake := &fakeProvider{replies: []string{"NONE", "enrich_leads"}}
	cached, _ := cacheFixture(t, fake)
	reg := testRegistry(t)
	ctx := context.Background()

	match, err := cached.MatchAutomation(ctx, "unrelated", reg)
	require.NoError(t, err)
	assert.Nil(t, match)

	match, err = cached.MatchAutomation(ctx, "unrelated", reg)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Len(t, fake.calls, 2)
}

func TestCachedMatchFallsThroughWhenRedisDown(t *testing.T) {
	fake := &fakeProvider{replies: []string{"enrich_leads"}}
	cached, mr := cacheFixture(t, fake)
	mr.Close()

	match, err := cached.MatchAutomation(context.Background(), "find leads", testRegistry(t))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "enrich_leads", match.Automation)
}

func TestCachedMultiStepHitsRedisOnRepeat(t *testing.T) {
	fake := &fakeProvider{replies: []string{`{"is_multi_step": true, "steps": ["a", "b"]}`}}
	cached, _ := cacheFixture(t, fake)
	reg := testRegistry(t)
	ctx := context.Background()

	first, err := cached.DetectMultiStep(ctx, "a then b", reg)
	require.NoError(t, err)
	require.True(t, first.IsMultiStep)

	second, err := cached.DetectMultiStep(ctx, "a then b", reg)
	require.NoError(t, err)
	require.True(t, second.IsMultiStep)
	assert.Len(t, second.Steps, 2)
	assert.Len(t, fake.calls, 1)
}

func TestCachedVerdictExpires(t *testing.T) {
	fake := &fakeProvider{replies: []string{"enrich_leads", "enrich_leads"}}
	cached, mr := cacheFixture(t, fake)
	reg := testRegistry(t)
	ctx := context.Background()

	_, err := cached.MatchAutomation(ctx, "find leads", reg)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = cached.MatchAutomation(ctx, "find leads", reg)
	require.NoError(t, err)
	assert.Len(t, fake.calls, 2)
}
