package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrub/internal/testutil"
)

// recordingStage appends its name to a shared trace and threads the
// input through unchanged, optionally transformed or failed.
type recordingStage struct {
	name  string
	trace *[]string
	fn    func(in interface{}) (interface{}, error)
}

func (s *recordingStage) Name() string { return s.name }

func (s *recordingStage) Run(_ context.Context, in interface{}) (interface{}, error) {
	*s.trace = append(*s.trace, s.name)
	if s.fn != nil {
		return s.fn(in)
	}
	return in, nil
}

func TestFlow_RunsStagesInOrder(t *testing.T) {
	cache := NewCache()
	rule := &testutil.MockRule{RuleID: "rule"}
	key := cache.Put(rule)

	var trace []string
	flow := NewFlow("detect/rule", key, slog.New(slog.DiscardHandler)).
		Add(&recordingStage{name: "first", trace: &trace}).
		Add(&recordingStage{name: "second", trace: &trace, fn: func(in interface{}) (interface{}, error) {
			return fmt.Sprintf("saw %T", in), nil
		}})

	out, err := flow.Run(context.Background(), cache)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, trace)
	assert.Equal(t, "saw *testutil.MockRule", out)
	// The input key is consumed on run.
	assert.Equal(t, 0, cache.Len())
}

func TestFlow_StageFailureStopsTheFlow(t *testing.T) {
	cache := NewCache()
	key := cache.Put(&testutil.MockRule{RuleID: "rule"})

	var trace []string
	flow := NewFlow("detect/rule", key, slog.New(slog.DiscardHandler)).
		Add(&recordingStage{name: "first", trace: &trace, fn: func(interface{}) (interface{}, error) {
			return nil, errors.New("stage broke")
		}}).
		Add(&recordingStage{name: "second", trace: &trace})

	_, err := flow.Run(context.Background(), cache)
	require.Error(t, err)
	assert.ErrorContains(t, err, "stage first")
	assert.Equal(t, []string{"first"}, trace)
}

func TestFlow_MissingCacheEntry(t *testing.T) {
	flow := NewFlow("detect/rule", "rule/absent", slog.New(slog.DiscardHandler))
	_, err := flow.Run(context.Background(), NewCache())
	require.Error(t, err)
	assert.ErrorContains(t, err, "no cache entry")
}

func TestCache_KeysAreUniquePerPut(t *testing.T) {
	cache := NewCache()
	rule := &testutil.MockRule{RuleID: "rule"}

	k1 := cache.Put(rule)
	k2 := cache.Put(rule)
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, 2, cache.Len())

	v, ok := cache.Get(k1)
	require.True(t, ok)
	assert.Same(t, rule, v)

	cache.Remove(k1)
	_, ok = cache.Get(k1)
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())
}
