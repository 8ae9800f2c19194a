package taskmanager

import (
	"context"
	"fmt"
	"sync"
	"testing"

	tgerrors "github.com/maxkimambo/taskgraph/internal/errors"
	"github.com/maxkimambo/taskgraph/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ task.Tasks = (*Refs)(nil)
	_ task.Hooks = (*Hooks)(nil)
)

func TestSharedContext_PublishOnce(t *testing.T) {
	sc := NewSharedContext()

	require.NoError(t, sc.Publish("extract.go", []int{1, 2}))
	err := sc.Publish("./extract", []int{3})
	require.Error(t, err)
	assert.True(t, tgerrors.IsCategory(err, tgerrors.ErrorCategoryRuntime))

	v, ok := sc.Get("extract")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, v)
	assert.Equal(t, 1, sc.Len())
}

func TestSharedContext_NilOutputIsPublished(t *testing.T) {
	sc := NewSharedContext()
	require.NoError(t, sc.Publish("side_effect.go", nil))

	v, ok := sc.Get("side_effect.go")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestSharedContext_ConcurrentAccess(t *testing.T) {
	sc := NewSharedContext()
	numGoroutines := 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines * 2)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, sc.Publish(fmt.Sprintf("m%d.go", id), id))
		}(i)
	}
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			if v, ok := sc.Get(fmt.Sprintf("m%d.go", id)); ok {
				assert.Equal(t, id, v)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, numGoroutines, sc.Len())
}

func TestRefs(t *testing.T) {
	sc := NewSharedContext()
	require.NoError(t, sc.Publish("users.go", "users"))

	refs := sc.Refs("report.go", []string{"users.go", "orders.go"})

	v, err := refs.Ref("users")
	require.NoError(t, err)
	assert.Equal(t, "users", v)

	_, err = refs.Ref("orders.go")
	require.Error(t, err)
	pe, _ := tgerrors.As(err)
	require.NotNil(t, pe)
	assert.Equal(t, tgerrors.CodeUpstreamMissing, pe.Code)

	_, err = refs.Ref("secrets.go")
	require.Error(t, err)
	pe, _ = tgerrors.As(err)
	require.NotNil(t, pe)
	assert.Equal(t, tgerrors.CodeUndeclaredRef, pe.Code)
}

func TestHooks(t *testing.T) {
	h := NewHooks(nil, map[string]string{"region": "emea"})

	v, ok := h.Var("region")
	assert.True(t, ok)
	assert.Equal(t, "emea", v)
	_, ok = h.Var("missing")
	assert.False(t, ok)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "attempt")
	bound := h.WithContext(ctx)
	assert.Equal(t, "attempt", bound.Context().Value(key{}))
	assert.Equal(t, context.Background(), h.Context())

	_, err := h.Connector("warehouse")
	assert.Error(t, err)
	_, err = h.SQL(ctx, "warehouse", "SELECT 1")
	assert.Error(t, err)
}
