package rules

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

func TestJobRegistry_AddIfAbsent(t *testing.T) {
	r := NewJobRegistry()
	key := domain.JobKey{RuleName: "r", JvmId: "a"}

	assert.True(t, r.AddIfAbsent(key))
	assert.False(t, r.AddIfAbsent(key))
	assert.Equal(t, 1, r.Len())
}

func TestJobRegistry_AddIfAbsent_Concurrent(t *testing.T) {
	r := NewJobRegistry()
	key := domain.JobKey{RuleName: "r", JvmId: "a"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	added := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.AddIfAbsent(key) {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, added)
}

func TestJobRegistry_Filters(t *testing.T) {
	r := NewJobRegistry()
	r.AddIfAbsent(domain.JobKey{RuleName: "r1", JvmId: "a"})
	r.AddIfAbsent(domain.JobKey{RuleName: "r1", JvmId: "b"})
	r.AddIfAbsent(domain.JobKey{RuleName: "r2", JvmId: "a"})

	assert.Equal(t, []domain.JobKey{{RuleName: "r1", JvmId: "a"}, {RuleName: "r1", JvmId: "b"}}, r.ByRule("r1"))
	assert.Equal(t, []domain.JobKey{{RuleName: "r1", JvmId: "a"}, {RuleName: "r2", JvmId: "a"}}, r.ByTarget("a"))
	assert.Len(t, r.All(), 3)

	r.Remove(domain.JobKey{RuleName: "r1", JvmId: "a"})
	assert.False(t, r.Contains(domain.JobKey{RuleName: "r1", JvmId: "a"}))
	assert.Equal(t, 2, r.Len())
}
