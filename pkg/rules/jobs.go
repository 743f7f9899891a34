package rules

import (
	"sort"
	"sync"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

// JobRegistry is the bookkeeping of scheduled archival jobs. It guarantees at
// most one job per (rule, target) and lets jobs be cancelled by rule or by
// target. Timers themselves live in the JobScheduler.
type JobRegistry struct {
	mu   sync.Mutex
	jobs map[domain.JobKey]struct{}
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{
		jobs: make(map[domain.JobKey]struct{}),
	}
}

// AddIfAbsent reports whether the key was added.
func (r *JobRegistry) AddIfAbsent(key domain.JobKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[key]; ok {
		return false
	}
	r.jobs[key] = struct{}{}

	return true
}

func (r *JobRegistry) Remove(key domain.JobKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.jobs, key)
}

func (r *JobRegistry) Contains(key domain.JobKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.jobs[key]
	return ok
}

// ByRule returns the keys of every job of the rule.
func (r *JobRegistry) ByRule(ruleName string) []domain.JobKey {
	return r.filter(func(k domain.JobKey) bool { return k.RuleName == ruleName })
}

// ByTarget returns the keys of every job of the target regardless of rule.
func (r *JobRegistry) ByTarget(jvmId string) []domain.JobKey {
	return r.filter(func(k domain.JobKey) bool { return k.JvmId == jvmId })
}

func (r *JobRegistry) All() []domain.JobKey {
	return r.filter(func(domain.JobKey) bool { return true })
}

func (r *JobRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.jobs)
}

func (r *JobRegistry) filter(pred func(domain.JobKey) bool) []domain.JobKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.JobKey
	for k := range r.jobs {
		if pred(k) {
			result = append(result, k)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].RuleName != result[j].RuleName {
			return result[i].RuleName < result[j].RuleName
		}
		return result[i].JvmId < result[j].JvmId
	})

	return result
}
