// Package discovery keeps track of the JVMs that can be recorded.
package discovery

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

// Registry is the set of known targets. Each discovery source owns the
// targets it reported last; a target is lost once no source reports it.
type Registry struct {
	logger logrus.FieldLogger
	bus    domain.EventBus

	mu      sync.RWMutex
	targets map[string]domain.Target
	owners  map[string]map[string]struct{}
}

func NewRegistry(logger logrus.FieldLogger, bus domain.EventBus) *Registry {
	return &Registry{
		logger:  logger,
		bus:     bus,
		targets: make(map[string]domain.Target),
		owners:  make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Targets() []domain.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Target, 0, len(r.targets))
	for _, t := range r.targets {
		result = append(result, t)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].JvmId < result[k].JvmId })

	return result
}

func (r *Registry) Target(jvmId string) (domain.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.targets[jvmId]
	return t, ok
}

// Sync replaces the targets reported by source. Events are published after
// the registry is updated: losses first, then known targets whose attributes
// changed, then new ones.
func (r *Registry) Sync(source string, targets []domain.Target) {
	reported := make(map[string]domain.Target, len(targets))
	for _, t := range targets {
		reported[t.JvmId] = t
	}

	var found, modified, lost []domain.Target

	r.mu.Lock()

	owned := r.owners[source]

	for jvmId := range owned {
		if _, ok := reported[jvmId]; ok {
			continue
		}
		if !r.ownedElsewhere(source, jvmId) {
			lost = append(lost, r.targets[jvmId])
			delete(r.targets, jvmId)
		}
	}

	next := make(map[string]struct{}, len(reported))
	for jvmId, t := range reported {
		next[jvmId] = struct{}{}

		if prev, known := r.targets[jvmId]; !known {
			found = append(found, t)
		} else if !prev.SameAttributes(t) {
			modified = append(modified, t)
		}
		r.targets[jvmId] = t
	}
	r.owners[source] = next

	r.mu.Unlock()

	sortTargets(lost)
	sortTargets(modified)
	sortTargets(found)

	for _, t := range lost {
		r.logger.WithFields(logrus.Fields{"source": source, "jvm_id": t.JvmId, "connect_url": t.ConnectUrl}).Info("Target lost")
		r.bus.Publish(domain.TopicTargets, domain.DiscoveryEvent{Kind: domain.TargetLost, Target: t})
	}
	for _, t := range modified {
		r.logger.WithFields(logrus.Fields{"source": source, "jvm_id": t.JvmId, "connect_url": t.ConnectUrl}).Info("Target modified")
		r.bus.Publish(domain.TopicTargets, domain.DiscoveryEvent{Kind: domain.TargetModified, Target: t})
	}
	for _, t := range found {
		r.logger.WithFields(logrus.Fields{"source": source, "jvm_id": t.JvmId, "connect_url": t.ConnectUrl}).Info("Target found")
		r.bus.Publish(domain.TopicTargets, domain.DiscoveryEvent{Kind: domain.TargetFound, Target: t})
	}
}

func (r *Registry) ownedElsewhere(source, jvmId string) bool {
	for s, owned := range r.owners {
		if s == source {
			continue
		}
		if _, ok := owned[jvmId]; ok {
			return true
		}
	}
	return false
}

func sortTargets(targets []domain.Target) {
	sort.Slice(targets, func(i, k int) bool { return targets[i].JvmId < targets[k].JvmId })
}
