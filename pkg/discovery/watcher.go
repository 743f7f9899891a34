package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

const defaultInterval = 30 * time.Second

// IdentityResolver tells the identity of the JVM behind a Jolokia endpoint.
type IdentityResolver interface {
	JvmId(ctx context.Context, connectUrl string) (string, error)
}

// Watcher polls discovery sources and feeds the registry. Endpoints whose
// identity cannot be read are left out, so a JVM that stops answering is
// eventually reported lost.
type Watcher struct {
	logger   logrus.FieldLogger
	registry *Registry
	resolver IdentityResolver
	sources  []Source
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWatcher(logger logrus.FieldLogger, registry *Registry, resolver IdentityResolver, sources []Source, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Watcher{
		logger:   logger,
		registry: registry,
		resolver: resolver,
		sources:  sources,
		interval: interval,
	}
}

// Start polls every source once and then keeps polling in the background.
func (w *Watcher) Start() {
	var ctx context.Context
	ctx, w.cancel = context.WithCancel(context.Background())

	for _, source := range w.sources {
		w.wg.Add(1)
		go w.watch(ctx, source)
	}
}

func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) watch(ctx context.Context, source Source) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Poll(ctx, source)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll synchronizes the registry with the current endpoints of the source.
// A failing source keeps its previous targets.
func (w *Watcher) Poll(ctx context.Context, source Source) {
	logger := w.logger.WithField("source", source.Name())

	endpoints, err := source.Endpoints(ctx)
	if err != nil {
		logger.WithError(err).Error("Unable to list endpoints")
		return
	}

	targets := make([]domain.Target, 0, len(endpoints))

	for _, e := range endpoints {
		jvmId, err := w.resolver.JvmId(ctx, e.ConnectUrl)
		if err != nil {
			logger.WithError(err).WithField("connect_url", e.ConnectUrl).Warn("Unable to identify JVM")
			continue
		}

		targets = append(targets, domain.Target{
			JvmId:               jvmId,
			ConnectUrl:          e.ConnectUrl,
			Alias:               e.Alias,
			Labels:              e.Labels,
			PlatformAnnotations: e.PlatformAnnotations,
			CryostatAnnotations: map[string]string{
				"JVM_ID":      jvmId,
				"CONNECT_URL": e.ConnectUrl,
				"ALIAS":       e.Alias,
			},
		})
	}

	if ctx.Err() != nil {
		return
	}

	w.registry.Sync(source.Name(), targets)
}
