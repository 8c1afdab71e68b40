// Package sweep periodically removes peers whose WireGuard handshake has
// gone quiet. The loop is bound to a context so tests and shutdown paths
// can stop it; a single tick is exported for deterministic driving.
package sweep

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wgmesh/internal/logging"
	"wgmesh/internal/mesh"
	"wgmesh/internal/reconcile"
)

// DefaultInterval spaces sweeps so several happen within one staleness
// window.
const DefaultInterval = time.Hour

// Detector reports stale peers and peer counts on a WireGuard interface.
type Detector interface {
	FindStalePeers(iface string) ([]string, error)
	CountPeers(iface string) (int, error)
}

// Reconciler applies a peer's desired state to the kernel.
type Reconciler interface {
	Reconcile(peer mesh.Peer) (reconcile.Result, error)
}

// Metrics holds Prometheus metrics for the sweeper.
type Metrics struct {
	Sweeps       *prometheus.CounterVec // labels: domain, status
	PeersRemoved *prometheus.CounterVec // labels: domain
	PeersTracked *prometheus.GaugeVec   // labels: domain
}

// Config configures a Sweeper.
type Config struct {
	Domains    []string
	Interval   time.Duration
	Detector   Detector
	Reconciler Reconciler
	Logger     logging.Logger
	Metrics    *Metrics
}

// Sweeper drives the stale-peer removal loop for a set of domains.
type Sweeper struct {
	domains    []string
	interval   time.Duration
	detector   Detector
	reconciler Reconciler
	logger     logging.Logger
	metrics    *Metrics
}

// New returns a Sweeper for the configured domains.
func New(cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}
	return &Sweeper{
		domains:    cfg.Domains,
		interval:   cfg.Interval,
		detector:   cfg.Detector,
		reconciler: cfg.Reconciler,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// Run sweeps every interval until ctx is cancelled and returns the
// context's error. The first sweep happens one full interval after start,
// giving freshly announced peers time to complete a handshake.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one stale-peer pass over every configured domain. A failure
// for one peer or one domain never stops the rest of the pass.
func (s *Sweeper) Sweep() {
	for _, domain := range s.domains {
		s.sweepDomain(domain)
	}
}

func (s *Sweeper) sweepDomain(domain string) {
	log := s.logger.WithField("domain", domain)
	iface := mesh.WireguardInterfaceName(domain)

	stale, err := s.detector.FindStalePeers(iface)
	if err != nil {
		log.WithError(err).Error("Stale peer detection failed")
		s.countSweep(domain, "failed")
		return
	}

	removed := 0
	for _, publicKey := range stale {
		peer := mesh.Peer{PublicKey: publicKey, Domain: domain, Remove: true}
		if _, err := s.reconciler.Reconcile(peer); err != nil {
			log.WithError(err).WithField("public_key", publicKey).Error("Failed to remove stale peer")
			continue
		}
		removed++
	}

	if s.metrics != nil && s.metrics.PeersRemoved != nil {
		s.metrics.PeersRemoved.WithLabelValues(domain).Add(float64(removed))
	}
	if s.metrics != nil && s.metrics.PeersTracked != nil {
		if count, err := s.detector.CountPeers(iface); err == nil {
			s.metrics.PeersTracked.WithLabelValues(domain).Set(float64(count))
		}
	}
	s.countSweep(domain, "success")
	log.WithFields(logging.Fields{
		"stale":   len(stale),
		"removed": removed,
	}).Info("Completed stale peer sweep")
}

func (s *Sweeper) countSweep(domain, status string) {
	if s.metrics != nil && s.metrics.Sweeps != nil {
		s.metrics.Sweeps.WithLabelValues(domain, status).Inc()
	}
}
