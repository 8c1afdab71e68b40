// Package reconcile drives a peer's desired state through the three kernel
// subsystems that together make the peer reachable. The subsystems fail
// independently and the kernel offers no transaction across them, so the
// reconciler fixes the order, applies an explicit per-subsystem failure
// policy and reports every subsystem's outcome to the caller.
package reconcile

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"wgmesh/internal/kernel"
	"wgmesh/internal/logging"
	"wgmesh/internal/mesh"
)

// Applier is one kernel subsystem adapter.
type Applier interface {
	Name() string
	Apply(peer mesh.Peer) error
}

// FailureMode decides what a step's error does to the reconciliation.
type FailureMode int

const (
	// Propagate aborts the reconciliation and returns the error; later
	// steps are not attempted.
	Propagate FailureMode = iota
	// Record keeps the error in the result and continues with the
	// remaining subsystems.
	Record
)

// Step pairs a subsystem adapter with its failure mode.
type Step struct {
	Applier Applier
	OnError FailureMode
}

// Result maps a subsystem name to its outcome. A nil value means the
// subsystem applied the desired state; a non-nil value is the recorded
// error of a Record step or, for the failing step of an aborted
// reconciliation, the propagated error.
type Result map[string]error

// Metrics holds Prometheus metrics for the reconciler.
type Metrics struct {
	SubsystemOps *prometheus.CounterVec // labels: subsystem, operation, status
}

// Config configures a Reconciler.
type Config struct {
	Logger  logging.Logger
	Metrics *Metrics
	// Steps overrides the default subsystem chain; intended for tests and
	// for operators who want FDB failures recorded instead of fatal.
	Steps []Step
}

// Reconciler applies peers to the kernel, one identity at a time.
type Reconciler struct {
	steps   []Step
	logger  logging.Logger
	metrics *Metrics
	locks   sync.Map // "domain/publicKey" -> *sync.Mutex
}

// DefaultSteps is the fixed subsystem chain. The WireGuard peer entry is
// the authoritative identity and gates reachability, so its failure aborts
// the reconciliation. Route and FDB entries are independent forwarding
// mechanisms: a route failure is recorded so the FDB step still runs.
// Whether FDB failures should likewise be recorded is an open policy
// question with the mesh operators; until that is settled they stay fatal.
func DefaultSteps() []Step {
	return []Step{
		{Applier: kernel.PeerTable{}, OnError: Propagate},
		{Applier: kernel.RouteTable{}, OnError: Record},
		{Applier: kernel.FDB{}, OnError: Propagate},
	}
}

// New returns a Reconciler using the configured steps, defaulting to
// DefaultSteps.
func New(cfg Config) *Reconciler {
	steps := cfg.Steps
	if len(steps) == 0 {
		steps = DefaultSteps()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}
	return &Reconciler{
		steps:   steps,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Reconcile applies the peer's desired state to every subsystem in order
// and returns the per-subsystem outcome. Reconciliations for the same
// public key and domain are serialized: the subsystem triple for one
// identity must never interleave with itself.
//
// On a propagating failure the partial result still carries every outcome
// observed so far, including the failing subsystem's error.
func (r *Reconciler) Reconcile(peer mesh.Peer) (Result, error) {
	unlock := r.lock(peer)
	defer unlock()

	result := make(Result, len(r.steps))
	for _, step := range r.steps {
		name := step.Applier.Name()
		err := step.Applier.Apply(peer)
		result[name] = err
		r.observe(peer, name, err)

		if err == nil {
			continue
		}
		if step.OnError == Propagate {
			return result, err
		}
		r.logger.WithError(err).WithFields(logging.Fields{
			"subsystem":  name,
			"domain":     peer.Domain,
			"public_key": peer.PublicKey,
			"remove":     peer.Remove,
		}).Error("Subsystem update failed, continuing with remaining subsystems")
	}
	return result, nil
}

func (r *Reconciler) lock(peer mesh.Peer) func() {
	identity := peer.Domain + "/" + peer.PublicKey
	mu, _ := r.locks.LoadOrStore(identity, &sync.Mutex{})
	mutex := mu.(*sync.Mutex)
	mutex.Lock()
	return mutex.Unlock
}

func (r *Reconciler) observe(peer mesh.Peer, subsystem string, err error) {
	if r.metrics == nil || r.metrics.SubsystemOps == nil {
		return
	}
	operation := "add"
	if peer.Remove {
		operation = "remove"
	}
	status := "applied"
	if err != nil {
		status = "failed"
	}
	r.metrics.SubsystemOps.WithLabelValues(subsystem, operation, status).Inc()
}
