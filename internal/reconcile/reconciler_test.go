package reconcile

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"wgmesh/internal/kernel"
	"wgmesh/internal/mesh"
)

type fakeApplier struct {
	name     string
	err      error
	calls    int
	sequence *[]string
	block    func(peer mesh.Peer)
}

func (f *fakeApplier) Name() string { return f.name }

func (f *fakeApplier) Apply(peer mesh.Peer) error {
	f.calls++
	if f.sequence != nil {
		*f.sequence = append(*f.sequence, f.name)
	}
	if f.block != nil {
		f.block(peer)
	}
	return f.err
}

func testPeer(remove bool) mesh.Peer {
	return mesh.Peer{
		PublicKey: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=",
		Domain:    "welt",
		Remove:    remove,
	}
}

func newTestSteps(wg, route, fdb *fakeApplier) []Step {
	return []Step{
		{Applier: wg, OnError: Propagate},
		{Applier: route, OnError: Record},
		{Applier: fdb, OnError: Propagate},
	}
}

func newTestMetrics() *Metrics {
	return &Metrics{
		SubsystemOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "test_subsystem_operations_total",
				Help: "subsystem operations",
			},
			[]string{"subsystem", "operation", "status"},
		),
	}
}

func TestReconcileSuccessHasAllSubsystems(t *testing.T) {
	sequence := make([]string, 0, 3)
	wg := &fakeApplier{name: kernel.SubsystemWireguard, sequence: &sequence}
	route := &fakeApplier{name: kernel.SubsystemRoute, sequence: &sequence}
	fdb := &fakeApplier{name: kernel.SubsystemFDB, sequence: &sequence}

	r := New(Config{Steps: newTestSteps(wg, route, fdb)})

	result, err := r.Reconcile(testPeer(false))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("result has %d entries, want 3: %v", len(result), result)
	}
	for _, name := range []string{kernel.SubsystemWireguard, kernel.SubsystemRoute, kernel.SubsystemFDB} {
		outcome, ok := result[name]
		if !ok {
			t.Fatalf("result missing subsystem %q", name)
		}
		if outcome != nil {
			t.Fatalf("result[%q] = %v, want nil", name, outcome)
		}
	}

	want := []string{kernel.SubsystemWireguard, kernel.SubsystemRoute, kernel.SubsystemFDB}
	for i := range want {
		if sequence[i] != want[i] {
			t.Fatalf("apply order = %v, want %v", sequence, want)
		}
	}
}

func TestReconcileWireguardFailureAbortsEverything(t *testing.T) {
	wgErr := errors.New("wireguard interface missing")
	wg := &fakeApplier{name: kernel.SubsystemWireguard, err: wgErr}
	route := &fakeApplier{name: kernel.SubsystemRoute}
	fdb := &fakeApplier{name: kernel.SubsystemFDB}

	r := New(Config{Steps: newTestSteps(wg, route, fdb)})

	result, err := r.Reconcile(testPeer(false))
	if !errors.Is(err, wgErr) {
		t.Fatalf("Reconcile error = %v, want %v", err, wgErr)
	}
	if route.calls != 0 || fdb.calls != 0 {
		t.Fatalf("route called %d times, fdb %d times; want 0 and 0", route.calls, fdb.calls)
	}
	if !errors.Is(result[kernel.SubsystemWireguard], wgErr) {
		t.Fatalf("result[Wireguard] = %v, want %v", result[kernel.SubsystemWireguard], wgErr)
	}
}

func TestReconcileRouteFailureIsRecordedAndFDBStillRuns(t *testing.T) {
	routeErr := errors.New("no such route")
	wg := &fakeApplier{name: kernel.SubsystemWireguard}
	route := &fakeApplier{name: kernel.SubsystemRoute, err: routeErr}
	fdb := &fakeApplier{name: kernel.SubsystemFDB}

	r := New(Config{Steps: newTestSteps(wg, route, fdb)})

	result, err := r.Reconcile(testPeer(true))
	if err != nil {
		t.Fatalf("Reconcile: route failures must not propagate, got %v", err)
	}
	if fdb.calls != 1 {
		t.Fatalf("fdb called %d times after route failure, want 1", fdb.calls)
	}
	if len(result) != 3 {
		t.Fatalf("result has %d entries, want 3: %v", len(result), result)
	}
	if !errors.Is(result[kernel.SubsystemRoute], routeErr) {
		t.Fatalf("result[Route] = %v, want recorded %v", result[kernel.SubsystemRoute], routeErr)
	}
}

func TestReconcileFDBFailurePropagatesWithFullResult(t *testing.T) {
	fdbErr := errors.New("fdb rejected")
	wg := &fakeApplier{name: kernel.SubsystemWireguard}
	route := &fakeApplier{name: kernel.SubsystemRoute}
	fdb := &fakeApplier{name: kernel.SubsystemFDB, err: fdbErr}

	r := New(Config{Steps: newTestSteps(wg, route, fdb)})

	result, err := r.Reconcile(testPeer(true))
	if !errors.Is(err, fdbErr) {
		t.Fatalf("Reconcile error = %v, want %v", err, fdbErr)
	}
	if len(result) != 3 {
		t.Fatalf("result has %d entries, want 3 (all attempted subsystems): %v", len(result), result)
	}
	if !errors.Is(result[kernel.SubsystemFDB], fdbErr) {
		t.Fatalf("result[Bridge FDB] = %v, want %v", result[kernel.SubsystemFDB], fdbErr)
	}
}

func TestReconcileRecordModeForFDBCanBeConfigured(t *testing.T) {
	fdbErr := errors.New("fdb rejected")
	wg := &fakeApplier{name: kernel.SubsystemWireguard}
	route := &fakeApplier{name: kernel.SubsystemRoute}
	fdb := &fakeApplier{name: kernel.SubsystemFDB, err: fdbErr}

	steps := []Step{
		{Applier: wg, OnError: Propagate},
		{Applier: route, OnError: Record},
		{Applier: fdb, OnError: Record},
	}
	r := New(Config{Steps: steps})

	result, err := r.Reconcile(testPeer(false))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !errors.Is(result[kernel.SubsystemFDB], fdbErr) {
		t.Fatalf("result[Bridge FDB] = %v, want recorded %v", result[kernel.SubsystemFDB], fdbErr)
	}
}

func TestReconcileSerializesSameIdentity(t *testing.T) {
	var inFlight, maxInFlight int64
	wg := &fakeApplier{
		name: kernel.SubsystemWireguard,
		block: func(mesh.Peer) {
			current := atomic.AddInt64(&inFlight, 1)
			for {
				observed := atomic.LoadInt64(&maxInFlight)
				if current <= observed || atomic.CompareAndSwapInt64(&maxInFlight, observed, current) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
		},
	}
	route := &fakeApplier{name: kernel.SubsystemRoute}
	fdb := &fakeApplier{name: kernel.SubsystemFDB}

	r := New(Config{Steps: newTestSteps(wg, route, fdb)})

	var group sync.WaitGroup
	for i := 0; i < 8; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			if _, err := r.Reconcile(testPeer(false)); err != nil {
				t.Errorf("Reconcile: %v", err)
			}
		}()
	}
	group.Wait()

	if atomic.LoadInt64(&maxInFlight) > 1 {
		t.Fatalf("reconciliations for one identity overlapped: max in flight %d", maxInFlight)
	}
}

func TestReconcileMetrics(t *testing.T) {
	metrics := newTestMetrics()
	routeErr := errors.New("no such route")
	wg := &fakeApplier{name: kernel.SubsystemWireguard}
	route := &fakeApplier{name: kernel.SubsystemRoute, err: routeErr}
	fdb := &fakeApplier{name: kernel.SubsystemFDB}

	r := New(Config{Steps: newTestSteps(wg, route, fdb), Metrics: metrics})

	if _, err := r.Reconcile(testPeer(true)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if got := testutil.ToFloat64(metrics.SubsystemOps.WithLabelValues(kernel.SubsystemWireguard, "remove", "applied")); got != 1 {
		t.Errorf("wireguard applied counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.SubsystemOps.WithLabelValues(kernel.SubsystemRoute, "remove", "failed")); got != 1 {
		t.Errorf("route failed counter = %v, want 1", got)
	}
}

func TestDefaultStepsOrderAndPolicy(t *testing.T) {
	steps := DefaultSteps()
	if len(steps) != 3 {
		t.Fatalf("DefaultSteps has %d steps, want 3", len(steps))
	}
	wantNames := []string{kernel.SubsystemWireguard, kernel.SubsystemRoute, kernel.SubsystemFDB}
	wantModes := []FailureMode{Propagate, Record, Propagate}
	for i, step := range steps {
		if step.Applier.Name() != wantNames[i] {
			t.Errorf("step %d applier = %q, want %q", i, step.Applier.Name(), wantNames[i])
		}
		if step.OnError != wantModes[i] {
			t.Errorf("step %d failure mode = %d, want %d", i, step.OnError, wantModes[i])
		}
	}
}
