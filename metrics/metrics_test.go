package metrics

import "testing"

func TestNilRegistrySafe(t *testing.T) {
	var r *Registry
	r.ObserveLaunch(0.5)
	r.SetMempoolUsage(1, 2, 3, 4)
	r.AddMempoolAlloc(512)
	if g := r.Gatherer(); g != nil {
		t.Fatal("nil Registry.Gatherer() returned non-nil")
	}
}

func TestNewRegistersCollectors(t *testing.T) {
	r := New()
	if r.Gatherer() == nil {
		t.Fatal("New().Gatherer() returned nil")
	}
	r.ObserveLaunch(0.1)
	r.SetMempoolUsage(10, 20, 0, 5)
	r.AddMempoolAlloc(512)
}
