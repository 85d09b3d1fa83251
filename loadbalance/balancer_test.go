package loadbalance

import (
	"fmt"
	"testing"

	"github.com/Masterminds/semver/v3"

	"mini-jdi/registry"
)

var testInstances = []registry.VMInstance{
	{Addr: ":5005", Weight: 10, Version: "1.8"},
	{Addr: ":5006", Weight: 5, Version: "1.2"},
	{Addr: ":5007", Weight: 10, Version: "17.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Three picks visit every instance once, in order.
	for i := range 3 {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		if inst.Addr != testInstances[i].Addr {
			t.Fatalf("pick %d: expect %s, got %s", i, testInstances[i].Addr, inst.Addr)
		}
	}

	// The fourth wraps around.
	inst, _ := b.Pick(testInstances)
	if inst.Addr != testInstances[0].Addr {
		t.Fatalf("expect wrap around to %s, got %s", testInstances[0].Addr, inst.Addr)
	}
}

func TestEmpty(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer("k")} {
		if _, err := b.Pick(nil); err != ErrNoInstances {
			t.Fatalf("%s: expect ErrNoInstances, got %v", b.Name(), err)
		}
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for range n {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// Weight ratio is 10:5:10, so :5005 should be picked about twice as often as :5006.
	ratio := float64(counts[":5005"]) / float64(counts[":5006"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :5005/:5006 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	inst, err := b.Pick([]registry.VMInstance{{Addr: ":1"}, {Addr: ":2"}})
	if err != nil || inst == nil {
		t.Fatalf("unexpected %v, %v", inst, err)
	}
}

func TestConsistentHash(t *testing.T) {
	// The same key always lands on the same instance.
	b := NewConsistentHashBalancer("alice")
	inst1, _ := b.Pick(testInstances)
	inst2, _ := b.Pick(testInstances)
	if inst1.Addr != inst2.Addr {
		t.Fatalf("same key mapped to different instances: %s vs %s", inst1.Addr, inst2.Addr)
	}

	// Order of the instance list does not matter.
	reversed := []registry.VMInstance{testInstances[2], testInstances[1], testInstances[0]}
	inst3, _ := b.Pick(reversed)
	if inst3.Addr != inst1.Addr {
		t.Fatalf("instance order changed the pick: %s vs %s", inst1.Addr, inst3.Addr)
	}

	// Different keys spread over the instances.
	seen := map[string]bool{}
	for i := range 100 {
		inst, _ := NewConsistentHashBalancer(fmt.Sprintf("user-%d", i)).Pick(testInstances)
		seen[inst.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different instances, got %d", len(seen))
	}
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{
		"":         "RoundRobin",
		"weighted": "WeightedRandom",
		"sticky":   "ConsistentHash",
	} {
		b, err := New(name, "k")
		if err != nil {
			t.Fatal(err)
		}
		if b.Name() != want {
			t.Fatalf("%q: expect %s, got %s", name, want, b.Name())
		}
	}
	if _, err := New("fastest", ""); err == nil {
		t.Fatal("expect error for unknown strategy")
	}
}

func TestFilterByVersion(t *testing.T) {
	c, err := semver.NewConstraint(">= 1.4")
	if err != nil {
		t.Fatal(err)
	}
	got := FilterByVersion(testInstances, c)
	if len(got) != 2 || got[0].Addr != ":5005" || got[1].Addr != ":5007" {
		t.Fatalf("unexpected instances %+v", got)
	}
	if len(FilterByVersion(testInstances, nil)) != 3 {
		t.Fatal("nil constraint must keep everything")
	}
}
