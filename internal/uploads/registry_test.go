package uploads

import (
	"testing"
	"time"
)

func TestRegistryLingerRemoval(t *testing.T) {
	registry := NewRegistry(2 * time.Second)

	var pending []func()
	registry.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		if d != 2*time.Second {
			t.Fatalf("unexpected linger %s", d)
		}
		pending = append(pending, fn)
		return nil
	}

	first := newTask("a.txt")
	second := newTask("b.txt")
	registry.register(first)
	registry.register(second)

	snapshots := registry.Snapshots()
	if len(snapshots) != 2 || snapshots[0].FileName != "a.txt" || snapshots[1].FileName != "b.txt" {
		t.Fatalf("expected registration order, got %+v", snapshots)
	}

	registry.retire(first.id)
	if len(registry.Snapshots()) != 2 {
		t.Fatal("task must stay visible during the linger window")
	}

	for _, fn := range pending {
		fn()
	}
	snapshots = registry.Snapshots()
	if len(snapshots) != 1 || snapshots[0].FileName != "b.txt" {
		t.Fatalf("expected only the live task, got %+v", snapshots)
	}
	if _, ok := registry.Get(first.id); ok {
		t.Fatal("retired task should be gone")
	}
}
