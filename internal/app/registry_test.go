package app

import (
	"slices"
	"sync"
	"testing"
)

type entry struct {
	id   string
	peer string
}

func byID(id string) func(entry) bool {
	return func(e entry) bool { return e.id == id }
}

func TestRegistryMutations(t *testing.T) {
	r := NewRegistry[entry]()
	var published [][]entry
	r.Subscribe(func(s []entry) { published = append(published, s) })

	r.Add(entry{id: "1", peer: "a"})
	r.Add(entry{id: "2", peer: "b"})
	r.Add(entry{id: "3", peer: "a"})

	if got, ok := r.FindWhere(func(e entry) bool { return e.peer == "a" }); !ok || got.id != "1" {
		t.Fatalf("FindWhere returned %+v, %v; want first match id=1", got, ok)
	}

	if n := r.ReplaceWhere(byID("2"), func(e entry) entry { e.peer = "c"; return e }); n != 1 {
		t.Fatalf("ReplaceWhere replaced %d, want 1", n)
	}
	if n := r.RemoveWhere(func(e entry) bool { return e.peer == "a" }); n != 2 {
		t.Fatalf("RemoveWhere removed %d, want 2", n)
	}

	want := []entry{{id: "2", peer: "c"}}
	if got := r.Snapshot(); !slices.Equal(got, want) {
		t.Errorf("snapshot = %+v, want %+v", got, want)
	}
	if len(published) != 5 {
		t.Fatalf("published %d snapshots, want 5", len(published))
	}
	if len(published[0]) != 1 || len(published[2]) != 3 {
		t.Errorf("snapshots out of order: %+v", published)
	}
}

func TestRegistryNoopDoesNotPublish(t *testing.T) {
	r := NewRegistry[entry]()
	r.Add(entry{id: "1"})

	calls := 0
	r.Subscribe(func([]entry) { calls++ })

	if n := r.RemoveWhere(byID("missing")); n != 0 {
		t.Fatalf("RemoveWhere removed %d, want 0", n)
	}
	if n := r.ReplaceWhere(byID("missing"), func(e entry) entry { return e }); n != 0 {
		t.Fatalf("ReplaceWhere replaced %d, want 0", n)
	}
	if r.Update(func(cur []entry) ([]entry, bool) { return cur, false }) {
		t.Fatal("Update reported a change")
	}
	if calls != 0 {
		t.Errorf("no-op mutations published %d snapshots", calls)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistrySnapshotIsImmutable(t *testing.T) {
	r := NewRegistry[entry]()
	r.Add(entry{id: "1"})

	snap := r.Snapshot()
	snap[0].id = "changed"

	if got := r.Snapshot()[0].id; got != "1" {
		t.Errorf("registry entry changed through snapshot: %s", got)
	}
}

func TestRegistryReentrantSubscriber(t *testing.T) {
	r := NewRegistry[entry]()
	var lens []int
	r.Subscribe(func(s []entry) {
		lens = append(lens, len(s))
		// Reading and mutating from inside a callback must not deadlock.
		_ = r.Snapshot()
		if len(s) == 1 {
			r.Add(entry{id: "nested"})
		}
	})

	r.Add(entry{id: "1"})

	if !slices.Equal(lens, []int{1, 2}) {
		t.Errorf("delivered lengths = %v, want [1 2]", lens)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestRegistryUnsubscribe(t *testing.T) {
	r := NewRegistry[entry]()
	calls := 0
	unsub := r.Subscribe(func([]entry) { calls++ })

	r.Add(entry{id: "1"})
	unsub()
	unsub()
	r.Add(entry{id: "2"})

	if calls != 1 {
		t.Errorf("subscriber called %d times, want 1", calls)
	}
}

func TestRegistryConcurrentAdds(t *testing.T) {
	r := NewRegistry[entry]()
	var mu sync.Mutex
	last := 0
	r.Subscribe(func(s []entry) {
		mu.Lock()
		defer mu.Unlock()
		if len(s) < last {
			t.Errorf("snapshot shrank from %d to %d", last, len(s))
		}
		last = len(s)
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Add(entry{id: "x"})
		}()
	}
	wg.Wait()

	if r.Len() != 50 {
		t.Errorf("Len = %d, want 50", r.Len())
	}
}

func TestValue(t *testing.T) {
	v := NewValue(false)
	var seen []bool
	v.Subscribe(func(b bool) { seen = append(seen, b) })

	v.Set(false)
	v.Set(true)
	v.Set(true)

	if !v.Get() {
		t.Fatal("Get = false after Set(true)")
	}
	if !slices.Equal(seen, []bool{true}) {
		t.Errorf("published %v, want [true]", seen)
	}
}
