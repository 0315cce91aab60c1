package sharded

import (
	"sync"
	"testing"
)

func TestSetGet(t *testing.T) {
	tbl := New[int]()
	tbl.Set("a", 1)
	v, ok := tbl.Get("a")
	if !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if _, ok := tbl.Get("missing"); ok {
		t.Fatalf("Get(missing) found a value, want false")
	}
}

func TestSetIfAbsent(t *testing.T) {
	tbl := New[string]()
	if !tbl.SetIfAbsent("k", "first") {
		t.Fatalf("first SetIfAbsent should succeed")
	}
	if tbl.SetIfAbsent("k", "second") {
		t.Fatalf("second SetIfAbsent should fail")
	}
	v, _ := tbl.Get("k")
	if v != "first" {
		t.Fatalf("Get(k) = %q, want %q", v, "first")
	}
}

func TestUpdate(t *testing.T) {
	tbl := New[int]()
	tbl.Update("counter", func(cur int, existed bool) int {
		if existed {
			t.Fatalf("counter should not exist yet")
		}
		return cur + 1
	})
	tbl.Update("counter", func(cur int, existed bool) int {
		if !existed {
			t.Fatalf("counter should exist now")
		}
		return cur + 1
	})
	v, _ := tbl.Get("counter")
	if v != 2 {
		t.Fatalf("counter = %d, want 2", v)
	}
}

func TestUpdateIfExists(t *testing.T) {
	tbl := New[int]()
	if _, ok := tbl.UpdateIfExists("missing", func(cur int) int {
		t.Fatalf("fn should not be called for an absent key")
		return cur
	}); ok {
		t.Fatalf("UpdateIfExists on an absent key should report false")
	}

	tbl.Set("k", 5)
	updated, ok := tbl.UpdateIfExists("k", func(cur int) int { return cur + 1 })
	if !ok || updated != 6 {
		t.Fatalf("UpdateIfExists(k) = %d, %v; want 6, true", updated, ok)
	}
	v, _ := tbl.Get("k")
	if v != 6 {
		t.Fatalf("Get(k) after update = %d, want 6", v)
	}
}

func TestDeleteAndLen(t *testing.T) {
	tbl := New[int]()
	tbl.Set("a", 1)
	tbl.Set("b", 2)
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	tbl.Delete("a")
	if tbl.Len() != 1 {
		t.Fatalf("Len() after delete = %d, want 1", tbl.Len())
	}
	if _, ok := tbl.Get("a"); ok {
		t.Fatalf("a should be gone")
	}
}

func TestKeysAndAll(t *testing.T) {
	tbl := New[int]()
	tbl.Set("b", 2)
	tbl.Set("a", 1)
	tbl.Set("c", 3)
	keys := tbl.Keys()
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", keys, want)
		}
	}
	all := tbl.All()
	if len(all) != 3 || all["a"] != 1 || all["b"] != 2 || all["c"] != 3 {
		t.Fatalf("All() = %v, unexpected contents", all)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tbl := NewWithShards[int](4)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tbl.Update("shared", func(cur int, existed bool) int { return cur + 1 })
		}(i)
	}
	wg.Wait()
	v, _ := tbl.Get("shared")
	if v != 50 {
		t.Fatalf("shared = %d, want 50", v)
	}
}
