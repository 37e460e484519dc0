package cmap

import (
	"fmt"
	"sync"
	"testing"
)

func TestBasicOperations(t *testing.T) {
	m := New[int]()

	m.Set("a", 1)
	m.Set("b", 2)

	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v", v, ok)
	}
	if _, ok := m.Get("c"); ok {
		t.Fatal("Get(c) = true for missing key")
	}
	if m.Count() != 2 {
		t.Fatalf("Count = %d, want 2", m.Count())
	}

	if v, ok := m.Pop("b"); !ok || v != 2 {
		t.Fatalf("Pop(b) = %d, %v", v, ok)
	}
	if _, ok := m.Pop("b"); ok {
		t.Fatal("second Pop(b) reported an entry")
	}
	if m.Count() != 1 {
		t.Fatalf("Count = %d after pop, want 1", m.Count())
	}
}

func TestUpdate(t *testing.T) {
	m := New[int]()

	got := m.Update("counter", func(v int, exists bool) int {
		if exists {
			t.Fatal("exists = true on first update")
		}
		return 1
	})
	if got != 1 {
		t.Fatalf("Update = %d, want 1", got)
	}

	got = m.Update("counter", func(v int, exists bool) int { return v + 10 })
	if got != 11 {
		t.Fatalf("Update = %d, want 11", got)
	}
}

func TestClear(t *testing.T) {
	m := New[int]()
	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}
	m.Clear()
	if m.Count() != 0 {
		t.Fatalf("Count = %d after Clear", m.Count())
	}
}

func TestNewWithShards_InvalidFallsBack(t *testing.T) {
	for _, n := range []int{-1, 0, 3, 24} {
		m := NewWithShards[int](n)
		if len(m.shards) != DefaultShardCount {
			t.Fatalf("shards = %d for count %d, want default", len(m.shards), n)
		}
	}
	if m := NewWithShards[int](64); len(m.shards) != 64 {
		t.Fatal("power-of-2 count not honored")
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("g%d-i%d", g, i)
				m.Set(key, i)
				if v, ok := m.Get(key); !ok || v != i {
					t.Errorf("Get(%s) = %d, %v", key, v, ok)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if m.Count() != 8*500 {
		t.Fatalf("Count = %d, want %d", m.Count(), 8*500)
	}
}
