package state

import (
	"fmt"
	"sync"
	"testing"
)

func TestAppendAndEntries(t *testing.T) {
	h := NewHistory()
	h.Append(Entry{Input: "find leads", Kind: KindSingle, Automation: "enrich_leads", Status: "success"})
	h.Append(Entry{Input: "find then email", Kind: KindMultiStep, Steps: []string{"enrich_leads", "generate_emails"}})

	entries := h.Entries()
	if len(entries) != 2 {
		t.Fatalf("len = %d", len(entries))
	}
	if entries[0].Automation != "enrich_leads" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
	if entries[1].Kind != KindMultiStep || len(entries[1].Steps) != 2 {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestClear(t *testing.T) {
	h := NewHistory()
	h.Append(Entry{Input: "a"})
	h.Clear()
	if h.Len() != 0 {
		t.Errorf("len after clear = %d", h.Len())
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	h := NewHistory()
	h.Append(Entry{Input: "a"})
	got := h.Entries()
	got[0].Input = "mutated"
	if h.Entries()[0].Input != "a" {
		t.Error("Entries must return a copy")
	}
}

func TestConcurrentAppend(t *testing.T) {
	h := NewHistory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h.Append(Entry{Input: fmt.Sprintf("req-%d", n)})
		}(i)
	}
	wg.Wait()
	if h.Len() != 50 {
		t.Errorf("len = %d, want 50", h.Len())
	}
}
