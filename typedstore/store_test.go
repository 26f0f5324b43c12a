package typedstore

import (
	"context"
	"testing"

	"github.com/sage-x-project/dwn-agent-core/dwn"
	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/types"
)

type note struct {
	Title string `json:"title"`
}

func newTestStore(t *testing.T) *Store[note] {
	t.Helper()
	client := dwn.NewAgentClient(dwn.NewNode())
	s, err := New[note](client, "did:example:agent", types.CollectionDescriptor{
		Protocol:     "https://example.org/notes",
		ProtocolPath: "note",
		Schema:       "https://example.org/schemas/note",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "n1", note{Title: "hello"}, SetOptions{}); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := s.Get(ctx, "n1", GetOptions{})
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Title != "hello" {
		t.Fatalf("unexpected object: %+v", got)
	}
}

func TestSetOverwriteThenList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "n1", note{Title: "v1"}, SetOptions{}); err != nil {
		t.Fatalf("set v1: %v", err)
	}
	if err := s.Set(ctx, "n1", note{Title: "v2"}, SetOptions{}); err != nil {
		t.Fatalf("set v2: %v", err)
	}

	list, err := s.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Title != "v2" {
		t.Fatalf("want one entry with latest value, got %+v", list)
	}
}

func TestPreventDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "n1", note{Title: "v1"}, SetOptions{PreventDuplicates: true}); err != nil {
		t.Fatalf("first set: %v", err)
	}
	err := s.Set(ctx, "n1", note{Title: "v2"}, SetOptions{PreventDuplicates: true})
	if err != errs.ErrDuplicateEntry {
		t.Fatalf("want ErrDuplicateEntry, got %v", err)
	}
}

func TestGetMissingReturnsNotOk(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Get(ctx, "missing", GetOptions{})
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing object")
	}
}

func TestDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "n1", note{Title: "v1"}, SetOptions{}); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err := s.Delete(ctx, "n1", DeleteOptions{})
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}

	ok, err = s.Delete(ctx, "n1", DeleteOptions{})
	if err != nil || ok {
		t.Fatalf("second delete should report not-found: ok=%v err=%v", ok, err)
	}

	_, found, err := s.Get(ctx, "n1", GetOptions{})
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if found {
		t.Fatal("expected object to be gone after delete")
	}
}

func TestIndexRebuildAfterCacheMiss(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "n1", note{Title: "v1"}, SetOptions{}); err != nil {
		t.Fatalf("set: %v", err)
	}

	// simulate process restart: drop in-memory index and cache, keep the DWN.
	s.mu.Lock()
	s.index = make(map[string]indexEntry)
	s.mu.Unlock()
	s.cache.Purge()

	got, ok, err := s.Get(ctx, "n1", GetOptions{})
	if err != nil || !ok {
		t.Fatalf("get after index drop: ok=%v err=%v", ok, err)
	}
	if got.Title != "v1" {
		t.Fatalf("unexpected object after rebuild: %+v", got)
	}
}
