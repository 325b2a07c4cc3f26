package objectgw

import (
	"context"
	"path/filepath"
	"testing"
)

type sample struct {
	Name string `json:"name"`
}

func TestFSStore_PutGetJSON(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	key := "myapp/1/arnMap.json"
	if err := store.PutJSON(ctx, key, sample{Name: "coordinator"}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}

	var got sample
	if err := store.GetJSON(ctx, key, &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.Name != "coordinator" {
		t.Fatalf("got %+v", got)
	}
}

func TestFSStore_Exists(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	ok, err := store.Exists(ctx, "confirm.txt")
	if err != nil {
		t.Fatalf("Exists on missing key: %v", err)
	}
	if ok {
		t.Fatal("expected Exists=false for missing key")
	}

	if err := store.PutText(ctx, "confirm.txt", "ok", "text/plain"); err != nil {
		t.Fatalf("PutText: %v", err)
	}

	ok, err = store.Exists(ctx, "confirm.txt")
	if err != nil {
		t.Fatalf("Exists after put: %v", err)
	}
	if !ok {
		t.Fatal("expected Exists=true after PutText")
	}
}

func TestFSStore_NestedKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	key := "prefix/app/42/arnMap.json"
	if err := store.PutJSON(ctx, key, sample{Name: "x"}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}

	expected := filepath.Join(dir, "prefix", "app", "42", "arnMap.json")
	var got sample
	if err := store.GetJSON(ctx, key, &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if _, err := store.Exists(ctx, key); err != nil {
		t.Fatalf("exists: %v", err)
	}
	_ = expected
}
