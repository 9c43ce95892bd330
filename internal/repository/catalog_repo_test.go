package repository

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/timmy/vismatch/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCatalogStoreLoad_MissingSideStoreDegrades(t *testing.T) {
	dir := t.TempDir()
	products := filepath.Join(dir, "products.json")
	writeFile(t, products, `[{"id":1,"name":"Mug","category":"Kitchen","price":4.5,"image_url":"https://example.com/mug.jpg"}]`)

	store := NewCatalogStore(products, NewFileEmbeddingStore(filepath.Join(dir, "embeddings.json")))
	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snap.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(snap.Items))
	}
	if snap.Embeddings == nil || len(snap.Embeddings) != 0 {
		t.Errorf("Embeddings = %v, want empty non-nil index", snap.Embeddings)
	}
	if got := snap.Items[0].ImageRef(); got != "https://example.com/mug.jpg" {
		t.Errorf("ImageRef() = %q, want legacy image_url", got)
	}
}

func TestCatalogStoreLoad_CorruptSideStoreDegrades(t *testing.T) {
	dir := t.TempDir()
	products := filepath.Join(dir, "products.json")
	embeddings := filepath.Join(dir, "embeddings.json")
	writeFile(t, products, `[]`)
	writeFile(t, embeddings, `{not json`)

	snap, err := NewCatalogStore(products, NewFileEmbeddingStore(embeddings)).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snap.Embeddings) != 0 {
		t.Errorf("Embeddings = %v, want empty", snap.Embeddings)
	}
}

func TestCatalogStoreLoad_MissingItemsFails(t *testing.T) {
	dir := t.TempDir()
	store := NewCatalogStore(filepath.Join(dir, "products.json"), NewFileEmbeddingStore(filepath.Join(dir, "embeddings.json")))

	_, err := store.Load(context.Background())
	if !errors.Is(err, domain.ErrCatalogLoad) {
		t.Fatalf("Load() error = %v, want ErrCatalogLoad", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load() error = %v, want it to wrap fs.ErrNotExist", err)
	}
}

func TestCatalogStoreLoad_UnparsableItemsFails(t *testing.T) {
	dir := t.TempDir()
	products := filepath.Join(dir, "products.json")
	writeFile(t, products, `{"id": 1}`)

	_, err := NewCatalogStore(products, NewFileEmbeddingStore(filepath.Join(dir, "e.json"))).Load(context.Background())
	if !errors.Is(err, domain.ErrCatalogLoad) {
		t.Fatalf("Load() error = %v, want ErrCatalogLoad", err)
	}
}

func TestFileEmbeddingStore_NullEntriesAreAbsentMarkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.json")
	writeFile(t, path, `{"1":[0.5,0.5],"2":null}`)

	idx, err := NewFileEmbeddingStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	vec, known := idx.Lookup(1)
	if !known || len(vec) != 2 {
		t.Errorf("Lookup(1) = %v, %v; want vector, true", vec, known)
	}
	vec, known = idx.Lookup(2)
	if !known || vec != nil {
		t.Errorf("Lookup(2) = %v, %v; want nil, true", vec, known)
	}
	vec, known = idx.Lookup(3)
	if known || vec != nil {
		t.Errorf("Lookup(3) = %v, %v; want nil, false", vec, known)
	}
	if got := idx.Present(); got != 1 {
		t.Errorf("Present() = %d, want 1", got)
	}
}

func TestFileEmbeddingStore_PutCreatesAndPreserves(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "embeddings.json")
	store := NewFileEmbeddingStore(path)

	if err := store.Put(ctx, 1, []float32{1, 2, 3}); err != nil {
		t.Fatalf("Put(1) error = %v", err)
	}
	if err := store.Put(ctx, 2, nil); err != nil {
		t.Fatalf("Put(2) error = %v", err)
	}

	idx, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(idx) != 2 {
		t.Fatalf("len(idx) = %d, want 2", len(idx))
	}
	if vec := idx[1]; len(vec) != 3 || vec[2] != 3 {
		t.Errorf("idx[1] = %v, want [1 2 3]", vec)
	}
	if vec, ok := idx[2]; !ok || vec != nil {
		t.Errorf("idx[2] = %v, %v; want absent marker", vec, ok)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the embeddings file", len(entries))
	}
}

func TestCatalogStore_SaveItemsRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewCatalogStore(filepath.Join(dir, "products.json"), NewFileEmbeddingStore(filepath.Join(dir, "e.json")))

	items := []domain.CatalogItem{{ID: 7, Name: "Lamp", Category: "Home", Price: 12}}
	if err := store.SaveItems(ctx, items); err != nil {
		t.Fatalf("SaveItems() error = %v", err)
	}
	got, err := store.LoadItems(ctx)
	if err != nil {
		t.Fatalf("LoadItems() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != 7 || got[0].Name != "Lamp" {
		t.Errorf("LoadItems() = %+v", got)
	}
}

func TestEncodeVectorLittleEndian(t *testing.T) {
	data := EncodeVector([]float32{1})
	// 1.0f = 0x3f800000
	want := []byte{0x00, 0x00, 0x80, 0x3f}
	if string(data) != string(want) {
		t.Errorf("EncodeVector(1) = % x, want % x", data, want)
	}

	vec, err := DecodeVector(EncodeVector([]float32{0.25, -3}))
	if err != nil || len(vec) != 2 || vec[0] != 0.25 || vec[1] != -3 {
		t.Errorf("DecodeVector() = %v, %v", vec, err)
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("DecodeVector(3 bytes) error = nil, want error")
	}
}

func TestCatalogStoreLock_ExcludesOtherStores(t *testing.T) {
	dir := t.TempDir()
	products := filepath.Join(dir, "products.json")
	first := NewCatalogStore(products, NewFileEmbeddingStore(filepath.Join(dir, "e.json")))
	second := NewCatalogStore(products, NewFileEmbeddingStore(filepath.Join(dir, "e.json")))

	unlock, err := first.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := second.Lock(ctx); err == nil {
		t.Fatal("second Lock() while held error = nil, want timeout")
	}

	unlock()
	unlockSecond, err := second.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	unlockSecond()
}
