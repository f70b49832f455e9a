package upload_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/terminal/pkg/upload"
)

func TestDiskStore_SaveAndClaim(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := upload.NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	id, err := store.Save(ctx, "a.txt", "text/plain", strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	file, err := store.Claim(ctx, id)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if file.Filename != "a.txt" || file.ContentType != "text/plain" || file.Size != 7 {
		t.Errorf("file = %+v", file)
	}
	data, err := io.ReadAll(file.Reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("content = %q", data)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, id)); !os.IsNotExist(err) {
		t.Fatalf("claimed file not deleted on close; stat err=%v", err)
	}
	if _, err := store.Claim(ctx, id); !errors.Is(err, upload.ErrNotFound) {
		t.Fatalf("second Claim err = %v, want ErrNotFound", err)
	}
}

func TestDiskStore_SaveRejectsOversizedPayload(t *testing.T) {
	dir := t.TempDir()
	store, err := upload.NewDiskStore(dir, 5)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	_, err = store.Save(context.Background(), "x.txt", "text/plain", bytes.NewReader([]byte("123456")))
	if !errors.Is(err, upload.ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("partial file left behind: %d entries", len(entries))
	}
}

func TestDiskStore_ClaimLoadsMetadataFromDiskWhenNotInMemory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store1, err := upload.NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore(store1): %v", err)
	}
	id, err := store1.Save(ctx, "persist.txt", "text/plain", strings.NewReader("persist me"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// New store instance simulates a restart (no in-memory map entry).
	store2, err := upload.NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore(store2): %v", err)
	}
	file, err := store2.Claim(ctx, id)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	defer file.Close()
	if file.Filename != "persist.txt" {
		t.Errorf("Filename = %q", file.Filename)
	}
}

func TestDiskStore_ClaimRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := upload.NewDiskStore(filepath.Join(dir, "store"), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "secret"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"", "../secret", "a/b", `a\b`, "x.meta"} {
		if _, err := store.Claim(context.Background(), id); !errors.Is(err, upload.ErrNotFound) {
			t.Errorf("Claim(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestDiskStore_SaveStopsOnCancelledContext(t *testing.T) {
	dir := t.TempDir()
	store, err := upload.NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Save(ctx, "x", "", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Save err = %v, want context.Canceled", err)
	}
}

func TestDiskStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := upload.NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	id, err := store.Save(ctx, "old.txt", "", strings.NewReader("old"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	orphan := filepath.Join(dir, "orphan")
	if err := os.WriteFile(orphan, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(orphan, past, past); err != nil {
		t.Fatal(err)
	}

	// Fresh files survive.
	if err := store.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, id)); err != nil {
		t.Fatalf("fresh file removed: %v", err)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("orphan not removed; stat err=%v", err)
	}

	// A negative age expires everything.
	if err := store.Cleanup(ctx, -time.Minute); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := store.Claim(ctx, id); !errors.Is(err, upload.ErrNotFound) {
		t.Fatalf("Claim after cleanup err = %v, want ErrNotFound", err)
	}
}
