package storage

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "archives"))
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	return store
}

// tarGzBytes builds a minimal tar.gz archive holding one log file.
func tarGzBytes(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	hdr := &tar.Header{
		Name:     "logs/device.log",
		Mode:     0644,
		Size:     int64(len(content)),
		ModTime:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	tw.Write([]byte(content))
	tw.Close()
	gz.Close()
	return buf.Bytes()
}

func zipBytes(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("logs/device.log")
	if err != nil {
		t.Fatalf("create zip member: %v", err)
	}
	w.Write([]byte(content))
	zw.Close()
	return buf.Bytes()
}

func TestLocalStoreSave(t *testing.T) {
	t.Run("accepts tar.gz archive", func(t *testing.T) {
		store := newTestStore(t)
		data := tarGzBytes(t, "line one\n")

		info, err := store.Save("diag.tar.gz", bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if info.ID == "" {
			t.Error("expected a generated id")
		}
		if info.Format != "tar.gz" {
			t.Errorf("expected format tar.gz, got %q", info.Format)
		}
		if info.Size != int64(len(data)) {
			t.Errorf("expected size %d, got %d", len(data), info.Size)
		}
		if info.Status != "uploaded" {
			t.Errorf("expected status uploaded, got %q", info.Status)
		}

		path, err := store.GetFilePath(info.ID)
		if err != nil {
			t.Fatalf("GetFilePath failed: %v", err)
		}
		saved, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading saved archive: %v", err)
		}
		if !bytes.Equal(saved, data) {
			t.Error("saved archive does not match upload")
		}
	})

	t.Run("accepts zip archive", func(t *testing.T) {
		store := newTestStore(t)
		info, err := store.Save("diag.zip", bytes.NewReader(zipBytes(t, "line\n")))
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if info.Format != "zip" {
			t.Errorf("expected format zip, got %q", info.Format)
		}
	})

	t.Run("rejects unrecognized signature and removes the file", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.Save("notes.txt", strings.NewReader("plain text, not an archive"))
		if err == nil {
			t.Fatal("expected rejection for a non-archive upload")
		}

		entries, readErr := os.ReadDir(store.dir)
		if readErr != nil {
			t.Fatalf("reading archive dir: %v", readErr)
		}
		if len(entries) != 0 {
			t.Errorf("rejected upload should leave no files, found %d", len(entries))
		}
	})
}

func TestLocalStoreGetAndList(t *testing.T) {
	store := newTestStore(t)
	data := tarGzBytes(t, "x\n")

	var lastID string
	for i := 0; i < 3; i++ {
		info, err := store.Save("diag.tar.gz", bytes.NewReader(data))
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		lastID = info.ID
		time.Sleep(5 * time.Millisecond)
	}

	t.Run("get returns saved metadata", func(t *testing.T) {
		got, err := store.Get(lastID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.ID != lastID {
			t.Errorf("expected id %s, got %s", lastID, got.ID)
		}
	})

	t.Run("get rejects unknown id", func(t *testing.T) {
		if _, err := store.Get("missing"); err == nil {
			t.Error("expected error for unknown archive id")
		}
	})

	t.Run("list is newest first and honors the limit", func(t *testing.T) {
		list, err := store.List(2)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(list))
		}
		if list[0].ID != lastID {
			t.Error("expected the most recent upload first")
		}
	})
}

func TestLocalStoreDeleteRenameStatus(t *testing.T) {
	store := newTestStore(t)
	info, err := store.Save("diag.tar.gz", bytes.NewReader(tarGzBytes(t, "x\n")))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Run("rename updates the display name", func(t *testing.T) {
		updated, err := store.Rename(info.ID, "field-unit-7.tar.gz")
		if err != nil {
			t.Fatalf("Rename failed: %v", err)
		}
		if updated.Name != "field-unit-7.tar.gz" {
			t.Errorf("unexpected name %q", updated.Name)
		}
	})

	t.Run("set status updates lifecycle", func(t *testing.T) {
		store.SetStatus(info.ID, "parsed")
		got, err := store.Get(info.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Status != "parsed" {
			t.Errorf("expected status parsed, got %q", got.Status)
		}
	})

	t.Run("returned metadata is a snapshot", func(t *testing.T) {
		before, err := store.Get(info.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		store.SetStatus(info.ID, "error")
		if before.Status != "parsed" {
			t.Errorf("snapshot mutated by SetStatus: %q", before.Status)
		}

		list, err := store.List(5)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		list[0].Name = "scribbled"
		got, err := store.Get(info.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Name == "scribbled" {
			t.Error("List must not expose the store's own structs")
		}
	})

	t.Run("delete removes metadata and file", func(t *testing.T) {
		path, _ := store.GetFilePath(info.ID)
		if err := store.Delete(info.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := store.Get(info.ID); err == nil {
			t.Error("metadata should be gone after delete")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("archive file should be gone after delete")
		}
	})

	t.Run("delete rejects unknown id", func(t *testing.T) {
		if err := store.Delete("missing"); err == nil {
			t.Error("expected error for unknown archive id")
		}
	})
}

func TestLocalStoreChunkedUpload(t *testing.T) {
	t.Run("assembles and validates chunks", func(t *testing.T) {
		store := newTestStore(t)
		data := tarGzBytes(t, strings.Repeat("2025-01-01 00:00:00,4000,2500,\n", 50))

		mid := len(data) / 2
		chunks := [][]byte{data[:mid], data[mid:]}
		for i, chunk := range chunks {
			if err := store.SaveChunk("up-1", i, bytes.NewReader(chunk)); err != nil {
				t.Fatalf("SaveChunk %d failed: %v", i, err)
			}
		}

		info, err := store.CompleteChunkedUpload("up-1", "diag.tar.gz", len(chunks))
		if err != nil {
			t.Fatalf("CompleteChunkedUpload failed: %v", err)
		}
		if info.Size != int64(len(data)) {
			t.Errorf("expected size %d, got %d", len(data), info.Size)
		}
		if info.Format != "tar.gz" {
			t.Errorf("expected format tar.gz, got %q", info.Format)
		}

		path, _ := store.GetFilePath(info.ID)
		assembled, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading assembled archive: %v", err)
		}
		if !bytes.Equal(assembled, data) {
			t.Error("assembled archive does not match original bytes")
		}

		chunkDir := filepath.Join(store.dir, "chunks", "up-1")
		if _, err := os.Stat(chunkDir); !os.IsNotExist(err) {
			t.Error("chunk directory should be cleaned up")
		}
	})

	t.Run("missing chunk fails the assembly", func(t *testing.T) {
		store := newTestStore(t)
		if err := store.SaveChunk("up-2", 0, strings.NewReader("partial")); err != nil {
			t.Fatalf("SaveChunk failed: %v", err)
		}
		if _, err := store.CompleteChunkedUpload("up-2", "diag.tar.gz", 3); err == nil {
			t.Error("expected error when chunks are missing")
		}
	})

	t.Run("assembled non-archive is rejected", func(t *testing.T) {
		store := newTestStore(t)
		for i, part := range []string{"just ", "text"} {
			if err := store.SaveChunk("up-3", i, strings.NewReader(part)); err != nil {
				t.Fatalf("SaveChunk failed: %v", err)
			}
		}
		if _, err := store.CompleteChunkedUpload("up-3", "junk.bin", 2); err == nil {
			t.Error("expected signature rejection for assembled non-archive")
		}
	})
}

func TestLocalStoreConcurrentSaves(t *testing.T) {
	store := newTestStore(t)
	data := tarGzBytes(t, "x\n")

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := store.Save("diag.tar.gz", bytes.NewReader(data))
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent Save failed: %v", err)
		}
	}

	list, err := store.List(20)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 8 {
		t.Errorf("expected 8 archives, got %d", len(list))
	}
}
