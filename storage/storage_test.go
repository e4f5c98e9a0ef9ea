package storage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

func TestLocalStorePutReadsImageDimensions(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir, "http://bridge.local/images")

	publicID, url, width, height, err := s.Put(context.Background(), "sess-1", pngBytes(t, 12, 7))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if width != 12 || height != 7 {
		t.Errorf("dimensions = %dx%d, want 12x7", width, height)
	}
	if filepath.Ext(publicID) != ".png" {
		t.Errorf("publicID extension = %q, want .png", filepath.Ext(publicID))
	}
	wantURL := "http://bridge.local/images/sess-1/" + publicID
	if url != wantURL {
		t.Errorf("url = %q, want %q", url, wantURL)
	}
}

func TestLocalStorePutNonImageHasZeroDimensions(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir, "http://bridge.local/images")

	publicID, _, width, height, err := s.Put(context.Background(), "sess-1", []byte("not an image"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if width != 0 || height != 0 {
		t.Errorf("dimensions = %dx%d, want 0x0 for non-image data", width, height)
	}
	if filepath.Ext(publicID) == "" {
		t.Errorf("publicID %q should still have a fallback extension", publicID)
	}
}

func TestLocalStoreOpenAndDelete(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir, "http://bridge.local/images")

	publicID, _, _, _, err := s.Put(context.Background(), "sess-2", pngBytes(t, 4, 4))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	f, err := s.Open("sess-2", publicID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		t.Fatalf("reading opened image: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty image data")
	}

	if err := s.Delete(context.Background(), "sess-2", publicID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Open("sess-2", publicID); !os.IsNotExist(err) {
		t.Errorf("expected not-exist after Delete, got %v", err)
	}

	// Deleting again is a no-op, not an error.
	if err := s.Delete(context.Background(), "sess-2", publicID); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
}

func TestLocalStoreOpenRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir, "http://bridge.local/images")

	if _, err := s.Open("sess-1", "../../../etc/passwd"); err == nil {
		t.Error("expected an error opening a traversal public ID")
	}
}
