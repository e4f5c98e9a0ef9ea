// Package storage defines the object-storage adapter interface for
// uploaded session images, plus a local-disk default implementation. Per
// the purpose statement, this adapter is an external collaborator: the
// bridge only needs to put bytes somewhere and get a URL back.
package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/url"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gabriel-vasile/mimetype"
)

// Store persists uploaded image bytes and returns a publicly fetchable URL
// plus the public ID used to address the asset later (deletion, listing).
// width/height are best-effort: 0,0 when data doesn't decode as any
// registered image format (pasted screenshots in odd formats still upload,
// they just carry no known dimensions).
type Store interface {
	Put(ctx context.Context, sessionID string, data []byte) (publicID, url string, width, height int, err error)
	Delete(ctx context.Context, sessionID, publicID string) error
	Open(sessionID, publicID string) (io.ReadCloser, error)
}

// LocalStore writes images under <dataDir>/images/<sessionID>/<publicID> and
// returns URLs relative to baseURL (server.New passes WEB_UI_URL + "/images";
// the /images route that serves the files is mounted by api.SetupRoutes).
type LocalStore struct {
	dataDir string
	baseURL string
}

func NewLocalStore(dataDir, baseURL string) *LocalStore {
	return &LocalStore{dataDir: dataDir, baseURL: baseURL}
}

func (s *LocalStore) Put(ctx context.Context, sessionID string, data []byte) (string, string, int, int, error) {
	mtype := mimetype.Detect(data)
	ext := mtype.Extension()
	if ext == "" {
		ext = ".bin"
	}

	var width, height int
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		width, height = cfg.Width, cfg.Height
	}

	id, err := randomID()
	if err != nil {
		return "", "", 0, 0, err
	}
	publicID := id + ext

	dir := filepath.Join(s.dataDir, "images", sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", 0, 0, err
	}
	path := filepath.Join(dir, publicID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", 0, 0, err
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", "", 0, 0, err
	}
	u.Path = filepath.Join(u.Path, sessionID, publicID)
	return publicID, u.String(), width, height, nil
}

func (s *LocalStore) Delete(ctx context.Context, sessionID, publicID string) error {
	path := filepath.Join(s.dataDir, "images", sessionID, filepath.Base(publicID))
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Open streams a stored image back to an HTTP handler.
func (s *LocalStore) Open(sessionID, publicID string) (io.ReadCloser, error) {
	path := filepath.Join(s.dataDir, "images", sessionID, filepath.Base(publicID))
	return os.Open(path)
}

func randomID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating image id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
