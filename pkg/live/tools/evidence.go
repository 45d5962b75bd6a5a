package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EvidenceStore writes buffered camera frames to disk and hands back the URL
// path a browser can fetch them under.
type EvidenceStore struct {
	dir       string
	publicDir string
}

// NewEvidenceStore saves frames under dir; publicDir is the URL prefix served
// by the HTTP layer (typically "/static/evidence").
func NewEvidenceStore(dir, publicDir string) *EvidenceStore {
	return &EvidenceStore{dir: dir, publicDir: publicDir}
}

// Save writes one JPEG frame and returns its public URL path.
func (e *EvidenceStore) Save(sessionID string, frame []byte) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create evidence dir: %w", err)
	}
	name := fmt.Sprintf("evidence_%s_%d.jpg", sessionID, time.Now().UnixNano())
	if err := os.WriteFile(filepath.Join(e.dir, name), frame, 0o644); err != nil {
		return "", fmt.Errorf("write evidence frame: %w", err)
	}
	return e.publicDir + "/" + name, nil
}
