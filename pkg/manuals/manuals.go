// Package manuals loads cached technical manual text that gets appended to
// the model's system instruction for procedure grounding.
package manuals

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// MaxManualChars bounds manual context so the system instruction stays well
// inside the model's context budget (roughly 25k tokens).
const MaxManualChars = 100000

// Loader caches manual content by path; manuals are static for the life of
// the process.
type Loader struct {
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, cache: make(map[string]string)}
}

// Load reads manual content from path. A missing manual is not an error:
// sessions run without procedure context in that case.
func (l *Loader) Load(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}

	l.mu.Lock()
	cached, ok := l.cache[path]
	l.mu.Unlock()
	if ok {
		return cached
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("manual not available", "path", path, "error", err)
		return ""
	}
	content := string(raw)
	if len(content) < 500 {
		l.logger.Warn("manual unusually short", "path", path, "chars", len(content))
	}

	l.mu.Lock()
	l.cache[path] = content
	l.mu.Unlock()

	l.logger.Info("manual loaded", "path", path, "chars", len(content), "estimated_tokens", len(content)/4)
	return content
}

// Validate rejects manual context that is too large or carries markup we
// never want echoed into a browser.
func Validate(context string) error {
	if len(context) > MaxManualChars {
		return fmt.Errorf("manual too large: %d chars (max %d)", len(context), MaxManualChars)
	}
	if strings.Contains(strings.ToLower(context), "<script") {
		return fmt.Errorf("manual contains potentially unsafe content")
	}
	return nil
}
