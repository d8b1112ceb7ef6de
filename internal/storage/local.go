package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink persists finished documents and reads them back for download.
type Sink interface {
	Save(ctx context.Context, jobID, name string, data []byte) (string, error)
	Load(ctx context.Context, ref string) ([]byte, error)
}

// Local writes results under a directory on disk, one file per job.
type Local struct {
	dir string
}

func NewLocal(dir string) *Local {
	if dir == "" {
		dir = "results"
	}
	return &Local{dir: dir}
}

func (l *Local) Dir() string { return l.dir }

func (l *Local) Save(_ context.Context, jobID, name string, data []byte) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create result dir: %w", err)
	}
	p := filepath.Join(l.dir, fmt.Sprintf("%s_%s", jobID, filepath.Base(name)))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	return p, nil
}

func (l *Local) Load(_ context.Context, ref string) ([]byte, error) {
	clean := filepath.Clean(ref)
	root := filepath.Clean(l.dir) + string(filepath.Separator)
	if !strings.HasPrefix(clean, root) {
		return nil, fmt.Errorf("result %q is outside %s", ref, l.dir)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	return data, nil
}
