package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLocalSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	l := NewLocal(dir)
	ctx := context.Background()

	ref, err := l.Save(ctx, "job1", "shot-split.pdf", []byte("%PDF-1.7"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(ref, dir) || !strings.HasSuffix(ref, "job1_shot-split.pdf") {
		t.Errorf("unexpected ref %q", ref)
	}
	data, err := l.Load(ctx, ref)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(data, []byte("%PDF-1.7")) {
		t.Errorf("Load = %q", data)
	}
}

func TestLocalSaveStripsDirectories(t *testing.T) {
	l := NewLocal(t.TempDir())
	ref, err := l.Save(context.Background(), "j", "../../etc/x.pdf", []byte("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(ref) != filepath.Clean(l.Dir()) {
		t.Errorf("result escaped dir: %s", ref)
	}
}

func TestLocalLoadRejectsOutside(t *testing.T) {
	l := NewLocal(t.TempDir())
	if _, err := l.Load(context.Background(), "/etc/passwd"); err == nil {
		t.Error("expected error for path outside result dir")
	}
}

func TestParseRef(t *testing.T) {
	cases := []struct {
		ref, bucket, key string
		ok               bool
	}{
		{"s3://b/pagecomposer/results/j/a.pdf", "b", "pagecomposer/results/j/a.pdf", true},
		{"s3://b/", "", "", false},
		{"s3:///k", "", "", false},
		{"/tmp/a.pdf", "", "", false},
	}
	for _, c := range cases {
		b, k, err := parseRef(c.ref)
		if (err == nil) != c.ok {
			t.Errorf("parseRef(%q) err = %v", c.ref, err)
			continue
		}
		if b != c.bucket || k != c.key {
			t.Errorf("parseRef(%q) = %q, %q", c.ref, b, k)
		}
	}
}

func TestS3Key(t *testing.T) {
	s := &S3{bucketName: "b", prefix: "pagecomposer/"}
	if got := s.Key("j1", "a-split.pdf"); got != "pagecomposer/results/j1/a-split.pdf" {
		t.Errorf("Key = %q", got)
	}
}

func TestLocalCleanup(t *testing.T) {
	l := NewLocal(t.TempDir())
	ctx := context.Background()
	oldRef, _ := l.Save(ctx, "old", "a.pdf", []byte("x"))
	newRef, _ := l.Save(ctx, "new", "b.pdf", []byte("y"))
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldRef, past, past); err != nil {
		t.Fatal(err)
	}

	if n := l.Cleanup(time.Hour); n != 1 {
		t.Fatalf("Cleanup removed %d, want 1", n)
	}
	if _, err := os.Stat(oldRef); !os.IsNotExist(err) {
		t.Error("old result still present")
	}
	if _, err := os.Stat(newRef); err != nil {
		t.Errorf("new result removed: %v", err)
	}
	if n := NewLocal(filepath.Join(t.TempDir(), "missing")).Cleanup(time.Hour); n != 0 {
		t.Errorf("missing dir removed %d", n)
	}
}
