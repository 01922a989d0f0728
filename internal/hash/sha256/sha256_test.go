package sha256

import (
	"io"
	"strings"
	"testing"
)

func TestReaderDigestsStream(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader("hello world"))
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("expected passthrough, got %q", data)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got := r.Sum(); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if r.N() != 11 {
		t.Fatalf("expected 11 bytes, got %d", r.N())
	}
}

func TestReaderEmpty(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader(""))
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := r.Sum(); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
