package adapter

import (
	"testing"

	"github.com/quillchat/quill-engine/pkg/logger"
)

func TestFactoryCachesByCredentials(t *testing.T) {
	f := NewFactory(logger.NewNop())

	creds := Credentials{BaseURL: "http://localhost:9999", APIKey: "k1"}
	a1, err := f.GetOrCreate(BackendOpenAILike, creds)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	a2, err := f.GetOrCreate(BackendOpenAILike, creds)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if a1 != a2 {
		t.Error("same credentials must return the same adapter instance")
	}
	if f.Size() != 1 {
		t.Errorf("Size() = %d, want 1", f.Size())
	}

	// A different key is a different instance.
	a3, err := f.GetOrCreate(BackendOpenAILike, Credentials{BaseURL: "http://localhost:9999", APIKey: "k2"})
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if a3 == a1 {
		t.Error("different credentials must return a different adapter instance")
	}
	if f.Size() != 2 {
		t.Errorf("Size() = %d, want 2", f.Size())
	}
}

func TestFactoryInvalidateBackend(t *testing.T) {
	f := NewFactory(logger.NewNop())

	if _, err := f.GetOrCreate(BackendOpenAILike, Credentials{BaseURL: "http://a", APIKey: "k"}); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if _, err := f.GetOrCreate(BackendOllama, Credentials{}); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	f.Invalidate(BackendOpenAILike)
	if f.Size() != 1 {
		t.Errorf("Size() after backend invalidate = %d, want 1", f.Size())
	}

	f.Invalidate()
	if f.Size() != 0 {
		t.Errorf("Size() after full invalidate = %d, want 0", f.Size())
	}
}

func TestFactoryRecreatesAfterInvalidate(t *testing.T) {
	f := NewFactory(logger.NewNop())
	creds := Credentials{BaseURL: "http://a", APIKey: "k"}

	a1, _ := f.GetOrCreate(BackendOpenAILike, creds)
	f.Invalidate(BackendOpenAILike)
	a2, _ := f.GetOrCreate(BackendOpenAILike, creds)

	if a1 == a2 {
		t.Error("invalidated adapter must be rebuilt on next use")
	}
}

func TestFactoryUnsupportedBackend(t *testing.T) {
	f := NewFactory(logger.NewNop())
	if _, err := f.GetOrCreate(Backend("telnet"), Credentials{}); err == nil {
		t.Error("expected error for unsupported backend")
	}
	if f.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after failed create", f.Size())
	}
}
