package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"beamline/internal/config"
	"beamline/internal/scripts"
)

// MustOpenStore opens a scripts.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *scripts.Store {
	t.Helper()

	store, err := scripts.Open(cfg)
	if err != nil {
		t.Fatalf("scripts.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewScript saves a script with the given content for tests.
func NewScript(t testing.TB, store *scripts.Store, name, content string) *scripts.Script {
	t.Helper()

	script := &scripts.Script{
		ID:      uuid.New().String(),
		Name:    name,
		Content: content,
	}
	if err := store.SaveScript(context.Background(), script); err != nil {
		t.Fatalf("store.SaveScript: %v", err)
	}
	return script
}
