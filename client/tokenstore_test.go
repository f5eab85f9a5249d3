package client

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileTokenStore_SaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authbridge", "token.json")
	store := NewFileTokenStoreAt(path)

	if err := store.Save("at-123"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	token, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if token != "at-123" {
		t.Errorf("token = %q, want at-123", token)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	token, err = store.Load()
	if err != nil || token != "" {
		t.Errorf("after Clear: token = %q, err = %v", token, err)
	}
}

func TestFileTokenStore_LoadMissingFile_ReturnsEmpty(t *testing.T) {
	store := NewFileTokenStoreAt(filepath.Join(t.TempDir(), "nope", "token.json"))

	token, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if token != "" {
		t.Errorf("token = %q, want empty", token)
	}
}

func TestFileTokenStore_CorruptFile_TreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	store := NewFileTokenStoreAt(path)

	token, err := store.Load()
	if err != nil || token != "" {
		t.Errorf("token = %q, err = %v, want empty and nil", token, err)
	}
}

func TestFileTokenStore_ClearMissingFile_NoError(t *testing.T) {
	store := NewFileTokenStoreAt(filepath.Join(t.TempDir(), "token.json"))

	if err := store.Clear(); err != nil {
		t.Errorf("Clear on missing file should not error: %v", err)
	}
}

func TestFileTokenStore_SavedFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := NewFileTokenStoreAt(path)

	if err := store.Save("at-123"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}
}
