package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestManagerStoreValidation(t *testing.T) {
	manager, _ := NewMockManager()

	tests := []struct {
		name  string
		creds *Credentials
	}{
		{"missing profile", &Credentials{Username: "u", Password: "p"}},
		{"missing username", &Credentials{Profile: "prod", Password: "p"}},
		{"missing password", &Credentials{Profile: "prod", Username: "u"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := manager.Store(tt.creds); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestManagerStoreAndRetrieve(t *testing.T) {
	manager, mock := NewMockManager()

	creds := &Credentials{
		Profile:  "prod",
		Username: "api-user",
		Password: "api-pass",
	}

	if err := manager.Store(creds); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if creds.LastModified.IsZero() {
		t.Error("Store must stamp LastModified")
	}
	if mock.Count() != 1 {
		t.Errorf("expected 1 stored profile, got %d", mock.Count())
	}

	got, err := manager.Retrieve("prod")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got.Username != "api-user" || got.Password != "api-pass" {
		t.Errorf("retrieved wrong credentials: %+v", got)
	}
}

func TestManagerFallbackAcrossStores(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keychain locked")
	broken.RetrieveError = ErrStoreUnavailable

	working := NewMockStore()
	manager := NewMockManagerWithStores(broken, working)

	creds := &Credentials{Profile: "prod", Username: "u", Password: "p"}
	if err := manager.Store(creds); err != nil {
		t.Fatalf("Store should fall back to the next store: %v", err)
	}
	if working.Count() != 1 {
		t.Error("fallback store should hold the credentials")
	}

	if _, err := manager.Retrieve("prod"); err != nil {
		t.Errorf("Retrieve should fall through the broken store: %v", err)
	}
}

func TestManagerListPrefersMostRecent(t *testing.T) {
	older := NewMockStore()
	newer := NewMockStore()

	_ = older.Store(&Credentials{
		Profile: "prod", Username: "stale", Password: "p",
		LastModified: time.Now().Add(-time.Hour),
	})
	_ = newer.Store(&Credentials{
		Profile: "prod", Username: "fresh", Password: "p",
		LastModified: time.Now(),
	})

	manager := NewMockManagerWithStores(older, newer)

	profiles, err := manager.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected 1 merged profile, got %d", len(profiles))
	}
	if profiles[0].Username != "fresh" {
		t.Errorf("List must prefer the most recently modified version, got %q", profiles[0].Username)
	}
}

func TestManagerDelete(t *testing.T) {
	manager, mock := NewMockManager()

	_ = manager.Store(&Credentials{Profile: "prod", Username: "u", Password: "p"})

	if err := manager.Delete("prod"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mock.Count() != 0 {
		t.Error("profile should be gone after Delete")
	}

	if err := manager.Delete("missing"); err == nil {
		t.Error("deleting an unknown profile should fail")
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("DOSSIERSYNC_API_USERNAME", "env-user")
	t.Setenv("DOSSIERSYNC_API_PASSWORD", "env-pass")

	store := NewEnvironmentStore()

	creds, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if creds.Profile != "default" {
		t.Errorf("expected default profile, got %q", creds.Profile)
	}
	if creds.Username != "env-user" || creds.Password != "env-pass" {
		t.Errorf("wrong credentials: %+v", creds)
	}

	if err := store.Store(creds); err != ErrStoreUnavailable {
		t.Error("environment store must be read-only")
	}
	if err := store.Delete("default"); err != ErrStoreUnavailable {
		t.Error("environment store must be read-only")
	}
}

func TestEnvironmentStoreMissingVariables(t *testing.T) {
	t.Setenv("DOSSIERSYNC_API_USERNAME", "")
	t.Setenv("DOSSIERSYNC_API_PASSWORD", "")

	store := NewEnvironmentStore()
	if _, err := store.Retrieve(""); err != ErrCredentialsNotFound {
		t.Errorf("expected ErrCredentialsNotFound, got %v", err)
	}
	if store.Exists("") {
		t.Error("Exists should be false without environment variables")
	}
}

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	t.Setenv("DOSSIERSYNC_PASSPHRASE", "test-passphrase")

	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("NewEncryptedFileStore failed: %v", err)
	}

	creds := &Credentials{
		Profile:      "prod",
		Username:     "api-user",
		Password:     "secret",
		LastModified: time.Now(),
	}
	if err := store.Store(creds); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// A fresh store with the same passphrase must decrypt the file
	reopened, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	got, err := reopened.Retrieve("prod")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got.Username != "api-user" || got.Password != "secret" {
		t.Errorf("round trip lost data: %+v", got)
	}

	profiles, err := reopened.List()
	if err != nil || len(profiles) != 1 {
		t.Errorf("expected 1 profile, got %d (err %v)", len(profiles), err)
	}

	if err := reopened.Delete("prod"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if reopened.Exists("prod") {
		t.Error("profile should be gone after Delete")
	}
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	t.Setenv("DOSSIERSYNC_PASSPHRASE", "right")
	store, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("NewEncryptedFileStore failed: %v", err)
	}
	if err := store.Store(&Credentials{Profile: "prod", Username: "u", Password: "p"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	t.Setenv("DOSSIERSYNC_PASSPHRASE", "wrong")
	intruder, err := NewEncryptedFileStore(path)
	if err != nil {
		t.Fatalf("NewEncryptedFileStore failed: %v", err)
	}
	if _, err := intruder.Retrieve("prod"); err == nil {
		t.Error("wrong passphrase must not decrypt the store")
	}
}

func TestSanitizeMasksPassword(t *testing.T) {
	creds := &Credentials{
		Profile:  "prod",
		Username: "api-user",
		Password: "super-secret-password",
	}

	safe := Sanitize(creds)
	if safe.Password == creds.Password {
		t.Error("Sanitize must mask the password")
	}
	if safe.Password != "su...rd" {
		t.Errorf("unexpected mask: %q", safe.Password)
	}
	if safe.Username != creds.Username {
		t.Error("Sanitize must keep the username")
	}

	if Sanitize(nil) != nil {
		t.Error("Sanitize(nil) must be nil")
	}

	short := Sanitize(&Credentials{Profile: "p", Username: "u", Password: "abc"})
	if short.Password != "********" {
		t.Errorf("short passwords must be fully masked, got %q", short.Password)
	}
}
