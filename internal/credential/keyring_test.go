package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestStore_GetSet(t *testing.T) {
	t.Parallel()

	store := NewStore(keyring.NewArrayKeyring(nil))

	if err := store.Set("EMAIL_PASSWORD", "app-password"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Get("EMAIL_PASSWORD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "app-password" {
		t.Errorf("Get: got %q, want %q", got, "app-password")
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	store := NewStore(keyring.NewArrayKeyring([]keyring.Item{
		{Key: "TELEGRAM_BOT_TOKEN", Data: []byte("123:abc")},
	}))

	_, err := store.Get("EMAIL_PASSWORD")
	if err == nil {
		t.Fatal("expected error for missing key, got nil")
	}
	if !errors.Is(err, keyring.ErrKeyNotFound) {
		t.Errorf("expected keyring.ErrKeyNotFound, got %v", err)
	}

	token, err := store.Get("TELEGRAM_BOT_TOKEN")
	if err != nil || token != "123:abc" {
		t.Errorf("Get: got %q, %v", token, err)
	}
}
