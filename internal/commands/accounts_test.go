package commands

import (
	"path/filepath"
	"testing"

	"palaver/internal/auth"
	"palaver/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AccountsFile: filepath.Join(t.TempDir(), "accounts.db"),
		StoreSecret:  "test-secret",
	}
}

func TestAddOfflineAccount(t *testing.T) {
	cfg := testConfig(t)

	if err := AddOfflineAccount("steve", cfg); err != nil {
		t.Fatal(err)
	}

	store, err := auth.NewStore(cfg.AccountsFile, cfg.StoreSecret)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	current, err := store.Current()
	if err != nil {
		t.Fatal(err)
	}
	if current.Name != "steve" {
		t.Errorf("name = %s, want steve", current.Name)
	}
	if !current.IsOffline() {
		t.Error("expected an offline account")
	}
	if len(current.UUID) != 32 {
		t.Errorf("uuid = %q, want undashed form", current.UUID)
	}
}

func TestAddOfflineAccountEmptyName(t *testing.T) {
	if err := AddOfflineAccount("  ", testConfig(t)); err == nil {
		t.Error("expected an error for a blank name")
	}
}

func TestListAccountsEmpty(t *testing.T) {
	if err := ListAccounts(testConfig(t)); err != nil {
		t.Fatal(err)
	}
}
