// Package commands implements the one-shot maintenance subcommands of
// the CLI that run against the local account store and exit.
package commands

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"palaver/internal/auth"
	"palaver/internal/config"
)

// AddOfflineAccount creates a local account that never talks to the
// backend, for use without a network identity.
func AddOfflineAccount(name string, cfg *config.Config) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("account name cannot be empty")
	}

	store, err := auth.NewStore(cfg.AccountsFile, cfg.StoreSecret)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	account := auth.Offline(strings.ReplaceAll(uuid.NewString(), "-", ""), name)
	if err := store.Save(account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	if err := store.SetCurrent(account.UUID); err != nil {
		return err
	}

	fmt.Printf("\nOffline account created!\n")
	fmt.Printf("Name: %s\n", account.Name)
	fmt.Printf("UUID: %s\n\n", account.UUID)
	return nil
}

// ListAccounts prints every stored account, marking the current one.
func ListAccounts(cfg *config.Config) error {
	store, err := auth.NewStore(cfg.AccountsFile, cfg.StoreSecret)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	accounts, err := store.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Println("No stored accounts.")
		return nil
	}

	currentUUID := ""
	if current, err := store.Current(); err == nil {
		currentUUID = current.UUID
	}

	for _, account := range accounts {
		marker := " "
		if account.UUID == currentUUID {
			marker = "*"
		}
		kind := "online"
		if account.IsOffline() {
			kind = "offline"
		}
		fmt.Printf("%s %s  %s (%s)\n", marker, account.UUID, account.Name, kind)
	}
	return nil
}
