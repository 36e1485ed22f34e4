package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/h2non/filetype"

	"palaver/internal/api"
)

// AccountSettings are the privacy toggles of the current account.
type AccountSettings struct {
	ShowRegistered    bool `json:"show_registered"`
	RetainUsernames   bool `json:"retain_usernames"`
	ShowLastOnline    bool `json:"show_last_online"`
	ShowActivity      bool `json:"show_activity"`
	AllowFriendsImage bool `json:"allow_friends_image"`
}

// AccountService manages the current account's own data: settings,
// username history, export and deletion.
type AccountService struct {
	client *api.Client
	log    *slog.Logger
}

func NewAccountService(client *api.Client, log *slog.Logger) *AccountService {
	if log == nil {
		log = slog.Default()
	}
	return &AccountService{client: client, log: log}
}

func (s *AccountService) Settings(ctx context.Context) (AccountSettings, error) {
	resp, err := s.client.Get(ctx, api.NewRequest(api.RouteAccountSettings))
	if err != nil {
		return AccountSettings{}, err
	}
	if resp.IsError() {
		return AccountSettings{}, resp.Err
	}
	var settings AccountSettings
	if settings.ShowRegistered, err = resp.Bool("show_registered"); err != nil {
		return AccountSettings{}, err
	}
	if settings.RetainUsernames, err = resp.Bool("retain_usernames"); err != nil {
		return AccountSettings{}, err
	}
	if settings.ShowLastOnline, err = resp.Bool("show_last_online"); err != nil {
		return AccountSettings{}, err
	}
	if settings.ShowActivity, err = resp.Bool("show_activity"); err != nil {
		return AccountSettings{}, err
	}
	if settings.AllowFriendsImage, err = resp.Bool("allow_friends_image"); err != nil {
		return AccountSettings{}, err
	}
	return settings, nil
}

func (s *AccountService) UpdateSettings(ctx context.Context, settings AccountSettings) error {
	resp, err := s.client.Patch(ctx, api.NewRequest(api.RouteAccountSettings).
		Field("show_registered", settings.ShowRegistered).
		Field("retain_usernames", settings.RetainUsernames).
		Field("show_last_online", settings.ShowLastOnline).
		Field("show_activity", settings.ShowActivity).
		Field("allow_friends_image", settings.AllowFriendsImage))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return resp.Err
	}
	return nil
}

// SetUsernameVisibility toggles whether a historical username is shown
// publicly on the profile.
func (s *AccountService) SetUsernameVisibility(ctx context.Context, name string, public bool) error {
	resp, err := s.client.Post(ctx, api.NewRequest(api.RouteAccountUsernames).
		Path(name).Query("public", strconv.FormatBool(public)))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return resp.Err
	}
	return nil
}

func (s *AccountService) DeleteUsername(ctx context.Context, name string) error {
	resp, err := s.client.Delete(ctx, api.NewRequest(api.RouteAccountUsernames).Path(name))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return resp.Err
	}
	return nil
}

// ExportData downloads the account data dump into dir. The file
// extension is sniffed from the payload since the export format is the
// server's choice. Returns the written path.
func (s *AccountService) ExportData(ctx context.Context, dir string) (string, error) {
	resp, err := s.client.Get(ctx, api.NewRequest(api.RouteAccountData))
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", resp.Err
	}

	ext := "json"
	if kind, err := filetype.Match(resp.Raw); err == nil && kind != filetype.Unknown {
		ext = kind.Extension
	}
	path := filepath.Join(dir, fmt.Sprintf("account-data-%s.%s", time.Now().Format("20060102-150405"), ext))
	if err := os.WriteFile(path, resp.Raw, 0o600); err != nil {
		s.log.Warn("failed to write account data export", "path", path, "error", err)
		return "", fmt.Errorf("writing export: %w", err)
	}
	return path, nil
}

// Delete removes the account on the backend.
func (s *AccountService) Delete(ctx context.Context) error {
	resp, err := s.client.Delete(ctx, api.NewRequest(api.RouteAccount))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return resp.Err
	}
	return nil
}
