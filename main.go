package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"palaver/internal/api"
	"palaver/internal/auth"
	"palaver/internal/chatview"
	"palaver/internal/commands"
	"palaver/internal/config"
	"palaver/internal/gateway"
	"palaver/internal/notes"
	"palaver/internal/notify"
	"palaver/internal/services"
	"palaver/internal/types"
)

const gatewayRetryDelay = 5 * time.Second

func run(ctx context.Context) error {
	forceLogin := flag.Bool("login", false, "Run the device flow even when a stored account exists")
	activity := flag.String("activity", "", "Published activity as title:description")
	addOffline := flag.String("add-offline-account", "", "Create a local offline account with the given name and exit")
	listAccounts := flag.Bool("list-accounts", false, "List stored accounts and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if *addOffline != "" {
		return commands.AddOfflineAccount(*addOffline, cfg)
	}
	if *listAccounts {
		return commands.ListAccounts(cfg)
	}

	logger := slog.Default()
	sink := notify.Log(logger)

	store, err := auth.NewStore(cfg.AccountsFile, cfg.StoreSecret)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	oauth, err := auth.NewOAuthClient(auth.OAuthConfig{
		DeviceCodeURL: cfg.DeviceCodeURL,
		TokenURL:      cfg.TokenURL,
		ClientID:      cfg.OAuthClientID,
		Scope:         cfg.OAuthScope,
	}, &http.Client{Timeout: 20 * time.Second})
	if err != nil {
		return err
	}

	session := auth.NewSession(store, oauth, logger)
	if err := establishSession(ctx, session, store, oauth, sink, *forceLogin); err != nil {
		return err
	}

	client := api.NewClient(api.ClientConfig{
		BaseURL: cfg.APIBaseURL,
		Tokens:  session,
		Logger:  logger,
	})

	account, err := hydrateIdentity(ctx, session, client)
	if err != nil {
		return err
	}
	if account.IsOffline() {
		logger.Info("offline account, backend features disabled", "name", account.Name)
		return nil
	}

	users := services.NewUserService(ctx, client, services.UserServiceConfig{
		SelfUUID:     account.UUID,
		UserCapacity: cfg.UserCacheSize,
		UserTTL:      cfg.UserCacheTTL,
		Logger:       logger,
	})
	relations := services.NewRelationService(client, users, sink)
	channels := services.NewChannelService(client, users, account.UUID)
	global := services.NewGlobalService(client, cfg.GlobalDataTTL)

	broker := chatview.NewBroker()
	gw, err := gateway.NewClient(gateway.Config{
		URL:    cfg.GatewayURL,
		Tokens: session,
		Log:    logger,
	})
	if err != nil {
		return err
	}
	gateway.BindEvents(gw, broker, users, sink)

	publisher := services.NewStatusPublisher(client, staticActivity(*activity), cfg.StatusInterval, logger)

	if data, err := global.Get(ctx, false); err == nil {
		if data.UpdateAvailable(types.ParseSemVer(cfg.Version)) {
			sink.Notify("api.notification.update_available", data.LatestVersion.String())
		}
		if data.Notes != "" {
			if rendered, err := notes.Render(data.Notes); err == nil {
				logger.Info("server notes", "html", rendered)
			}
		}
	} else {
		logger.Warn("global data unavailable", "error", err)
	}

	if friends, err := relations.Friends(ctx); err == nil {
		for _, friend := range friends {
			logger.Info("friend", "uuid", friend.UUID, "name", friend.Name, "online", users.IsOnline(friend.UUID))
		}
	}
	if list, err := channels.List(ctx); err == nil {
		for _, ch := range list {
			logger.Info("channel", "id", ch.ID, "name", ch.DisplayName())
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			err := gw.Run(gCtx)
			if gCtx.Err() != nil {
				return nil
			}
			if errors.Is(err, api.ErrAuthExpired) {
				return err
			}
			logger.Warn("gateway disconnected, reconnecting", "error", err)
			select {
			case <-gCtx.Done():
				return nil
			case <-time.After(gatewayRetryDelay):
			}
		}
	})

	g.Go(func() error {
		publisher.Run(gCtx)
		return nil
	})

	return g.Wait()
}

// establishSession reuses the stored current account when possible and
// falls back to an interactive device flow.
func establishSession(ctx context.Context, session *auth.Session, store *auth.Store, oauth *auth.OAuthClient, sink notify.Sink, forceLogin bool) error {
	if !forceLogin {
		account, err := store.Current()
		switch {
		case err == nil:
			return session.Activate(account)
		case errors.Is(err, auth.ErrNoCurrent):
		default:
			return err
		}
	}

	flow := auth.NewFlow(oauth, sink)
	data, err := flow.Start(ctx)
	if err != nil {
		return err
	}
	if data.Message != "" {
		fmt.Println(data.Message)
	} else {
		fmt.Printf("To sign in, visit %s and enter the code %s (expires in %s)\n",
			data.VerificationURI, data.UserCode, data.ExpiresIn.Round(time.Second))
	}

	token, err := flow.Poll(ctx)
	if err != nil {
		return fmt.Errorf("device flow failed: %w", err)
	}
	if token.AccessToken == "" {
		return errors.New("device flow returned an empty token")
	}

	// the backend fills in uuid and name on the first authenticated
	// call, see hydrateIdentity
	return session.Activate(auth.Account{
		AuthToken:    token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	})
}

// hydrateIdentity asks the backend who the token belongs to when the
// stored account has no identity yet, typically right after a device
// flow login.
func hydrateIdentity(ctx context.Context, session *auth.Session, client *api.Client) (auth.Account, error) {
	account, active := session.Account()
	if !active {
		return auth.Account{}, errors.New("no active session")
	}
	if account.UUID != "" {
		return account, nil
	}

	resp, err := client.Get(ctx, api.NewRequest(api.RouteAccount))
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to resolve account identity: %w", err)
	}
	if resp.Err != nil {
		return auth.Account{}, resp.Err
	}
	if account.UUID, err = resp.Str("uuid"); err != nil {
		return auth.Account{}, err
	}
	if account.Name, err = resp.Str("username"); err != nil {
		return auth.Account{}, err
	}
	return account, session.Activate(account)
}

// staticActivity publishes a fixed activity given as "title:description".
func staticActivity(spec string) services.ActivitySource {
	title, description, _ := strings.Cut(spec, ":")
	return func() (string, string) {
		return title, description
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
