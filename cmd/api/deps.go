package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"fclink/internal/domain/customer"
	"fclink/internal/domain/linking"
	"fclink/internal/infrastructure/filestore"
	"fclink/internal/infrastructure/firebase"
	"fclink/internal/infrastructure/postgres"
	"fclink/internal/infrastructure/provider"
	"fclink/internal/infrastructure/redisstore"
	httphandlers "fclink/internal/interfaces/http"
	"fclink/internal/shared/auth"
	"fclink/internal/shared/config"
	"fclink/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	Store customer.Store

	// Handlers
	AuthHandler     *httphandlers.AuthHandler
	CustomerHandler *httphandlers.CustomerHandler
	LinkingHandler  *httphandlers.LinkingHandler

	// Auth
	Issuer *auth.TokenIssuer

	// Backend resources needing explicit close; nil for the file backend.
	db    *postgres.DB
	redis *redisstore.Store
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	store, err := deps.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	deps.Store = store

	client := provider.NewClient(cfg.Provider.TestKey, cfg.Provider.LiveKey)
	if cfg.Provider.BaseURL != "" {
		client.SetBaseURL(cfg.Provider.BaseURL)
	}

	// Optional FCM notifier for terminal linking outcomes
	var notifier linking.Notifier
	if cfg.Firebase.CredentialsFile != "" && cfg.Firebase.DeviceToken != "" {
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, cfg.Firebase.DeviceToken)
		if err != nil {
			log.Printf("Warning: Failed to initialize FCM notifier: %v", err)
		} else {
			notifier = fcm
			log.Println("FCM notifier enabled")
		}
	}

	msgs, err := messages.Load(cfg.Firebase.MessagesFile)
	if err != nil {
		return nil, err
	}

	issuer := auth.NewTokenIssuer(cfg.JWT.Secret)

	deps.Issuer = issuer
	deps.AuthHandler = httphandlers.NewAuthHandler(store, issuer, cfg.Admin.PasswordHash)
	deps.CustomerHandler = httphandlers.NewCustomerHandler(store, client)
	deps.LinkingHandler = httphandlers.NewLinkingHandler(store, client, httphandlers.LinkingOptions{
		ReturnURL:    cfg.Linking.ReturnURL,
		PollInterval: cfg.Linking.PollInterval,
		Notifier:     notifier,
		Messages:     msgs,
		OnLinked: paymentMethodCreator(store, client),
	})

	return deps, nil
}

// paymentMethodCreator returns the completion hook that turns each linked
// account into an attached payment method, mirroring what the demo does
// right after a successful link. Failures are logged per account; a linked
// account without a payment method can still be retried through the
// payment-methods endpoint.
func paymentMethodCreator(store customer.Store, client provider.ClientInterface) func(string, []provider.Account) {
	return func(stateID string, accounts []provider.Account) {
		log.Printf("Linked %d accounts for state %s", len(accounts), stateID)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		owner, err := store.FindSessionByStateID(ctx, stateID)
		if err != nil || owner == nil {
			log.Printf("Error resolving owner of state %s: %v", stateID, err)
			return
		}
		c, err := store.GetByID(ctx, owner.CustomerID)
		if err != nil || c == nil {
			log.Printf("Error loading customer %s: %v", owner.CustomerID, err)
			return
		}

		env := provider.EnvFor(c.TestMode)
		for _, account := range accounts {
			pm, err := client.CreateAndAttachPaymentMethod(ctx, env, account.ID, c.ID)
			if err != nil {
				log.Printf("Error creating payment method for account %s: %v", account.ID, err)
				continue
			}
			log.Printf("Created payment method %s from account %s", pm.ID, account.ID)
		}
	}
}

// openStore connects the configured persistence backend.
func (d *Dependencies) openStore(ctx context.Context, cfg *config.Config) (customer.Store, error) {
	switch cfg.Store.Backend {
	case "file":
		store, err := filestore.New(cfg.Store.FilePath)
		if err != nil {
			return nil, err
		}
		log.Printf("Using file store at %s", cfg.Store.FilePath)
		return store, nil
	case "postgres":
		db, err := postgres.New(cfg.Store.Database.ConnectionString())
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		d.db = db
		log.Println("Connected to database")
		return postgres.NewCustomerRepository(db), nil
	case "redis":
		store, err := redisstore.New(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
		if err != nil {
			return nil, err
		}
		d.redis = store
		log.Printf("Connected to redis at %s", cfg.Store.Redis.Addr)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.LinkingHandler != nil {
		d.LinkingHandler.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
	if d.redis != nil {
		d.redis.Close()
	}
}
