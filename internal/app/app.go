// Package app wires the proxy's components together.
package app

import (
	"context"

	"crm-tag-proxy/internal/common/logging"
	"crm-tag-proxy/internal/config"
	"crm-tag-proxy/internal/credentials"
	"crm-tag-proxy/internal/crm"
	"crm-tag-proxy/internal/handlers"
	"crm-tag-proxy/internal/redis"
	"crm-tag-proxy/internal/token"
	"crm-tag-proxy/internal/workflow"
)

// App holds the initialized application components.
type App struct {
	Config   *config.Config
	Redis    *redis.Client
	Store    *credentials.RedisStore
	Tokens   *token.Manager
	CRM      *crm.Client
	Replacer *workflow.TagReplacer
	Handlers *handlers.Handlers
}

// New initializes all components from the given configuration.
func New(cfg *config.Config) (*App, error) {
	redisClient, err := redis.NewClient(&redis.Config{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDBNumber(),
		PoolSize: cfg.RedisPoolSizeNumber(),
	})
	if err != nil {
		return nil, err
	}

	store := credentials.NewRedisStore(redisClient, cfg.CredentialsKey)

	if err := seedCredentials(store, cfg); err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	logger := logging.GetGlobalLogger()

	var tokenOpts []token.Option
	if cfg.AccountsURL != "" {
		tokenOpts = append(tokenOpts, token.WithAccountsURL(cfg.AccountsURL))
	}
	tokens := token.NewManager(store, cfg.RedirectURI, logger, tokenOpts...)

	crmClient := crm.NewClient(cfg.APIDomain, tokens, logger)
	replacer := workflow.NewTagReplacer(crmClient, logger)

	return &App{
		Config:   cfg,
		Redis:    redisClient,
		Store:    store,
		Tokens:   tokens,
		CRM:      crmClient,
		Replacer: replacer,
		Handlers: handlers.New(replacer, redisClient, logger),
	}, nil
}

// seedCredentials bootstraps the credential record from the environment on
// first boot. An existing record always wins.
func seedCredentials(store *credentials.RedisStore, cfg *config.Config) error {
	if cfg.ClientID == "" {
		return nil
	}
	return store.Seed(context.Background(), &credentials.Record{
		ClientID:          cfg.ClientID,
		ClientSecret:      cfg.ClientSecret,
		AuthorizationCode: cfg.AuthorizationCode,
		APIDomain:         cfg.APIDomain,
		AccountsURL:       cfg.AccountsURL,
	})
}

// Cleanup releases held resources.
func (a *App) Cleanup() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}
