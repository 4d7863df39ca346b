package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dabbu/dabbu-go/internal/auth"
	"github.com/dabbu/dabbu-go/internal/config"
	"github.com/dabbu/dabbu-go/internal/driveops"
	"github.com/dabbu/dabbu-go/internal/drivepath"
	"github.com/dabbu/dabbu-go/internal/drives"
	"github.com/dabbu/dabbu-go/internal/filesapi"
	"github.com/dabbu/dabbu-go/internal/provider"
	"github.com/dabbu/dabbu-go/internal/store"
)

// dataEndpoint is the Files API data route under the server URL.
const dataEndpoint = "/files-api/v3/data"

// Session wires the drive state, provider catalog, and Files API client for
// one command invocation.
type Session struct {
	Registry  *drives.Registry
	Catalog   *provider.Catalog
	Resolver  *drivepath.Resolver
	Tokens    *auth.TokenManager
	Client    *filesapi.Client
	Transfers *driveops.TransferManager
	HTTP      *http.Client
	Logger    *slog.Logger
}

// newSession opens the state file named by the resolved config and builds a
// Session over it.
func newSession(cc *CLIContext) (*Session, error) {
	st, err := store.Open(cc.Cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("opening drive state: %w", err)
	}

	return newSessionWithStore(st, cc.Cfg, cc.Logger)
}

// newSessionWithStore builds a Session over an already opened store.
func newSessionWithStore(st store.Store, cfg *config.Resolved, logger *slog.Logger) (*Session, error) {
	cat := provider.Default()
	reg := drives.NewRegistry(st)
	httpClient := newHTTPClient(cfg)

	creds := cfg.Server.Credentials
	if creds == "" {
		var err error

		creds, err = reg.SessionCredentials()
		if err != nil {
			return nil, err
		}
	}

	tokens := auth.NewTokenManager(reg, cat, httpClient, logger)
	client := filesapi.NewClient(dataURL(cfg.Server.URL), httpClient, creds, cfg.Network.UserAgent, logger)

	logger.Debug("session ready",
		slog.String("server_url", cfg.Server.URL),
		slog.String("current_drive", reg.Current()),
	)

	return &Session{
		Registry:  reg,
		Catalog:   cat,
		Resolver:  drivepath.NewResolver(reg),
		Tokens:    tokens,
		Client:    client,
		Transfers: driveops.NewTransferManager(reg, cat, client, tokens, cfg.Transfers.TempDir, logger),
		HTTP:      httpClient,
		Logger:    logger,
	}, nil
}

// dataURL appends the data route to the server URL.
func dataURL(serverURL string) string {
	return strings.TrimSuffix(serverURL, "/") + dataEndpoint
}

// Copier returns a copy orchestrator over the session's transfers.
func (s *Session) Copier() *driveops.Copier {
	return driveops.NewCopier(s.Transfers, s.Resolver, s.Logger)
}

// Remover returns a delete orchestrator over the session's transfers.
func (s *Session) Remover() *driveops.Remover {
	return driveops.NewRemover(s.Transfers, s.Resolver, s.Logger)
}
