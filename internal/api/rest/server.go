// Package rest provides functionality for initializing a server.
package rest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/emporium-dao/emporium/internal/api/rest/handlers"
	"github.com/emporium-dao/emporium/internal/api/rest/middleware"
	auditClient "github.com/emporium-dao/emporium/internal/client/audit"
	"github.com/emporium-dao/emporium/internal/client/fetch"
	"github.com/emporium-dao/emporium/internal/client/proxy"
	"github.com/emporium-dao/emporium/internal/config"
	"github.com/emporium-dao/emporium/internal/service/accesslist"
	"github.com/emporium-dao/emporium/internal/service/audit"
	"github.com/emporium-dao/emporium/internal/service/identity"
	"github.com/emporium-dao/emporium/internal/service/rewards"
	"github.com/emporium-dao/emporium/internal/service/snapshot"
	"github.com/emporium-dao/emporium/internal/service/token"
	"github.com/emporium-dao/emporium/internal/storage/v1/inpsql"
	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
)

// ServicePrincipal is the identity under which the rewards ledger issues
// mints. It is always part of the custodian set.
const ServicePrincipal = "emporium-rewards-service"

// InitServer returns a http.Server object ready to be listening and serving,
// together with the snapshot manager driving state restore and capture.
func InitServer(ctx context.Context, cfg *config.Config, log *zerolog.Logger, wg *sync.WaitGroup) (server *http.Server, snapshotMgr *snapshot.Manager, err error) {
	// initialize identity service
	identityService, err := identity.NewIdentityService(cfg.SecretConfig)
	if err != nil {
		return nil, nil, err
	}

	// initialize token handler
	tokenHandler, err := middleware.NewTokenHandler(identityService, cfg.SecretConfig)
	if err != nil {
		return nil, nil, err
	}

	// initialize storage
	storage, err := inpsql.InitStorage(ctx, cfg.StorageConfig, log, wg)
	if err != nil {
		return nil, nil, err
	}

	// initialize custodian registry, the rewards ledger always mints as a custodian
	custodians := append(cfg.ServerConfig.CustodianList(), ServicePrincipal)
	accessRegistry := accesslist.InitRegistry(custodians, log)

	// initialize audit writer over the durable outbox
	auditService := audit.InitWriter(ctx, storage, auditClient.InitClient(cfg.AuditConfig, log), log, wg, cfg.AuditConfig.FlushPeriodMs)
	auditService.ListenAndFlush()

	// initialize token ledger
	tokenService, err := token.InitLedger(cfg.TokenConfig, accessRegistry, auditService, log)
	if err != nil {
		return nil, nil, err
	}

	// initialize rewards ledger
	rewardsService, err := rewards.InitService(cfg.RewardsConfig, tokenService, ServicePrincipal, log)
	if err != nil {
		return nil, nil, err
	}

	// initialize snapshot manager
	snapshotMgr, err = snapshot.InitManager(storage, tokenService, rewardsService, accessRegistry, auditService, cfg.RewardsConfig.DailyPolicy, log)
	if err != nil {
		return nil, nil, err
	}

	// initialize outbound clients
	proxyClient := proxy.InitClient(log)
	fetchClient := fetch.InitClient(log)

	// initialize handlers
	urlHandler, err := handlers.InitHandlers(tokenService, rewardsService, accessRegistry, snapshotMgr, identityService, proxyClient, fetchClient, log)
	if err != nil {
		return nil, nil, err
	}

	// initialize server and set routing
	r := chi.NewRouter()
	openGroup := r.Group(nil)
	mainGroup := r.Group(nil)
	mainGroup.Use(tokenHandler.TokenHandle) // authentication is not used for token issuing and read-only routes
	openGroup.Post("/api/auth/token", urlHandler.HandleAuthToken())
	openGroup.Get("/api/user/{handle}", urlHandler.HandleGetUser())
	openGroup.Get("/api/users", urlHandler.HandleGetUsers())
	openGroup.Get("/api/user/{handle}/balance", urlHandler.HandleUserBalance())
	openGroup.Get("/api/token/balance/{principal}", urlHandler.HandleBalanceOf())
	openGroup.Get("/api/token/allowance", urlHandler.HandleAllowance())
	openGroup.Get("/api/token/metadata", urlHandler.HandleMetadata())
	openGroup.Get("/api/token/info", urlHandler.HandleTokenInfo())
	openGroup.Get("/api/token/holders", urlHandler.HandleHolders())
	openGroup.Get("/api/token/approvals/{principal}", urlHandler.HandleUserApprovals())
	mainGroup.Post("/api/user/register", urlHandler.HandleRegister())
	mainGroup.Post("/api/user/daily", urlHandler.HandleDaily())
	mainGroup.Post("/api/user/work", urlHandler.HandleWork())
	mainGroup.Post("/api/user/principal", urlHandler.HandleSetPrincipal())
	mainGroup.Post("/api/token/transfer", urlHandler.HandleTransfer())
	mainGroup.Post("/api/token/transferFrom", urlHandler.HandleTransferFrom())
	mainGroup.Post("/api/token/approve", urlHandler.HandleApprove())
	mainGroup.Post("/api/token/mint", urlHandler.HandleMint())
	mainGroup.Post("/api/token/name", urlHandler.HandleSetName())
	mainGroup.Post("/api/token/logo", urlHandler.HandleSetLogo())
	mainGroup.Post("/api/token/fee", urlHandler.HandleSetFee())
	mainGroup.Post("/api/token/feeTo", urlHandler.HandleSetFeeTo())
	mainGroup.Post("/api/custodians", urlHandler.HandleAddCustodian())
	mainGroup.Post("/api/admin/snapshot", urlHandler.HandleSnapshot())
	mainGroup.Post("/api/proxy/ft/transfer", urlHandler.HandleProxyFTTransfer())
	mainGroup.Post("/api/proxy/nft/transfer", urlHandler.HandleProxyNFTTransfer())
	mainGroup.Post("/api/debug/fetch", urlHandler.HandleFetch())

	srv := &http.Server{
		Addr:         cfg.ServerConfig.ServerAddress,
		Handler:      r,
		IdleTimeout:  60 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv, snapshotMgr, nil
}
