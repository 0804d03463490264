package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"bizadmin/internal/config"
	httpapi "bizadmin/internal/http"
	"bizadmin/internal/logger"
	"bizadmin/internal/notify"
	"bizadmin/internal/repository"
	"bizadmin/internal/service"
	"bizadmin/internal/store"
	"bizadmin/internal/tenantpool"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "bizadmin")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	kv := store.NewRedisKV(redisClient)

	// Master directory database. The process-wide singleton; tenant databases
	// go through the pool registry.
	masterDB, err := tenantpool.Open(cfg.Master.DSN(), cfg.Master.MaxConns, cfg.Master.MaxIdle)
	if err != nil {
		log.Fatal("connect master database", zap.Error(err))
	}
	if err := repository.EnsureMasterSchema(context.Background(), masterDB); err != nil {
		log.Fatal("ensure master schema", zap.Error(err))
	}

	registry := tenantpool.NewRegistry(cfg.Tenant.MaxConns, cfg.Tenant.MaxIdle, log)

	tenantsRepo := repository.NewPostgresTenantsRepository(masterDB)
	membershipsRepo := repository.NewPostgresMembershipsRepository(masterDB)
	auditRepo := repository.NewPostgresAuditRepository(masterDB)

	provider := service.NewPoolStoreProvider(tenantsRepo, registry)
	catalogSvc := service.NewCatalogService(log)
	resolverSvc := service.NewResolverService(tenantsRepo, membershipsRepo, provider, "", log)
	entitlementSvc := service.NewEntitlementService(catalogSvc, auditRepo, log)
	directorySvc := service.NewDirectoryService(tenantsRepo, membershipsRepo, provider, resolverSvc, log)
	webhook := notify.NewWebhook(cfg.Provision.WebhookURL, log)
	provisioningSvc := service.NewProvisioningService(
		&cfg.Master, cfg.Provision.Wait,
		tenantsRepo, membershipsRepo, registry, catalogSvc, kv, webhook, log,
	)

	router := httpapi.NewRouter(log)
	router.RegisterAdminRoutes(
		httpapi.NewTenantsHandler(tenantsRepo, provisioningSvc, directorySvc, log),
		httpapi.NewMasterUsersHandler(directorySvc, log),
		httpapi.NewFeaturesHandler(catalogSvc, entitlementSvc, resolverSvc, provider, cfg.Auth.JWTSecret, log),
		httpapi.NewAuditHandler(auditRepo, log),
	)

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			log.Error("http server exited", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	registry.CloseAll()
	_ = masterDB.Close()
	_ = redisClient.Close()
}
