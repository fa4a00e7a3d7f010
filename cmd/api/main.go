package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"theinternetcompany.one/internal/auth"
	"theinternetcompany.one/internal/httpapi"
	"theinternetcompany.one/internal/obs"
	"theinternetcompany.one/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	secret := os.Getenv("TIC_AUTH_SECRET")
	if secret == "" {
		log.Fatal("TIC_AUTH_SECRET is required")
	}
	dsn := os.Getenv("TIC_PG_DSN")
	if dsn == "" {
		log.Fatal("TIC_PG_DSN is required")
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	var opts []auth.ServiceOption
	if issuer := os.Getenv("TIC_TOKEN_ISSUER"); issuer != "" {
		opts = append(opts, auth.WithIssuer(issuer))
	}
	if ttl := envDuration("TIC_ACCESS_TTL"); ttl > 0 {
		opts = append(opts, auth.WithAccessTTL(ttl))
	}
	if ttl := envDuration("TIC_REFRESH_TTL"); ttl > 0 {
		opts = append(opts, auth.WithRefreshTTL(ttl))
	}

	svc, err := auth.NewService(store, []byte(secret), opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	rbac, err := auth.NewRBACService(store)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := rbac.EnsureBuiltins(startupCtx); err != nil {
		cancel()
		log.Fatalf("seed rbac catalog: %v", err)
	}
	if err := bootstrapAdmin(startupCtx, store, rbac); err != nil {
		cancel()
		log.Fatalf("bootstrap admin: %v", err)
	}
	cancel()

	api := httpapi.New(httpapi.Config{
		Auth:  svc,
		RBAC:  rbac,
		Ready: httpapi.ReadyProbe{Pinger: store},
		Cookies: httpapi.CookieConfig{
			Secure: envBool("TIC_COOKIE_SECURE"),
			Domain: os.Getenv("TIC_COOKIE_DOMAIN"),
		},
		Version: version,
	})

	httpAddr := envOr("TIC_HTTP_ADDR", ":8080")
	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting tic-auth %s on %s", version, httpAddr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	var grpcSrv *httpapi.GRPCServer
	if grpcAddr := os.Getenv("TIC_GRPC_ADDR"); grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = httpapi.NewGRPCServer(httpapi.ReadyProbe{Pinger: store})
		log.Printf("grpc health on %s", grpcAddr)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	log.Println("stopped")
}

// bootstrapAdmin creates the first super admin from the environment on a
// fresh install. Existing accounts are left untouched.
func bootstrapAdmin(ctx context.Context, store *pg.Store, rbac *auth.RBACService) error {
	email := os.Getenv("TIC_BOOTSTRAP_EMAIL")
	password := os.Getenv("TIC_BOOTSTRAP_PASSWORD")
	if email == "" || password == "" {
		return nil
	}
	if _, err := store.Users(ctx).FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, auth.ErrNotFound) {
		return err
	}
	user, err := rbac.CreateUser(ctx, email, password, []string{auth.RoleSuperAdmin})
	if err != nil {
		return err
	}
	log.Printf("bootstrapped super admin %s", user.Email)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return d
}
