package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/scholarcash/internal/gateway"
	"github.com/MarkoPoloResearchLab/scholarcash/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/scholarcash/internal/httpapi"
	"github.com/MarkoPoloResearchLab/scholarcash/internal/logging"
	"github.com/MarkoPoloResearchLab/scholarcash/internal/metrics"
	"github.com/MarkoPoloResearchLab/scholarcash/pkg/ledger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	flagDatabaseURL       = "database-url"
	flagStoreEngine       = "store-engine"
	flagGRPCListenAddr    = "grpc-listen-addr"
	flagHTTPListenAddr    = "http-listen-addr"
	flagSessionSigningKey = "session-signing-key"
	flagSessionIssuer     = "session-issuer"
	flagSessionCookieName = "session-cookie-name"
	flagAllowedOrigins    = "allowed-origins"
	flagLowStockThreshold = "low-stock-threshold"
	flagRequestTimeout    = "request-timeout"
	flagIdentity          = "identity"
	flagRole              = "role"

	configKeyDatabaseURL       = "database_url"
	configKeyStoreEngine       = "store_engine"
	configKeyGRPCListenAddr    = "grpc_listen_addr"
	configKeyHTTPListenAddr    = "http_listen_addr"
	configKeySessionSigningKey = "session_signing_key"
	configKeySessionIssuer     = "session_issuer"
	configKeySessionCookieName = "session_cookie_name"
	configKeyAllowedOrigins    = "allowed_origins"
	configKeyLowStockThreshold = "low_stock_threshold"
	configKeyRequestTimeout    = "request_timeout"

	defaultDatabaseURL    = "sqlite:///tmp/scholarcash.db"
	defaultStoreEngine    = storeEngineGorm
	defaultGRPCListenAddr = ":7000"
	defaultHTTPListenAddr = ":9090"
	defaultRequestTimeout = 3 * time.Second
	defaultLowStock       = 5
)

type runtimeConfig struct {
	DatabaseURL    string
	StoreEngine    string
	GRPCListenAddr string
	HTTP           httpapi.Config
}

type configBinding struct {
	key  string
	env  string
	flag string
}

var configBindings = []configBinding{
	{key: configKeyDatabaseURL, env: "DATABASE_URL", flag: flagDatabaseURL},
	{key: configKeyStoreEngine, env: "STORE_ENGINE", flag: flagStoreEngine},
	{key: configKeyGRPCListenAddr, env: "GRPC_LISTEN_ADDR", flag: flagGRPCListenAddr},
	{key: configKeyHTTPListenAddr, env: "HTTP_LISTEN_ADDR", flag: flagHTTPListenAddr},
	{key: configKeySessionSigningKey, env: "SESSION_SIGNING_KEY", flag: flagSessionSigningKey},
	{key: configKeySessionIssuer, env: "SESSION_ISSUER", flag: flagSessionIssuer},
	{key: configKeySessionCookieName, env: "SESSION_COOKIE_NAME", flag: flagSessionCookieName},
	{key: configKeyAllowedOrigins, env: "ALLOWED_ORIGINS", flag: flagAllowedOrigins},
	{key: configKeyLowStockThreshold, env: "LOW_STOCK_THRESHOLD", flag: flagLowStockThreshold},
	{key: configKeyRequestTimeout, env: "REQUEST_TIMEOUT", flag: flagRequestTimeout},
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "scholarcashd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	settings := viper.New()
	serve := func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg)
	}
	cmd := &cobra.Command{
		Use:           "scholarcashd",
		Short:         "Classroom token ledger with gRPC and HTTP APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, settings, cfg)
		},
		RunE: serve,
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, defaultDatabaseURL, "memory://, sqlite:// path or PostgreSQL connection string")
	flags.String(flagStoreEngine, defaultStoreEngine, "PostgreSQL store engine: gorm or pgx")
	flags.String(flagGRPCListenAddr, defaultGRPCListenAddr, "gRPC listen address")
	flags.String(flagHTTPListenAddr, defaultHTTPListenAddr, "HTTP listen address")
	flags.String(flagSessionSigningKey, "", "HS256 key for session cookies; the HTTP API is disabled without it")
	flags.String(flagSessionIssuer, "tauth", "expected session issuer")
	flags.String(flagSessionCookieName, "app_session", "session cookie name")
	flags.String(flagAllowedOrigins, "http://localhost:8000", "comma-separated CORS origins")
	flags.Int64(flagLowStockThreshold, defaultLowStock, "default low-stock threshold")
	flags.Duration(flagRequestTimeout, defaultRequestTimeout, "per-request timeout")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC and HTTP servers",
		RunE:  serve,
	})
	cmd.AddCommand(newMigrateCommand(cfg))
	cmd.AddCommand(newProvisionCommand(cfg))
	return cmd
}

func newMigrateCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = backend.close() }()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", backend.driver)
			return nil
		},
	}
}

func newProvisionCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Register an identity and open its wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			identityID, _ := cmd.Flags().GetString(flagIdentity)
			role, _ := cmd.Flags().GetString(flagRole)
			backend, err := openBackend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = backend.close() }()

			service, err := ledger.NewService(backend.store, time.Now)
			if err != nil {
				return fmt.Errorf("ledger service init: %w", err)
			}
			ledgerGateway, err := gateway.New(service)
			if err != nil {
				return err
			}
			identity, err := ledgerGateway.ProvisionIdentity(cmd.Context(), gateway.ProvisionRequest{IdentityID: identityID, Role: role})
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(identity)
		},
	}
	cmd.Flags().String(flagIdentity, "", "identity id")
	cmd.Flags().String(flagRole, ledger.RoleStudent.String(), "STUDENT or ADMIN")
	_ = cmd.MarkFlagRequired(flagIdentity)
	return cmd
}

func loadConfig(cmd *cobra.Command, settings *viper.Viper, cfg *runtimeConfig) error {
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	for _, binding := range configBindings {
		if err := settings.BindEnv(binding.key, binding.env); err != nil {
			return err
		}
		if err := settings.BindPFlag(binding.key, cmd.Flags().Lookup(binding.flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = settings.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.StoreEngine = strings.ToLower(strings.TrimSpace(settings.GetString(configKeyStoreEngine)))
	if cfg.StoreEngine == "" {
		cfg.StoreEngine = defaultStoreEngine
	}
	if cfg.StoreEngine != storeEngineGorm && cfg.StoreEngine != storeEnginePgx {
		return fmt.Errorf("unsupported store engine %q", cfg.StoreEngine)
	}
	cfg.GRPCListenAddr = settings.GetString(configKeyGRPCListenAddr)
	if cfg.GRPCListenAddr == "" {
		cfg.GRPCListenAddr = defaultGRPCListenAddr
	}
	cfg.HTTP = httpapi.Config{
		ListenAddr:        settings.GetString(configKeyHTTPListenAddr),
		RequestTimeout:    settings.GetDuration(configKeyRequestTimeout),
		AllowedOrigins:    httpapi.ParseAllowedOrigins(settings.GetString(configKeyAllowedOrigins)),
		SessionSigningKey: settings.GetString(configKeySessionSigningKey),
		SessionIssuer:     settings.GetString(configKeySessionIssuer),
		SessionCookieName: settings.GetString(configKeySessionCookieName),
		LowStockThreshold: settings.GetInt64(configKeyLowStockThreshold),
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = backend.close() }()
	logger.Info("ledger store ready", zap.String("driver", backend.driver), zap.String("engine", cfg.StoreEngine))

	collector := metrics.New()
	service, err := ledger.NewService(backend.store, time.Now,
		ledger.WithOperationLogger(logging.NewOperationLogger(logger)),
		ledger.WithOperationLogger(collector),
	)
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}
	ledgerGateway, err := gateway.New(service)
	if err != nil {
		return err
	}

	var httpServer *httpapi.Server
	if cfg.HTTP.SessionSigningKey == "" {
		logger.Warn("http api disabled: no session signing key")
	} else {
		httpServer, err = httpapi.New(cfg.HTTP, ledgerGateway, collector, logger)
		if err != nil {
			return fmt.Errorf("http api init: %w", err)
		}
	}

	lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(collector.UnaryServerInterceptor()))
	grpcserver.RegisterLedgerServer(grpcServer, grpcserver.NewLedgerServer(ledgerGateway))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("gRPC server starting", zap.String("listen_addr", cfg.GRPCListenAddr))
		if serveErr := grpcServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown requested")
		grpcServer.GracefulStop()
		return nil
	})
	if httpServer != nil {
		group.Go(func() error {
			return httpServer.Run(groupCtx)
		})
	}
	return group.Wait()
}
