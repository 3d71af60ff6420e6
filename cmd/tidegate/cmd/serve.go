package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/solatis/tidegate/internal/core/api"
	"github.com/solatis/tidegate/internal/core/auth"
	"github.com/solatis/tidegate/internal/core/config"
	"github.com/solatis/tidegate/internal/core/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC decision services",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "listen host (overrides server.host)")
	serveCmd.Flags().Int("http-port", 0, "HTTP port (overrides server.http_port)")
	serveCmd.Flags().Int("grpc-port", 0, "gRPC port (overrides server.grpc_port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	// Privileged endpoints need keys, keys need the database
	privileged := len(secrets) > 0

	a, err := setup(ctx, privileged)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("http-port") {
		cfg.Server.HTTPPort, _ = cmd.Flags().GetInt("http-port")
	}
	if cmd.Flags().Changed("grpc-port") {
		cfg.Server.GRPCPort, _ = cmd.Flags().GetInt("grpc-port")
	}

	service, err := a.decisionService(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	var authenticator *auth.Authenticator
	if privileged {
		authenticator = auth.NewAuthenticator(secrets, a.queries)
	} else {
		a.logger.Warn().Msg("no HMAC secrets configured (set TG_HMAC_SECRET), privileged endpoints disabled")
	}

	httpHandler := api.NewHTTPHandler(service, authenticator, api.HTTPConfig{
		AllowedOrigin: cfg.Server.AllowedOrigin,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
	}, a.logger)

	httpAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.HTTPPort))
	httpServer, err := server.NewHTTPServer(httpAddr, httpHandler.Router(), cfg.Server.RequestTimeout)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errChan := make(chan error, 2)
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	var grpcServer *server.GRPCServer
	if privileged {
		grpcAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort))
		grpcServer, err = server.NewGRPCServer(grpcAddr, api.NewGRPCHandler(service), authenticator)
		if err != nil {
			return fmt.Errorf("failed to create grpc server: %w", err)
		}
		go func() {
			errChan <- grpcServer.Start(ctx)
		}()
		a.logger.Info().Str("addr", grpcAddr).Msg("grpc decision api listening")
	}

	a.logger.Info().
		Str("version", Version).
		Str("addr", httpAddr).
		Str("rules", cfg.Rules.Source).
		Str("ip_provider", cfg.IPIntel.Provider).
		Str("ip_cache", cfg.IPIntel.Cache).
		Msg("starting tidegate")

	select {
	case err := <-errChan:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down gracefully")
	}

	shutdownCtx := context.WithoutCancel(ctx)
	var shutdownErr error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		shutdownErr = err
	}
	if grpcServer != nil {
		if err := grpcServer.Shutdown(shutdownCtx); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}
