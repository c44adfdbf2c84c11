package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/solatis/qualify/internal/core/api"
	"github.com/solatis/qualify/internal/core/auth"
	"github.com/solatis/qualify/internal/core/db"
	"github.com/solatis/qualify/internal/core/server"
	"github.com/solatis/qualify/internal/metrics"
	"github.com/solatis/qualify/internal/resolver"
	"github.com/solatis/qualify/internal/types"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		src       sourceFlags
		fromStore string
		reload    time.Duration
		host      string
		port      int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC resolution service",
		Long: `Start the gRPC resolution service for resources from --file, --bundle or
the latest stored bundle named by --from-store.

With --from-store and --reload-interval the store is polled and newer
bundles are swapped in without a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}

			m := metrics.New()
			opts := append(a.cfg.ResolverOptions(), resolver.WithMetrics(m), resolver.WithLogger(a.logger))

			var (
				r       *resolver.Resolver
				store   *db.BundleStore
				current types.BundleID
				err     error
			)
			if fromStore != "" {
				if src.set() {
					return fmt.Errorf("--from-store excludes --file and --bundle")
				}
				url, err := a.storeURL()
				if err != nil {
					return err
				}
				var conn *sqlx.DB
				store, conn, err = openStore(ctx, url, a)
				if err != nil {
					return err
				}
				defer conn.Close()
				b, info, err := store.Latest(ctx, fromStore)
				if err != nil {
					return err
				}
				if r, err = resolver.New(&b.Collection, opts...); err != nil {
					return err
				}
				current = info.ID
				a.logger.Info("serving stored bundle", "name", fromStore, "bundle_id", info.ID)
			} else {
				mgr, err := src.manager(a)
				if err != nil {
					return err
				}
				if r, err = resolver.FromManager(mgr, opts...); err != nil {
					return err
				}
			}

			svc, err := api.NewResolverService(r, a.logger, m)
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}
			interceptors := []grpc.UnaryServerInterceptor{m.UnaryServerInterceptor()}
			if a.cfg.Auth.Enabled {
				authn, keyConn, err := openAuthenticator(ctx, a)
				if err != nil {
					return err
				}
				defer keyConn.Close()
				interceptors = append(interceptors, authn.UnaryInterceptor())
				a.logger.Info("api key authentication enabled")
			}
			grpcServer, err := server.NewGRPCServer(a.cfg.Server, svc, a.logger, interceptors...)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			errChan := make(chan error, 2)
			if a.cfg.Server.MetricsPort != 0 {
				mux := http.NewServeMux()
				mux.Handle("/metrics", m.Handler())
				httpServer := &http.Server{
					Addr:              net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.MetricsPort)),
					Handler:           mux,
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errChan <- fmt.Errorf("metrics server: %w", err)
					}
				}()
				defer httpServer.Close()
			}

			if store != nil && reload > 0 {
				go watchStore(ctx, store, fromStore, current, reload, opts, svc, a)
			}

			a.logger.Info("starting qualify resolution service", "version", Version,
				"host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
			go func() {
				errChan <- grpcServer.Start(ctx)
			}()

			select {
			case err := <-errChan:
				return err
			case <-ctx.Done():
				a.logger.Info("shutting down gracefully")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return grpcServer.Shutdown(shutdownCtx)
			}
		},
	}
	src.register(cmd)
	cmd.Flags().StringVar(&fromStore, "from-store", "", "serve the latest stored bundle with this name")
	cmd.Flags().DurationVar(&reload, "reload-interval", 0, "poll the store for newer bundles (0 disables)")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "gRPC server host")
	cmd.Flags().IntVar(&port, "port", 50051, "gRPC server port")
	return cmd
}

// watchStore swaps in the latest bundle named name whenever it changes.
func watchStore(ctx context.Context, store *db.BundleStore, name string, current types.BundleID,
	interval time.Duration, opts []resolver.Option, svc *api.ResolverService, a *app) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		next, err := reloadLatest(ctx, store, name, current, opts, svc)
		if err != nil {
			a.logger.Warn("bundle reload failed", "name", name, "error", err)
			continue
		}
		if next != current {
			a.logger.Info("bundle reloaded", "name", name, "bundle_id", next)
			current = next
		}
	}
}

// reloadLatest swaps svc to the latest bundle when its id differs from
// current and returns the id now served.
func reloadLatest(ctx context.Context, store *db.BundleStore, name string, current types.BundleID,
	opts []resolver.Option, svc *api.ResolverService) (types.BundleID, error) {
	b, info, err := store.Latest(ctx, name)
	if err != nil {
		return current, err
	}
	if info.ID == current {
		return current, nil
	}
	r, err := resolver.New(&b.Collection, opts...)
	if err != nil {
		return current, err
	}
	svc.Swap(r)
	return info.ID, nil
}

// openAuthenticator builds the API key authenticator over the store.
func openAuthenticator(ctx context.Context, a *app) (*auth.Authenticator, *sqlx.DB, error) {
	secret, err := auth.ParseSecret(a.cfg.Auth.Secret)
	if err != nil {
		return nil, nil, err
	}
	url, err := a.storeURL()
	if err != nil {
		return nil, nil, err
	}
	keys, conn, err := db.OpenAPIKeyStore(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	authn, err := auth.NewAuthenticator(secret, keys, a.logger)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return authn, conn, nil
}
