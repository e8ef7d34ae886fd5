package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mandrivka/travelblog/internal/auth"
	"github.com/mandrivka/travelblog/internal/blog"
	"github.com/mandrivka/travelblog/internal/config"
	"github.com/mandrivka/travelblog/internal/database"
	"github.com/mandrivka/travelblog/internal/logging"
	"github.com/mandrivka/travelblog/internal/ranking"
	"github.com/mandrivka/travelblog/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "travelblog-api",
		Short: "Travel blog likes and comments backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the like ranking mirror (empty disables it)")
	cmd.PersistentFlags().String("idp-jwks-url", defaults.GetString("idp.jwks_url"), "Identity provider JWKS URL")
	cmd.PersistentFlags().String("idp-audience", defaults.GetString("idp.audience"), "Expected identity token audience")
	cmd.PersistentFlags().StringSlice("idp-issuers", defaults.GetStringSlice("idp.issuers"), "Allowed identity token issuers")
	cmd.PersistentFlags().String("static-dir", defaults.GetString("static.dir"), "Front-end build directory to serve (empty disables it)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "idp.jwks_url", "idp-jwks-url")
	bindFlag(cmd, "idp.audience", "idp-audience")
	bindFlag(cmd, "idp.issuers", "idp-issuers")
	bindFlag(cmd, "static.dir", "static-dir")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Audience:       appConfig.IDPAudience,
		JWKSURL:        appConfig.IDPJWKSURL,
		AllowedIssuers: appConfig.IDPIssuers,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	var ranker *ranking.RedisRanker
	if appConfig.RedisAddress != "" {
		ranker, err = ranking.Connect(appConfig.RedisAddress)
		if err != nil {
			return err
		}
		logger.Info("ranking mirror enabled", zap.String("address", appConfig.RedisAddress))
	}

	ledgerRanker := blog.Ranker(nil)
	if ranker != nil {
		ledgerRanker = ranker
	}
	ledger, err := blog.NewLedgerService(blog.LedgerConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
		Ranker:   ledgerRanker,
	})
	if err != nil {
		return err
	}

	comments, err := blog.NewCommentService(blog.CommentConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: blog.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	serverRanker := server.TopRanker(nil)
	if ranker != nil {
		serverRanker = ranker
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier:  verifier,
		Ledger:    ledger,
		Comments:  comments,
		Ranker:    serverRanker,
		StaticDir: appConfig.StaticDir,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
