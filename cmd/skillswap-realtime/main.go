package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/skillswaphq/skillswap-realtime/internal/config"
	"github.com/skillswaphq/skillswap-realtime/internal/devserver"
	"github.com/skillswaphq/skillswap-realtime/internal/identity"
	"github.com/skillswaphq/skillswap-realtime/internal/logging"
	"github.com/skillswaphq/skillswap-realtime/internal/messages"
	"github.com/skillswaphq/skillswap-realtime/internal/notify"
	"github.com/skillswaphq/skillswap-realtime/internal/realtime"
	"github.com/skillswaphq/skillswap-realtime/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile   string
	emailFlag string
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "skillswap-realtime",
		Short: "SkillSwap real-time messaging client and dev server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect the messaging client and log events and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context())
		},
	}
	watchCmd.Flags().StringVar(&emailFlag, "email", "", "Identity to connect as (defaults to the stored session)")

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Issue and store a signed session for an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context())
		},
	}
	loginCmd.Flags().StringVar(&emailFlag, "email", "", "Identity to sign in as")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development messaging server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(watchCmd, loginCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "Dev server listen address")
	cmd.PersistentFlags().String("api-base-url", defaults.GetString("api.base_url"), "Messaging API base URL")
	cmd.PersistentFlags().String("socket-url", defaults.GetString("socket.url"), "Messaging socket URL")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "Dev server SQLite database path")
	cmd.PersistentFlags().String("storage-path", defaults.GetString("storage.path"), "Client local storage SQLite path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "api.base_url", "api-base-url")
	bindFlag(cmd, "socket.url", "socket-url")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "storage.path", "storage-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
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

func runLogin(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if emailFlag == "" {
		return fmt.Errorf("--email is required")
	}
	if appConfig.SessionSigningKey == "" {
		return fmt.Errorf("session.signing_secret is required to issue sessions")
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := storage.OpenSQLite(appConfig.StoragePath, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	sessions := identity.NewSessionManager(identity.SessionManagerConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.SessionIssuer,
		Audience:      appConfig.SessionAudience,
	})
	token, err := sessions.Issue(emailFlag)
	if err != nil {
		return err
	}
	if err := identity.SaveSession(ctx, store, token); err != nil {
		return err
	}

	logger.Info("session stored", zap.String("identity", identity.Normalize(emailFlag)))
	return nil
}

func runWatch(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := storage.OpenSQLite(appConfig.StoragePath, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	email := identity.Normalize(emailFlag)
	if email == "" && appConfig.SessionSigningKey != "" {
		sessions := identity.NewSessionManager(identity.SessionManagerConfig{
			SigningSecret: []byte(appConfig.SessionSigningKey),
			Issuer:        appConfig.SessionIssuer,
			Audience:      appConfig.SessionAudience,
		})
		stored, ok, err := identity.LoadSession(ctx, store, sessions)
		if err != nil {
			return err
		}
		if ok {
			email = stored.String()
		}
	}

	manager := realtime.NewManager(realtime.ManagerConfig{
		SocketURL: appConfig.SocketURL,
		Dialer:    realtime.NewWebsocketDialer(),
		Logger:    logger,
	})

	conversationStore, err := messages.NewStore(messages.StoreConfig{
		API:       messages.NewAPIClient(appConfig.APIBaseURL),
		Publisher: manager,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	center, err := notify.NewCenter(notify.CenterConfig{
		Store:   store,
		Alerter: notify.NewLogAlerter(logger),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if err := center.Mount(ctx, email); err != nil {
		return err
	}

	detachStore := conversationStore.Attach(manager)
	defer detachStore()
	detachCenter := center.Attach(manager)
	defer detachCenter()

	unsubscribe := manager.Subscribe(realtime.EventConnected, func(realtime.Event) {
		logger.Info("transport connected", zap.String("identity", email))
	})
	defer unsubscribe()
	unsubscribeErr := manager.Subscribe(realtime.EventError, func(event realtime.Event) {
		logger.Warn("transport error", zap.Error(event.Err))
	})
	defer unsubscribeErr()

	if email != "" {
		if err := conversationStore.LoadAll(ctx, email); err != nil {
			logger.Warn("initial conversation load failed", zap.Error(err))
		}
	}
	manager.Connect(email)
	defer manager.Disconnect()

	logger.Info("watching for messages",
		zap.String("identity", email),
		zap.Int("unread", center.UnreadCount()))

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-signalCtx.Done()
	return nil
}

func runServe(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := devserver.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	service, err := devserver.NewService(devserver.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: devserver.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := devserver.NewHTTPHandler(devserver.Dependencies{
		Service: service,
		Hub:     devserver.NewHub(),
		Logger:  logger,
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
