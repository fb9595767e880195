package main

import (
	"chatcord-backend/internal/authz"
	"chatcord-backend/internal/chat"
	"chatcord-backend/internal/config"
	"chatcord-backend/internal/conversation"
	"chatcord-backend/internal/database"
	"chatcord-backend/internal/fileHandlers"
	"chatcord-backend/internal/handlers"
	"chatcord-backend/internal/hub"
	"chatcord-backend/internal/jwt"
	"chatcord-backend/internal/keyValue"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/pagination"
	"chatcord-backend/internal/snowflake"
	"chatcord-backend/internal/store"
	"chatcord-backend/internal/supervisor"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupLogger(cfg *models.ConfigFile) (*zap.SugaredLogger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	if cfg.LogToFile {
		config.OutputPaths = []string{"app.log", "stdout"}
	}
	config.Level = level

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func setupRedis(cfg *models.ConfigFile) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func main() {
	// a missing .env is fine, real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Println(err)
		return
	}

	fmt.Println("Reading config...")
	cfg, err := config.Load()
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("Setting up logger...")
	sugar, err := setupLogger(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer sugar.Sync()

	if err := snowflake.Setup(cfg.SnowflakeWorkerID); err != nil {
		sugar.Fatal(err)
	}

	db, err := database.Setup(cfg, sugar)
	if err != nil {
		sugar.Fatal(err)
	}
	defer db.Close()

	isHttps := cfg.TlsCert != "" && cfg.TlsKey != ""
	jwt.Setup(cfg.JwtSecret, isHttps)

	tree := supervisor.NewTree(sugar, supervisor.DefaultTreeConfig())

	registry := hub.NewRegistry(cfg.SubscriberQueueSize)

	var publisher hub.Publisher
	if cfg.SelfContained {
		sugar.Info("Running self contained, events stay in this process")
		publisher = hub.NewLocalBroker(registry)
		keyValue.Setup(sugar, nil, true)
		tree.AddMessagingService(keyValue.Janitor{Interval: time.Minute})
	} else {
		sugar.Infow("Connecting to redis...", "address", cfg.RedisAddress)
		redisClient, err := setupRedis(cfg)
		if err != nil {
			sugar.Fatal(err)
		}
		defer redisClient.Close()

		broker := hub.NewRedisBroker(redisClient, registry, sugar)
		publisher = broker
		keyValue.Setup(sugar, redisClient, false)
		tree.AddMessagingService(broker)
	}

	s := store.NewSQLStore(db)
	events := hub.New(registry, publisher, sugar)
	gate := authz.New(s, sugar)
	engine := pagination.New(s)
	messages := chat.NewMessageService(s, gate, events, sugar)

	var httpProtocol string
	if isHttps {
		httpProtocol = "https"
	} else {
		httpProtocol = "http"
	}

	fullAddress := fmt.Sprintf("%s://%s:%s", httpProtocol, cfg.Address, cfg.Port)

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = fullAddress
	}

	router := handlers.Setup(cfg, sugar, handlers.Services{
		Profiles:      chat.NewProfileService(s, sugar),
		Servers:       chat.NewServerService(s, gate, events, sugar),
		Messages:      messages,
		Conversations: conversation.NewResolver(s, sugar),
		Pages:         engine,
		Gate:          gate,
		Sessions: chat.NewSessions(chat.SessionConfig{
			Gate:     gate,
			Engine:   engine,
			Messages: messages,
			Registry: registry,
			Retry:    chat.DefaultRetryPolicy(),
			Sugar:    sugar,
		}),
		Uploader: fileHandlers.NewUploader(cfg.UploadDir, publicURL),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Address, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	httpService := supervisor.NewHTTPServerService(server, 10*time.Second)
	if isHttps {
		httpService = httpService.WithTLS(cfg.TlsCert, cfg.TlsKey)
	}
	tree.AddAPIService(httpService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infof("Server is running on %s", fullAddress)

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		sugar.Error(err)
	}
	sugar.Info("Server stopped")
}
