package main

import (
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/alvenie/skillswap-chat/internal/handlers"
	"github.com/alvenie/skillswap-chat/internal/hub"
	"github.com/alvenie/skillswap-chat/internal/presence"
	"github.com/alvenie/skillswap-chat/internal/profile"
	"github.com/alvenie/skillswap-chat/internal/repository"
	"github.com/alvenie/skillswap-chat/internal/service"
)

func main() {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app/config")

	if err := viper.ReadInConfig(); err != nil {
		logrus.Fatalf("Failed to read config file: %v", err)
	}

	logger := logrus.New()
	switch viper.GetString("logging.level") {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if viper.GetString("logging.format") == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	store, cleanup := openStore(logger)
	defer cleanup()

	chatHub := hub.New(store, logger, viper.GetInt("chat.subscriber_buffer"))

	profiles := profile.NewStaticDirectory(viper.GetStringMapString("profiles"))
	notifier := presence.NewLogNotifier(logger)

	opTimeout := viper.GetDuration("chat.op_timeout")
	chatService := service.NewChatService(store, profiles, notifier, chatHub, logger, opTimeout)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handlers.New(chatService, chatHub, logger).Register(app)

	port := viper.GetString("server.port")
	if port == "" {
		port = "8085"
	}
	host := viper.GetString("server.host")
	if host == "" {
		host = "0.0.0.0"
	}
	address := net.JoinHostPort(host, port)

	go func() {
		logger.Infof("Starting chat server on %s", address)
		if err := app.Listen(address); err != nil {
			logger.Fatalf("Failed to start chat server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down chat server...")

	shutdownTimeout := viper.GetDuration("server.shutdown_timeout")
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	chatHub.Shutdown()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Infof("Chat server shutdown timeout: %v", err)
	} else {
		logger.Info("Chat server exited gracefully")
	}

	logger.Info("Server exited")
}

// openStore picks the storage backend. `postgres` is production; `memory`
// runs the whole engine in-process for local development.
func openStore(logger *logrus.Logger) (repository.Store, func()) {
	backend := viper.GetString("storage.backend")
	if backend == "memory" {
		logger.Info("Using in-memory storage")
		return repository.NewMemoryStore(), func() {}
	}

	dbHost := viper.GetString("database.host")
	dbPort := viper.GetInt("database.port")
	dbUser := viper.GetString("database.user")
	dbPassword := viper.GetString("database.password")
	dbName := viper.GetString("database.dbname")
	sslmode := viper.GetString("database.sslmode")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == 0 {
		dbPort = 5432
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "skillswap"
	}
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" +
		fmt.Sprintf("%d", dbPort) + "/" + dbName + "?sslmode=" + sslmode

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	logger.Info("Connected to PostgreSQL database")

	store := repository.NewPostgresStore(db)
	if err := store.InitializeTables(); err != nil {
		logger.Fatalf("Failed to initialize database tables: %v", err)
	}

	return store, func() { db.Close() }
}
