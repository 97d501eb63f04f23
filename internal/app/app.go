package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/innerstack/chatdesk/internal/anthropic"
	"github.com/innerstack/chatdesk/internal/auth"
	"github.com/innerstack/chatdesk/internal/chat"
	"github.com/innerstack/chatdesk/internal/config"
	"github.com/innerstack/chatdesk/internal/db"
	"github.com/innerstack/chatdesk/internal/http/api/handlers"
	"github.com/innerstack/chatdesk/internal/http/web"
	"github.com/innerstack/chatdesk/internal/models"
	"github.com/innerstack/chatdesk/internal/secretbox"
	"github.com/innerstack/chatdesk/internal/security"
	internalsettings "github.com/innerstack/chatdesk/internal/settings"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// CreateUser provisions an account, hashing the password. It is the
// admin bootstrap path; there is no self-service signup.
func CreateUser(ctx context.Context, cfg config.AppConfig, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("app: username is required")
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("app: password is required")
	}

	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return errHash
	}
	now := time.Now().UTC()
	user := models.User{
		Username:  username,
		Password:  hash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := conn.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return fmt.Errorf("app: user %q already exists", username)
		}
		return fmt.Errorf("app: create user: %w", errCreate)
	}
	log.WithField("user", username).Info("user created")
	return nil
}

// RunServer boots the web console.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	log.WithField("dialect", db.DialectName(conn)).Info("database connected")
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	jwtCfg, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}
	sessions, errSessions := auth.NewManager(jwtCfg)
	if errSessions != nil {
		return errSessions
	}

	encryptionKey, errKey := config.LoadEncryptionKey(configPath)
	if errKey != nil {
		return errKey
	}
	box, errBox := secretbox.New(encryptionKey)
	if errBox != nil {
		return errBox
	}

	history, errHistory := buildHistoryStore(conn, sessions.Expiry())
	if errHistory != nil {
		return errHistory
	}

	client := anthropic.NewClient(config.LoadAnthropicBaseURL(configPath))

	engine, errEngine := NewRouter(conn, sessions, box, client, history)
	if errEngine != nil {
		return errEngine
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("server listening")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("app: shutdown: %w", errShutdown)
		}
		return nil
	case errServe, ok := <-errCh:
		if ok && errServe != nil {
			return fmt.Errorf("app: serve: %w", errServe)
		}
		return nil
	}
}

// buildHistoryStore selects the chat history backend from site settings.
func buildHistoryStore(conn *gorm.DB, ttl time.Duration) (chat.HistoryStore, error) {
	redisCfg, errLoad := internalsettings.LoadHistoryRedisConfig(conn)
	if errLoad != nil {
		return nil, errLoad
	}
	if !redisCfg.Enabled || redisCfg.Addr == "" {
		return chat.NewMemoryHistoryStore(ttl), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	log.WithField("addr", redisCfg.Addr).Info("chat history backed by redis")
	return chat.NewRedisHistoryStore(client, redisCfg.Prefix, ttl), nil
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(conn *gorm.DB, sessions *auth.Manager, box *secretbox.Box, client *anthropic.Client, history chat.HistoryStore) (*gin.Engine, error) {
	templates, errTemplates := web.LoadTemplates()
	if errTemplates != nil {
		return nil, errTemplates
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.SetHTMLTemplate(templates)

	settingsSvc := internalsettings.NewService(conn, box)

	healthHandler := handlers.NewHealthHandler(conn)
	engine.GET("/healthz", healthHandler.Healthz)

	authHandler := handlers.NewAuthHandler(conn, sessions, history)
	engine.GET("/login", authHandler.ShowLogin)
	engine.POST("/login", authHandler.Login)

	pageHandler := handlers.NewPageHandler(conn, settingsSvc, history)
	engine.GET("/", func(c *gin.Context) {
		if auth.SessionIfPresent(c, conn, sessions) {
			c.Redirect(http.StatusFound, "/dashboard")
			return
		}
		c.Redirect(http.StatusFound, "/login")
	})

	settingsHandler := handlers.NewSettingsHandler(conn, settingsSvc, client)
	chatHandler := handlers.NewChatHandler(settingsSvc, history, client)

	pages := engine.Group("")
	pages.Use(auth.RequirePage(conn, sessions))
	pages.GET("/dashboard", pageHandler.Dashboard)
	pages.GET("/chat", pageHandler.ChatPage)
	pages.GET("/settings", settingsHandler.ShowSettings)
	pages.POST("/settings", settingsHandler.SaveSettings)
	pages.POST("/settings/totp/prepare", settingsHandler.PrepareTOTP)
	pages.POST("/settings/totp/confirm", settingsHandler.ConfirmTOTP)
	pages.POST("/settings/totp/disable", settingsHandler.DisableTOTP)
	pages.GET("/logout", authHandler.Logout)

	api := engine.Group("/api")
	api.Use(auth.RequireAPI(conn, sessions))
	api.POST("/chat", chatHandler.Send)
	api.POST("/chat/clear", chatHandler.Clear)
	api.POST("/test-connection", settingsHandler.TestConnection)

	return engine, nil
}
