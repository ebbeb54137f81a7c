package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"socialblog/account"
	"socialblog/auth"
	"socialblog/backoffice"
	"socialblog/blog"
	"socialblog/cache"
	"socialblog/common"
	"socialblog/database"
	"socialblog/email"
	"socialblog/site"
	"socialblog/token"
)

func main() {
	cfg, err := common.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	l, err := common.NewLogger(cfg.Log.Development)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Sync()

	db, err := common.ConnectDb(cfg.Database, l)
	if err != nil {
		l.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := database.RunMigrations(db, l); err != nil {
		l.Fatal("failed to run migrations", zap.Error(err))
	}
	if err := database.SeedRoles(db); err != nil {
		l.Fatal("failed to seed roles", zap.Error(err))
	}

	codec, err := token.New(cfg.App.SecretKey)
	if err != nil {
		l.Fatal("failed to init token codec", zap.Error(err))
	}
	hasher, err := account.NewHasher(cfg.Password.Scheme, cfg.Password.BcryptCost)
	if err != nil {
		l.Fatal("failed to init password hasher", zap.Error(err))
	}

	redisClient := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()

	accounts := account.NewService(db, codec, hasher, account.Config{
		AdminEmail:     cfg.App.AdminEmail,
		ConfirmTTL:     cfg.Token.ConfirmTTL,
		ResetTTL:       cfg.Token.ResetTTL,
		ChangeEmailTTL: cfg.Token.ChangeEmailTTL,
	}, l).WithCache(redisClient)

	if n, err := accounts.Graph().AddSelfFollows(context.Background()); err != nil {
		l.Fatal("failed to add self follows", zap.Error(err))
	} else if n > 0 {
		l.Info("added missing self follows", zap.Int("count", n))
	}

	store := cache.NewStore(cfg.Cache.Dir, cfg.Cache.MaxAge)
	if err := store.ClearOldCache(); err != nil {
		l.Warn("failed to clear old cache", zap.Error(err))
	}

	notifier := email.NewNotifier(email.NewMailer(cfg.Mail, l), cfg.App.Domain, cfg.App.AdminEmail)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(common.RequestLogger(l), gin.Recovery())

	sessionStore := cookie.NewStore([]byte(cfg.App.SecretKey))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
	})
	router.Use(sessions.Sessions("socialblog-session", sessionStore))
	router.Use(auth.LoadPrincipal(accounts, l))

	limiter := auth.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	auth.NewAuthModule(accounts, notifier, limiter, l).RegisterRoutes(router)

	blog.NewBlogModule(blog.NewService(db), accounts, store, cfg.Pagination, l).RegisterRoutes(router)

	backoffice.NewBackofficeModule(accounts, store, cfg.Pagination.Followers, l).RegisterRoutes(router)

	site.NewSiteModule(db, cfg.App.Domain, l).RegisterRoutes(router)

	l.Info("starting server", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		l.Fatal("server stopped", zap.Error(err))
	}
}
