package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"quiz-story/internal/auth"
	"quiz-story/internal/chain"
	"quiz-story/internal/config"
	"quiz-story/internal/difficulty"
	"quiz-story/internal/ending"
	"quiz-story/internal/httpx"
	"quiz-story/internal/memstore"
	"quiz-story/internal/play"
	"quiz-story/internal/scene"
	"quiz-story/internal/story"
	"quiz-story/pkg/cache"
	"quiz-story/pkg/database"
	"quiz-story/pkg/lock"
	"quiz-story/pkg/logger"
	"quiz-story/pkg/websocket"
)

type stores struct {
	scenes   story.Store
	sessions play.SessionStore
	users    auth.UserStore
	close    func()
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	st, err := openStores(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to open stores", zap.Error(err))
	}
	defer st.close()

	var (
		locker     lock.Locker = lock.NewKeyedMutex()
		redisCache *cache.RedisCache
		storyCache story.Cache
		scoreboard play.Scoreboard
	)
	if cfg.RedisAddr != "" {
		redisCache = cache.NewRedisCache(cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			StoryTTL: cfg.StoryCacheTTL,
			LockTTL:  cfg.LockTTL,
			Logger:   zlog,
		})
		defer redisCache.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			zlog.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		locker, storyCache, scoreboard = redisCache, redisCache, redisCache
		zlog.Info("Redis connected", zap.String("addr", cfg.RedisAddr))
	} else {
		zlog.Warn("REDIS_ADDR not set: using in-process locks, no story cache, no leaderboard")
	}

	selector, err := ending.NewSelector(cfg.EndingGoodThreshold, cfg.EndingNeutralThreshold)
	if err != nil {
		zlog.Fatal("Invalid ending thresholds", zap.Error(err))
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	wsHub := websocket.NewHub(zlog, originChecker(cfg.AllowedOrigins))
	go wsHub.Run(hubCtx)

	seed := time.Now().UnixNano()
	reconciler := chain.NewReconciler(st.scenes, locker, zlog)
	storyService := story.NewService(st.scenes, reconciler, storyCache, locker, rand.NewSource(seed), zlog)
	playService := play.NewService(
		st.scenes,
		st.sessions,
		locker,
		selector,
		difficulty.NewPresenter(rand.NewSource(seed+1)),
		scoreboard,
		wsHub,
		zlog,
	)
	authService := auth.NewService(st.users, cfg.JWTSecret)

	authHandler := auth.NewHandler(authService, zlog)
	storyHandler := story.NewHandler(storyService, zlog)
	playHandler := play.NewHandler(playService, storyService, zlog)

	router := mux.NewRouter()

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	handler := corsMiddleware.Handler(router)

	router.HandleFunc("/api/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(auth.JWTMiddleware(cfg.JWTSecret))

	apiRouter.HandleFunc("/stories", storyHandler.ListPublic).Methods("GET")
	apiRouter.HandleFunc("/stories", storyHandler.CreateStory).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/stories/mine", storyHandler.ListMine).Methods("GET")
	apiRouter.HandleFunc("/stories/{storyID:[0-9]+}", storyHandler.GetStory).Methods("GET")
	apiRouter.HandleFunc("/stories/{storyID:[0-9]+}", storyHandler.UpdateDetails).Methods("PUT", "OPTIONS")
	apiRouter.HandleFunc("/stories/{storyID:[0-9]+}", storyHandler.DeleteStory).Methods("DELETE", "OPTIONS")
	apiRouter.HandleFunc("/stories/{storyID:[0-9]+}/questions", storyHandler.SubmitEditedQuestions).Methods("PUT", "OPTIONS")
	apiRouter.HandleFunc("/stories/{storyID:[0-9]+}/leaderboard", playHandler.GetLeaderboard).Methods("GET")
	apiRouter.HandleFunc("/stories/{storyID:[0-9]+}/sessions", playHandler.StartSession).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/join/{code}", playHandler.JoinByCode).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/sessions", playHandler.ListSessions).Methods("GET")
	apiRouter.HandleFunc("/sessions/{sessionID}", playHandler.GetSession).Methods("GET")
	apiRouter.HandleFunc("/sessions/{sessionID}/advance", playHandler.Advance).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/sessions/{sessionID}/scenes/{kind}/{sceneID:[0-9]+}", playHandler.GetScene).Methods("GET")
	apiRouter.HandleFunc("/sessions/{sessionID}/answers", playHandler.SubmitAnswer).Methods("POST", "OPTIONS")

	router.HandleFunc("/ws/stories/{storyID:[0-9]+}", wsHub.Handler(storyRoom(storyService, cfg.JWTSecret)))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		zlog.Info("Server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}
	zlog.Info("Server shutdown gracefully")
}

func openStores(cfg *config.Config, zlog *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		zlog.Warn("Using in-memory stores; data is lost on restart")
		return &stores{
			scenes:   memstore.NewSceneStore(),
			sessions: memstore.NewSessionStore(),
			users:    memstore.NewUserStore(),
			close:    func() {},
		}, nil
	}

	db, err := database.NewPostgresDB(cfg.Database())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	zlog.Info("PostgreSQL connected", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))

	return &stores{
		scenes:   scene.NewRepository(db, zlog),
		sessions: play.NewRepository(db, zlog),
		users:    auth.NewRepository(db, zlog),
		close: func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		},
	}, nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// storyRoom lets a story's author watch its live play events. Browsers cannot
// set headers on websocket upgrades, so the token comes as a query parameter.
func storyRoom(stories *story.Service, jwtSecret string) websocket.RoomFunc {
	return func(r *http.Request) (string, error) {
		userID, err := auth.ParseToken(r.URL.Query().Get("token"), jwtSecret)
		if err != nil {
			return "", err
		}
		storyID, ok := httpx.UintVar(r, "storyID")
		if !ok {
			return "", errors.New("invalid story id")
		}
		if err := stories.Authorize(r.Context(), userID, storyID); err != nil {
			return "", err
		}
		return play.StoryRoom(storyID), nil
	}
}
