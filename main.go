package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/collabform/collabform/handlers"
	"github.com/collabform/collabform/internal/config"
	"github.com/collabform/collabform/internal/database"
	"github.com/collabform/collabform/internal/form"
	"github.com/collabform/collabform/internal/gateway"
	"github.com/collabform/collabform/internal/presence"
	"github.com/collabform/collabform/internal/response/handler"
	"github.com/collabform/collabform/internal/response/repository"
	"github.com/collabform/collabform/internal/response/service"
	"github.com/collabform/collabform/internal/tokens"
	"github.com/collabform/collabform/internal/users"
	"github.com/collabform/collabform/pkg/logger"
	"github.com/collabform/collabform/pkg/metrics"
	"github.com/collabform/collabform/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v jwt_secret_set=%v", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.JWT.Secret != "")

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple; production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-User-Id")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Global middlewares: logging + recovery
	r.Use(gin.Logger(), gin.Recovery())

	// Connect to Redis early so the rate-limiter can use it when configured
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Optional global rate limiter (per-user when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// shared runtime vars used by readiness
	var respSvc *service.Service
	var mongoClient *mongo.Client

	// Basic health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint: return 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		deps["storage"] = respSvc != nil
		if respSvc == nil {
			ready = false
		}
		if cfg.Redis.Host != "" && cfg.RateLimit.UseRedis {
			deps["redis"] = redisClient != nil
			if redisClient == nil {
				ready = false
			}
		} else {
			deps["redis"] = true
		}

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": time.Since(startTime).String()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": time.Since(startTime).String()})
	})

	// Connect to MongoDB with retry/backoff to tolerate startup races
	ctx := context.Background()
	var formDefs form.Definitions
	var identities service.IdentityResolver
	if cfg.MongoDB.URI != "" {
		const maxAttempts = 5
		backoff := time.Second
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			mongoClient, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
		} else {
			defer func() { _ = mongoClient.Disconnect(ctx) }()
			db := mongoClient.Database(cfg.MongoDB.Database)
			formDefs = form.NewMongoDefinitions(db.Collection("forms"))
			userSvc := users.NewService(users.NewMongoRepository(db.Collection("users")))
			identities = userSvc
			respSvc = service.NewService(repository.NewMongoRepo(db.Collection("responses")), formDefs, identities)
		}
	}

	if respSvc == nil {
		// in-memory fallback keeps local development working without Mongo
		logger.Warnf("MongoDB unavailable; using in-memory response store (non-durable)")
		mem := form.NewMemoryDefinitions()
		formDefs = mem
		respSvc = service.NewService(repository.NewMemoryRepo(), formDefs, nil)
	}

	// Identity: validate bearer tokens minted by the auth service when
	// a shared secret is configured; otherwise dev identity headers.
	var verifier middleware.Verifier
	var authMW []gin.HandlerFunc
	if cfg.JWT.Secret != "" {
		verifier = tokens.NewHMACVerifier(cfg.JWT.Secret)
		authMW = append(authMW, middleware.AuthMiddleware(verifier))
	} else {
		logger.Warnf("JWT_SECRET unset; durable-write surface trusts X-User-Id headers (development only)")
	}

	// Durable-write surface
	handler.NewHandler(respSvc).Register(r, authMW...)
	form.RegisterRoutes(r, formDefs, authMW...)
	handlers.RegisterSwagger(r)

	// Realtime gateway: presence + room broadcaster + session state machine
	gw := gateway.New(respSvc, presence.NewRegistry())
	defer gw.Close()
	gateway.NewWSHandler(gw, verifier, cfg.Realtime.SendBuffer, cfg.Realtime.MaxMessageSize).Register(r)

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting collabform service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
