package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	httpapi "github.com/mauripsale/infographic-agent-pro/internal/api/http"
	"github.com/mauripsale/infographic-agent-pro/internal/api/http/middleware"
	"github.com/mauripsale/infographic-agent-pro/internal/auth"
	authmw "github.com/mauripsale/infographic-agent-pro/internal/auth/middleware"
	infohttp "github.com/mauripsale/infographic-agent-pro/internal/infographic/http"
)

type RouterDeps struct {
	ServiceName    string
	Version        string
	AllowedOrigins []string
	DB             *pgxpool.Pool
	Redis          *redis.Client
	// Verifier is nil in header auth mode.
	Verifier  authmw.TokenVerifier
	Infograph *infohttp.Handler
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     dep.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-Key", "X-User-Id", "X-Google-Access-Token", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RequestIDMiddleware())

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.DB, dep.Redis)
	healthHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")
	if dep.Verifier != nil {
		api.Use(authmw.FirebaseAuthMiddleware(dep.Verifier))
	} else {
		api.Use(auth.HeaderUser())
	}

	dep.Infograph.Register(api)

	return r
}
