package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/authbridge/internal/metrics"
	"github.com/hitoshi/authbridge/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenIntrospector middleware.TokenIntrospector
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	AuthService  AuthServiceInterface
	ExchangeCode ExchangeCodeStore
	AuthConfig   AuthHandlerConfig

	// プロフィール
	ProfileService ProfileServiceInterface

	// アップロード
	UploadService UploadServiceInterface

	// メトリクス
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	// ヘルスチェック
	HealthCheck func() error
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → (認証ルートはRateLimit(Auth)) /
//	(保護ルートはAuth → RateLimit(General))
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.ExchangeCode, deps.Metrics, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.Metrics)
	uploadHandler := NewUploadHandler(deps.UploadService)

	// --- 運用エンドポイント ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証不要のルート ---
	// ブルートフォース対策としてIP単位のレート制限を適用
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/api/auth/register", authHandler.Register)
		r.Post("/api/auth/login", authHandler.Login)
		r.Post("/api/auth/google-signin", authHandler.GoogleSignIn)
		r.Get("/api/auth/oauth/{provider}", authHandler.OAuthStart)
		r.Get("/api/auth/callback", authHandler.Callback)
		r.Post("/api/auth/exchange", authHandler.Exchange)
	})

	// ログアウトはトークンがあればプロバイダー失効も行うが、認証必須にはしない
	// （期限切れトークンでもCookieは破棄できる必要がある）
	r.Post("/api/auth/logout", authHandler.Logout)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenIntrospector))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Get)
			r.Put("/", profileHandler.Update)
		})

		r.Post("/api/upload/document", uploadHandler.Document)
		r.Post("/api/upload/scan", uploadHandler.Scan)
	})

	return r
}
