package http

import (
	"github.com/gin-gonic/gin"
	"github.com/securepay/wallet-ledger/internal/config"
	"github.com/securepay/wallet-ledger/internal/service"
	"go.uber.org/zap"
)

func NewRouter(svc *service.LedgerService, rec *service.Reconciler, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, svc, rec)
	return r
}
