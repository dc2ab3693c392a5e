package http

import (
	"context"
	"errors"
	"fmt"
	gohttp "net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/zap-engine/internal/common"
	"github.com/hxuan190/zap-engine/internal/config"
	"github.com/hxuan190/zap-engine/internal/http/httputil"
	"github.com/hxuan190/zap-engine/internal/http/middlewares"
	"github.com/hxuan190/zap-engine/internal/services/market"
	"github.com/hxuan190/zap-engine/internal/services/zap"
)

const (
	API_VERSION  = "v1"
	HTTP_SERVICE = "http-service"

	signatureSkew = 5 * time.Minute
)

type HTTPService struct {
	container.BaseDIInstance

	zapSvc      *zap.Service
	marketSvc   *market.Service
	rateLimiter *middlewares.RateLimiter
	verifier    *middlewares.SignatureVerifier
	server      *gohttp.Server
	conf        *config.GeneralConfig
	done        chan struct{}

	handlers []httputil.IHttpHandler
}

func (svc *HTTPService) ID() string {
	return HTTP_SERVICE
}

// NewRouter builds the gin engine serving zapSvc and marketSvc.
func NewRouter(zapSvc *zap.Service, marketSvc *market.Service, limiter *middlewares.RateLimiter) *gin.Engine {
	svc := &HTTPService{
		zapSvc:      zapSvc,
		marketSvc:   marketSvc,
		rateLimiter: limiter,
		verifier:    middlewares.NewSignatureVerifier(signatureSkew),
	}
	svc.handlers = svc.defaultHandlers()
	return svc.router()
}

func (svc *HTTPService) defaultHandlers() []httputil.IHttpHandler {
	return []httputil.IHttpHandler{
		NewPoolHandler(svc.marketSvc),
		NewQuoteHandler(svc.zapSvc),
		NewZapHandler(svc.zapSvc, svc.verifier),
		NewBalanceHandler(svc.zapSvc),
	}
}

func (svc *HTTPService) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AddAllowHeaders("Authorization", common.OperatorHeader, common.TimestampHeader, common.SignatureHeader)
	r.Use(cors.New(corsConf))

	r.Use(middlewares.MetricsMiddleware())
	if svc.rateLimiter != nil {
		r.Use(svc.rateLimiter.RateLimitMiddleware())
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(gohttp.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("api")
	pub := api.Group(API_VERSION)
	priv := api.Group(API_VERSION)

	admin := api.Group(fmt.Sprintf("%s/admin", API_VERSION), middlewares.OperatorCaller(svc.verifier))

	svc.setupHandlers(pub, priv, admin)
	return r
}

func (svc *HTTPService) Start() error {
	if svc.conf.Env != config.DevEnv {
		gin.SetMode(gin.ReleaseMode)
	}
	svc.server = &gohttp.Server{
		Addr:              svc.conf.HTTPHost + ":" + svc.conf.HTTPPort,
		Handler:           svc.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	svc.done = make(chan struct{})
	go svc.prune(svc.done)
	log.Info().Str("host", svc.conf.HTTPHost).Str("port", svc.conf.HTTPPort).Msg("http server started")

	if err := svc.server.ListenAndServe(); err != nil && err != gohttp.ErrServerClosed {
		return err
	}

	return nil
}

func (svc *HTTPService) Configure(c container.IContainer) error {
	conf, ok := c.GetConfig(config.GENERAL_CONFIG_KEY).(*config.GeneralConfig)
	if !ok || conf == nil {
		return errors.New("invalid server config")
	}
	svc.conf = conf

	if svc.zapSvc, ok = c.Instance(zap.ZAP_SERVICE).(*zap.Service); !ok {
		return errors.New("http service requires the zap service")
	}
	if svc.marketSvc, ok = c.Instance(market.ServiceName).(*market.Service); !ok {
		return errors.New("http service requires the market service")
	}
	svc.rateLimiter = middlewares.NewRateLimiter(10, 20)
	svc.verifier = middlewares.NewSignatureVerifier(signatureSkew)
	svc.handlers = svc.defaultHandlers()
	return nil
}

func (svc *HTTPService) Stop() error {
	if svc.server == nil {
		return nil
	}
	close(svc.done)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := svc.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
		return err
	}
	log.Info().Msg("http server stopped gracefully")
	return nil
}

func (svc *HTTPService) prune(done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			svc.rateLimiter.Prune()
			svc.verifier.Prune()
		}
	}
}

func (svc *HTTPService) setupHandlers(
	rootPub *gin.RouterGroup,
	rootPriv *gin.RouterGroup,
	rootAdmin *gin.RouterGroup,
) {
	for _, h := range svc.handlers {
		pub := rootPub.Group(h.Root())
		priv := rootPriv.Group(h.Root())
		admin := rootAdmin.Group(h.Root())
		h.SetRoutes(pub, priv, admin)
	}
}
