package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/fakeacquirer/internal/config"
	"github.com/smallbiznis/fakeacquirer/internal/invoice"
	invoicedomain "github.com/smallbiznis/fakeacquirer/internal/invoice/domain"
	"github.com/smallbiznis/fakeacquirer/internal/observability"
	obslogger "github.com/smallbiznis/fakeacquirer/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/fakeacquirer/internal/observability/metrics"
	obstracing "github.com/smallbiznis/fakeacquirer/internal/observability/tracing"
	"github.com/smallbiznis/fakeacquirer/internal/ratelimit"
	"github.com/smallbiznis/fakeacquirer/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	invoice.Module,
	webhook.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	ObsConfig   observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
	Gatherer    prometheus.Gatherer     `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	registerJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type", "Idempotency-Key", obslogger.RequestIDHeader},
		ExposeHeaders:   []string{obslogger.RequestIDHeader, "Retry-After"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           p.ObsConfig.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(p.HTTPMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

var fieldNamesOnce sync.Once

// registerJSONFieldNames makes binding errors report json field names.
func registerJSONFieldNames() {
	fieldNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	invoiceSvc invoicedomain.Service
	deliveries *webhook.DeliveryStore
	limiter    *ratelimit.InvoiceCreateLimiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	InvoiceSvc invoicedomain.Service
	Deliveries *webhook.DeliveryStore
	Limiter    *ratelimit.InvoiceCreateLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		invoiceSvc: p.InvoiceSvc,
		deliveries: p.Deliveries,
		limiter:    p.Limiter,
	}

	svc.registerInvoiceRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerInvoiceRoutes() {
	s.engine.POST("/invoices", s.InvoiceCreateRateLimit(), s.CreateInvoice)
	s.engine.GET("/invoices/:id", s.GetInvoiceByID)
	s.engine.GET("/invoices/:id/delivery", s.GetInvoiceDelivery)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: "route not found"})
	})
}
