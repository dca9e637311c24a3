package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bookingdomain "github.com/kormohq/kormo/internal/booking/domain"
	commissiondomain "github.com/kormohq/kormo/internal/commission/domain"
	"github.com/kormohq/kormo/internal/config"
	obslogger "github.com/kormohq/kormo/internal/observability/logger"
	obstracing "github.com/kormohq/kormo/internal/observability/tracing"
	paymentdomain "github.com/kormohq/kormo/internal/payment/domain"
	payoutdomain "github.com/kormohq/kormo/internal/payout/domain"
	"github.com/kormohq/kormo/internal/ratelimit"
	settlementdomain "github.com/kormohq/kormo/internal/settlement/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	bookingSvc     bookingdomain.Service
	paymentSvc     paymentdomain.Service
	settlementSvc  settlementdomain.Service
	payoutSvc      payoutdomain.Service
	commissionSvc  commissiondomain.Service
	webhookLimiter *ratelimit.WebhookLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	BookingSvc     bookingdomain.Service
	PaymentSvc     paymentdomain.Service
	SettlementSvc  settlementdomain.Service
	PayoutSvc      payoutdomain.Service
	CommissionSvc  commissiondomain.Service
	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		log:            p.Log.Named("http.server"),
		genID:          p.GenID,
		bookingSvc:     p.BookingSvc,
		paymentSvc:     p.PaymentSvc,
		settlementSvc:  p.SettlementSvc,
		payoutSvc:      p.PayoutSvc,
		commissionSvc:  p.CommissionSvc,
		webhookLimiter: p.WebhookLimiter,
	}
}

func registerRoutes(s *Server) {
	s.registerAPIRoutes()
	s.registerWebhookRoutes()
	s.registerAdminRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Bookings --------
	api.POST("/bookings", s.CreateBooking)
	api.GET("/bookings", s.ListBookings)
	api.GET("/bookings/:id", s.GetBooking)
	api.GET("/bookings/:id/events", s.GetBookingEvents)
	api.POST("/bookings/:id/accept", s.ActorRequired(), s.AcceptBooking)
	api.POST("/bookings/:id/reject", s.ActorRequired(), s.RejectBooking)
	api.POST("/bookings/:id/check-in", s.ActorRequired(), s.CheckInBooking)
	api.POST("/bookings/:id/check-out", s.ActorRequired(), s.CheckOutBooking)
	api.POST("/bookings/:id/complete", s.ActorRequired(), s.CompleteBooking)
	api.POST("/bookings/:id/cancel", s.ActorRequired(), s.CancelBooking)

	// -------- Payments --------
	api.POST("/payments/intent", s.CreatePaymentIntent)
	api.POST("/payments/:id/capture", s.CapturePayment)
	api.POST("/payments/:id/refund", s.ActorRequired(), s.RefundPayment)
	api.GET("/payments/:id", s.GetPayment)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.WebhookRateLimit(), s.HandleGatewayWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	// -------- Settlements --------
	admin.GET("/settlements/days/:date", s.GetSettlementDay)
	admin.POST("/settlements/days/:date/process", s.ProcessSettlementDay)
	admin.POST("/settlements/backfill", s.BackfillSettlements)
	admin.GET("/settlements/bookings/:bookingId", s.GetBookingSettlement)
	admin.POST("/settlements/:id/mark-paid", s.MarkSettlementPaid)
	admin.GET("/professionals/:id/balance", s.GetProfessionalBalance)

	// -------- Payouts --------
	admin.POST("/payouts/generate", s.GeneratePayouts)
	admin.GET("/payouts/:id", s.GetPayout)
	admin.POST("/payouts/:id/mark-paid", s.MarkPayoutPaid)
	admin.GET("/payouts/:id/statement", s.DownloadPayoutStatement)
	admin.GET("/professionals/:id/payouts", s.ListProfessionalPayouts)

	// -------- Commission --------
	admin.PUT("/commission-settings", s.UpsertCommissionSetting)
	admin.GET("/commission/preview", s.PreviewCommission)
}
