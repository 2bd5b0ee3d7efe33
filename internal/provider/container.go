package provider

import (
	"context"
	"time"

	"github.com/mall-next/internal/authz"
	"github.com/mall-next/internal/cache"
	"github.com/mall-next/internal/config"
	"github.com/mall-next/internal/logger"
	"github.com/mall-next/internal/metrics"
	"github.com/mall-next/internal/models"
	"github.com/mall-next/internal/payment"
	"github.com/mall-next/internal/payment/wechatpay"
	"github.com/mall-next/internal/queue"
	"github.com/mall-next/internal/repository"
	"github.com/mall-next/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Registry    *prometheus.Registry
	Metrics     *metrics.OrderMetrics

	// Repositories
	AdminRepo      repository.AdminRepository
	UserRepo       repository.UserRepository
	OrderRepo      repository.OrderRepository
	ProductRepo    repository.ProductRepository
	CartRepo       repository.CartRepository
	AddressRepo    repository.AddressRepository
	CommissionRepo repository.CommissionRepository
	AuthzAuditRepo repository.AuthzAuditLogRepository

	// Services
	AuthzService      *authz.Service
	AuthService       *service.AuthService
	UserAuthService   *service.UserAuthService
	CartService       *service.CartService
	CommissionService *service.CommissionService
	OrderService      *service.OrderService
	PaymentService    *service.PaymentService
}

// NewContainer 初始化容器，models.DB 需已初始化
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存，失败时降级为无缓存运行
	if err := cache.InitRedis(context.Background(), &cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient = nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Registry:    registry,
		Metrics:     metrics.NewOrderMetrics(registry),
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.UserRepo = repository.NewUserRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.ProductRepo = repository.NewProductRepository(db)
	c.CartRepo = repository.NewCartRepository(db)
	c.AddressRepo = repository.NewAddressRepository(db)
	c.CommissionRepo = repository.NewCommissionRepository(db)
	c.AuthzAuditRepo = repository.NewAuthzAuditLogRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	rate, err := c.Config.Commission.RateDecimal()
	if err != nil {
		logger.Errorw("provider_commission_rate_invalid", "rate", c.Config.Commission.Rate, "error", err)
		panic(err)
	}
	statsTTL := time.Duration(c.Config.Commission.StatsTTL) * time.Second

	gateway := c.buildPaymentGateway()

	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.UserAuthService = service.NewUserAuthService(c.Config, c.UserRepo)
	c.CartService = service.NewCartService(c.CartRepo, c.ProductRepo, c.UserRepo)
	c.CommissionService = service.NewCommissionService(c.CommissionRepo, c.UserRepo, rate, statsTTL, c.Metrics)
	c.OrderService = service.NewOrderService(
		c.OrderRepo,
		c.ProductRepo,
		c.UserRepo,
		c.CartRepo,
		c.AddressRepo,
		c.CommissionService,
		gateway,
		c.QueueClient,
		c.Metrics,
		c.Config.Order,
	)
	c.PaymentService = service.NewPaymentService(c.OrderRepo, c.UserRepo, gateway, gateway, c.OrderService)
}

// paymentGateway 下单、退款与回调解码三种能力
type paymentGateway interface {
	service.PaymentGateway
	service.NotifyDecoder
}

// buildPaymentGateway 微信支付未启用或配置非法时返回 Disabled，下单接口将返回网关不可用
func (c *Container) buildPaymentGateway() paymentGateway {
	if !c.Config.WechatPay.Enabled {
		logger.Infow("provider_wechatpay_disabled")
		return payment.Disabled{}
	}
	client, err := wechatpay.New(wechatpay.ConfigFrom(c.Config.WechatPay))
	if err != nil {
		logger.Errorw("provider_init_wechatpay_failed", "error", err)
		return payment.Disabled{}
	}
	return client
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
