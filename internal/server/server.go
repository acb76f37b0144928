package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/smallbiznis/pricedesk/internal/account/domain"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/config"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	documentdomain "github.com/smallbiznis/pricedesk/internal/document/domain"
	"github.com/smallbiznis/pricedesk/internal/domains"
	"github.com/smallbiznis/pricedesk/internal/observability"
	obslogger "github.com/smallbiznis/pricedesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pricedesk/internal/observability/metrics"
	obstracing "github.com/smallbiznis/pricedesk/internal/observability/tracing"
	packagedomain "github.com/smallbiznis/pricedesk/internal/packages/domain"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	pricebookdomain "github.com/smallbiznis/pricedesk/internal/pricebook/domain"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/providers/identity"
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	"github.com/smallbiznis/pricedesk/internal/ratelimit"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	sfdomain "github.com/smallbiznis/pricedesk/internal/salesforce/domain"
	tenantdomain "github.com/smallbiznis/pricedesk/internal/tenant/domain"
	userdomain "github.com/smallbiznis/pricedesk/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	domains.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	verifier       identity.Verifier
	webhookLimiter *ratelimit.WebhookLimiter
	obsMetrics     *obsmetrics.Metrics

	tenantSvc     tenantdomain.Service
	userSvc       userdomain.Service
	rbacSvc       rbacdomain.Service
	auditSvc      auditdomain.Service
	accountSvc    accountdomain.Service
	productSvc    productdomain.Service
	planSvc       plandomain.Service
	packageSvc    packagedomain.Service
	pricingSvc    pricingdomain.Service
	priceBookSvc  pricebookdomain.Service
	quoteSvc      quotedomain.Service
	contractSvc   contractdomain.Service
	salesforceSvc sfdomain.Service
	documentSvc   documentdomain.Service
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Verifier       identity.Verifier
	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics       `optional:"true"`

	TenantSvc     tenantdomain.Service
	UserSvc       userdomain.Service
	RBACSvc       rbacdomain.Service
	AuditSvc      auditdomain.Service
	AccountSvc    accountdomain.Service
	ProductSvc    productdomain.Service
	PlanSvc       plandomain.Service
	PackageSvc    packagedomain.Service
	PricingSvc    pricingdomain.Service
	PriceBookSvc  pricebookdomain.Service
	QuoteSvc      quotedomain.Service
	ContractSvc   contractdomain.Service
	SalesforceSvc sfdomain.Service
	DocumentSvc   documentdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		verifier:       p.Verifier,
		webhookLimiter: p.WebhookLimiter,
		obsMetrics:     p.ObsMetrics,
		tenantSvc:      p.TenantSvc,
		userSvc:        p.UserSvc,
		rbacSvc:        p.RBACSvc,
		auditSvc:       p.AuditSvc,
		accountSvc:     p.AccountSvc,
		productSvc:     p.ProductSvc,
		planSvc:        p.PlanSvc,
		packageSvc:     p.PackageSvc,
		pricingSvc:     p.PricingSvc,
		priceBookSvc:   p.PriceBookSvc,
		quoteSvc:       p.QuoteSvc,
		contractSvc:    p.ContractSvc,
		salesforceSvc:  p.SalesforceSvc,
		documentSvc:    p.DocumentSvc,
	}

	s.registerPublicRoutes()
	s.registerAPIRoutes()
	s.registerFallback()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler serves the engine with trailing slashes stripped, so /api/quote
// and /api/quote/ reach the same route.
func (s *Server) Handler() http.Handler {
	return stripTrailingSlash(s.engine)
}

func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api")

	// Provider callbacks carry no bearer token; they are HMAC verified.
	api.POST("/contract/esign/webhook", s.WebhookRateLimit("esign"), s.HandleESignWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.Authenticate())

	// A signed-in identity without a tenant may only create one.
	api.POST("/tenant", s.CreateTenant)

	scoped := api.Group("", s.ResolveTenant())

	// -------- Tenant --------
	scoped.GET("/tenant", s.requireFeature(rbacdomain.FeatureTenant), s.GetTenant)
	scoped.PUT("/tenant", s.requireFeature(rbacdomain.FeatureTenant), s.UpdateTenant)

	// -------- Users --------
	scoped.GET("/user/me", s.Me)
	users := scoped.Group("/user", s.requireFeature(rbacdomain.FeatureUser))
	{
		users.GET("", s.ListUsers)
		users.POST("", s.InviteUser)
		users.GET("/:id", s.GetUser)
		users.PUT("/:id", s.UpdateUser)
		users.DELETE("/:id", s.DeleteUser)
		users.POST("/:id/sync", s.SyncUser)
	}

	// -------- RBAC --------
	scoped.GET("/rbac/me", s.MyPermissions)
	rbacGroup := scoped.Group("/rbac", s.requireFeature(rbacdomain.FeatureRBAC))
	{
		rbacGroup.GET("/features", s.ListRBACFeatures)
		rbacGroup.GET("/roles", s.ListRoles)
		rbacGroup.POST("/roles", s.CreateRole)
		rbacGroup.GET("/roles/:id", s.GetRole)
		rbacGroup.PUT("/roles/:id", s.UpdateRole)
		rbacGroup.DELETE("/roles/:id", s.DeleteRole)
		rbacGroup.PUT("/roles/:id/permissions", s.SetRolePermissions)
		rbacGroup.GET("/users/:id/permissions", s.GetUserPermissions)
		rbacGroup.PUT("/users/:id/permissions", s.SetUserPermissions)
		rbacGroup.POST("/users/:id/roles", s.AssignRole)
		rbacGroup.DELETE("/users/:id/roles/:role", s.RevokeRole)
	}

	// -------- Accounts & Opportunities --------
	opportunities := scoped.Group("/account/opportunities", s.requireFeature(rbacdomain.FeatureOpportunity))
	{
		opportunities.GET("", s.ListOpportunities)
		opportunities.POST("", s.CreateOpportunity)
		opportunities.GET("/:id", s.GetOpportunity)
		opportunities.PUT("/:id", s.UpdateOpportunity)
		opportunities.DELETE("/:id", s.DeleteOpportunity)
	}
	accounts := scoped.Group("/account", s.requireFeature(rbacdomain.FeatureAccount))
	{
		accounts.GET("", s.ListAccounts)
		accounts.POST("", s.CreateAccount)
		accounts.GET("/:id", s.GetAccount)
		accounts.PUT("/:id", s.UpdateAccount)
		accounts.DELETE("/:id", s.DeleteAccount)
	}

	// -------- Products & feature repository --------
	products := scoped.Group("/product", s.requireFeature(rbacdomain.FeatureProduct))
	{
		products.GET("", s.ListProducts)
		products.POST("", s.CreateProduct)
		products.GET("/groups", s.ListFeatureGroups)
		products.POST("/groups", s.CreateFeatureGroup)
		products.PUT("/groups/:id", s.UpdateFeatureGroup)
		products.DELETE("/groups/:id", s.DeleteFeatureGroup)
		products.GET("/features", s.ListFeatures)
		products.POST("/features", s.CreateFeature)
		products.GET("/features/:id", s.GetFeature)
		products.PUT("/features/:id", s.UpdateFeature)
		products.DELETE("/features/:id", s.DeleteFeature)
		products.GET("/:id", s.GetProduct)
		products.PUT("/:id", s.UpdateProduct)
		products.DELETE("/:id", s.DeleteProduct)
	}

	// -------- Plans & tiers --------
	plans := scoped.Group("/plan", s.requireFeature(rbacdomain.FeaturePlan))
	{
		plans.GET("", s.ListPlans)
		plans.POST("", s.CreatePlan)
		plans.GET("/tiers", s.ListTiers)
		plans.POST("/tiers", s.CreateTier)
		plans.GET("/tiers/:id", s.GetTier)
		plans.PUT("/tiers/:id", s.UpdateTier)
		plans.DELETE("/tiers/:id", s.DeleteTier)
		plans.GET("/:id", s.GetPlan)
		plans.PUT("/:id", s.UpdatePlan)
		plans.DELETE("/:id", s.DeletePlan)
	}

	// -------- Packages --------
	pkgs := scoped.Group("/package", s.requireFeature(rbacdomain.FeaturePackage))
	{
		pkgs.GET("", s.ListPackages)
		pkgs.POST("", s.CreatePackage)
		pkgs.PUT("/details/:id", s.UpdatePackageDetail)
		pkgs.GET("/:id", s.GetPackage)
		pkgs.PUT("/:id", s.UpdatePackage)
		pkgs.DELETE("/:id", s.DeletePackage)
	}

	// -------- Pricing --------
	pricingGroup := scoped.Group("/pricing", s.requireFeature(rbacdomain.FeaturePricing))
	{
		pricingGroup.POST("/calculate", s.CalculatePricing)
		pricingGroup.GET("/models", s.ListPricingModels)
		pricingGroup.POST("/models", s.CreatePricingModel)
		pricingGroup.GET("/models/:id", s.GetPricingModel)
		pricingGroup.PUT("/models/:id", s.UpdatePricingModel)
		pricingGroup.DELETE("/models/:id", s.DeletePricingModel)
		pricingGroup.GET("/structures", s.ListPricingStructures)
		pricingGroup.POST("/structures", s.CreatePricingStructure)
		pricingGroup.GET("/structures/:id", s.GetPricingStructure)
		pricingGroup.PUT("/structures/:id", s.UpdatePricingStructure)
		pricingGroup.DELETE("/structures/:id", s.DeletePricingStructure)
	}

	// -------- Price books --------
	books := scoped.Group("/pricebook", s.requireFeature(rbacdomain.FeaturePriceBook))
	{
		books.GET("", s.ListPriceBooks)
		books.POST("", s.CreatePriceBook)
		books.PUT("/entries/:id", s.UpdatePriceBookEntry)
		books.DELETE("/entries/:id", s.DeletePriceBookEntry)
		books.PUT("/rules/:id", s.UpdatePriceBookRule)
		books.DELETE("/rules/:id", s.DeletePriceBookRule)
		books.GET("/:id", s.GetPriceBook)
		books.PUT("/:id", s.UpdatePriceBook)
		books.DELETE("/:id", s.DeletePriceBook)
		books.GET("/:id/entries", s.ListPriceBookEntries)
		books.POST("/:id/entries", s.CreatePriceBookEntry)
		books.GET("/:id/rules", s.ListPriceBookRules)
		books.POST("/:id/rules", s.CreatePriceBookRule)
		books.GET("/:id/discount_policy", s.GetDiscountPolicy)
		books.PUT("/:id/discount_policy", s.SetDiscountPolicy)
	}

	// -------- Quotes --------
	quotes := scoped.Group("/quote", s.requireFeature(rbacdomain.FeatureQuote))
	{
		quotes.GET("", s.ListQuotes)
		quotes.POST("", s.CreateQuote)
		quotes.GET("/:id", s.GetQuote)
		quotes.PUT("/:id", s.UpdateQuote)
		quotes.DELETE("/:id", s.DeleteQuote)
		quotes.GET("/:id/status", s.GetQuoteStatus)
		quotes.GET("/:id/comments", s.ListQuoteComments)
		quotes.POST("/:id/comments", s.AddQuoteComment)
		quotes.POST("/:id/forward", s.ForwardQuote)
		quotes.POST("/:id/escalate", s.EscalateQuote)
		quotes.POST("/:id/approval", s.ApproveQuote)
		quotes.POST("/:id/cancel", s.CancelQuote)
		quotes.POST("/:id/resend", s.ResendQuote)
		quotes.POST("/:id/reopen", s.requireFeature(rbacdomain.FeatureQuoteAdmin), s.ReopenQuote)
	}

	// -------- Contracts & e-sign --------
	contracts := scoped.Group("/contract", s.requireFeature(rbacdomain.FeatureContract))
	{
		contracts.GET("", s.ListContracts)
		contracts.POST("", s.CreateContract)
		contracts.POST("/signatures/expire", s.ExpireSignatures)
		contracts.GET("/:id", s.GetContract)
		contracts.PUT("/:id", s.UpdateContract)
		contracts.DELETE("/:id", s.DeleteContract)
		contracts.GET("/:id/signature", s.GetSignature)
		contracts.POST("/:id/signature", s.CreateSignature)
		contracts.POST("/:id/signature/cancel", s.CancelSignature)
		contracts.POST("/:id/signature/remind", s.RemindSigner)
		contracts.POST("/:id/signature/replay", s.ReplaySignature)
		contracts.GET("/:id/events", s.ListSignatureEvents)
	}

	// -------- Salesforce --------
	sf := scoped.Group("/salesforce", s.requireFeature(rbacdomain.FeatureSalesforce))
	{
		sf.GET("/credentials", s.GetSalesforceCredentials)
		sf.PUT("/credentials", s.PutSalesforceCredentials)
		sf.GET("/mappings", s.ListSalesforceMappings)
		sf.POST("/mappings", s.CreateSalesforceMapping)
		sf.PUT("/mappings/:id", s.UpdateSalesforceMapping)
		sf.DELETE("/mappings/:id", s.DeleteSalesforceMapping)
		sf.POST("/sync", s.SyncSalesforce)
		sf.GET("/sync_logs", s.ListSalesforceSyncLogs)
		sf.GET("/sync_logs/:id", s.GetSalesforceSyncLog)
	}

	// -------- Documents --------
	scoped.GET("/document/quote/:id", s.requireFeature(rbacdomain.FeatureDocument), s.GetQuoteDocument)

	// -------- Audit logs --------
	scoped.GET("/audit_logs", s.requireFeature(rbacdomain.FeatureAuditLog), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
