package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/taskhub/internal/audit"
	auditdomain "github.com/smallbiznis/taskhub/internal/audit/domain"
	"github.com/smallbiznis/taskhub/internal/auth"
	authconfig "github.com/smallbiznis/taskhub/internal/auth/config"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	authlocal "github.com/smallbiznis/taskhub/internal/auth/local"
	authoauth "github.com/smallbiznis/taskhub/internal/auth/oauth"
	"github.com/smallbiznis/taskhub/internal/auth/session"
	"github.com/smallbiznis/taskhub/internal/authorization"
	"github.com/smallbiznis/taskhub/internal/cloudmetrics"
	"github.com/smallbiznis/taskhub/internal/config"
	"github.com/smallbiznis/taskhub/internal/invitation"
	invitationdomain "github.com/smallbiznis/taskhub/internal/invitation/domain"
	"github.com/smallbiznis/taskhub/internal/membership"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	"github.com/smallbiznis/taskhub/internal/observability"
	obslogger "github.com/smallbiznis/taskhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/taskhub/internal/observability/metrics"
	obstracing "github.com/smallbiznis/taskhub/internal/observability/tracing"
	"github.com/smallbiznis/taskhub/internal/organization"
	organizationdomain "github.com/smallbiznis/taskhub/internal/organization/domain"
	"github.com/smallbiznis/taskhub/internal/orgcontext"
	"github.com/smallbiznis/taskhub/internal/outbox"
	"github.com/smallbiznis/taskhub/internal/providers"
	"github.com/smallbiznis/taskhub/internal/ratelimit"
	"github.com/smallbiznis/taskhub/internal/task"
	taskdomain "github.com/smallbiznis/taskhub/internal/task/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	cloudmetrics.Module,
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	outbox.Module,
	auth.Module,
	session.Module,
	authlocal.Module,
	membership.Module,
	organization.Module,
	orgcontext.Module,
	providers.Module,
	ratelimit.Module,
	invitation.Module,
	task.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, sessions *session.Manager) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(sessions.Memoize())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, sessions *session.Manager) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, sessions)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine          *gin.Engine
	cfg             config.Config
	policy          *config.PolicyHolder
	log             *zap.Logger
	authsvc         authdomain.Service
	oauthsvc        authoauth.Service
	providers       authconfig.AuthProviderRegistry
	sessions        *session.Manager
	resolver        *orgcontext.Resolver
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	organizationSvc organizationdomain.Service
	membershipSvc   membershipdomain.Service
	invitationSvc   invitationdomain.Service
	taskSvc         taskdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Policy          *config.PolicyHolder
	Log             *zap.Logger
	Authsvc         authdomain.Service
	OAuthsvc        authoauth.Service
	Providers       authconfig.AuthProviderRegistry
	Sessions        *session.Manager
	Resolver        *orgcontext.Resolver
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	OrganizationSvc organizationdomain.Service
	MembershipSvc   membershipdomain.Service
	InvitationSvc   invitationdomain.Service
	TaskSvc         taskdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		policy:          p.Policy,
		log:             p.Log.Named("http.server"),
		authsvc:         p.Authsvc,
		oauthsvc:        p.OAuthsvc,
		providers:       p.Providers,
		sessions:        p.Sessions,
		resolver:        p.Resolver,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		organizationSvc: p.OrganizationSvc,
		membershipSvc:   p.MembershipSvc,
		invitationSvc:   p.InvitationSvc,
		taskSvc:         p.TaskSvc,
	}
	s.registerAuthRoutes()
	s.registerPageRoutes()
	s.registerAPIRoutes()
	return s
}

func (s *Server) registerAuthRoutes() {
	s.engine.GET("/login/:name", s.OAuthLogin)

	group := s.engine.Group("/auth")
	group.GET("/providers", s.AuthProviders)
	group.POST("/sign-in/social", s.SignInSocial)
	group.POST("/sign-out", s.SignOut)
	group.GET("/session", s.requireSession(), s.GetSession)
	group.GET("/organizations", s.requireSession(), s.ListUserOrganizations)
	group.POST("/organizations/:orgId/use", s.requireSession(), s.UseOrganization)
}

func (s *Server) registerPageRoutes() {
	app := s.engine.Group("/app")
	app.GET("/tasks", s.resolver.Middleware(s.sessions, orgcontext.PathTasks), s.TasksPage)
	app.GET("/members", s.resolver.Middleware(s.sessions, "/members"), s.MembersPage)
	app.GET("/organizations/new", s.requirePageSession(), s.NewOrganizationPage)
	app.GET("/accept-invitation/:id", s.requirePageSession(), s.AcceptInvitationPage)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/organizations", s.requireSession(), s.CreateOrganization)
	api.GET("/organizations/slug-check", s.requireSession(), s.CheckOrganizationSlug)

	api.GET("/tasks", s.orgAction(authorization.ObjectTask, authorization.ActionTaskView), s.ListTasks)
	api.POST("/tasks", s.orgAction(authorization.ObjectTask, authorization.ActionTaskCreate), s.CreateTask)
	api.GET("/tasks/export.pdf", s.orgAction(authorization.ObjectTask, authorization.ActionTaskExport), s.ExportTasks)
	api.PATCH("/tasks/:id", s.orgAction(authorization.ObjectTask, authorization.ActionTaskUpdate), s.UpdateTask)
	api.POST("/tasks/:id/toggle", s.orgAction(authorization.ObjectTask, authorization.ActionTaskToggle), s.ToggleTask)
	api.DELETE("/tasks/:id", s.orgAction(authorization.ObjectTask, authorization.ActionTaskDelete), s.DeleteTask)

	api.GET("/members", s.orgAction(authorization.ObjectMember, authorization.ActionMemberView), s.ListMembers)
	api.DELETE("/members/:id", s.orgAction(authorization.ObjectMember, authorization.ActionMemberRemove), s.RemoveMember)

	api.GET("/invitations", s.orgAction(authorization.ObjectInvitation, authorization.ActionInvitationView), s.ListInvitations)
	api.POST("/invitations", s.orgAction(authorization.ObjectInvitation, authorization.ActionInvitationCreate), s.CreateInvitation)
	api.POST("/invitations/:id/cancel", s.orgAction(authorization.ObjectInvitation, authorization.ActionInvitationCancel), s.CancelInvitation)
	api.POST("/invitations/:id/resend", s.orgAction(authorization.ObjectInvitation, authorization.ActionInvitationResend), s.ResendInvitation)
	api.POST("/invitations/:id/accept", s.requireSession(), s.AcceptInvitation)
	api.POST("/invitations/:id/decline", s.requireSession(), s.DeclineInvitation)

	api.GET("/audit-logs", s.orgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
