package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luantaraschi/petichat-definitive/logger"
	"github.com/luantaraschi/petichat-definitive/metrics"
	"github.com/luantaraschi/petichat-definitive/service"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// RouterConfig carries the handlers mounted by NewRouter. Nil handlers
// leave their routes out.
type RouterConfig struct {
	Logger         *logger.Logger
	AllowedOrigins []string
	Auth           *service.AuthService
	HealthChecks   map[string]HealthCheck

	AuthHandler          *AuthHandler
	CaseHandler          *CaseHandler
	DocumentHandler      *DocumentHandler
	FileHandler          *FileHandler
	JurisprudenceHandler *JurisprudenceHandler
	EditorHandler        *EditorHandler
	WizardHandler        *WizardHandler
	AIHandler            *AIHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log.With("component", "http")), Metrics(), CORS(cfg.AllowedOrigins))

	r.GET("/health", health(cfg.HealthChecks))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	if h := cfg.AuthHandler; h != nil {
		api.POST("/auth/signup", h.Signup)
		api.POST("/auth/login", h.Login)
	}

	protected := api.Group("")
	protected.Use(RequireAuth(cfg.Auth))

	if h := cfg.AuthHandler; h != nil {
		protected.GET("/auth/me", h.Me)
	}

	if h := cfg.CaseHandler; h != nil {
		protected.POST("/cases", h.CreateCase)
		protected.GET("/cases", h.ListCases)
		protected.GET("/cases/:id", h.GetCase)
		protected.PATCH("/cases/:id", h.UpdateCase)
		protected.DELETE("/cases/:id", h.DeleteCase)

		protected.GET("/cases/:id/theses", h.ListTheses)
		protected.POST("/cases/:id/theses", h.CreateThesis)
		protected.POST("/cases/:id/theses/suggest", h.SuggestTheses)
		protected.PUT("/cases/:id/theses/selection", h.SelectTheses)
		protected.PATCH("/cases/:id/theses/:thesisId/review", h.ReviewThesis)

		protected.GET("/cases/:id/citations", h.ListCitations)
		protected.POST("/cases/:id/citations", h.AddCitation)

		protected.POST("/cases/:id/generate", h.GenerateDraft)
		protected.GET("/jobs/:id", h.GetJobStatus)
	}

	if h := cfg.DocumentHandler; h != nil {
		protected.POST("/documents", h.CreateDocument)
		protected.GET("/documents", h.ListDocuments)
		protected.GET("/documents/:id", h.GetDocument)
		protected.PATCH("/documents/:id", h.UpdateDocument)
		protected.DELETE("/documents/:id", h.DeleteDocument)
		protected.GET("/documents/:id/versions", h.ListVersions)
		protected.POST("/documents/:id/versions", h.CreateVersion)
		protected.POST("/documents/:id/export", h.ExportDocument)
	}

	if h := cfg.FileHandler; h != nil {
		protected.GET("/documents/:id/files", h.ListDocumentFiles)
		protected.GET("/files/*path", h.GetFile)
	}

	if h := cfg.JurisprudenceHandler; h != nil {
		protected.GET("/jurisprudence", h.Search)
		protected.GET("/jurisprudence/similar", h.Similar)
		protected.GET("/jurisprudence/tribunals", h.Tribunals)
		protected.GET("/jurisprudence/:id", h.Get)
		protected.POST("/jurisprudence/ingest", h.Ingest)
	}

	if h := cfg.AIHandler; h != nil {
		protected.POST("/ai/rewrite", h.Rewrite)
	}

	if h := cfg.EditorHandler; h != nil {
		protected.GET("/editor/actions", h.ActionKinds)
		protected.POST("/editor/inline-action", h.InlineAction)
		protected.POST("/editor/apply", h.ApplyAction)
		protected.DELETE("/editor/actions/:actionId", h.DiscardAction)

		protected.POST("/editor/sessions", h.OpenSession)
		protected.GET("/editor/sessions/:sessionId", h.GetSession)
		protected.DELETE("/editor/sessions/:sessionId", h.CloseSession)
		protected.POST("/editor/sessions/:sessionId/edits", h.Edit)
		protected.POST("/editor/sessions/:sessionId/save", h.SaveSession)
		protected.POST("/editor/sessions/:sessionId/actions", h.RequestAction)
		protected.POST("/editor/sessions/:sessionId/actions/:actionId/apply", h.ApplySessionAction)
		protected.DELETE("/editor/sessions/:sessionId/actions/:actionId", h.DiscardSessionAction)
	}

	if h := cfg.WizardHandler; h != nil {
		protected.POST("/wizard/sessions", h.Start)
		protected.GET("/wizard/sessions/:sessionId", h.State)
		protected.DELETE("/wizard/sessions/:sessionId", h.End)
		protected.POST("/wizard/sessions/:sessionId/facts", h.SubmitFacts)
		protected.POST("/wizard/sessions/:sessionId/advance", h.Advance)
		protected.POST("/wizard/sessions/:sessionId/retreat", h.Retreat)
		protected.POST("/wizard/sessions/:sessionId/reset", h.Reset)
		protected.POST("/wizard/sessions/:sessionId/theses/refresh", h.RefreshTheses)
		protected.POST("/wizard/sessions/:sessionId/theses/:thesisId/toggle", h.ToggleThesis)
		protected.POST("/wizard/sessions/:sessionId/jurisprudence/search", h.SearchJurisprudence)
		protected.POST("/wizard/sessions/:sessionId/jurisprudence/:jurisprudenceId/toggle", h.ToggleJurisprudence)
		protected.PUT("/wizard/sessions/:sessionId/content", h.SetContent)
		protected.POST("/wizard/sessions/:sessionId/save", h.Save)
	}

	return r
}

// health answers 200 when every check passes and 503 otherwise
func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "checks": results})
	}
}
