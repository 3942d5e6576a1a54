package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"legal-doc-intelligence/internal/auth"
	"legal-doc-intelligence/internal/blobstore"
	"legal-doc-intelligence/internal/config"
	"legal-doc-intelligence/internal/ledger"
	"legal-doc-intelligence/internal/realtime"
	"legal-doc-intelligence/internal/store"
	"legal-doc-intelligence/middleware"
	"legal-doc-intelligence/models"
)

// Register wires every HTTP/WS handler onto r. Handler groups never
// depend on each other; each is a thin translation from HTTP to calls
// on the store, ledger, blob store, task queue, Redis or realtime
// dependencies it is constructed with.
func Register(
	r *gin.Engine,
	st *store.Store,
	lg *ledger.Ledger,
	blobs *blobstore.Store,
	queueClient *asynq.Client,
	rdb *redis.Client,
	authorizer auth.Authorizer,
	wsManager *realtime.Manager,
	cfg *config.Config,
) {
	authMW := middleware.NewAuthMiddleware(authorizer)
	authHandlers := NewAuthHandlers(rdb)
	matterHandlers := NewMatterHandlers(st)
	documentHandlers := NewDocumentHandlers(st, lg, blobs, queueClient, cfg)
	jobHandlers := NewJobHandlers(lg)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/tokens", authHandlers.IssueToken)
		authGroup.POST("/refresh", authHandlers.RefreshToken)
	}

	matters := r.Group("/matters")
	matters.Use(authMW.RequireAuth())
	{
		matters.POST("", matterHandlers.CreateMatter)

		scoped := matters.Group("/:matter_id")
		scoped.Use(authMW.RequireMatterRole(models.RoleOwner, models.RoleEditor, models.RoleViewer))
		{
			scoped.GET("", matterHandlers.GetMatter)
			scoped.POST("/documents", documentHandlers.UploadDocument)
			scoped.GET("/documents/:document_id", documentHandlers.GetDocument)
			scoped.GET("/jobs/:job_id", jobHandlers.GetJob)
		}
	}

	// The WebSocket upgrade can't carry an Authorization header from a
	// browser client, so it bypasses RequireAuth/RequireMatterRole and
	// authenticates itself from the ?token= query parameter, closing
	// with a WebSocket close code on failure instead of an HTTP status.
	r.GET("/matter/:matter_id", realtime.ServeWS(wsManager, authorizer))
}
