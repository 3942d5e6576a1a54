package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/internal/ledger"
	"legal-doc-intelligence/middleware"
	"legal-doc-intelligence/utils"
)

// JobHandlers serves the ledger read path; nothing here mutates a Job —
// writes happen in internal/worker, internal/sweeper and the document
// upload handler (routes/documents.go), which creates the job.
type JobHandlers struct {
	ledger *ledger.Ledger
}

func NewJobHandlers(lg *ledger.Ledger) *JobHandlers {
	return &JobHandlers{ledger: lg}
}

// GetJob handles GET /matters/:matter_id/jobs/:job_id.
func (h *JobHandlers) GetJob(c *gin.Context) {
	matterID, err := primitive.ObjectIDFromHex(middleware.GetMatterID(c))
	if err != nil {
		utils.RespondWithBadRequest(c, "invalid matter id", nil)
		return
	}
	jobID, err := primitive.ObjectIDFromHex(c.Param("job_id"))
	if err != nil {
		utils.RespondWithBadRequest(c, "invalid job id", nil)
		return
	}

	job, err := h.ledger.Get(c.Request.Context(), matterID, jobID)
	if err != nil {
		utils.RespondWithNotFound(c, "job not found")
		return
	}
	c.JSON(http.StatusOK, job)
}
