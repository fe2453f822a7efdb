package intake

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"resume-critique/internal/pipeline"
	"resume-critique/internal/queue"
	"resume-critique/internal/shared/server/middleware"
	"resume-critique/internal/shared/server/respond"
	"resume-critique/internal/submissions"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches submission routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/submissions", h.create)
	rg.GET("/submissions", h.list)
	rg.DELETE("/submissions", h.wipe)
	rg.GET("/submissions/:id", h.get)
	rg.GET("/submissions/:id/document", h.artifact(ArtifactDocument))
	rg.GET("/submissions/:id/preview", h.artifact(ArtifactPreview))
}

type submissionResponse struct {
	ID       string              `json:"id"`
	Mode     Mode                `json:"mode"`
	Status   string              `json:"status"`
	Record   *submissions.Record `json:"submission,omitempty"`
	Progress []pipeline.Step     `json:"progress"`
}

func (h *Handler) create(c *gin.Context) {
	owner := middleware.UserIDFromContext(c)

	mode, ok := ParseMode(c.Query("mode"))
	if !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "mode must be sync, async or queue", nil)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxDocumentBytes+(1<<20))
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()
	doc, err := io.ReadAll(io.LimitReader(file, MaxDocumentBytes+1))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}

	sub := pipeline.Submission{
		Owner:          owner,
		FileName:       fileHeader.Filename,
		Document:       doc,
		CompanyName:    c.PostForm("companyName"),
		JobTitle:       c.PostForm("jobTitle"),
		JobDescription: c.PostForm("jobDescription"),
	}

	out, err := h.Svc.Submit(c.Request.Context(), sub, mode)
	if out.ID != "" {
		c.Set(middleware.SubmissionIDKey, out.ID)
	}
	if err != nil {
		h.submitError(c, out, err)
		return
	}

	resp := submissionResponse{ID: out.ID, Mode: out.Mode, Status: submissions.StatusPending, Progress: out.Progress}
	if resp.Progress == nil {
		resp.Progress = []pipeline.Step{}
	}
	switch out.Mode {
	case ModeSync:
		resp.Record = out.Record
		resp.Status = out.Record.Status
		c.Set(middleware.StateKey, string(pipeline.StateComplete))
		respond.Created(c, resp)
	default:
		respond.Accepted(c, resp)
	}
}

func (h *Handler) submitError(c *gin.Context, out Outcome, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	case errors.Is(err, queue.ErrNotConfigured):
		respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "queued submissions are not enabled", nil)
		return
	}

	failure, ok := pipeline.AsFailure(err)
	if !ok {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to submit resume", gin.H{"id": out.ID})
		return
	}
	c.Set(middleware.StateKey, string(failure.State))
	respond.Error(c, statusForCode(failure.Code), failure.Code, failure.Reason, gin.H{
		"id":       out.ID,
		"state":    failure.State,
		"progress": out.Progress,
	})
}

func statusForCode(code string) int {
	switch code {
	case pipeline.CodeConversion:
		return http.StatusUnprocessableEntity
	case pipeline.CodeInferenceTimeout:
		return http.StatusGatewayTimeout
	case pipeline.CodeInference, pipeline.CodeStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) list(c *gin.Context) {
	owner := middleware.UserIDFromContext(c)

	records, err := h.Svc.List(c.Request.Context(), owner)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list submissions", nil)
		return
	}
	if records == nil {
		records = []submissions.Record{}
	}
	respond.OK(c, gin.H{"submissions": records})
}

func (h *Handler) get(c *gin.Context) {
	owner := middleware.UserIDFromContext(c)
	id := c.Param("id")
	c.Set(middleware.SubmissionIDKey, id)

	rec, err := h.Svc.Get(c.Request.Context(), owner, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "submission not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch submission", nil)
		}
		return
	}
	respond.OK(c, rec)
}

func (h *Handler) artifact(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := middleware.UserIDFromContext(c)
		id := c.Param("id")
		c.Set(middleware.SubmissionIDKey, id)

		rc, name, err := h.Svc.OpenArtifact(c.Request.Context(), owner, id, kind)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				respond.Error(c, http.StatusNotFound, "not_found", kind+" not found", nil)
			case errors.Is(err, ErrInvalidInput):
				respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
			default:
				respond.Error(c, http.StatusBadGateway, pipeline.CodeStorage, "failed to load "+kind, nil)
			}
			return
		}
		defer rc.Close()

		contentType := mime.TypeByExtension(path.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
			"Content-Disposition": fmt.Sprintf("inline; filename=%q", name),
		})
	}
}

func (h *Handler) wipe(c *gin.Context) {
	owner := middleware.UserIDFromContext(c)

	report, err := h.Svc.Wipe(c.Request.Context(), owner)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
			return
		}
		respond.Error(c, http.StatusBadGateway, pipeline.CodeStorage, "wipe incomplete, retry to finish", report)
		return
	}
	respond.OK(c, report)
}
