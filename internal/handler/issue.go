package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/issuetrack/backend/internal/middleware"
	"github.com/issuetrack/backend/internal/model"
	"github.com/issuetrack/backend/internal/service"
)

type IssueHandler struct {
	issueService *service.IssueService
}

func NewIssueHandler(issueService *service.IssueService) *IssueHandler {
	return &IssueHandler{issueService: issueService}
}

// POST /issues
func (h *IssueHandler) Create(c *gin.Context) {
	var req struct {
		ProjectID   uint              `json:"project_id" binding:"required"`
		Title       string            `json:"title" binding:"required,max=256"`
		Description string            `json:"description"`
		AssigneeID  *uint             `json:"assignee_id"`
		Status      model.IssueStatus `json:"status"`
		IssueType   model.IssueType   `json:"issue_type"`
		Deadline    *time.Time        `json:"deadline"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}

	issue, err := h.issueService.Create(c.Request.Context(), middleware.GetCurrentUser(c), service.IssueInput{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		Status:      req.Status,
		IssueType:   req.IssueType,
		Deadline:    req.Deadline,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, issue)
}

// GET /issues/:id
func (h *IssueHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	issue, err := h.issueService.Get(c.Request.Context(), middleware.GetCurrentUser(c), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, issue)
}

// PUT /issues/:id
//
// email_sent is not accepted; the deadline scanner owns it.
func (h *IssueHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Title         *string            `json:"title" binding:"omitempty,max=256"`
		Description   *string            `json:"description"`
		AssigneeID    *uint              `json:"assignee_id"`
		Status        *model.IssueStatus `json:"status"`
		IssueType     *model.IssueType   `json:"issue_type"`
		Deadline      *time.Time         `json:"deadline"`
		ClearDeadline bool               `json:"clear_deadline"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}

	issue, err := h.issueService.Update(c.Request.Context(), middleware.GetCurrentUser(c), id, service.IssuePatch{
		Title:         req.Title,
		Description:   req.Description,
		AssigneeID:    req.AssigneeID,
		Status:        req.Status,
		IssueType:     req.IssueType,
		Deadline:      req.Deadline,
		ClearDeadline: req.ClearDeadline,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, issue)
}
