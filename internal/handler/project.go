package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/issuetrack/backend/internal/middleware"
	"github.com/issuetrack/backend/internal/model"
	"github.com/issuetrack/backend/internal/service"
)

type ProjectHandler struct {
	projectService *service.ProjectService
	issueService   *service.IssueService
}

func NewProjectHandler(projectService *service.ProjectService, issueService *service.IssueService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService, issueService: issueService}
}

// POST /projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required,max=128"`
		Key         string `json:"key" binding:"required,max=16"`
		Description string `json:"description" binding:"max=5000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), middleware.GetCurrentUser(c), req.Name, req.Key, req.Description)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, project)
}

// GET /projects
func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.projectService.List(c.Request.Context(), middleware.GetCurrentUser(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"list": projects, "total": len(projects)})
}

// GET /projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	project, err := h.projectService.Get(c.Request.Context(), middleware.GetCurrentUser(c), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, project)
}

// PUT /projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Name                     *string `json:"name" binding:"omitempty,max=128"`
		Description              *string `json:"description" binding:"omitempty,max=5000"`
		EmailAlertOnDelayedIssue *bool   `json:"email_alert_on_delayed_issue"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}

	project, err := h.projectService.Update(c.Request.Context(), middleware.GetCurrentUser(c), id, service.ProjectPatch{
		Name:                     req.Name,
		Description:              req.Description,
		EmailAlertOnDelayedIssue: req.EmailAlertOnDelayedIssue,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, project)
}

// DELETE /projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.projectService.Delete(c.Request.Context(), middleware.GetCurrentUser(c), id); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// POST /projects/:id/members
func (h *ProjectHandler) AddMember(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		UserID uint              `json:"user_id" binding:"required"`
		Role   model.ProjectRole `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}

	project, err := h.projectService.AddMember(c.Request.Context(), middleware.GetCurrentUser(c), id, req.UserID, req.Role)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, project.Members)
}

// DELETE /projects/:id/members/:user_id
func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	project, err := h.projectService.RemoveMember(c.Request.Context(), middleware.GetCurrentUser(c), id, userID)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, project.Members)
}

// POST /projects/:id/columns
func (h *ProjectHandler) AddColumn(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ID    string `json:"id" binding:"required,max=64"`
		Title string `json:"title" binding:"required,max=64"`
		Order *int   `json:"order" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}

	project, err := h.projectService.AddColumn(c.Request.Context(), middleware.GetCurrentUser(c), id, service.ColumnInput{
		ID:    req.ID,
		Title: req.Title,
		Order: req.Order,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, project.Columns)
}

// PUT /projects/:id/columns/:column_id
func (h *ProjectHandler) UpdateColumn(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Title *string `json:"title" binding:"omitempty,max=64"`
		Order *int    `json:"order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid request: "+err.Error())
		return
	}

	project, err := h.projectService.UpdateColumn(c.Request.Context(), middleware.GetCurrentUser(c), id, c.Param("column_id"), service.ColumnPatch{
		Title: req.Title,
		Order: req.Order,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, project.Columns)
}

// DELETE /projects/:id/columns/:column_id
func (h *ProjectHandler) DeleteColumn(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	project, err := h.projectService.DeleteColumn(c.Request.Context(), middleware.GetCurrentUser(c), id, c.Param("column_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, project.Columns)
}

// GET /projects/:id/issues
func (h *ProjectHandler) ListIssues(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	filter := service.IssueFilter{Status: model.IssueStatus(c.Query("status"))}
	if s := c.Query("assignee_id"); s != "" {
		v := parseID(s)
		filter.AssigneeID = &v
	}

	issues, err := h.issueService.ListByProject(c.Request.Context(), middleware.GetCurrentUser(c), id, filter)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"list": issues, "total": len(issues)})
}
