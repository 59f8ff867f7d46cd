package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/issuetrack/backend/internal/service"
)

type UploadHandler struct {
	uploadService *service.UploadService
}

func NewUploadHandler(uploadService *service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// POST /uploads (multipart form, field "file")
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, 40001, "no file uploaded")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		BadRequest(c, 40001, "cannot read uploaded file")
		return
	}
	defer file.Close()

	uploaded, err := h.uploadService.Upload(c.Request.Context(), fileHeader.Filename, file, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, uploaded)
}

// GET /uploads/presign?object=<name>
func (h *UploadHandler) Presign(c *gin.Context) {
	url, expires, err := h.uploadService.PresignedURL(c.Request.Context(), c.Query("object"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"url": url, "expires_at": expires})
}
