package httpapi

import (
	"bytes"
	"net/http"
	"strings"

	"voice-dialer/internal/batches"

	"github.com/gin-gonic/gin"
)

const (
	maxUploadBytes   = 5 << 20
	templateFilename = "sample_phone_numbers.xlsx"
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type submitBatchRequest struct {
	AssistantID  string   `json:"assistantId" binding:"required"`
	PhoneNumbers []string `json:"phoneNumbers" binding:"required,min=1"`
	Filename     string   `json:"filename"`
}

// SubmitBatch serves POST /calls/batch. The batch runs in the background; the response
// only confirms it was accepted.
func (h Handlers) SubmitBatch(c *gin.Context) {
	var req submitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindMessage(err)})
		return
	}
	h.submit(c, batches.SubmitRequest{
		AssistantID:  req.AssistantID,
		PhoneNumbers: req.PhoneNumbers,
		Filename:     req.Filename,
	})
}

// UploadBatch serves POST /calls/batch/upload with a multipart spreadsheet.
func (h Handlers) UploadBatch(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	assistantID := strings.TrimSpace(c.PostForm("assistantId"))
	if assistantID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "assistantId is required"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file could not be read"})
		return
	}
	defer f.Close()

	numbers, err := batches.ParseSpreadsheet(fh.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}
	h.submit(c, batches.SubmitRequest{
		AssistantID:  assistantID,
		PhoneNumbers: numbers,
		Filename:     fh.Filename,
	})
}

func (h Handlers) submit(c *gin.Context, req batches.SubmitRequest) {
	p, ok := h.currentProfile(c)
	if !ok {
		return
	}
	res, err := h.Batches.Submit(c.Request.Context(), p.ID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// ListBatches serves GET /calls/batch.
func (h Handlers) ListBatches(c *gin.Context) {
	p, ok := h.currentProfile(c)
	if !ok {
		return
	}
	page := parsePage(c)
	list, total, err := h.Batches.List(c.Request.Context(), p.ID, page.limit(), page.offset())
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []batches.BatchUpload{}
	}
	c.JSON(http.StatusOK, gin.H{
		"batchUploads": list,
		"pagination":   pagination(page, total, "totalBatchUploads"),
	})
}

// GetBatch serves GET /calls/batch/:id.
func (h Handlers) GetBatch(c *gin.Context) {
	p, ok := h.currentProfile(c)
	if !ok {
		return
	}
	b, items, err := h.Batches.Get(c.Request.Context(), p.ID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []batches.CallItem{}
	}
	c.JSON(http.StatusOK, gin.H{"batchUpload": b, "callItems": items})
}

// BatchTemplate serves GET /calls/batch/template, a spreadsheet users fill in and upload.
func (h Handlers) BatchTemplate(c *gin.Context) {
	var buf bytes.Buffer
	if err := batches.WriteTemplate(&buf); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+templateFilename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
