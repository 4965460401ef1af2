package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/benforcapita/play-app-sub000/middleware"
	"github.com/benforcapita/play-app-sub000/model"
	"github.com/benforcapita/play-app-sub000/pkg/logger"
	"github.com/benforcapita/play-app-sub000/service"
)

type ExtractHandler struct {
	store   *service.JobStore
	monitor *service.RuntimeMonitor
	archive *service.ArchiveService
	export  *service.ExportService
}

func NewExtractHandler(store *service.JobStore, monitor *service.RuntimeMonitor, archive *service.ArchiveService, export *service.ExportService) *ExtractHandler {
	return &ExtractHandler{
		store:   store,
		monitor: monitor,
		archive: archive,
		export:  export,
	}
}

// Submit accepts a multipart upload and enqueues an extraction job.
func (h *ExtractHandler) Submit(c *gin.Context) {
	owner := middleware.GetOwner(c)

	if !strings.HasPrefix(c.GetHeader("Content-Type"), "multipart/form-data") {
		c.JSON(http.StatusBadRequest, gin.H{"message": "multipart/form-data expected"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "multipart/form-data expected"})
		return
	}

	var files []*multipart.FileHeader
	for _, headers := range form.File {
		files = append(files, headers...)
	}
	if len(files) != 1 || files[0].Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "file required"})
		return
	}
	header := files[0]

	contentType := header.Header.Get("Content-Type")
	if !model.AllowedContentTypes[contentType] {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": fmt.Sprintf("Unsupported content type: %s", contentType),
		})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "file required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to read file"})
		return
	}

	job := model.NewExtractionJob()
	job.JobToken = model.NewJobToken()
	job.OwnerID = owner
	job.FileName = header.Filename
	job.ContentType = contentType
	// Embed the payload so the job is self-contained and replayable without
	// external blob storage.
	job.FileDataURL = fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))

	if err := h.store.Insert(c.Request.Context(), job); err != nil {
		logger.Error(c.Request.Context(), "failed to create extraction job", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create extraction job"})
		return
	}

	h.monitor.JobQueued(job.JobToken, job.FileName)

	if h.archive.Enabled() {
		if err := h.archive.Store(c.Request.Context(), owner, job.JobToken, job.FileName, contentType, data); err != nil {
			// Archival is best-effort; the job carries its own copy.
			logger.Warn(c.Request.Context(), "failed to archive upload", "job_token", job.JobToken, "error", err)
		}
	}

	logger.Info(c.Request.Context(), "extraction job created",
		"job_token", job.JobToken,
		"file_name", job.FileName,
		"content_type", contentType,
		"size_bytes", header.Size,
	)

	c.JSON(http.StatusOK, gin.H{
		"jobToken": job.JobToken,
		"message":  "Extraction job started. Use the job token to check status.",
	})
}

// Status reports a job's state and per-section breakdown.
func (h *ExtractHandler) Status(c *gin.Context) {
	owner := middleware.GetOwner(c)
	token := c.Param("jobToken")

	job, err := h.store.FindByToken(c.Request.Context(), token, owner)
	if errors.Is(err, service.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Job not found"})
		return
	}
	if err != nil {
		logger.Error(c.Request.Context(), "failed to load job", "job_token", token, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to load job"})
		return
	}

	var character *model.Character
	if job.ResultCharacterID != nil {
		character, err = h.store.GetCharacter(c.Request.Context(), *job.ResultCharacterID)
		if err != nil {
			logger.Error(c.Request.Context(), "failed to load result character", "job_token", token, "error", err)
		}
	}

	sections := make([]gin.H, len(job.SectionResults))
	for i, r := range job.SectionResults {
		sections[i] = gin.H{
			"sectionName":  r.SectionName,
			"isSuccessful": r.IsSuccessful,
			"errorMessage": r.ErrorMessage,
			"processedAt":  r.ProcessedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"jobToken":       job.JobToken,
		"status":         strings.ToLower(string(job.Status)),
		"createdAt":      job.CreatedAt,
		"startedAt":      job.StartedAt,
		"completedAt":    job.CompletedAt,
		"isSuccessful":   job.IsSuccessful(),
		"errorMessage":   job.ErrorMessage,
		"sectionResults": sections,
		"character":      character,
	})
}

// Result returns the final character and a success summary for a completed job.
func (h *ExtractHandler) Result(c *gin.Context) {
	owner := middleware.GetOwner(c)
	token := c.Param("jobToken")

	job, err := h.store.FindByToken(c.Request.Context(), token, owner)
	if errors.Is(err, service.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Job not found"})
		return
	}
	if err != nil {
		logger.Error(c.Request.Context(), "failed to load job", "job_token", token, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to load job"})
		return
	}

	if job.Status != model.StatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": fmt.Sprintf("Job not completed. Current status: %s", job.Status),
		})
		return
	}

	// Completed jobs always link a character; treat a missing link as data
	// corruption rather than a client error.
	if job.ResultCharacterID == nil {
		logger.Error(c.Request.Context(), "completed job has no linked character", "job_token", token)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Job completed but no character was produced"})
		return
	}

	character, err := h.store.GetCharacter(c.Request.Context(), *job.ResultCharacterID)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to load result character", "job_token", token, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to load character"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"character": character,
		"jobSummary": gin.H{
			"isSuccessful":       job.IsSuccessful(),
			"successRate":        job.SuccessRate(),
			"successfulSections": job.SuccessfulSections(),
			"totalSections":      len(job.SectionResults),
			"completedAt":        job.CompletedAt,
		},
	})
}

// List returns the owner's jobs without file payloads, newest first.
func (h *ExtractHandler) List(c *gin.Context) {
	owner := middleware.GetOwner(c)

	jobs, err := h.store.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to list jobs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to list jobs"})
		return
	}

	result := make([]gin.H, len(jobs))
	for i, job := range jobs {
		result[i] = gin.H{
			"jobToken":           job.JobToken,
			"fileName":           job.FileName,
			"contentType":        job.ContentType,
			"status":             strings.ToLower(string(job.Status)),
			"createdAt":          job.CreatedAt,
			"startedAt":          job.StartedAt,
			"completedAt":        job.CompletedAt,
			"isSuccessful":       job.IsSuccessful(),
			"successfulSections": job.SuccessfulSections(),
			"totalSections":      len(job.SectionResults),
			"errorMessage":       job.ErrorMessage,
		}
	}

	c.JSON(http.StatusOK, gin.H{"jobs": result})
}

// Runtime exposes the in-memory monitor snapshot for operators.
func (h *ExtractHandler) Runtime(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Snapshot())
}

// ExportXLSX streams the owner's job history as a workbook.
func (h *ExtractHandler) ExportXLSX(c *gin.Context) {
	owner := middleware.GetOwner(c)

	data, err := h.export.ExportJobsXLSX(c.Request.Context(), owner)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to export jobs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to export jobs"})
		return
	}

	fileName := fmt.Sprintf("extraction-jobs-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
