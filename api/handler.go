package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"quranvideo/apperr"
	"quranvideo/notify"
	"quranvideo/task"

	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v4"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	manager *task.Manager
	log     logrus.FieldLogger
}

func NewHandler(m *task.Manager, log logrus.FieldLogger) *Handler {
	return &Handler{manager: m, log: log}
}

type GenerateRequest struct {
	RequestID     string `json:"request_id"`
	Surah         int    `json:"surah" binding:"required,min=1,max=114"`
	AyahStart     int    `json:"ayah_start" binding:"required,min=1"`
	AyahEnd       int    `json:"ayah_end" binding:"required,gtefield=AyahStart"`
	ReciterID     string `json:"reciter_id" binding:"required"`
	TranslationID string `json:"translation_id" binding:"required"`
	BackgroundURL string `json:"background_url"`
	Resolution    int    `json:"resolution" binding:"omitempty,min=360,max=1080"`
	Platform      string `json:"platform" binding:"omitempty,oneof=reel youtube"`
}

func (r GenerateRequest) toTask() task.Request {
	id := r.RequestID
	if id == "" {
		id = shortuuid.New()
	}
	return task.Request{
		ID:               id,
		Surah:            r.Surah,
		AyahStart:        r.AyahStart,
		AyahEnd:          r.AyahEnd,
		ReciterID:        r.ReciterID,
		TranslationID:    r.TranslationID,
		BackgroundSource: r.BackgroundURL,
		Resolution:       r.Resolution,
		Platform:         r.Platform,
	}
}

type SubscribeRequest struct {
	RequestID    string              `json:"requestId" binding:"required"`
	Subscription notify.Subscription `json:"subscription" binding:"required"`
}

// handleGenerate renders the video and answers with the file itself.
func (h *Handler) handleGenerate(c *gin.Context) {
	var body GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req := body.toTask()

	// A client that goes away must not abort the generation.
	res, err := h.manager.Generate(context.WithoutCancel(c.Request.Context()), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if res.Status == task.StatusAlreadyProcessing {
		c.JSON(http.StatusAccepted, gin.H{"message": "already processing", "requestId": res.RequestID})
		return
	}
	h.handOver(c, res.RequestID, res.OutputPath)
}

// handleGenerateAsync starts the generation and returns immediately.
func (h *Handler) handleGenerateAsync(c *gin.Context) {
	var body GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.manager.GenerateAsync(body.toTask())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// handleGetFile hands a finished asynchronous artifact over once.
func (h *Handler) handleGetFile(c *gin.Context) {
	requestID := c.Param("requestId")
	path, err := h.manager.OutputPath(requestID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.handOver(c, requestID, path)
}

func (h *Handler) handOver(c *gin.Context, requestID, path string) {
	log := h.log.WithFields(logrus.Fields{"request_id": requestID, "path": path})
	c.FileAttachment(path, filepath.Base(path))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Error("failed to delete output file")
		return
	}
	log.Info("deleted output file")
}

// handleProgress streams progress records as server-sent events until the
// generation ends or the client disconnects.
func (h *Handler) handleProgress(c *gin.Context) {
	records := h.manager.Poll(c.Request.Context(), c.Param("requestId"))

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Stream(func(w io.Writer) bool {
		rec, ok := <-records
		if !ok {
			return false
		}
		c.SSEvent("progress", rec)
		return !rec.Terminal()
	})
}

func (h *Handler) handleSubscribe(c *gin.Context) {
	var body SubscribeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.manager.Subscribe(body.RequestID, body.Subscription)
	c.JSON(http.StatusCreated, gin.H{"message": "subscribed"})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": apperr.KindOf(err)})
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
