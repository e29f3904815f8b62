package api

import (
	"context"
	"errors"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"smartlauncher/internal/auth"
	"smartlauncher/internal/launcher"
	"smartlauncher/internal/models"
	"smartlauncher/internal/serializer"
	"smartlauncher/internal/store"
	"smartlauncher/internal/tabs"
	"smartlauncher/internal/transfer"
)

// multipart framing on top of the batch limit
const uploadOverhead = 1 << 20

const readyStatus = "Smart Launcher ready"

// Sessions is the read side of the transfer manager.
type Sessions interface {
	Consume(ctx context.Context, sessionID string) (*models.TransferSession, error)
	Cleanup(ctx context.Context, sessionID string) error
}

// TabServer attaches destination pages to their tab channel.
type TabServer interface {
	ServeTab(w http.ResponseWriter, r *http.Request, tabID string) error
}

// Handler wires HTTP routes to the launcher controller and the session store.
type Handler struct {
	launcher       *launcher.Controller
	sessions       Sessions
	tabs           TabServer
	auth           *auth.Service
	metrics        http.Handler
	maxUploadBytes int64
}

// NewHandler constructs a Handler. tabServer and metrics may be nil.
func NewHandler(ctrl *launcher.Controller, sessions Sessions, tabServer TabServer, authService *auth.Service, metrics http.Handler, maxBatchBytes int64) *Handler {
	return &Handler{
		launcher:       ctrl,
		sessions:       sessions,
		tabs:           tabServer,
		auth:           authService,
		metrics:        metrics,
		maxUploadBytes: maxBatchBytes + uploadOverhead,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(h.auth.OriginMiddleware(), h.auth.Middleware())
	if h.metrics != nil {
		router.GET("/metrics", h.auth.RequireTrusted(), gin.WrapH(h.metrics))
	}

	api := router.Group("/api")
	api.POST("/rpc", h.rpc)
	api.GET("/sessions/:id", h.getStoredFiles)
	api.DELETE("/sessions/:id", h.cleanupSession)
	api.GET("/tabs/:id/ws", h.tabChannel)

	trusted := api.Group("")
	trusted.Use(h.auth.RequireTrusted())
	trusted.POST("/transfers", h.uploadTransfer)
	trusted.POST("/tools/:tool/open", h.openTool)
	trusted.POST("/links", h.openLink)
}

// privileged actions are launch gestures; everything else may come from a page.
var privileged = map[string]bool{
	models.ActionTransferFiles: true,
	models.ActionOpenTool:      true,
	models.ActionOpenLink:      true,
	models.ActionContextMenu:   true,
	models.ActionGetStats:      true,
	models.ActionFetchURL:      true,
	models.ActionDetectPDFs:    true,
}

func (h *Handler) rpc(c *gin.Context) {
	// byte array payloads take up to four characters per byte
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 4*h.maxUploadBytes)
	var req models.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Error: "invalid request body"})
		return
	}
	if privileged[req.Action] && !auth.Trusted(c) {
		c.JSON(http.StatusUnauthorized, models.Response{Error: auth.ErrTokenRequired.Error()})
		return
	}
	ctx := c.Request.Context()

	switch req.Action {
	case models.ActionTransferFiles:
		res, err := h.launcher.TransferSerialized(ctx, req.Files, req.Tool, req.Options)
		h.respondTransfer(c, http.StatusOK, res, err)

	case models.ActionGetStoredFiles:
		h.consume(c, req.SessionID)

	case models.ActionOpenTool:
		opened, err := h.launcher.OpenTool(ctx, req.Tool)
		h.respondOpened(c, opened, err)

	case models.ActionOpenLink:
		opened, err := h.launcher.OpenLink(ctx, req.URL, req.Tool)
		h.respondOpened(c, opened, err)

	case models.ActionContextMenu:
		opened, err := h.launcher.ContextMenu(ctx, req.MenuID, req.URL)
		h.respondOpened(c, opened, err)

	case models.ActionFetchURL:
		file, err := h.launcher.FetchURL(ctx, req.URL)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, models.Response{Success: true, File: &file})

	case models.ActionDetectPDFs:
		page, err := h.launcher.DetectPDFs(ctx, req.URL)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, models.Response{Success: true, Page: page})

	case models.ActionSiteReady:
		info := h.launcher.Info()
		c.JSON(http.StatusOK, models.Response{Success: true, Status: h.launcher.SiteReady(req.URL), Info: &info})

	case models.ActionExtensionInfo:
		info := h.launcher.Info()
		c.JSON(http.StatusOK, models.Response{Success: true, Info: &info})

	case models.ActionPing:
		c.JSON(http.StatusOK, models.Response{Success: true, Status: readyStatus, Timestamp: time.Now().UnixMilli()})

	case models.ActionGetStats:
		c.JSON(http.StatusOK, models.Response{Success: true, Stats: h.launcher.Stats()})

	default:
		log.Printf("api unknown rpc action %q", req.Action)
		c.JSON(http.StatusBadRequest, models.Response{Error: "Unknown action"})
	}
}

func (h *Handler) getStoredFiles(c *gin.Context) {
	h.consume(c, c.Param("id"))
}

func (h *Handler) consume(c *gin.Context, sessionID string) {
	session, err := h.sessions.Consume(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	record := session.Record()
	c.JSON(http.StatusOK, models.Response{Success: true, SessionID: session.SessionID, Data: &record})
}

func (h *Handler) cleanupSession(c *gin.Context) {
	if err := h.sessions.Cleanup(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Response{Success: true})
}

func (h *Handler) openTool(c *gin.Context) {
	opened, err := h.launcher.OpenTool(c.Request.Context(), c.Param("tool"))
	h.respondOpened(c, opened, err)
}

type linkRequest struct {
	URL  string `json:"url"`
	Tool string `json:"tool"`
}

func (h *Handler) openLink(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Error: "invalid request body"})
		return
	}
	opened, err := h.launcher.OpenLink(c.Request.Context(), req.URL, req.Tool)
	h.respondOpened(c, opened, err)
}

// uploadTransfer accepts a multipart form with one or more "files" parts.
func (h *Handler) uploadTransfer(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, models.Response{Error: "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, models.Response{Error: "invalid multipart form"})
		return
	}
	defer c.Request.MultipartForm.RemoveAll()

	headers := c.Request.MultipartForm.File["files"]
	sources := make([]serializer.Source, 0, len(headers))
	now := time.Now()
	for _, fh := range headers {
		sources = append(sources, serializer.FromMultipart(fh, modTime(c.Request.MultipartForm, fh, now)))
	}
	opts := models.TransferOptions{Language: c.PostForm("language")}
	res, err := h.launcher.TransferFiles(c.Request.Context(), sources, c.PostForm("tool"), opts)
	h.respondTransfer(c, http.StatusCreated, res, err)
}

func (h *Handler) tabChannel(c *gin.Context) {
	if h.tabs == nil {
		c.JSON(http.StatusNotFound, models.Response{Error: "tab channels are not served by this browser driver"})
		return
	}
	tabID := c.Param("id")
	if err := h.tabs.ServeTab(c.Writer, c.Request, tabID); err != nil {
		if errors.Is(err, tabs.ErrUnknownTab) {
			c.JSON(http.StatusNotFound, models.Response{Error: err.Error()})
			return
		}
		// the upgrader already answered
		log.Printf("api tab %s: %v", tabID, err)
	}
}

func (h *Handler) respondTransfer(c *gin.Context, okStatus int, res *transfer.Result, err error) {
	if err != nil {
		resp := models.Response{Error: err.Error()}
		if res != nil {
			resp.SessionID = res.SessionID
			resp.TabID = res.TabID
			resp.TransferMethod = res.TransferMethod
			resp.URL = res.URL
		}
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(okStatus, models.Response{
		Success:        true,
		SessionID:      res.SessionID,
		TabID:          res.TabID,
		TransferMethod: res.TransferMethod,
		URL:            res.URL,
	})
}

func (h *Handler) respondOpened(c *gin.Context, opened *launcher.Opened, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Response{Success: true, TabID: opened.TabID, URL: opened.URL})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		msg = "Session expired or not found"
	case status == http.StatusInternalServerError:
		log.Printf("api %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, models.Response{Error: msg})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var (
		validation    *transfer.ValidationError
		serialization *serializer.SerializationError
		timeout       *transfer.TransferTimeoutError
		storageErr    *store.StorageError
		linkErr       *launcher.LinkError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &linkErr), errors.Is(err, launcher.ErrUnknownMenu):
		return http.StatusBadRequest
	case errors.As(err, &serialization):
		return http.StatusUnprocessableEntity
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.As(err, &storageErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// modTime reads an optional lastModified_<filename> field (unix ms).
func modTime(form *multipart.Form, fh *multipart.FileHeader, fallback time.Time) time.Time {
	vals := form.Value["lastModified_"+fh.Filename]
	if len(vals) == 0 {
		return fallback
	}
	ms, err := strconv.ParseInt(vals[0], 10, 64)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.UnixMilli(ms)
}
