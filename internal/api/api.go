package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"mirror/internal/assistant"
	"mirror/internal/history"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
	defaultOutfitName   = "Unnamed Outfit"
)

type Assistant interface {
	SuggestOutfit(ctx context.Context) (assistant.Suggestion, error)
	WeatherInfo(ctx context.Context) assistant.WeatherReport
	SaveOutfit(ctx context.Context, name string) (history.Entry, error)
}

type History interface {
	List(ctx context.Context, limit, offset int) ([]history.Entry, error)
	Get(ctx context.Context, id int64) (history.Entry, error)
	Rename(ctx context.Context, id int64, name string) (history.Entry, error)
	Delete(ctx context.Context, id int64) error
}

type Config struct {
	AllowedOrigins []string
	Now            func() time.Time
}

type Handler struct {
	assistant Assistant
	history   History
	now       func() time.Time
}

// NewRouter wires the REST front end.
func NewRouter(cfg Config, a Assistant, h History) *gin.Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	handler := &Handler{assistant: a, history: h, now: cfg.Now}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logging())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
	}
	if len(cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	router.Use(cors.New(corsCfg))

	router.GET("/suggest", handler.Suggest)
	router.GET("/weather", handler.Weather)
	router.POST("/save", handler.Save)
	router.GET("/history", handler.ListHistory)
	router.GET("/history/:id", handler.GetOutfit)
	router.PATCH("/history/:id", handler.RenameOutfit)
	router.DELETE("/history/:id", handler.DeleteOutfit)

	return router
}

func (h *Handler) fail(c *gin.Context, status int, what string, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": what, "message": err.Error()})
}

func (h *Handler) timestamp() string {
	return h.now().Format(time.RFC3339)
}

// Suggest handles GET /suggest
func (h *Handler) Suggest(c *gin.Context) {
	s, err := h.assistant.SuggestOutfit(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to generate outfit suggestion", err)
		return
	}

	meta := gin.H{
		"city":      s.City,
		"weather":   s.Weather,
		"emotion":   s.Emotion,
		"repeated":  s.Repeated,
		"fallback":  s.Fallback,
		"timestamp": s.At.Format(time.RFC3339),
	}
	if !s.Repeated && !s.Fallback {
		meta["id"] = s.Entry.ID
	}
	c.JSON(http.StatusOK, gin.H{"message": s.Text, "metadata": meta})
}

// Weather handles GET /weather
func (h *Handler) Weather(c *gin.Context) {
	r := h.assistant.WeatherInfo(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"message": r.Sentence(),
		"metadata": gin.H{
			"city":      r.City,
			"weather":   r.Conditions,
			"timestamp": r.At.Format(time.RFC3339),
		},
	})
}

type saveRequest struct {
	Name *string `json:"name"`
}

// Save handles POST /save
func (h *Handler) Save(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "Request must be JSON", err)
		return
	}
	name := defaultOutfitName
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		name = *req.Name
	}

	e, err := h.assistant.SaveOutfit(c.Request.Context(), name)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to save outfit", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Saved outfit: " + e.Name,
		"metadata": gin.H{
			"id":         e.ID,
			"name":       e.Name,
			"image_path": e.ImagePath,
			"timestamp":  e.CreatedAt.Format(time.RFC3339),
		},
	})
}

// ListHistory handles GET /history
func (h *Handler) ListHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultHistoryLimit)
	if err != nil || limit <= 0 || limit > maxHistoryLimit {
		h.fail(c, http.StatusBadRequest, "Invalid limit", errors.New("limit must be between 1 and 100"))
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		h.fail(c, http.StatusBadRequest, "Invalid offset", errors.New("offset must be >= 0"))
		return
	}

	entries, err := h.history.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to get outfit history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": strings.Join(history.Summary(entries), "\n"),
		"metadata": gin.H{
			"count":     len(entries),
			"outfits":   entries,
			"timestamp": h.timestamp(),
		},
	})
}

// GetOutfit handles GET /history/:id
func (h *Handler) GetOutfit(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	e, err := h.history.Get(c.Request.Context(), id)
	if err != nil {
		h.entryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": e.Name, "metadata": e})
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// RenameOutfit handles PATCH /history/:id
func (h *Handler) RenameOutfit(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		if err == nil {
			err = errors.New("name is empty")
		}
		h.fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	e, err := h.history.Rename(c.Request.Context(), id, req.Name)
	if err != nil {
		h.entryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Renamed outfit: " + e.Name, "metadata": e})
}

// DeleteOutfit handles DELETE /history/:id
func (h *Handler) DeleteOutfit(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.history.Delete(c.Request.Context(), id); err != nil {
		h.entryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Deleted outfit",
		"metadata": gin.H{"id": id, "timestamp": h.timestamp()},
	})
}

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, http.StatusBadRequest, "Invalid outfit id", errors.New("id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (h *Handler) entryError(c *gin.Context, err error) {
	if errors.Is(err, history.ErrNotFound) {
		h.fail(c, http.StatusNotFound, "Outfit not found", err)
		return
	}
	h.fail(c, http.StatusInternalServerError, "Outfit history unavailable", err)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
