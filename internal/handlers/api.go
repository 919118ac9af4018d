package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehtapradnyatama/appsampah/internal/auth"
	"github.com/mehtapradnyatama/appsampah/internal/usecase"
)

func (h *Handler) apiStats(c *gin.Context) {
	userID, _ := auth.GetUserID(c.Request.Context())

	stats, err := h.classifications.Stats(c.Request.Context(), userID)
	if err != nil {
		h.requestLogger(c, "http.api_stats").Error("stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) apiClassify(c *gin.Context) {
	userID, _ := auth.GetUserID(c.Request.Context())
	limitBody(c, h.opts.MaxUploadBytes)

	file, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgTooLarge})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoFile})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	result, err := h.classifications.Classify(c.Request.Context(), userID, file.Filename, src)
	var vErr *usecase.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Message})
		return
	case errors.Is(err, usecase.ErrUnsupportedFile):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": msgInvalidFileType})
		return
	case errors.Is(err, usecase.ErrProcessingFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": msgProcessingFailed})
		return
	default:
		h.requestLogger(c, "http.api_classify").Error("classification request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgProcessingFailed})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                  result.ID,
		"image_path":          result.ImagePath,
		"image_url":           "/uploads/" + result.ImagePath,
		"predicted_class":     result.Prediction.PredictedClass,
		"confidence_score":    result.Prediction.ConfidenceScore,
		"class_probabilities": result.Prediction.ClassProbabilities,
		"saved":               result.Saved,
		"created_at":          result.CreatedAt,
	})
}
