package handlers

import (
	goerrors "errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/noomo-ai/noomo-backend/pkg/api/errors"
	"github.com/noomo-ai/noomo-backend/pkg/jingle"
	"github.com/noomo-ai/noomo-backend/pkg/metrics"
	"github.com/noomo-ai/noomo-backend/pkg/models"
	"github.com/noomo-ai/noomo-backend/pkg/music"
)

// GenerationHandler handles term extraction and song generation
type GenerationHandler struct {
	jingleService *jingle.Service
	metrics       *metrics.Metrics
	validator     *validator.Validate
}

// NewGenerationHandler creates a new generation handler
func NewGenerationHandler(jingleService *jingle.Service, m *metrics.Metrics) *GenerationHandler {
	return &GenerationHandler{
		jingleService: jingleService,
		metrics:       m,
		validator:     validator.New(),
	}
}

// GenerateTerms handles LLM term extraction
// @Summary Extract study terms
// @Description Extract key terms from study notes in source order
// @Tags Generation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.GenerateTermsRequest true "Study notes"
// @Success 200 {object} models.GenerateTermsResponse "Extracted terms"
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /generate/terms [post]
func (h *GenerationHandler) GenerateTerms(c echo.Context) error {
	var req models.GenerateTermsRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	terms, err := h.jingleService.ExtractTerms(c.Request().Context(), req.Subject, req.Notes)
	if err != nil {
		return errors.InternalError(c, err)
	}

	if h.metrics != nil {
		h.metrics.RecordTermsExtracted()
	}

	return c.JSON(http.StatusOK, models.GenerateTermsResponse{Terms: terms})
}

// GenerateSong handles lyrics and audio generation
// @Summary Generate a jingle
// @Description Generate rhymed lyrics from notes (or reuse provided lyrics) and optionally synthesize audio
// @Tags Generation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.GenerateSongRequest true "Generation request"
// @Success 200 {object} models.GenerateSongResponse "Generated lyrics and optional audio URL"
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 500 {object} models.ErrorResponse "Internal or configuration error"
// @Router /generate/song [post]
func (h *GenerationHandler) GenerateSong(c echo.Context) error {
	var req models.GenerateSongRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if req.StudyNotes == "" && req.ExistingLyrics == "" {
		return errors.ValidationError(c, jingle.ErrNoInput)
	}

	resp, err := h.jingleService.GenerateSong(c.Request().Context(), req)
	if err != nil {
		if goerrors.Is(err, music.ErrNotConfigured) {
			return errors.ConfigError(c, "Music generation is not configured. Set MUSIC_API_KEY and MUSIC_API_URL.")
		}
		if goerrors.Is(err, jingle.ErrNoInput) {
			return errors.ValidationError(c, err)
		}
		return errors.InternalError(c, err)
	}

	if h.metrics != nil {
		h.metrics.RecordJingleGenerated(resp.AudioURL != nil)
	}

	return c.JSON(http.StatusOK, resp)
}
