package handlers

import (
	goerrors "errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/noomo-ai/noomo-backend/pkg/api/errors"
	"github.com/noomo-ai/noomo-backend/pkg/audio"
	"github.com/noomo-ai/noomo-backend/pkg/metrics"
	"github.com/noomo-ai/noomo-backend/pkg/models"
	"github.com/noomo-ai/noomo-backend/pkg/storage"
	"github.com/noomo-ai/noomo-backend/pkg/studysets"
)

// AudioHandler handles audio re-hosting and stitching
type AudioHandler struct {
	downloader audio.Downloader
	store      storage.Uploader
	stitcher   *audio.Stitcher
	metrics    *metrics.Metrics
	validator  *validator.Validate
}

// NewAudioHandler creates a new audio handler
func NewAudioHandler(downloader audio.Downloader, store storage.Uploader, stitcher *audio.Stitcher, m *metrics.Metrics) *AudioHandler {
	return &AudioHandler{
		downloader: downloader,
		store:      store,
		stitcher:   stitcher,
		metrics:    m,
		validator:  validator.New(),
	}
}

// UploadAudio handles re-hosting provider audio in object storage
// @Summary Re-host provider audio
// @Description Download external provider audio and store it in object storage, returning the public URL. Falls back to the provider URL on upload failure.
// @Tags Audio
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.UploadAudioRequest true "Audio to re-host"
// @Success 200 {object} models.UploadAudioResponse "Stored public URL"
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /audio/upload [post]
func (h *AudioHandler) UploadAudio(c echo.Context) error {
	var req models.UploadAudioRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	// Without object storage the provider URL is all we have
	if h.store == nil {
		return c.JSON(http.StatusOK, models.UploadAudioResponse{URL: req.AudioURL})
	}

	ctx := c.Request().Context()

	data, err := h.downloader.Download(ctx, req.AudioURL)
	if err != nil {
		return errors.InternalError(c, err)
	}

	key := fmt.Sprintf("jingles/%s/%s.mp3", req.UserID, uuid.NewString())
	url, err := h.store.Upload(ctx, key, data, "audio/mpeg")
	if err != nil {
		// The provider URL still works; hand it back rather than failing
		return c.JSON(http.StatusOK, models.UploadAudioResponse{URL: req.AudioURL})
	}

	return c.JSON(http.StatusOK, models.UploadAudioResponse{URL: url})
}

// StitchAudio handles concatenating a set's jingle audio
// @Summary Stitch study set audio
// @Description Concatenate every jingle's audio in list order into one track. Owner and premium tier required.
// @Tags Audio
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.StitchAudioRequest true "Set to stitch"
// @Success 200 {object} models.StitchAudioResponse "Stitched audio URL and jingle count"
// @Failure 400 {object} models.ErrorResponse "Invalid request or no audio"
// @Failure 403 {object} models.ErrorResponse "Not owner or not premium"
// @Failure 404 {object} models.ErrorResponse "Set not found"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /audio/stitch [post]
func (h *AudioHandler) StitchAudio(c echo.Context) error {
	var req models.StitchAudioRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	resp, err := h.stitcher.Stitch(c.Request().Context(), req.SetID, req.UserID)
	if err != nil {
		switch {
		case goerrors.Is(err, studysets.ErrSetNotFound):
			return errors.NotFoundError(c, "Study set not found")
		case goerrors.Is(err, studysets.ErrNotOwner):
			return errors.ForbiddenError(c, "Unauthorized access to study set")
		case goerrors.Is(err, audio.ErrPremiumRequired):
			return errors.ForbiddenError(c, "Stitching requires a premium subscription")
		case goerrors.Is(err, audio.ErrNoAudio):
			return errors.ValidationError(c, err)
		default:
			return errors.InternalError(c, err)
		}
	}

	if h.metrics != nil {
		h.metrics.RecordAudioStitch()
	}

	return c.JSON(http.StatusOK, resp)
}
