package handlers

import (
	goerrors "errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/noomo-ai/noomo-backend/pkg/api/errors"
	"github.com/noomo-ai/noomo-backend/pkg/models"
	"github.com/noomo-ai/noomo-backend/pkg/studysets"
)

// SetsHandler handles study set endpoints
type SetsHandler struct {
	sets      *studysets.Service
	validator *validator.Validate
}

// NewSetsHandler creates a new study sets handler
func NewSetsHandler(sets *studysets.Service) *SetsHandler {
	return &SetsHandler{
		sets:      sets,
		validator: validator.New(),
	}
}

func (h *SetsHandler) mapSetError(c echo.Context, err error) error {
	switch {
	case goerrors.Is(err, studysets.ErrSetNotFound):
		return errors.NotFoundError(c, "Study set not found")
	case goerrors.Is(err, studysets.ErrNotOwner):
		return errors.ForbiddenError(c, "Unauthorized access to study set")
	case goerrors.Is(err, studysets.ErrIndexOutOfRange):
		return errors.ValidationError(c, err)
	default:
		return errors.DatabaseError(c, err)
	}
}

// CreateSet handles creating an empty study set
// @Summary Create a study set
// @Description Create an empty study set to fill with jingles
// @Tags Sets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateSetRequest true "Set details"
// @Success 201 {object} models.StudySet "Created set"
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /sets [post]
func (h *SetsHandler) CreateSet(c echo.Context) error {
	var req models.CreateSetRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	set, err := h.sets.Create(c.Request().Context(), req.UserID, req.Subject)
	if err != nil {
		return errors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusCreated, set)
}

// ListSets handles listing a user's sets
// @Summary List study sets
// @Description List all of a user's study sets, newest first
// @Tags Sets
// @Produce json
// @Security BearerAuth
// @Param userId query string true "Owner id"
// @Success 200 {array} models.StudySet "Study sets"
// @Failure 400 {object} models.ErrorResponse "Missing userId"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /sets [get]
func (h *SetsHandler) ListSets(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return errors.ValidationError(c, goerrors.New("userId is required"))
	}

	sets, err := h.sets.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return errors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusOK, sets)
}

// GetSet handles fetching one set
// @Summary Get a study set
// @Description Fetch a study set by id
// @Tags Sets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Set id"
// @Success 200 {object} models.StudySet "Study set"
// @Failure 404 {object} models.ErrorResponse "Set not found"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /sets/{id} [get]
func (h *SetsHandler) GetSet(c echo.Context) error {
	set, err := h.sets.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.mapSetError(c, err)
	}

	return c.JSON(http.StatusOK, set)
}

// AddJingle handles appending a jingle to a set
// @Summary Add a jingle
// @Description Append a jingle to the set's embedded list
// @Tags Sets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Set id"
// @Param request body models.AddJingleRequest true "Jingle to append"
// @Success 200 {object} models.StudySet "Updated set"
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 403 {object} models.ErrorResponse "Not owner"
// @Failure 404 {object} models.ErrorResponse "Set not found"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /sets/{id}/jingles [post]
func (h *SetsHandler) AddJingle(c echo.Context) error {
	var req models.AddJingleRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	set, err := h.sets.AddJingle(c.Request().Context(), c.Param("id"), req.UserID, models.Jingle{
		Term:     req.Term,
		Lyrics:   req.Lyrics,
		AudioURL: req.AudioURL,
		Notes:    req.Notes,
		Genre:    req.Genre,
	})
	if err != nil {
		return h.mapSetError(c, err)
	}

	return c.JSON(http.StatusOK, set)
}

// RemoveJingle handles deleting a jingle by position
// @Summary Remove a jingle
// @Description Delete the jingle at the given position in the set's list
// @Tags Sets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Set id"
// @Param index path int true "Jingle position"
// @Param userId query string true "Owner id"
// @Success 200 {object} models.StudySet "Updated set"
// @Failure 400 {object} models.ErrorResponse "Invalid index"
// @Failure 403 {object} models.ErrorResponse "Not owner"
// @Failure 404 {object} models.ErrorResponse "Set not found"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /sets/{id}/jingles/{index} [delete]
func (h *SetsHandler) RemoveJingle(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return errors.ValidationError(c, goerrors.New("userId is required"))
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return errors.ValidationError(c, err)
	}

	set, err := h.sets.RemoveJingle(c.Request().Context(), c.Param("id"), userID, index)
	if err != nil {
		return h.mapSetError(c, err)
	}

	return c.JSON(http.StatusOK, set)
}

// DeleteSet handles deleting a set
// @Summary Delete a study set
// @Description Delete a study set after verifying ownership
// @Tags Sets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Set id"
// @Param userId query string true "Owner id"
// @Success 200 {object} models.SuccessResponse "Deleted"
// @Failure 403 {object} models.ErrorResponse "Not owner"
// @Failure 404 {object} models.ErrorResponse "Set not found"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /sets/{id} [delete]
func (h *SetsHandler) DeleteSet(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return errors.ValidationError(c, goerrors.New("userId is required"))
	}

	if err := h.sets.Delete(c.Request().Context(), c.Param("id"), userID); err != nil {
		return h.mapSetError(c, err)
	}

	return c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: "Study set deleted",
	})
}
