package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mrlokans/lending/internal/database"
	"github.com/mrlokans/lending/internal/lending"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`    // machine-readable error code
	Details any    `json:"details,omitempty"` // additional context (validation errors, etc.)
}

// SuccessResponse is a standard success response with optional data.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data       any   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	HasMore    bool  `json:"has_more"`
	TotalPages int   `json:"total_pages"`
}

func newPaginatedResponse(data any, total int64, page, pageSize int) PaginatedResponse {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		HasMore:    page < totalPages,
		TotalPages: totalPages,
	}
}

// --- Error Response Helpers ---

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found"})
}

// respondInternalError logs the error and sends a 500 without exposing it.
func respondInternalError(c *gin.Context, err error, op string) {
	log.Error().Err(err).Str("op", op).Msg("internal error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// respondLendingError maps a lending failure onto an HTTP status. Business rule
// rejections are 4xx; pool, connection and lost-race failures are 503 so the
// caller knows a retry may succeed.
func respondLendingError(c *gin.Context, err error, op string) {
	var lerr *lending.Error
	if !errors.As(err, &lerr) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "request timed out"})
			return
		}
		respondInternalError(c, err, op)
		return
	}

	resp := ErrorResponse{Error: lerr.Message, Code: string(lerr.Code)}
	c.JSON(lendingStatus(lerr), resp)

	if lerr.Kind != lending.KindGuard {
		log.Warn().Err(err).Str("op", op).Str("kind", string(lerr.Kind)).Msg("lending operation failed")
	}
}

func lendingStatus(err *lending.Error) int {
	switch err.Kind {
	case lending.KindResource, lending.KindInvariant:
		return http.StatusServiceUnavailable
	case lending.KindInternal:
		return http.StatusInternalServerError
	}
	switch err.Code {
	case lending.CodeBookNotFound, lending.CodeRecordNotFound:
		return http.StatusNotFound
	case lending.CodeInvalidStock:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

// --- Success Response Helpers ---

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

func respondSuccess(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, SuccessResponse{Message: message, Data: data})
}

// --- Parameter Parsing ---

// parseIDParam extracts and validates an unsigned integer ID from URL parameters.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(paramName), 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parseQueryID extracts a required unsigned integer ID from query parameters.
func parseQueryID(c *gin.Context, paramName string) (uint, bool) {
	idStr := c.Query(paramName)
	if idStr == "" {
		respondBadRequest(c, paramName+" is required")
		return 0, false
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parsePaging reads page and page_size, normalised the same way the stores do.
func parsePaging(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.Query("page"))
	pageSize, _ = strconv.Atoi(c.Query("page_size"))
	return database.NormalizePage(page, pageSize)
}
