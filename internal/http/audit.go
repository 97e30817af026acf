package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/lending/internal/audit"
	dbaudit "github.com/mrlokans/lending/internal/database/audit"
	"github.com/mrlokans/lending/internal/entities"
)

type AuditController struct {
	reader AuditReader
}

func NewAuditController(reader AuditReader) *AuditController {
	return &AuditController{reader: reader}
}

// Events lists audit events filtered by user_id, book_id, event_type and
// since (RFC3339).
func (ctrl *AuditController) Events(c *gin.Context) {
	var filter dbaudit.Filter
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			respondBadRequest(c, "invalid user_id")
			return
		}
		filter.UserID = uint(id)
	}
	if v := c.Query("book_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			respondBadRequest(c, "invalid book_id")
			return
		}
		filter.BookID = uint(id)
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondBadRequest(c, "invalid since, expected RFC3339")
			return
		}
		filter.Since = since
	}
	filter.EventType = entities.AuditEventType(c.Query("event_type"))

	page, pageSize := parsePaging(c)
	events, total, err := ctrl.reader.GetEvents(filter, page, pageSize)
	if err != nil {
		respondInternalError(c, err, "audit events")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(events, total, page, pageSize))
}

// History returns every event recorded for one borrow record, reservation or book.
func (ctrl *AuditController) History(c *gin.Context) {
	entityType := c.Param("entity")
	switch entityType {
	case audit.EntityBorrowRecord, audit.EntityReservationRecord, audit.EntityBook:
	default:
		respondBadRequest(c, "unknown entity type")
		return
	}
	entityID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	events, err := ctrl.reader.History(entityType, entityID)
	if err != nil {
		respondInternalError(c, err, "audit history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
