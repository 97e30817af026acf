package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/lending/internal/entities"
)

type ReservationsController struct {
	reservations ReservationAPI
}

func NewReservationsController(reservations ReservationAPI) *ReservationsController {
	return &ReservationsController{reservations: reservations}
}

func (ctrl *ReservationsController) Reserve(c *gin.Context) {
	var req LoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user_id and book_id are required", Details: err.Error()})
		return
	}

	ctx := c.Request.Context()
	reservationID, err := ctrl.reservations.Reserve(ctx, req.UserID, req.BookID)
	if err != nil {
		respondLendingError(c, err, "reserve")
		return
	}

	resp := gin.H{"reservation_id": reservationID}
	if position, err := ctrl.reservations.QueuePosition(ctx, req.UserID, req.BookID); err == nil {
		resp["queue_position"] = position
	}
	respondCreated(c, resp)
}

func (ctrl *ReservationsController) Cancel(c *gin.Context) {
	reservationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if _, err := ctrl.reservations.CancelReservation(c.Request.Context(), reservationID); err != nil {
		respondLendingError(c, err, "cancel reservation")
		return
	}
	respondSuccess(c, "reservation canceled", gin.H{"reservation_id": reservationID})
}

func (ctrl *ReservationsController) Complete(c *gin.Context) {
	reservationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if _, err := ctrl.reservations.CompleteReservation(c.Request.Context(), reservationID); err != nil {
		respondLendingError(c, err, "complete reservation")
		return
	}
	respondSuccess(c, "reservation completed", gin.H{"reservation_id": reservationID})
}

func (ctrl *ReservationsController) Get(c *gin.Context) {
	reservationID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	record, err := ctrl.reservations.GetReservation(c.Request.Context(), reservationID)
	if err != nil {
		respondLendingError(c, err, "get reservation")
		return
	}
	c.JSON(http.StatusOK, record)
}

func (ctrl *ReservationsController) ListByUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	page, pageSize := parsePaging(c)
	status := entities.ReservationStatus(c.Query("status"))

	records, total, err := ctrl.reservations.ListUserReservations(c.Request.Context(), userID, status, page, pageSize)
	if err != nil {
		respondLendingError(c, err, "list user reservations")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(records, total, page, pageSize))
}

// Queue lists the pending reservations of a book in queue order.
func (ctrl *ReservationsController) Queue(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	records, err := ctrl.reservations.Queue(c.Request.Context(), bookID)
	if err != nil {
		respondLendingError(c, err, "queue")
		return
	}
	c.JSON(http.StatusOK, gin.H{"book_id": bookID, "queue": records, "length": len(records)})
}

func (ctrl *ReservationsController) Position(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := parseQueryID(c, "user_id")
	if !ok {
		return
	}

	position, err := ctrl.reservations.QueuePosition(c.Request.Context(), userID, bookID)
	if err != nil {
		respondLendingError(c, err, "queue position")
		return
	}
	c.JSON(http.StatusOK, gin.H{"book_id": bookID, "user_id": userID, "queue_position": position})
}

// Process promotes the head of the queue when a copy is on the shelf.
func (ctrl *ReservationsController) Process(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	record, err := ctrl.reservations.ProcessReservationQueue(c.Request.Context(), bookID)
	if err != nil {
		respondLendingError(c, err, "process queue")
		return
	}
	if record == nil {
		respondSuccess(c, "nothing to process", nil)
		return
	}
	respondSuccess(c, "reservation completed", record)
}
