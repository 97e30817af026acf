package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/lending/internal/entities"
)

type BorrowsController struct {
	borrows BorrowAPI
}

func NewBorrowsController(borrows BorrowAPI) *BorrowsController {
	return &BorrowsController{borrows: borrows}
}

// LoanRequest is the body of borrow and reserve calls. The user ID arrives
// already authenticated by whatever sits in front of this service.
type LoanRequest struct {
	UserID uint `json:"user_id" binding:"required,gt=0"`
	BookID uint `json:"book_id" binding:"required,gt=0"`
}

func (ctrl *BorrowsController) Borrow(c *gin.Context) {
	var req LoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user_id and book_id are required", Details: err.Error()})
		return
	}

	borrowID, err := ctrl.borrows.Borrow(c.Request.Context(), req.UserID, req.BookID)
	if err != nil {
		respondLendingError(c, err, "borrow")
		return
	}
	respondCreated(c, gin.H{"borrow_id": borrowID})
}

func (ctrl *BorrowsController) Return(c *gin.Context) {
	borrowID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if _, err := ctrl.borrows.ReturnBook(c.Request.Context(), borrowID); err != nil {
		respondLendingError(c, err, "return")
		return
	}
	respondSuccess(c, "book returned", gin.H{"borrow_id": borrowID})
}

func (ctrl *BorrowsController) Get(c *gin.Context) {
	borrowID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	record, err := ctrl.borrows.GetBorrow(c.Request.Context(), borrowID)
	if err != nil {
		respondLendingError(c, err, "get borrow")
		return
	}
	c.JSON(http.StatusOK, record)
}

func (ctrl *BorrowsController) ListByUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	page, pageSize := parsePaging(c)
	status := entities.BorrowStatus(c.Query("status"))

	records, total, err := ctrl.borrows.ListUserBorrows(c.Request.Context(), userID, status, page, pageSize)
	if err != nil {
		respondLendingError(c, err, "list user borrows")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(records, total, page, pageSize))
}

func (ctrl *BorrowsController) ListByBook(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	page, pageSize := parsePaging(c)
	status := entities.BorrowStatus(c.Query("status"))

	records, total, err := ctrl.borrows.ListBookBorrows(c.Request.Context(), bookID, status, page, pageSize)
	if err != nil {
		respondLendingError(c, err, "list book borrows")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(records, total, page, pageSize))
}

func (ctrl *BorrowsController) ListOverdue(c *gin.Context) {
	page, pageSize := parsePaging(c)

	records, total, err := ctrl.borrows.ListOverdue(c.Request.Context(), page, pageSize)
	if err != nil {
		respondLendingError(c, err, "list overdue")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(records, total, page, pageSize))
}
