package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/lending/internal/entities"
)

type BooksController struct {
	catalog CatalogAPI
}

func NewBooksController(catalog CatalogAPI) *BooksController {
	return &BooksController{catalog: catalog}
}

type AddBookRequest struct {
	Title  string `json:"title" binding:"required"`
	Author string `json:"author" binding:"required"`
	ISBN   string `json:"isbn"`
	Copies int    `json:"copies" binding:"gte=0"`
}

// StockRequest overwrites all three counters of a book. The values must satisfy
// total = available + borrowed.
type StockRequest struct {
	Total     int `json:"total_copies" binding:"gte=0"`
	Available int `json:"available_copies" binding:"gte=0"`
	Borrowed  int `json:"borrowed_copies" binding:"gte=0"`
}

type StatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active inactive"`
}

func (ctrl *BooksController) Add(c *gin.Context) {
	var req AddBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "title and author are required", Details: err.Error()})
		return
	}

	book, err := ctrl.catalog.AddBook(c.Request.Context(), req.Title, req.Author, req.ISBN, req.Copies)
	if err != nil {
		respondLendingError(c, err, "add book")
		return
	}
	respondCreated(c, book)
}

func (ctrl *BooksController) Get(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := ctrl.catalog.GetBook(c.Request.Context(), bookID)
	if err != nil {
		respondLendingError(c, err, "get book")
		return
	}
	c.JSON(http.StatusOK, book)
}

func (ctrl *BooksController) List(c *gin.Context) {
	page, pageSize := parsePaging(c)

	books, total, err := ctrl.catalog.ListBooks(c.Request.Context(), page, pageSize)
	if err != nil {
		respondLendingError(c, err, "list books")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(books, total, page, pageSize))
}

func (ctrl *BooksController) AdjustStock(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req StockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid stock values", Details: err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := ctrl.catalog.AdjustStock(ctx, bookID, req.Total, req.Available, req.Borrowed); err != nil {
		respondLendingError(c, err, "adjust stock")
		return
	}

	book, err := ctrl.catalog.GetBook(ctx, bookID)
	if err != nil {
		respondLendingError(c, err, "get book")
		return
	}
	respondSuccess(c, "stock updated", book)
}

func (ctrl *BooksController) SetStatus(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "status must be active or inactive", Details: err.Error()})
		return
	}

	book, err := ctrl.catalog.SetBookStatus(c.Request.Context(), bookID, entities.BookStatus(req.Status))
	if err != nil {
		respondLendingError(c, err, "set book status")
		return
	}
	respondSuccess(c, "status updated", book)
}

func (ctrl *BooksController) Remove(c *gin.Context) {
	bookID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := ctrl.catalog.RemoveBook(c.Request.Context(), bookID); err != nil {
		respondLendingError(c, err, "remove book")
		return
	}
	respondSuccess(c, "book removed", gin.H{"book_id": bookID})
}
