package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"library-rental/internal/models"
	"library-rental/internal/services"
)

type LibraryHandler struct {
	svc services.LibraryService
}

func RegisterRoutes(r *gin.Engine, svc services.LibraryService) {
	registerValidations()
	h := &LibraryHandler{svc: svc}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Books
	r.POST("/books", h.createBook)
	r.GET("/books", h.listBooks)
	r.GET("/books/by-isbn/:isbn", h.getBookByISBN)
	r.GET("/books/:id", h.getBook)
	r.PATCH("/books/:id", h.updateBook)
	r.DELETE("/books/:id", h.deleteBook)

	// Users
	r.POST("/users", h.createUser)
	r.GET("/users", h.listUsers)
	r.GET("/users/:id", h.getUser)
	r.PATCH("/users/:id", h.updateUser)
	r.DELETE("/users/:id", h.deleteUser)

	// Rentals
	r.POST("/rent", h.rent)
	r.POST("/return", h.returnRental)
	r.GET("/rentals", h.listRentals)
}

// registerValidations adds the notblank tag to gin's validator engine.
func registerValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// statusFor maps a service error kind onto an HTTP status.
func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindInvalidArgument:
		return http.StatusBadRequest
	case services.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	var se *services.Error
	if status == http.StatusInternalServerError && !errors.As(err, &se) {
		// Store details stay in the logs.
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// ─── Books ────────────────────────────────────────────────────────────────────

type createBookRequest struct {
	Title         string  `json:"title" binding:"required,notblank"`
	Author        string  `json:"author" binding:"required,notblank"`
	PublishedYear int     `json:"published_year" binding:"min=0,max=2100"`
	Publisher     *string `json:"publisher"`
	ISBN          *string `json:"isbn" binding:"omitempty,max=32"`
	ImageURLS     *string `json:"image_url_s"`
	ImageURLM     *string `json:"image_url_m"`
	ImageURLL     *string `json:"image_url_l"`
	TotalCopies   *int    `json:"total_copies" binding:"omitempty,min=0"`
}

func (h *LibraryHandler) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	total := 1
	if req.TotalCopies != nil {
		total = *req.TotalCopies
	}

	book, err := h.svc.CreateBook(c.Request.Context(), models.NewBook{
		Title:          req.Title,
		Author:         req.Author,
		PublishedYear:  req.PublishedYear,
		Publisher:      req.Publisher,
		ISBN:           req.ISBN,
		ImageURLSmall:  req.ImageURLS,
		ImageURLMedium: req.ImageURLM,
		ImageURLLarge:  req.ImageURLL,
		TotalCopies:    total,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *LibraryHandler) listBooks(c *gin.Context) {
	books, err := h.svc.ListBooks(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	book, err := h.svc.GetBook(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) getBookByISBN(c *gin.Context) {
	book, err := h.svc.GetBookByISBN(c.Request.Context(), c.Param("isbn"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

type updateBookRequest struct {
	Title         *string `json:"title" binding:"omitempty,notblank"`
	Author        *string `json:"author" binding:"omitempty,notblank"`
	PublishedYear *int    `json:"published_year" binding:"omitempty,min=0,max=2100"`
	Publisher     *string `json:"publisher"`
	ISBN          *string `json:"isbn" binding:"omitempty,max=32"`
	ImageURLS     *string `json:"image_url_s"`
	ImageURLM     *string `json:"image_url_m"`
	ImageURLL     *string `json:"image_url_l"`
	TotalCopies   *int    `json:"total_copies" binding:"omitempty,min=0"`
}

func (h *LibraryHandler) updateBook(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := h.svc.UpdateBook(c.Request.Context(), id, models.BookPatch{
		Title:          req.Title,
		Author:         req.Author,
		PublishedYear:  req.PublishedYear,
		Publisher:      req.Publisher,
		ISBN:           req.ISBN,
		ImageURLSmall:  req.ImageURLS,
		ImageURLMedium: req.ImageURLM,
		ImageURLLarge:  req.ImageURLL,
		TotalCopies:    req.TotalCopies,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) deleteBook(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteBook(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Users ────────────────────────────────────────────────────────────────────

type createUserRequest struct {
	Name  string `json:"name" binding:"required,notblank"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone" binding:"required,notblank"`
}

func (h *LibraryHandler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.svc.CreateUser(c.Request.Context(), models.NewUser{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *LibraryHandler) listUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *LibraryHandler) getUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	user, err := h.svc.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type updateUserRequest struct {
	Name  *string `json:"name" binding:"omitempty,notblank"`
	Email *string `json:"email" binding:"omitempty,email"`
	Phone *string `json:"phone" binding:"omitempty,notblank"`
}

func (h *LibraryHandler) updateUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.svc.UpdateUser(c.Request.Context(), id, models.UserPatch{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *LibraryHandler) deleteUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteUser(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Rentals ──────────────────────────────────────────────────────────────────

type rentRequest struct {
	UserID   string `json:"user_id" binding:"required,uuid"`
	BookID   string `json:"book_id" binding:"required,uuid"`
	Quantity *int   `json:"quantity"`
	Days     *int   `json:"days" binding:"omitempty,min=1,max=60"`
}

func (h *LibraryHandler) rent(c *gin.Context) {
	var req rentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Non-positive quantities are rejected by the service.
	quantity, days := 1, 14
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if req.Days != nil {
		days = *req.Days
	}

	rental, err := h.svc.Rent(c.Request.Context(),
		uuid.MustParse(req.UserID), uuid.MustParse(req.BookID), quantity, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rental)
}

type returnRequest struct {
	RentalID *string `json:"rental_id" binding:"omitempty,uuid"`
	UserID   *string `json:"user_id" binding:"omitempty,uuid"`
	BookID   *string `json:"book_id" binding:"omitempty,uuid"`
}

func (h *LibraryHandler) returnRental(c *gin.Context) {
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rental, err := h.svc.ReturnRental(c.Request.Context(), models.ReturnRequest{
		RentalID: optionalUUID(req.RentalID),
		UserID:   optionalUUID(req.UserID),
		BookID:   optionalUUID(req.BookID),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rental)
}

func (h *LibraryHandler) listRentals(c *gin.Context) {
	var filter models.RentalFilter
	if raw := c.Query("active"); raw != "" {
		switch strings.ToLower(raw) {
		case "true", "1":
			active := true
			filter.Active = &active
		case "false", "0":
			active := false
			filter.Active = &active
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid active"})
			return
		}
	}
	for key, dst := range map[string]**uuid.UUID{"user_id": &filter.UserID, "book_id": &filter.BookID} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
			return
		}
		*dst = &id
	}

	rentals, err := h.svc.ListRentals(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rentals)
}

// optionalUUID converts an already-validated optional id.
func optionalUUID(raw *string) *uuid.UUID {
	if raw == nil {
		return nil
	}
	id := uuid.MustParse(*raw)
	return &id
}
