// Package httpapi публикует ProductManager и CartManager как REST API на gin.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Status повторяет HTTP-статус ответа в теле конверта.
type Status struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// Paging несёт метаданные страницы для списочных ответов.
type Paging struct {
	TotalRecords int  `json:"totalRecords"`
	Limit        int  `json:"limit"`
	Offset       int  `json:"offset"`
	HasNextPage  bool `json:"hasNextPage"`
	HasPrevPage  bool `json:"hasPrevPage"`
}

// Response — конверт всех ответов API.
type Response struct {
	Status    Status  `json:"status"`
	Payload   any     `json:"payload"`
	Error     string  `json:"error,omitempty"`
	Paging    *Paging `json:"paging,omitempty"`
	RequestID string  `json:"requestId,omitempty"`
}

func newStatus(code int) Status {
	return Status{Code: code, Name: http.StatusText(code)}
}

func respond(c *gin.Context, code int, payload any) {
	c.JSON(code, Response{
		Status:    newStatus(code),
		Payload:   payload,
		RequestID: requestID(c),
	})
}

func respondPage(c *gin.Context, payload any, paging Paging) {
	c.JSON(http.StatusOK, Response{
		Status:    newStatus(http.StatusOK),
		Payload:   payload,
		Paging:    &paging,
		RequestID: requestID(c),
	})
}

// statusFor сопоставляет доменные ошибки HTTP-статусам.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsDuplicateKey(err), errors.Is(err, domain.ErrCartNotEmpty):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError пишет ошибку в конверте. Внутренние ошибки логируются, а клиенту
// уходит только текст статуса.
func respondError(c *gin.Context, err error) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		loggerFrom(c).WithError(err).Error("request failed")
		message = http.StatusText(code)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, Response{
		Status:    newStatus(code),
		Error:     message,
		RequestID: requestID(c),
	})
}

func loggerFrom(c *gin.Context) *log.Entry {
	if v, ok := c.Get(ctxLoggerKey); ok {
		if entry, ok := v.(*log.Entry); ok {
			return entry
		}
	}
	return log.WithField("component", "http")
}
