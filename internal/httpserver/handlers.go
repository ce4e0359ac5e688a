package httpserver

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/classbook/pkg/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type httpHandler struct {
	logger  *zap.Logger
	service *booking.Service
}

type bookingRequest struct {
	ClassID string `json:"class_id" binding:"required"`
}

type waitlistRequest struct {
	ClassID string `json:"class_id" binding:"required"`
}

type purchaseRequest struct {
	PackageID string `json:"package_id" binding:"required"`
}

func (handler *httpHandler) handleListClasses(ctx *gin.Context) {
	country := booking.Country(ctx.Query("country"))
	if country == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "country is required"})
		return
	}
	listings, err := handler.service.ListUpcomingClasses(ctx.Request.Context(), country)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"classes": listings})
}

func (handler *httpHandler) handleBookClass(ctx *gin.Context) {
	var request bookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "class_id is required"})
		return
	}
	booked, err := handler.service.BookClass(ctx.Request.Context(), callerID(ctx), request.ClassID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, booked)
}

func (handler *httpHandler) handleCancelBooking(ctx *gin.Context) {
	refunded, err := handler.service.CancelBooking(ctx.Request.Context(), ctx.Param("id"), callerID(ctx))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"refunded": refunded})
}

func (handler *httpHandler) handleCheckIn(ctx *gin.Context) {
	if err := handler.service.CheckIn(ctx.Request.Context(), ctx.Param("id"), callerID(ctx)); err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "checked_in"})
}

func (handler *httpHandler) handleJoinWaitlist(ctx *gin.Context) {
	var request waitlistRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "class_id is required"})
		return
	}
	entry, err := handler.service.JoinWaitlist(ctx.Request.Context(), callerID(ctx), request.ClassID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, entry)
}

func (handler *httpHandler) handleMyBookings(ctx *gin.Context) {
	bookings, err := handler.service.MyBookings(ctx.Request.Context(), callerID(ctx))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (handler *httpHandler) handleMyBalances(ctx *gin.Context) {
	balances, err := handler.service.MyBalances(ctx.Request.Context(), callerID(ctx))
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balances": balances})
}

func (handler *httpHandler) handleListPackages(ctx *gin.Context) {
	country := booking.Country(ctx.Query("country"))
	if country == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "country is required"})
		return
	}
	packages, err := handler.service.ListPackages(ctx.Request.Context(), country)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"packages": packages})
}

func (handler *httpHandler) handlePurchasePackage(ctx *gin.Context) {
	var request purchaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "package_id is required"})
		return
	}
	balance, err := handler.service.PurchasePackage(ctx.Request.Context(), callerID(ctx), request.PackageID)
	if err != nil {
		handler.writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, balance)
}

func (handler *httpHandler) writeError(ctx *gin.Context, err error) {
	status, message := statusForError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.Error(err))
	}
	response := gin.H{"error": message}
	if booking.IsRetryable(err) {
		response["retryable"] = true
	}
	ctx.JSON(status, response)
}

// statusForError maps domain errors onto HTTP statuses. Persistence faults
// stay generic so internals never leak to clients.
func statusForError(err error) (int, string) {
	switch {
	case booking.IsNotFound(err):
		return http.StatusNotFound, unwrapMessage(err)
	case errors.Is(err, booking.ErrNotOwner):
		return http.StatusForbidden, unwrapMessage(err)
	case booking.IsConflict(err):
		return http.StatusConflict, unwrapMessage(err)
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func unwrapMessage(err error) string {
	var operationError booking.OperationError
	if errors.As(err, &operationError) {
		return operationError.Unwrap().Error()
	}
	return err.Error()
}
