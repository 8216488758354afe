package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/DhruviKhanpara/LMS-sub001/middlewares"
	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/DhruviKhanpara/LMS-sub001/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Circulation is the interactive side of the engine. *workflow.Circulation
// satisfies it.
type Circulation interface {
	Borrow(ctx context.Context, userId, bookId int) (*models.Transaction, error)
	Return(ctx context.Context, transactionId int) (*models.Transaction, error)
	Renew(ctx context.Context, transactionId int) (*models.Transaction, error)
	ClaimLost(ctx context.Context, transactionId int) (*models.Transaction, error)
	Cancel(ctx context.Context, transactionId int) (*models.Transaction, error)
	Reserve(ctx context.Context, userId, bookId int) (*models.Reservation, error)
	CancelReservation(ctx context.Context, reservationId int, reason string) (*models.Reservation, error)
	PayPenalty(ctx context.Context, penaltyId int) (*models.Penalty, error)
	WaivePenalty(ctx context.Context, penaltyId int, reason string) (*models.Penalty, error)
	AddManualPenalty(ctx context.Context, in workflow.ManualPenaltyInput) (*models.Penalty, error)
	AssignMembership(ctx context.Context, in workflow.AssignMembershipInput) (*models.UserMembershipMapping, error)
}

// Refresher is satisfied by *workflow.Engine.
type Refresher interface {
	RefreshUser(ctx context.Context, userId int) (workflow.RunSummary, error)
}

type Handler struct {
	Circulation Circulation
	Refresher   Refresher
	Logger      *logrus.Logger
}

func New(circulation Circulation, refresher Refresher, logger *logrus.Logger) *Handler {
	return &Handler{Circulation: circulation, Refresher: refresher, Logger: logger}
}

// Register mounts the API under /api/v1. AuthMiddleware must run before it.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1", middlewares.RequireUser())
	staff := middlewares.RequireStaff()

	v1.POST("/books/:id/borrow", h.Borrow)
	v1.POST("/books/:id/reserve", h.Reserve)

	v1.POST("/transactions/:id/return", h.Return)
	v1.POST("/transactions/:id/renew", h.Renew)
	v1.POST("/transactions/:id/claim-lost", h.ClaimLost)
	v1.POST("/transactions/:id/cancel", staff, h.Cancel)

	v1.POST("/reservations/:id/cancel", h.CancelReservation)

	v1.POST("/penalties", staff, h.AddManualPenalty)
	v1.POST("/penalties/:id/pay", staff, h.PayPenalty)
	v1.POST("/penalties/:id/waive", staff, h.WaivePenalty)

	v1.POST("/memberships/assign", staff, h.AssignMembership)

	v1.POST("/me/refresh", h.RefreshMe)
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		_ = c.Error(utils.NewBadRequestError("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

// bindJSON reports malformed bodies as bad requests; validation failures
// keep their field details for ErrorHandler.
func bindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		_ = c.Error(err)
	} else {
		_ = c.Error(utils.NewBadRequestError("invalid request body: %s", err.Error()))
	}
	return false
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, obj)
}

func respond[T any](c *gin.Context, status int, v T, err error) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(status, v)
}

func healthz(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// RegisterHealth mounts the liveness check.
func RegisterHealth(r gin.IRouter) {
	r.GET("/healthz", healthz)
}
