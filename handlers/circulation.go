package handlers

import (
	"net/http"

	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/gin-gonic/gin"
)

type borrowRequest struct {
	// staff only; members always act for themselves
	UserId *int `json:"user_id" binding:"omitempty,min=1"`
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

type waiveRequest struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// actingUser picks whose account the request works on.
func actingUser(c *gin.Context, requested *int) (int, bool) {
	ctx := c.Request.Context()
	callerId, _ := utils.GetUserIdFromContext(ctx)
	if requested == nil || *requested == callerId {
		return callerId, true
	}
	if !utils.IsStaffContext(ctx) {
		_ = c.Error(utils.NewNotFoundError("user %d not found", *requested))
		return 0, false
	}
	return *requested, true
}

func (h *Handler) Borrow(c *gin.Context) {
	bookId, ok := pathId(c)
	if !ok {
		return
	}
	var req borrowRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	userId, ok := actingUser(c, req.UserId)
	if !ok {
		return
	}
	txn, err := h.Circulation.Borrow(c.Request.Context(), userId, bookId)
	respond(c, http.StatusCreated, txn, err)
}

func (h *Handler) Reserve(c *gin.Context) {
	bookId, ok := pathId(c)
	if !ok {
		return
	}
	var req borrowRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	userId, ok := actingUser(c, req.UserId)
	if !ok {
		return
	}
	r, err := h.Circulation.Reserve(c.Request.Context(), userId, bookId)
	respond(c, http.StatusCreated, r, err)
}

func (h *Handler) Return(c *gin.Context) {
	if id, ok := pathId(c); ok {
		txn, err := h.Circulation.Return(c.Request.Context(), id)
		respond(c, http.StatusOK, txn, err)
	}
}

func (h *Handler) Renew(c *gin.Context) {
	if id, ok := pathId(c); ok {
		txn, err := h.Circulation.Renew(c.Request.Context(), id)
		respond(c, http.StatusOK, txn, err)
	}
}

func (h *Handler) ClaimLost(c *gin.Context) {
	if id, ok := pathId(c); ok {
		txn, err := h.Circulation.ClaimLost(c.Request.Context(), id)
		respond(c, http.StatusOK, txn, err)
	}
}

func (h *Handler) Cancel(c *gin.Context) {
	if id, ok := pathId(c); ok {
		txn, err := h.Circulation.Cancel(c.Request.Context(), id)
		respond(c, http.StatusOK, txn, err)
	}
}

func (h *Handler) CancelReservation(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req reasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	r, err := h.Circulation.CancelReservation(c.Request.Context(), id, req.Reason)
	respond(c, http.StatusOK, r, err)
}

// RefreshMe brings the caller's penalties and reservations up to date.
func (h *Handler) RefreshMe(c *gin.Context) {
	userId, _ := utils.GetUserIdFromContext(c.Request.Context())
	summary, err := h.Refresher.RefreshUser(c.Request.Context(), userId)
	respond(c, http.StatusOK, summary, err)
}
