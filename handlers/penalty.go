package handlers

import (
	"net/http"

	"github.com/DhruviKhanpara/LMS-sub001/workflow"
	"github.com/gin-gonic/gin"
)

func (h *Handler) AddManualPenalty(c *gin.Context) {
	var in workflow.ManualPenaltyInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.Circulation.AddManualPenalty(c.Request.Context(), in)
	respond(c, http.StatusCreated, p, err)
}

func (h *Handler) PayPenalty(c *gin.Context) {
	if id, ok := pathId(c); ok {
		p, err := h.Circulation.PayPenalty(c.Request.Context(), id)
		respond(c, http.StatusOK, p, err)
	}
}

func (h *Handler) WaivePenalty(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req waiveRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.Circulation.WaivePenalty(c.Request.Context(), id, req.Reason)
	respond(c, http.StatusOK, p, err)
}

func (h *Handler) AssignMembership(c *gin.Context) {
	var in workflow.AssignMembershipInput
	if !bindJSON(c, &in) {
		return
	}
	m, err := h.Circulation.AssignMembership(c.Request.Context(), in)
	respond(c, http.StatusCreated, m, err)
}
