package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/martpos/internal/authorization"
	billingdomain "github.com/smallbiznis/martpos/internal/billing/domain"
	"github.com/smallbiznis/martpos/pkg/db/pagination"
)

func (s *Server) CreateBill(c *gin.Context) {
	cashier, ok := identityFromContext(c)
	if !ok {
		AbortWithError(c, authorization.ErrUnauthenticated)
		return
	}

	var req billingdomain.CreateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billing.CreateBill(c.Request.Context(), cashier, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp)
}

func (s *Server) GetBill(c *gin.Context) {
	resp, err := s.billing.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) GetBillReceipt(c *gin.Context) {
	receipt, err := s.billing.Receipt(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", receipt.Filename))
	c.Data(http.StatusOK, "application/pdf", receipt.Content)
}

func (s *Server) ListBills(c *gin.Context) {
	var query struct {
		From string `form:"from"`
		To   string `form:"to"`
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	resp, err := s.billing.List(c.Request.Context(), billingdomain.ListRequest{
		From:       from,
		To:         to,
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) GetSalesSummary(c *gin.Context) {
	var query struct {
		From string `form:"from"`
		To   string `form:"to"`
		Top  string `form:"top"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}
	top, err := parseOptionalInt64(query.Top)
	if err != nil || (top != nil && *top < 0) {
		AbortWithError(c, newValidationError("top", "invalid_top", "invalid top"))
		return
	}

	req := billingdomain.SummaryRequest{From: from, To: to}
	if top != nil {
		req.Top = int(*top)
	}

	resp, err := s.billing.SalesSummary(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}
