package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/martpos/internal/catalog/domain"
	catalogservice "github.com/smallbiznis/martpos/internal/catalog/service"
	"github.com/smallbiznis/martpos/pkg/db/pagination"
)

type createProductRequest struct {
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	Barcode     *string        `json:"barcode"`
	Price       int64          `json:"price"`
	Stock       int64          `json:"stock"`
	Active      *bool          `json:"active"`
	Metadata    map[string]any `json:"metadata"`
}

func (s *Server) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalog.Create(c.Request.Context(), catalogdomain.CreateRequest{
		Code:        strings.TrimSpace(req.Code),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Barcode:     req.Barcode,
		Price:       req.Price,
		Stock:       req.Stock,
		Active:      req.Active,
		Metadata:    req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp)
}

func (s *Server) UpdateProduct(c *gin.Context) {
	var req catalogdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	resp, err := s.catalog.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) ArchiveProduct(c *gin.Context) {
	resp, err := s.catalog.Archive(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) ListProducts(c *gin.Context) {
	var query struct {
		Name   string `form:"name"`
		Active string `form:"active"`
		Sort   string `form:"sort"`
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	active, err := parseOptionalBool(query.Active)
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	resp, err := s.catalog.List(c.Request.Context(), catalogdomain.ListRequest{
		Name:       strings.TrimSpace(query.Name),
		Active:     active,
		Sort:       strings.TrimSpace(query.Sort),
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) GetProductByID(c *gin.Context) {
	resp, err := s.catalog.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

// GetProductByBarcode lets the desktop resolve a typed or scanned code.
func (s *Server) GetProductByBarcode(c *gin.Context) {
	product, err := s.catalog.FindByBarcode(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if product == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	respond(c, http.StatusOK, catalogservice.ToResponse(product))
}
