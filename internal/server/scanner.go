package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/martpos/internal/observability/obscontext"
)

type activateMobileRequest struct {
	Token string `json:"token"`
}

// Token is the mobile session token returned by activate-mobile, not the
// activation token from the QR code.
type submitScanRequest struct {
	Token   string `json:"token"`
	Barcode string `json:"barcode"`
}

func (s *Server) ActivatePOS(c *gin.Context) {
	result, err := s.scanner.ActivatePOS(c.Request.Context(), sessionFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, result)
}

func (s *Server) DeactivatePOS(c *gin.Context) {
	if err := s.scanner.DeactivatePOS(c.Request.Context(), sessionFromContext(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) CheckPOSActivation(c *gin.Context) {
	active, err := s.scanner.CheckPOSActivation(c.Request.Context(), sessionFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{"active": active})
}

func (s *Server) PollItems(c *gin.Context) {
	items, err := s.scanner.PollItems(c.Request.Context(), sessionFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, items)
}

func (s *Server) ActivateMobile(c *gin.Context) {
	var req activateMobileRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	token := mobileToken(c, req.Token)
	if token == "" {
		AbortWithError(c, newValidationError("token", "required", "token is required"))
		return
	}

	c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), obscontext.ActorMobile, ""))
	binding, err := s.scanner.ActivateMobile(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, binding)
}

func (s *Server) SubmitScan(c *gin.Context) {
	var req submitScanRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	token := mobileToken(c, req.Token)
	if token == "" {
		AbortWithError(c, newValidationError("token", "required", "token is required"))
		return
	}

	c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), obscontext.ActorMobile, ""))
	result, err := s.scanner.SubmitScan(c.Request.Context(), token, req.Barcode)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, result)
}

// mobileToken prefers the body and falls back to ?token= so the link
// embedded in the QR code can be posted as-is.
func mobileToken(c *gin.Context, fromBody string) string {
	if token := strings.TrimSpace(fromBody); token != "" {
		return token
	}
	return strings.TrimSpace(c.Query("token"))
}

func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(dst)
}
