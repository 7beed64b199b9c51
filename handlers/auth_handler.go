package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luantaraschi/petichat-definitive/service"
)

// AuthHandler serves signup and login
type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type signupBody struct {
	Email     string  `json:"email" binding:"required,email"`
	Password  string  `json:"password" binding:"required,min=8,max=72"`
	Name      string  `json:"name" binding:"required,min=2"`
	FirmName  string  `json:"firmName" binding:"required,min=2"`
	OABNumber *string `json:"oabNumber"`
}

type loginBody struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func authResponse(res *service.AuthResult) gin.H {
	return gin.H{
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
		"user":      res.User,
		"tenantId":  res.TenantID,
		"role":      res.Role,
	}
}

// Signup handles POST /api/auth/signup. It creates the firm, the user and
// the owner membership together.
func (h *AuthHandler) Signup(c *gin.Context) {
	var body signupBody
	if !bindJSON(c, &body) {
		return
	}
	res, err := h.auth.Signup(c.Request.Context(), service.SignupRequest{
		Email:     body.Email,
		Password:  body.Password,
		Name:      body.Name,
		FirmName:  body.FirmName,
		OABNumber: body.OABNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, authResponse(res))
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginBody
	if !bindJSON(c, &body) {
		return
	}
	res, err := h.auth.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, authResponse(res))
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	v, _ := c.Get(claimsKey)
	claims := v.(*service.Claims)
	respondOK(c, http.StatusOK, gin.H{
		"userId":   claims.UserID,
		"tenantId": claims.TenantID,
		"email":    claims.Email,
		"role":     claims.Role,
	})
}
