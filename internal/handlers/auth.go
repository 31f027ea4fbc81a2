package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kosarica/catalog-service/internal/database"
)

// AuthHandler issues and verifies the JWT bearers §6 specs "by contract" —
// email delivery, password hashing, and real credential verification are
// Non-goals; these endpoints resolve an identity and hand back a token in
// the shape downstream clients expect.
type AuthHandler struct {
	jwtSecret string
}

func NewAuthHandler(jwtSecret string) *AuthHandler {
	return &AuthHandler{jwtSecret: jwtSecret}
}

type registerRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// Register resolves or creates a user by email.
// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	user, err := database.GetOrCreateUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "email": user.Email})
}

type tokenRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Token issues an access/refresh JWT pair for an existing (or newly
// resolved) user. Password verification is out of scope — see the Non-goals
// note above.
// POST /auth/token
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	user, err := database.GetOrCreateUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token: " + err.Error()})
		return
	}

	access, refresh, expiresIn, err := h.issuePair(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer", ExpiresIn: expiresIn})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh verifies a refresh token's subject and mints a new access token.
// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(req.RefreshToken, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(h.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token subject"})
		return
	}
	if _, err := database.GetUserByID(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	access, refresh, expiresIn, err := h.issuePair(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer", ExpiresIn: expiresIn})
}

// Logout is a no-op: tokens are stateless JWTs, not server-side sessions.
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// VerifyEmail, ForgotPassword and ResetPassword are contract-only stubs:
// email delivery and password hashing are explicit Non-goals (§1).
// GET /auth/verify-email/:token
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "verified"})
}

// POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{"status": "reset_email_queued"})
}

// POST /auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "password_reset"})
}

func (h *AuthHandler) issuePair(userID int64) (access, refresh string, expiresIn int, err error) {
	const accessTTL = 15 * time.Minute
	const refreshTTL = 30 * 24 * time.Hour
	now := time.Now()
	subject := strconv.FormatInt(userID, 10)

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(accessTTL)),
	})
	access, err = accessToken.SignedString([]byte(h.jwtSecret))
	if err != nil {
		return "", "", 0, err
	}

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(refreshTTL)),
	})
	refresh, err = refreshToken.SignedString([]byte(h.jwtSecret))
	if err != nil {
		return "", "", 0, err
	}

	return access, refresh, int(accessTTL.Seconds()), nil
}

// RegisterAuthRoutes mounts the /auth group.
func RegisterAuthRoutes(r *gin.RouterGroup, jwtSecret string) {
	h := NewAuthHandler(jwtSecret)
	r.POST("/register", h.Register)
	r.POST("/token", h.Token)
	r.POST("/refresh", h.Refresh)
	r.POST("/logout", h.Logout)
	r.GET("/verify-email/:token", h.VerifyEmail)
	r.POST("/forgot-password", h.ForgotPassword)
	r.POST("/reset-password", h.ResetPassword)
}
