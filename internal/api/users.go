package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"clockwork/internal/auth"
	"clockwork/internal/users"
)

func (s *Server) register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "username, valid email and password (min 6) required"})
		return
	}
	// Admin accounts are provisioned out of band.
	if req.Role != "" && req.Role != users.RoleUser {
		c.JSON(http.StatusForbidden, gin.H{"msg": "Access denied"})
		return
	}

	u, err := s.users.Register(c.Request.Context(), req.Username, req.Email, req.Password, users.RoleUser)
	switch {
	case errors.Is(err, users.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "User already exists"})
		return
	case errors.Is(err, users.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "username, valid email and password (min 6) required"})
		return
	case err != nil:
		serverError(c, "register", err)
		return
	}
	s.issueToken(c, http.StatusCreated, u)
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid credentials"})
		return
	}
	u, err := s.users.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid credentials"})
		return
	case err != nil:
		serverError(c, "login", err)
		return
	}
	s.issueToken(c, http.StatusOK, u)
}

func (s *Server) issueToken(c *gin.Context, status int, u users.User) {
	tok, err := auth.Issue(u.ID, u.Role, s.opts.Issuer, s.opts.SigningKey, s.opts.TokenTTL)
	if err != nil {
		serverError(c, "issue token", err)
		return
	}
	c.JSON(status, gin.H{"token": tok.Value, "role": u.Role, "expires_at": tok.ExpiresAt.Unix()})
}

func (s *Server) me(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	u, err := s.users.Get(c.Request.Context(), claims.UserID())
	switch {
	case errors.Is(err, users.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": "User not found"})
		return
	case err != nil:
		serverError(c, "me", err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) listUsers(c *gin.Context) {
	list, err := s.users.ListWorkers(c.Request.Context())
	if err != nil {
		serverError(c, "list users", err)
		return
	}
	if list == nil {
		list = []users.User{}
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) setLocation(c *gin.Context) {
	var req struct {
		Lat    *float64 `json:"lat" binding:"required"`
		Lng    *float64 `json:"lng" binding:"required"`
		Radius float64  `json:"radius_m"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "lat and lng required"})
		return
	}
	g, err := s.users.SetLocation(c.Request.Context(), c.Param("userId"), *req.Lat, *req.Lng, req.Radius)
	switch {
	case errors.Is(err, users.ErrInvalidLocation):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid coordinates"})
		return
	case errors.Is(err, users.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": "User not found"})
		return
	case err != nil:
		serverError(c, "set location", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Location set successfully", "location": g})
}

func (s *Server) verifyLocation(c *gin.Context) {
	userID := c.Param("userId")
	if !canView(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"msg": "Access denied"})
		return
	}
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "lat and lng query parameters required"})
		return
	}

	res, err := s.users.VerifyLocation(c.Request.Context(), userID, lat, lng)
	switch {
	case errors.Is(err, users.ErrInvalidLocation):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Invalid coordinates"})
		return
	case errors.Is(err, users.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": "User not found"})
		return
	case errors.Is(err, users.ErrNoLocation):
		c.JSON(http.StatusNotFound, gin.H{"msg": "No location set for user"})
		return
	case err != nil:
		serverError(c, "verify location", err)
		return
	}
	if !res.Within {
		c.JSON(http.StatusForbidden, gin.H{"msg": "Location mismatch. Access denied.", "result": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Location verified", "result": res})
}
