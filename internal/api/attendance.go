package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clockwork/internal/attendance"
	"clockwork/internal/auth"
	"clockwork/internal/queue"
	"clockwork/internal/users"
)

type sessionResponse struct {
	attendance.Session
	HasPhoto bool `json:"has_photo"`
}

func toResponse(s attendance.Session) sessionResponse {
	return sessionResponse{Session: s, HasPhoto: s.HasPhoto()}
}

func (s *Server) clockIn(c *gin.Context) {
	s.doClockIn(c, nil, "Clocked in successfully")
}

func (s *Server) clockInWithSelfie(c *gin.Context) {
	var req struct {
		Selfie string `json:"selfie"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Selfie == "" {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "Selfie is required"})
		return
	}
	s.doClockIn(c, []byte(req.Selfie), "Clocked in with selfie successfully")
}

func (s *Server) doClockIn(c *gin.Context, photo []byte, okMsg string) {
	claims, _ := auth.ClaimsFrom(c)
	res, err := s.attendance.ClockIn(c.Request.Context(), claims.UserID(), photo)
	switch {
	case errors.Is(err, attendance.ErrUserNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "User not available"})
		return
	case err != nil:
		serverError(c, "clock-in", err)
		return
	}
	if res.AlreadyOpen {
		c.JSON(http.StatusOK, gin.H{"msg": "Already clocked in", "attendance": toResponse(res.Session)})
		return
	}
	s.publish(c, queue.Message{
		Type:      queue.TypeClockIn,
		SessionID: res.Session.ID,
		UserID:    res.Session.UserID,
		HasPhoto:  res.Session.HasPhoto(),
		At:        res.Session.ClockIn,
	})
	c.JSON(http.StatusOK, gin.H{"msg": okMsg, "attendance": toResponse(res.Session)})
}

func (s *Server) clockOut(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	sess, err := s.attendance.ClockOut(c.Request.Context(), claims.UserID())
	switch {
	case errors.Is(err, attendance.ErrUserNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "User not available"})
		return
	case errors.Is(err, attendance.ErrNoActiveSession):
		c.JSON(http.StatusBadRequest, gin.H{"msg": "No active clock-in record"})
		return
	case err != nil:
		serverError(c, "clock-out", err)
		return
	}
	s.publish(c, queue.Message{
		Type:      queue.TypeClockOut,
		SessionID: sess.ID,
		UserID:    sess.UserID,
		At:        *sess.ClockOut,
	})
	c.JSON(http.StatusOK, gin.H{"msg": "Clocked out successfully", "attendance": toResponse(sess)})
}

func (s *Server) current(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	open, err := s.attendance.CurrentSession(c.Request.Context(), claims.UserID())
	switch {
	case errors.Is(err, attendance.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": "User not found"})
		return
	case err != nil:
		serverError(c, "current session", err)
		return
	}
	if open == nil {
		c.JSON(http.StatusOK, gin.H{"clocked_in": false, "attendance": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clocked_in": true, "attendance": toResponse(*open)})
}

func (s *Server) selfie(c *gin.Context) {
	sess, ok := s.loadSession(c, c.Param("sessionId"))
	if !ok {
		return
	}
	if !canView(c, sess.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"msg": "Access denied"})
		return
	}
	body := gin.H{
		"userId":   sess.UserID,
		"clockIn":  sess.ClockIn,
		"clockOut": sess.ClockOut,
		"selfie":   string(sess.Photo),
	}
	if s.photoChecks != nil {
		check, err := s.photoChecks.PhotoCheck(c.Request.Context(), sess.ID)
		if err != nil {
			log.Printf("photo check lookup for %s: %v", sess.ID, err)
		} else if check != nil {
			body["check"] = check
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) userReport(c *gin.Context) {
	userID := c.Param("userId")
	if !canView(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"msg": "Access denied"})
		return
	}
	var w attendance.Window
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start_time", &w.Start}, {"end_time", &w.End}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": fmt.Sprintf("Invalid %s", p.name)})
			return
		}
		*p.dst = &t
	}

	report, err := s.attendance.ListSessionsWithTotal(c.Request.Context(), userID, w)
	switch {
	case errors.Is(err, attendance.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": "User not found"})
		return
	case err != nil:
		serverError(c, "attendance report", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) userSession(c *gin.Context) {
	userID := c.Param("userId")
	if !canView(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"msg": "Access denied"})
		return
	}
	sess, ok := s.loadSession(c, c.Param("sessionId"))
	if !ok {
		return
	}
	if sess.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"msg": "Attendance record not found"})
		return
	}
	c.JSON(http.StatusOK, toResponse(sess))
}

func (s *Server) loadSession(c *gin.Context, id string) (attendance.Session, bool) {
	sess, err := s.attendance.GetSession(c.Request.Context(), id)
	switch {
	case errors.Is(err, attendance.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": "Attendance record not found"})
		return attendance.Session{}, false
	case err != nil:
		serverError(c, "get session", err)
		return attendance.Session{}, false
	}
	return sess, true
}

func (s *Server) publish(c *gin.Context, msg queue.Message) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(c.Request.Context(), msg); err != nil {
		log.Printf("queue publish %s for session %s failed: %v", msg.Type, msg.SessionID, err)
	}
}

// canView allows admins and the owner.
func canView(c *gin.Context, ownerID string) bool {
	claims, ok := auth.ClaimsFrom(c)
	return ok && (claims.Role == users.RoleAdmin || claims.UserID() == ownerID)
}

func serverError(c *gin.Context, op string, err error) {
	log.Printf("%s: %v", op, err)
	c.String(http.StatusInternalServerError, "Server error")
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTime accepts RFC3339 or a zone-less date(-time) read as UTC.
func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", value)
}
