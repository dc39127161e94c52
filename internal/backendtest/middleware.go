package backendtest

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/auth"
)

// ContextKeyUserID is the gin context key holding the authenticated user id.
const ContextKeyUserID = "user_id"

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := s.authenticate(c.GetHeader("Authorization"))
		if err != nil {
			s.log.Debug().Err(err).Msg("request rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
			return
		}

		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// authenticate resolves the user id carried by a bearer Authorization header.
func (s *Server) authenticate(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid authorization header format")
	}

	claims, err := auth.ValidateToken(s.JWT, parts[1])
	if err != nil {
		return "", errors.New("invalid token")
	}
	return claims.SubjectID(), nil
}

// op counts the call and applies injected gates, delays and faults.
func (s *Server) op(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.calls[name]++
		gate := s.gates[name]
		delay := s.delays[name]
		var status int
		var message string
		if f, ok := s.faults[name]; ok && f.remaining != 0 {
			status, message = f.status, f.message
			if f.remaining > 0 {
				f.remaining--
			}
		}
		s.mu.Unlock()

		ctx := c.Request.Context()
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				c.Abort()
				return
			}
		}
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				c.Abort()
				return
			}
		}
		if status != 0 {
			c.AbortWithStatusJSON(status, ErrorResponse{Error: message})
			return
		}
		c.Next()
	}
}

func loggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}
