package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/plinio-cardoso/financeiro/internal/observability/context"
)

const userIDContextKey = "financeiro.user_id"

// ResolveUser picks the acting user from the X-User-Id header, falling
// back to the configured default. Single-household deployments never
// send the header.
func (s *Server) ResolveUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID snowflake.ID
		if raw := strings.TrimSpace(c.GetHeader("X-User-Id")); raw != "" {
			parsed, err := snowflake.ParseString(raw)
			if err != nil {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			userID = parsed
		} else {
			userID = snowflake.ID(s.cfg.DefaultUserID)
		}
		if userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if _, err := s.userRepo.FindByID(c.Request.Context(), userID); err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(userIDContextKey, userID)
		ctx := obscontext.WithUserID(c.Request.Context(), userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) userID(c *gin.Context) snowflake.ID {
	if v, ok := c.Get(userIDContextKey); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}
