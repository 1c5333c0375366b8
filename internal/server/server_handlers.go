package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) readyHandler(c *gin.Context) {
	dbErr := s.sc.DBHealth()
	cacheErr := s.sc.CacheHealth()
	rabbitErr := s.sc.RabbitHealth()

	res := gin.H{
		"database": dbErr == nil,
		"cache":    cacheErr == nil,
		"rabbit":   rabbitErr == nil,
	}

	if dbErr != nil || cacheErr != nil || rabbitErr != nil {
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) onlineHandler(c *gin.Context) {
	online := s.sc.Online()

	c.String(http.StatusOK, online)
}
