package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// eventsHandler streams job notifications for one upload session
func (s *Server) eventsHandler(c *gin.Context) {
	channelID := c.Query("channelId")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channelId is required"})
		return
	}

	client := s.hub.Subscribe(channelID)
	defer s.hub.Unsubscribe(client)

	log.Debug().Str("channelId", channelID).Str("clientId", client.ID.String()).Msg("Event stream opened")
	s.hub.Stream(c.Writer, c.Request, client)
}
