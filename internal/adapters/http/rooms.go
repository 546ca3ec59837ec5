package http

import (
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type createRoomRequest struct {
	Name string `json:"name" binding:"max=64"`
}

type roomHandlers struct {
	orch *orch.Orchestrator
}

func (h *roomHandlers) create(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room request"})
		return
	}

	room, err := h.orch.CreateRoom(strings.TrimSpace(req.Name), c.GetString(clientTokenKey))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	log.Info().Str("module", "adapters.http").Str("room", string(room.ID)).Msg("room created")
	c.JSON(http.StatusOK, room)
}

// roomID reads :id and answers 404 itself for codes that cannot exist.
func roomID(c *gin.Context) (domain.RoomID, bool) {
	id := domain.RoomID(c.Param("id"))
	if !app.IsValidRoomCode(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return "", false
	}
	return id, true
}

func (h *roomHandlers) get(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	info, ok := h.orch.RoomInfo(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *roomHandlers) list(c *gin.Context) {
	rooms := h.orch.Rooms.ListRooms()
	slices.SortFunc(rooms, func(a, b core.RoomInfo) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *roomHandlers) delete(c *gin.Context) {
	id, ok := roomID(c)
	if !ok {
		return
	}
	if _, ok := h.orch.RoomInfo(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if !h.orch.IsOwner(id, c.GetString(clientTokenKey)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the creator can close this room"})
		return
	}

	if err := h.orch.EvictRoom(id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(id)).Msg("evict room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not close room"})
		return
	}

	log.Info().Str("module", "adapters.http").Str("room", string(id)).Msg("room closed by creator")
	c.Status(http.StatusNoContent)
}
