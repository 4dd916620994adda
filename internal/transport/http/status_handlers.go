package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chanserv/internal/core"
	"github.com/vovakirdan/chanserv/internal/store"
)

const (
	defaultTranscriptLimit = 100
	maxTranscriptLimit     = 1000
)

// StatusHandlers serves snapshots of the shared state.
type StatusHandlers struct {
	shared      *core.Shared
	lobby       Lobby
	gateway     Gateway
	transcripts store.TranscriptStore
	log         *zerolog.Logger
}

// NewStatusHandlers creates the handler set.
func NewStatusHandlers(deps Deps, logger *zerolog.Logger) *StatusHandlers {
	return &StatusHandlers{
		shared:      deps.Shared,
		lobby:       deps.Lobby,
		gateway:     deps.Gateway,
		transcripts: deps.Transcripts,
		log:         logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Bot       string `json:"bot"`
	Connected bool   `json:"connected"`
	Clients   int    `json:"clients"`
	Channels  int    `json:"channels"`
	Mutes     int    `json:"pending_mute_lists"`
	Sessions  int    `json:"gateway_sessions"`
}

// ChannelDTO is one registry entry.
type ChannelDTO struct {
	Name      string   `json:"name"`
	Founder   string   `json:"founder,omitempty"`
	Operators []string `json:"operators"`
	Topic     string   `json:"topic,omitempty"`
	Locked    bool     `json:"locked"`
	Static    bool     `json:"static"`
	Joined    bool     `json:"joined"`
	AntiSpam  bool     `json:"anti_spam"`
	Members   []string `json:"members"`
}

// ClientDTO is one online user.
type ClientDTO struct {
	Name   string `json:"name"`
	Status int    `json:"status"`
	Access int    `json:"access"`
	InGame bool   `json:"in_game"`
	Away   bool   `json:"away"`
	Bot    bool   `json:"bot"`
}

// TranscriptLineDTO is one stored transcript line.
type TranscriptLineDTO struct {
	ID        int64  `json:"id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// Status returns connection state and counts.
// GET /api/status
func (h *StatusHandlers) Status(c *gin.Context) {
	resp := StatusResponse{
		Bot:       h.lobby.Username(),
		Connected: h.lobby.Connected(),
	}
	if h.gateway != nil {
		resp.Sessions = h.gateway.SessionCount()
	}
	h.shared.Do(func(st *core.State) {
		resp.Clients = st.ClientCount()
		resp.Channels = len(st.Channels())
		resp.Mutes = st.Mutes.Len()
	})
	c.JSON(http.StatusOK, resp)
}

// Channels returns the registry.
// GET /api/channels
func (h *StatusHandlers) Channels(c *gin.Context) {
	var out []ChannelDTO
	h.shared.Do(func(st *core.State) {
		channels := st.Channels()
		out = make([]ChannelDTO, 0, len(channels))
		for _, ch := range channels {
			out = append(out, ChannelDTO{
				Name:      ch.Name,
				Founder:   ch.Founder,
				Operators: append([]string{}, ch.Operators...),
				Topic:     ch.Topic,
				Locked:    ch.Locked(),
				Static:    ch.Static,
				Joined:    ch.Joined,
				AntiSpam:  ch.AntiSpam,
				Members:   ch.Members(),
			})
		}
	})
	c.JSON(http.StatusOK, out)
}

// Client returns one online user.
// GET /api/clients/:name
func (h *StatusHandlers) Client(c *gin.Context) {
	name := c.Param("name")
	var (
		dto   ClientDTO
		found bool
	)
	h.shared.Do(func(st *core.State) {
		cl := st.Client(name)
		if cl == nil {
			return
		}
		found = true
		dto = ClientDTO{
			Name:   cl.Name,
			Status: cl.Status,
			Access: int(cl.Access()),
			InGame: cl.InGame(),
			Away:   cl.Away(),
			Bot:    cl.Bot(),
		}
	})
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "client not online"})
		return
	}
	c.JSON(http.StatusOK, dto)
}

// Transcript pages through a stored transcript, newest page first.
// GET /api/transcripts/:log?limit=N&before=ID
func (h *StatusHandlers) Transcript(c *gin.Context) {
	logName := c.Param("log")

	limit := defaultTranscriptLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = min(n, maxTranscriptLimit)
	}

	var beforeID *int64
	if raw := c.Query("before"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before"})
			return
		}
		beforeID = &id
	}

	lines, err := h.transcripts.ListTranscript(c.Request.Context(), logName, limit, beforeID)
	if err != nil {
		if errors.Is(err, store.ErrBadLogName) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid transcript name"})
			return
		}
		h.log.Error().Err(err).Str("log", logName).Msg("failed to list transcript")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]TranscriptLineDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, TranscriptLineDTO{
			ID:        l.ID,
			Body:      l.Body,
			CreatedAt: l.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, out)
}
