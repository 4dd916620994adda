package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chanserv/internal/config"
	"github.com/vovakirdan/chanserv/internal/core"
	"github.com/vovakirdan/chanserv/internal/store"
)

// Lobby reports the upstream session state.
type Lobby interface {
	Connected() bool
	Username() string
}

// Gateway reports the remote-access listener's open sessions.
type Gateway interface {
	SessionCount() int
}

// KeyVerifier checks a bearer key or remote token.
type KeyVerifier interface {
	Verify(key string) (string, error)
}

// Deps are the collaborators behind the status API.
// Gateway, Transcripts and Keys are optional.
type Deps struct {
	Shared      *core.Shared
	Lobby       Lobby
	Gateway     Gateway
	Transcripts store.TranscriptStore
	// Keys unlocks private transcripts; without it only channel logs are served.
	Keys KeyVerifier
}

// NewServer builds the read-only status API.
func NewServer(deps Deps, cfg config.StatusConfig, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg.RequestsPerMinute, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter builds the gin engine behind NewServer.
func NewRouter(deps Deps, perMinute int, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	h := NewStatusHandlers(deps, logger)
	api := router.Group("/api")
	api.Use(RateLimitMiddleware(newRateLimiter(perMinute)))
	{
		api.GET("/status", h.Status)
		api.GET("/channels", h.Channels)
		api.GET("/clients/:name", h.Client)
		if deps.Transcripts != nil {
			api.GET("/transcripts/:log", PrivateLogMiddleware(deps.Keys, logger), h.Transcript)
		}
	}

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
