package http

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duochat-server/internal/auth"
	"github.com/vovakirdan/duochat-server/internal/config"
	"github.com/vovakirdan/duochat-server/internal/core"
	"github.com/vovakirdan/duochat-server/internal/store"
)

// Server is the HTTP server together with the websocket handler it drains on shutdown.
type Server struct {
	*http.Server
	ws *WSHandler
}

// NewServer builds the HTTP server with the REST API and the websocket endpoint.
// The websocket endpoint sits on the mux in front of gin so the upgraded
// connection is never touched by gin's response writer.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *Server {
	ws := NewWSHandler(hub, authService, cfg, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/", NewRouter(hub, authService, st, cfg, logger))

	return &Server{
		Server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		ws: ws,
	}
}

// Shutdown stops the listener, then closes live websocket connections and
// waits for their handlers to finish. Hijacked connections are not tracked
// by http.Server, so the second step is needed before the hub and store go away.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	if drainErr := s.ws.Close(ctx); err == nil {
		err = drainErr
	}
	return err
}

// NewRouter registers the REST routes on a gin engine.
func NewRouter(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger), CORSMiddleware(cfg.FrontendURL))

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, hub, logger)
	conversationHandlers := NewConversationHandlers(st, logger)
	messageHandlers := NewMessageHandlers(st, hub, logger)

	r.GET("/health", healthHandler)

	api := r.Group("/api")
	api.GET("", livenessHandler)
	api.POST("/signUp", apiHandlers.SignUp)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("", AuthMiddleware(authService, logger))
	authed.POST("/logout", apiHandlers.Logout)
	authed.GET("/users", userHandlers.ListUsers)
	authed.POST("/conversation", conversationHandlers.CreateConversation)
	authed.GET("/conversation/:userId", conversationHandlers.ListConversations)
	authed.POST("/message", messageHandlers.SendMessage)
	authed.GET("/message/:conversationId", messageHandlers.ListMessages)

	if cfg.StaticDir != "" {
		r.NoRoute(staticHandler(cfg.StaticDir))
	}

	return r
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func livenessHandler(c *gin.Context) {
	c.String(http.StatusOK, "duochat server is running")
}

// staticHandler serves the built web client, falling back to index.html so
// client-side routes resolve.
func staticHandler(dir string) gin.HandlerFunc {
	root := http.Dir(dir)
	files := http.FileServer(root)
	index := filepath.Join(dir, "index.html")

	return func(c *gin.Context) {
		method := c.Request.Method
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || (method != http.MethodGet && method != http.MethodHead) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
			return
		}

		f, err := root.Open(path.Clean(c.Request.URL.Path))
		if err == nil {
			info, statErr := f.Stat()
			_ = f.Close()
			if statErr == nil && !info.IsDir() {
				files.ServeHTTP(c.Writer, c.Request)
				return
			}
		}

		if _, err := os.Stat(index); errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
			return
		}
		c.File(index)
	}
}
