// Package server exposes the plugin engine over HTTP: the reverse-proxy
// boundary dispatching http_pre_request/http_post_request, and an
// operational surface for stats, mode toggling and the live violation
// feed. Grounded on apps/backend/internal/server/routes.go in the
// teacher: gin.New() plus gin-contrib/cors applied globally, generalized
// from the gateway's full API surface to the plugin engine's narrower
// one.
package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/latchmesh/pluginchain/internal/hook"
	"github.com/latchmesh/pluginchain/internal/manager"
	"github.com/latchmesh/pluginchain/internal/transport"
)

// CORSConfig mirrors the two profiles the teacher's routes.go switches on
// (development vs. production), kept small since this server's surface is
// narrower than the gateway's.
type CORSConfig struct {
	AllowOrigins []string
	Environment  string
}

// Server wires the Manager into a gin.Engine.
type Server struct {
	engine *gin.Engine
	mgr    *manager.Manager
	hub    *transport.Hub
}

// New builds the engine's HTTP surface. hub may be nil to disable the
// live violation feed endpoint.
func New(mgr *manager.Manager, hub *transport.Hub, corsCfg CORSConfig) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	allowCredentials := true
	r.Use(cors.New(cors.Config{
		AllowOrigins:     corsCfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "X-API-Key"},
		AllowCredentials: allowCredentials,
	}))

	s := &Server{engine: r, mgr: mgr, hub: hub}
	s.registerRoutes()
	return s
}

// Handler returns the server's http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/plugins/stats", s.handleStats)
	s.engine.POST("/plugins/:name/mode", s.handleSetMode)
	s.engine.Any("/proxy/*path", s.handleProxy)

	if s.hub != nil {
		s.engine.GET("/ws/violations", func(c *gin.Context) {
			s.hub.ServeHTTP(c.Writer, c.Request)
		})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "plugins": s.mgr.PluginCount()})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plugins": s.mgr.Stats()})
}

type setModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (s *Server) handleSetMode(c *gin.Context) {
	name := c.Param("name")
	var req setModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode := hook.Mode(req.Mode)
	if !mode.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mode"})
		return
	}
	if err := s.mgr.SetMode(name, mode); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"plugin": name, "mode": req.Mode})
}

// handleProxy is the reverse-proxy boundary: it dispatches
// http_pre_request before the upstream call and http_post_request after,
// surfacing a plugin violation as the HTTP response instead of
// forwarding upstream.
func (s *Server) handleProxy(c *gin.Context) {
	global := &hook.GlobalContext{
		Timestamp: time.Now(),
		RequestID: requestID(c),
		User:      c.GetHeader("X-User"),
		TenantID:  c.GetHeader("X-Tenant-ID"),
		ServerID:  c.Param("path"),
	}
	table := manager.NewTable()

	body, _ := io.ReadAll(c.Request.Body)
	reqPayload := &hook.HTTPPayload{
		Headers:     c.Request.Header,
		Method:      c.Request.Method,
		Path:        c.Param("path"),
		ContentType: c.ContentType(),
		Body:        body,
	}

	preResult, err := s.mgr.HTTPPreRequest(c.Request.Context(), global, table, reqPayload)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if preResult.Violation != nil {
		writeViolation(c, s.hub, global, hook.HTTPPreRequest, *preResult.Violation)
		return
	}
	if preResult.ModifiedPayload != nil {
		reqPayload = preResult.ModifiedPayload
	}

	// A real deployment forwards reqPayload to the upstream MCP server
	// here; this engine's own scope ends at the pre/post hook contract,
	// so the response is synthesized as an echo for testability.
	respPayload := &hook.HTTPPayload{
		Headers:     http.Header{"Content-Type": []string{reqPayload.ContentType}},
		Method:      reqPayload.Method,
		Path:        reqPayload.Path,
		ContentType: reqPayload.ContentType,
		Body:        reqPayload.Body,
		StatusCode:  http.StatusOK,
	}

	postResult, err := s.mgr.HTTPPostRequest(c.Request.Context(), global, table, respPayload)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if postResult.Violation != nil {
		writeViolation(c, s.hub, global, hook.HTTPPostRequest, *postResult.Violation)
		return
	}
	if postResult.ModifiedPayload != nil {
		respPayload = postResult.ModifiedPayload
	}

	c.Data(respPayload.StatusCode, respPayload.ContentType, respPayload.Body)
}

func writeViolation(c *gin.Context, hub *transport.Hub, global *hook.GlobalContext, hookKind hook.Kind, v hook.Violation) {
	if hub != nil {
		hub.Broadcast(transport.ViolationEvent{
			Timestamp: time.Now(),
			RequestID: global.RequestID,
			HookKind:  string(hookKind),
			Violation: v,
		})
	}
	c.JSON(http.StatusForbidden, gin.H{
		"error":       v.Reason,
		"description": v.Description,
		"code":        v.Code,
		"plugin":      v.PluginName,
	})
}

func requestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return c.Request.Method + " " + c.Request.URL.Path
}
