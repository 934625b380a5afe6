// Package api exposes the request/response facade over the same dispatcher
// the live WebSocket path uses. Clients without a socket (mobile background
// fetch, server-side rendering) get identical authorization and persistence
// semantics through plain HTTP.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/skilltrack/messenger/internal/auth"
	"github.com/skilltrack/messenger/internal/chat"
	"github.com/skilltrack/messenger/internal/metrics"
	"github.com/skilltrack/messenger/internal/ratelimit"
	"github.com/skilltrack/messenger/internal/users"
)

const userIDKey = "user_id"

// Directory is the user-lookup surface the facade needs: the chat service's
// name/existence reads plus full profile lookups.
type Directory interface {
	chat.Directory
	Get(ctx context.Context, userID int64) (*users.Profile, error)
}

// RateLimiter throttles facade sends. *ratelimit.Limiter implements it; a nil
// limiter disables throttling.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	Remaining(ctx context.Context, identifier string, rule ratelimit.Rule) (int, error)
}

// Config holds the facade's HTTP settings.
type Config struct {
	ListenAddr     string   // address to listen on, e.g. ":8081"
	AllowedOrigins []string // CORS origins; empty allows all
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":8081",
	}
}

// Server is the HTTP facade. It is a thin adapter: every handler parses the
// request, calls the shared chat service, and renders the result.
type Server struct {
	config   Config
	svc      *chat.Service
	verifier *auth.Verifier
	dir      Directory
	limiter  RateLimiter
	http     *http.Server
}

// NewServer creates the facade over the shared dispatcher. limiter may be nil.
func NewServer(config Config, svc *chat.Service, verifier *auth.Verifier, dir Directory, limiter RateLimiter) *Server {
	return &Server{config: config, svc: svc, verifier: verifier, dir: dir, limiter: limiter}
}

// Router builds the gin engine with middleware and routes. Exposed for tests.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(s.config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.config.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api", s.authenticate)
	{
		api.GET("/users/:id", s.getUser)
		api.GET("/conversations", s.listConversations)
		api.GET("/conversations/:peerID/messages", s.conversationHistory)
		api.POST("/conversations/:peerID/read", s.markRead)
		api.POST("/messages", s.sendMessage)
		api.PUT("/messages/:id", s.editMessage)
		api.DELETE("/messages/:id", s.deleteMessage)
	}

	return router
}

// Start runs the HTTP listener and blocks until shutdown.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: s.Router(),
	}

	log.Printf("[api] facade listening on %s", s.config.ListenAddr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP listener gracefully.
func (s *Server) Shutdown() error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// authenticate resolves the bearer token to a user ID or aborts with 401.
func (s *Server) authenticate(c *gin.Context) {
	userID, err := s.verifier.Authenticate(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "unauthenticated", "message": "invalid or missing credentials",
		})
		return
	}
	c.Set(userIDKey, userID)
	c.Next()
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

// messageView is the HTTP rendering of a message.
type messageView struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	Kind       string `json:"kind"`
	IsRead     bool   `json:"is_read"`
	IsEdited   bool   `json:"is_edited"`
	EditedAt   *int64 `json:"edited_at,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

func renderMessage(m *chat.Message) messageView {
	v := messageView{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Kind:       m.Kind,
		IsRead:     m.IsRead,
		IsEdited:   m.IsEdited,
		CreatedAt:  m.CreatedAt.Unix(),
	}
	if m.EditedAt != nil {
		ts := m.EditedAt.Unix()
		v.EditedAt = &ts
	}
	return v
}

// listConversations renders the caller's conversation list: newest message
// per peer, unread count, and the peer's display name.
func (s *Server) listConversations(c *gin.Context) {
	userID := currentUser(c)
	page, pageSize := pageParams(c)

	convs, total, err := s.svc.RecentPerPeer(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		renderError(c, err)
		return
	}

	type conversationView struct {
		PeerID      int64       `json:"peer_id"`
		PeerName    string      `json:"peer_name"`
		LastMessage messageView `json:"last_message"`
		UnreadCount int         `json:"unread_count"`
	}

	views := make([]conversationView, 0, len(convs))
	for _, conv := range convs {
		name, err := s.dir.DisplayName(c.Request.Context(), conv.PeerID)
		if err != nil {
			log.Printf("[api] display name for %d: %v", conv.PeerID, err)
		}
		views = append(views, conversationView{
			PeerID:      conv.PeerID,
			PeerName:    name,
			LastMessage: renderMessage(&conv.LastMessage),
			UnreadCount: conv.UnreadCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": views,
		"total":         total,
		"page":          page,
		"page_size":     pageSize,
	})
}

// conversationHistory returns one page of messages with a peer. Fetching
// history marks the peer's unread messages as read, mirroring the live path.
func (s *Server) conversationHistory(c *gin.Context) {
	userID := currentUser(c)
	peerID, ok := pathID(c, "peerID")
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	messages, total, err := s.svc.History(c.Request.Context(), userID, peerID, page, pageSize)
	if err != nil {
		renderError(c, err)
		return
	}

	views := make([]messageView, 0, len(messages))
	for i := range messages {
		views = append(views, renderMessage(&messages[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":  views,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (s *Server) sendMessage(c *gin.Context) {
	userID := currentUser(c)

	var req struct {
		ReceiverID int64  `json:"receiver_id" binding:"required"`
		Content    string `json:"content"`
		Kind       string `json:"kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_argument", "message": "malformed request body",
		})
		return
	}

	if !s.allowSend(c, userID) {
		return
	}

	m, err := s.svc.Send(c.Request.Context(), userID, req.ReceiverID, req.Content, req.Kind)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, renderMessage(m))
}

// allowSend applies the per-user message rate limit and sets the usual
// X-RateLimit headers. Limiter failures fail open, like the live path.
func (s *Server) allowSend(c *gin.Context, userID int64) bool {
	if s.limiter == nil {
		return true
	}

	id := strconv.FormatInt(userID, 10)
	allowed, err := s.limiter.Allow(c.Request.Context(), id, ratelimit.RuleMessage)
	if err != nil {
		log.Printf("[api] rate limit check for %s: %v", id, err)
		return true
	}

	if remaining, err := s.limiter.Remaining(c.Request.Context(), id, ratelimit.RuleMessage); err == nil {
		c.Header("X-RateLimit-Limit", strconv.Itoa(ratelimit.RuleMessage.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}

	if !allowed {
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "rate_limited", "message": "sending too fast, slow down",
		})
		return false
	}
	return true
}

// getUser returns a peer's public profile for conversation headers.
func (s *Server) getUser(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	p, err := s.dir.Get(c.Request.Context(), userID)
	if err != nil {
		renderError(c, err)
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not_found", "message": "user not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           p.ID,
		"display_name": p.DisplayName,
		"avatar_url":   p.AvatarURL,
	})
}

func (s *Server) editMessage(c *gin.Context) {
	userID := currentUser(c)
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_argument", "message": "malformed request body",
		})
		return
	}

	m, err := s.svc.Edit(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, renderMessage(m))
}

func (s *Server) deleteMessage(c *gin.Context) {
	userID := currentUser(c)
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.svc.Delete(c.Request.Context(), messageID, userID); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) markRead(c *gin.Context) {
	userID := currentUser(c)
	peerID, ok := pathID(c, "peerID")
	if !ok {
		return
	}

	var req struct {
		MessageIDs []int64 `json:"message_ids"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid_argument", "message": "malformed request body",
			})
			return
		}
	}

	marked, err := s.svc.MarkRead(c.Request.Context(), peerID, userID, req.MessageIDs)
	if err != nil {
		renderError(c, err)
		return
	}
	if marked == nil {
		marked = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// pathID parses a positive int64 path parameter, rendering 400 on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_argument", "message": "invalid " + name,
		})
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(chat.DefaultPageSize)))
	return page, pageSize
}

// renderError maps the service error taxonomy onto HTTP status codes.
func renderError(c *gin.Context, err error) {
	code := chat.ErrorCode(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, chat.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, chat.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		log.Printf("[api] internal error: %v", err)
		c.JSON(status, gin.H{"error": code, "message": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
