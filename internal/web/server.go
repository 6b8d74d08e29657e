// Package web serves the browser chat form.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cabot/internal/domain"
	"cabot/internal/logger"
	"cabot/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

const cookieName = "cabot_session"

// Chatter is what the server needs from the chat service.
type Chatter interface {
	session.Asker
	Ready(ctx context.Context) error
}

// Server is the browser front end. Each cookie maps to one session.
type Server struct {
	engine   *gin.Engine
	chat     Chatter
	sessions *session.Store
	samples  []string
	log      *zap.Logger
	ready    atomic.Bool
}

func New(chat Chatter, sessions *session.Store, samples []string, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:   gin.New(),
		chat:     chat,
		sessions: sessions,
		samples:  samples,
		log:      logger.OrNop(log),
	}
	s.engine.Use(gin.Recovery(), s.accessLog())
	s.engine.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/", s.index)
	s.engine.POST("/ask", s.ask)
	s.engine.POST("/sample", s.sample)
	s.engine.POST("/clear", s.clear)
	s.engine.POST("/api/chat", s.apiChat)
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Handler exposes the router for tests and custom servers.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("serving", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type pageData struct {
	InitError  string
	Transcript []session.Entry
	Samples    []string
	Stats      session.Stats
}

func (s *Server) index(c *gin.Context) {
	sess := s.session(c)
	data := pageData{
		Transcript: sess.Transcript(),
		Samples:    s.samples,
		Stats:      sess.Stats(),
	}
	if err := s.checkReady(c.Request.Context()); err != nil {
		data.InitError = err.Error()
	}
	c.HTML(http.StatusOK, "index.html", data)
}

func (s *Server) ask(c *gin.Context) {
	s.askAndRedirect(c, c.PostForm("query"))
}

func (s *Server) sample(c *gin.Context) {
	s.askAndRedirect(c, c.PostForm("question"))
}

func (s *Server) askAndRedirect(c *gin.Context, query string) {
	sess := s.session(c)
	if q := strings.TrimSpace(query); q != "" {
		sess.Ask(c.Request.Context(), s.chat, q)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// clear ends the stored session; the redirect starts a fresh one.
func (s *Server) clear(c *gin.Context) {
	if id, err := c.Cookie(cookieName); err == nil {
		s.sessions.Delete(id)
	}
	s.session(c)
	c.Redirect(http.StatusSeeOther, "/")
}

type chatRequest struct {
	Query string `json:"query" binding:"required"`
}

type sourceJSON struct {
	Text      string  `json:"text"`
	PageLabel string  `json:"page_label"`
	Source    string  `json:"source"`
	Score     float64 `json:"score"`
}

type chatResponse struct {
	Reply   string        `json:"reply"`
	Error   string        `json:"error,omitempty"`
	Kind    string        `json:"kind,omitempty"`
	Sources []sourceJSON  `json:"sources"`
	Stats   session.Stats `json:"stats"`
}

func (s *Server) apiChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	sess := s.session(c)
	turn := sess.Ask(c.Request.Context(), s.chat, strings.TrimSpace(req.Query))
	resp := chatResponse{Reply: turn.Reply, Sources: make([]sourceJSON, 0, len(turn.Sources)), Stats: sess.Stats()}
	for _, r := range turn.Sources {
		resp.Sources = append(resp.Sources, sourceJSON{Text: r.Chunk.Text, PageLabel: r.Chunk.PageLabel, Source: r.Chunk.Source, Score: r.Score})
	}
	status := http.StatusOK
	if turn.Failed() {
		resp.Error = turn.Err.Error()
		resp.Kind = string(domain.Classify(turn.Err))
		status = http.StatusBadGateway
	}
	c.JSON(status, resp)
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.checkReady(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.Len()})
}

// checkReady remembers the first success; failures are retried on the next request.
func (s *Server) checkReady(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}
	if err := s.chat.Ready(ctx); err != nil {
		s.log.Warn("collection not ready", zap.Error(err))
		return err
	}
	s.ready.Store(true)
	return nil
}

func (s *Server) session(c *gin.Context) *session.Session {
	id, _ := c.Cookie(cookieName)
	sess, created := s.sessions.GetOrCreate(id)
	if created {
		maxAge := int(s.sessions.TTL().Seconds())
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookieName, sess.ID, maxAge, "/", "", false, true)
	}
	return sess
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}
