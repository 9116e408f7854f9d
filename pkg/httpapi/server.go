package httpapi

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dotsetgreg/jarvis/pkg/agent"
	"github.com/dotsetgreg/jarvis/pkg/channels"
	"github.com/dotsetgreg/jarvis/pkg/config"
	"github.com/dotsetgreg/jarvis/pkg/logger"
	"github.com/dotsetgreg/jarvis/pkg/memory"
	"github.com/dotsetgreg/jarvis/pkg/observability"
)

const healthBanner = "Jarvis AI Bot is running!"

// Processor runs one message through the reply pipeline. Satisfied by the
// agent loop; tests plug in fakes.
type Processor interface {
	Process(ctx context.Context, req agent.Request) (string, error)
}

// twimlResponse is the envelope Twilio expects back from an SMS webhook.
// An empty Message element is omitted, which tells Twilio to send nothing.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

type statusResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Users    int64  `json:"users"`
	Turns    int64  `json:"turns"`
	Facts    int64  `json:"facts"`
	UptimeS  int64  `json:"uptime_seconds"`
}

type Server struct {
	cfg       *config.Config
	processor Processor
	manager   *memory.Manager
	srv       *http.Server
	startedAt time.Time
}

func NewServer(cfg *config.Config, processor Processor, manager *memory.Manager) *Server {
	s := &Server{
		cfg:       cfg,
		processor: processor,
		manager:   manager,
		startedAt: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleRoot)
	r.Get("/status", s.handleStatus)
	r.Get("/metrics", observability.MetricsHandler().ServeHTTP)
	r.Post("/sms", s.handleSMS)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) Start() error {
	logger.InfoCF("gateway", "HTTP gateway listening", map[string]interface{}{
		"addr": s.srv.Addr,
	})
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(healthBanner))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	users, turns, facts := s.manager.Counts(r.Context())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusResponse{
		Status:   "ok",
		Provider: s.cfg.Agent.Provider,
		Model:    s.cfg.Agent.Model,
		Users:    users,
		Turns:    turns,
		Facts:    facts,
		UptimeS:  int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleSMS is the Twilio inbound webhook. Twilio delivers the message as a
// form post and reads the reply from the TwiML body, so this path is
// synchronous and always answers 200 with an envelope.
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	from := strings.TrimSpace(r.PostFormValue("From"))
	body := strings.TrimSpace(r.PostFormValue("Body"))
	if from == "" || body == "" {
		http.Error(w, "From and Body are required", http.StatusBadRequest)
		return
	}

	if !channels.Allowed(s.cfg.Channels.SMS.AllowFrom, from) {
		logger.WarnCF("gateway", "SMS rejected by allowlist", map[string]interface{}{
			"from": from,
		})
		s.writeTwiML(w, "")
		return
	}

	reply, err := s.processor.Process(r.Context(), agent.Request{
		Platform: memory.PlatformSMS,
		SenderID: from,
		ChatID:   from,
		Content:  body,
	})
	if err != nil {
		logger.ErrorCF("gateway", "SMS reply pipeline failed", map[string]interface{}{
			"from":  from,
			"error": err.Error(),
		})
		reply = agent.FallbackReply
	}

	s.writeTwiML(w, reply)
}

func (s *Server) writeTwiML(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/xml")
	out, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}
