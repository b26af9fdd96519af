package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/menta2k/cat-tagline/pkg/analyzer"
	"github.com/menta2k/cat-tagline/pkg/credentials"
	"github.com/menta2k/cat-tagline/pkg/pipeline"
	"github.com/menta2k/cat-tagline/pkg/types"
)

//go:embed templates/index.html
var templateFS embed.FS

// Generator performs one run with a credential obtained from r
type Generator interface {
	Run(ctx context.Context, r pipeline.CredentialResolver, progress pipeline.ProgressFunc) (*types.Result, credentials.Resolution, error)
}

// Options configures a Server
type Options struct {
	Environment string
	Version     string
	// RateLimit is the sustained number of runs per second across all users;
	// zero disables limiting
	RateLimit  float64
	Burst      int
	SessionTTL time.Duration
	Logger     *slog.Logger
}

// Server renders the single-page UI
type Server struct {
	gen      Generator
	resolver *credentials.Resolver
	analyzer *analyzer.ImageAnalyzer
	sessions *SessionStore
	limiter  *rate.Limiter
	tmpl     *template.Template
	opts     Options
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewServer creates the UI server. resolver is shared by every session; each
// request works on a copy carrying that session's typed key.
func NewServer(gen Generator, resolver *credentials.Resolver, an *analyzer.ImageAnalyzer, opts Options) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, err
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if an == nil {
		an = analyzer.New()
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		gen:      gen,
		resolver: resolver,
		analyzer: an,
		sessions: NewSessionStore(opts.SessionTTL),
		limiter:  rate.NewLimiter(limit, burst),
		tmpl:     tmpl,
		opts:     opts,
		logger:   opts.Logger,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /key", s.handleKey)
	s.mux.HandleFunc("POST /key/clear", s.handleClearKey)
	s.mux.HandleFunc("POST /generate", s.handleGenerate)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.mux }

type resultView struct {
	ImageURL    template.URL
	ImageInfo   string
	Description string
	Tagline     string
}

type pageData struct {
	State       string
	SourceLabel string
	CanForget   bool
	KeyName     string
	KeyError    string
	Unavailable string
	Notice      string
	Error       string
	Result      *resultView
	Environment string
	Version     string
}

// resolverFor returns the resolver for this request's session
func (s *Server) resolverFor(r *http.Request) *credentials.Resolver {
	if !s.resolver.AcceptsPrompt() {
		return s.resolver
	}
	sess, _ := s.sessions.Get(r)
	return s.resolver.WithPrompt(sess.PromptKey)
}

// resolved hands a run the credential already looked up for the page, so a
// click costs one lookup per source
type resolved credentials.Resolution

func (r resolved) Resolve(context.Context) (credentials.Resolution, error) {
	return credentials.Resolution(r), nil
}

// page resolves the credential state for r and fills the common page fields
func (s *Server) page(r *http.Request) (pageData, credentials.Resolution) {
	resolver := s.resolverFor(r)
	data := pageData{
		KeyName:     credentials.DefaultKeyName,
		Environment: s.opts.Environment,
		Version:     s.opts.Version,
	}

	res, err := resolver.Resolve(r.Context())
	var credErr *credentials.CredentialError
	switch {
	case err == nil:
		data.State = "resolved"
		data.SourceLabel = sourceLabel(res)
		data.CanForget = res.Kind == credentials.KindPrompt
	case errors.As(err, &credErr) && credErr.Reason == credentials.ReasonPending:
		data.State = "pending"
		if credErr.Key != "" {
			data.KeyName = credErr.Key
		}
	default:
		data.State = "unavailable"
		data.Unavailable = "Please set your API key to use this app: " + err.Error()
	}
	return data, res
}

func sourceLabel(res credentials.Resolution) string {
	switch res.Kind {
	case credentials.KindFile:
		return "Running with API key from the local secret file"
	case credentials.KindHosted:
		return "Running with API key from the hosted secret store"
	}
	return "API key provided - ready to generate cat content!"
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, _ := s.page(r)
	s.render(w, http.StatusOK, data)
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	if !s.resolver.AcceptsPrompt() {
		http.Error(w, "API key input is disabled", http.StatusForbidden)
		return
	}

	key := strings.TrimSpace(r.PostFormValue("api_key"))
	if key == "" {
		data, _ := s.page(r)
		data.KeyError = "Please enter your API key above to continue"
		s.render(w, http.StatusBadRequest, data)
		return
	}

	s.sessions.SetPromptKey(w, r, key)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleClearKey(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearPromptKey(r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	data, cred := s.page(r)
	if data.State != "resolved" {
		data.Error = "An API key is required before generating"
		s.render(w, http.StatusBadRequest, data)
		return
	}

	if !s.limiter.Allow() {
		data.Error = "Too many requests, please wait a moment and try again"
		s.render(w, http.StatusTooManyRequests, data)
		return
	}

	result, res, err := s.gen.Run(r.Context(), resolved(cred), nil)
	data.Result = s.resultView(result)

	if err != nil {
		s.logger.Warn("generate failed", "error", err)
		data.Error = pipeline.Message(err)
		if errors.Is(err, credentials.ErrRejected) && res.Kind == credentials.KindPrompt {
			// drop the refused key so the form comes back
			s.sessions.ClearPromptKey(r)
			data.State = "pending"
			data.CanForget = false
		}
	} else {
		data.Notice = "🎉 Generated new cat content!"
	}

	s.render(w, http.StatusOK, data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n")
}

func (s *Server) resultView(result *types.Result) *resultView {
	if result == nil || result.Image == nil {
		return nil
	}

	view := &resultView{
		Description: string(result.Description),
		Tagline:     string(result.Tagline),
	}
	if url, err := s.analyzer.Preview(result.Image); err == nil {
		view.ImageURL = template.URL(url)
	} else {
		s.logger.Debug("preview failed", "error", err)
	}
	if info, err := s.analyzer.Inspect(result.Image); err == nil {
		view.ImageInfo = info.String()
	}
	return view
}

func (s *Server) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.Error("failed to render page", "error", err)
	}
}
