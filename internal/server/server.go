package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/newsrank/internal/classify"
	"github.com/TobiSchelling/newsrank/internal/database"
	"github.com/TobiSchelling/newsrank/internal/ledger"
	"github.com/TobiSchelling/newsrank/internal/logging"
	"github.com/TobiSchelling/newsrank/internal/recommend"
	"github.com/TobiSchelling/newsrank/internal/taxonomy"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP surface over the ledger and the recommendation engine.
type Server struct {
	db         *database.DB
	ledger     *ledger.Ledger
	engine     *recommend.Engine
	classifier *classify.Classifier
	pages      map[string]*template.Template
	router     chi.Router
}

// ReadingItem is one entry of a user's reading list.
type ReadingItem struct {
	ArticleID int64   `json:"article_id"`
	Title     string  `json:"title"`
	Score     float64 `json:"score"`
}

// Preference is one category score of a user.
type Preference struct {
	Category string `json:"category"`
	Score    int    `json:"score"`
}

// New creates a new Server.
func New(db *database.DB, tax *taxonomy.Taxonomy, opts recommend.Options) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so its "title" and "content"
	// blocks do not collide with other pages.
	pageNames := []string{"index.html", "reading.html", "article.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		db:         db,
		ledger:     ledger.New(db),
		engine:     recommend.New(db, tax, opts),
		classifier: classify.New(tax, db),
		pages:      pages,
		router:     chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", s.handleIndex)
	r.Get("/users", s.handleUserSwitch)
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/", s.handleReadingList)
		r.Get("/articles/{articleID}", s.handleArticle)
		r.Post("/articles/{articleID}/feedback", s.handleFeedbackForm)
	})

	r.Route("/api/users/{userID}", func(r chi.Router) {
		r.Get("/recommendations", s.handleAPIRecommendations)
		r.Get("/preferences", s.handleAPIPreferences)
		r.Post("/articles/{articleID}/{kind}", s.handleAPIFeedback)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	articles, err := s.db.ListArticles(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Articles": articles,
		"Stats":    stats,
	})
}

func (s *Server) handleUserSwitch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/users/%d", id), http.StatusFound)
}

func (s *Server) handleReadingList(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}

	items, fallback, err := s.readingList(r.Context(), userID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	prefs, err := s.preferences(r.Context(), userID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	s.render(w, "reading.html", map[string]any{
		"UserID":      userID,
		"Items":       items,
		"Fallback":    fallback,
		"Preferences": prefs,
	})
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	articleID, ok := idParam(w, r, "articleID")
	if !ok {
		return
	}
	ctx := r.Context()

	article, err := s.db.GetArticle(ctx, articleID)
	if errors.Is(err, database.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	if err := s.ledger.View(ctx, userID, articleID); err != nil {
		s.internalError(w, r, err)
		return
	}
	interaction, err := s.ledger.Interaction(ctx, userID, articleID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	rows, err := s.db.GetClassification(ctx, articleID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	counts := make(map[string]int, len(rows))
	for _, c := range rows {
		counts[c.Category] = c.KeywordCount
	}
	top, _ := s.classifier.TopCategory(counts)

	s.render(w, "article.html", map[string]any{
		"UserID":      userID,
		"Article":     article,
		"TopCategory": top,
		"Interaction": interaction,
		"Kinds":       []ledger.Kind{ledger.KindLike, ledger.KindDislike, ledger.KindSkip},
	})
}

func (s *Server) handleFeedbackForm(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	articleID, ok := idParam(w, r, "articleID")
	if !ok {
		return
	}

	kind := ledger.Kind(r.FormValue("kind"))
	rating, _ := strconv.Atoi(r.FormValue("rating"))
	if err := s.ledger.Apply(r.Context(), kind, userID, articleID, rating); err != nil {
		http.Error(w, err.Error(), feedbackStatus(err))
		return
	}

	http.Redirect(w, r, fmt.Sprintf("/users/%d", userID), http.StatusSeeOther)
}

func (s *Server) handleAPIRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}

	items, _, err := s.readingList(r.Context(), userID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":         userID,
		"recommendations": items,
	})
}

func (s *Server) handleAPIPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}

	prefs, err := s.preferences(r.Context(), userID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"preferences": prefs,
	})
}

func (s *Server) handleAPIFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	articleID, ok := idParam(w, r, "articleID")
	if !ok {
		return
	}

	kind := ledger.Kind(chi.URLParam(r, "kind"))
	var rating int
	if raw := r.URL.Query().Get("rating"); raw != "" {
		var err error
		if rating, err = strconv.Atoi(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rating must be an integer"})
			return
		}
	}

	if err := s.ledger.Apply(r.Context(), kind, userID, articleID, rating); err != nil {
		writeJSON(w, feedbackStatus(err), map[string]string{"error": err.Error()})
		return
	}
	interaction, err := s.ledger.Interaction(r.Context(), userID, articleID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"article_id":  articleID,
		"kind":        kind,
		"interaction": interaction,
	})
}

// readingList returns the hybrid recommendation for the user. When the
// engine has nothing to offer it falls back to every stored title and
// reports fallback=true.
func (s *Server) readingList(ctx context.Context, userID int64) (items []ReadingItem, fallback bool, err error) {
	scored, err := s.engine.RecommendScored(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	if len(scored) == 0 {
		titles, err := s.db.ListTitles(ctx)
		if err != nil {
			return nil, false, err
		}
		for _, t := range titles {
			scored = append(scored, recommend.Scored{Title: t})
		}
		fallback = true
	}

	items = make([]ReadingItem, 0, len(scored))
	for _, sc := range scored {
		id, err := s.db.GetArticleIDByTitle(ctx, sc.Title)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		items = append(items, ReadingItem{ArticleID: id, Title: sc.Title, Score: sc.Score})
	}
	return items, fallback, nil
}

func (s *Server) preferences(ctx context.Context, userID int64) ([]Preference, error) {
	prefs, err := s.ledger.Preferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Preference, 0, len(prefs))
	for cat, score := range prefs {
		out = append(out, Preference{Category: cat, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		logging.Error().Str("template", name).Msg("template not found")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		logging.Error().Err(err).Str("template", name).Msg("rendering template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Error().Err(err).
		Str("request_id", chimiddleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func feedbackStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrArticleNotFound):
		return http.StatusNotFound
	case database.IsStorageError(err):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("encoding response")
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port and shuts it down when ctx
// is cancelled.
func Serve(ctx context.Context, db *database.DB, tax *taxonomy.Taxonomy, opts recommend.Options, port int) error {
	srv, err := New(db, tax, opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Msgf("Server listening on http://%s", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
