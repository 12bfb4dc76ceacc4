package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TFMV/echoes/ingest"
	"github.com/TFMV/echoes/models"
	"github.com/TFMV/echoes/physics"
	"github.com/TFMV/echoes/render"
	"github.com/TFMV/echoes/viewer"
	"github.com/gorilla/websocket"
)

// Config for the server
type Config struct {
	Port           int
	FrameInterval  time.Duration // simulation tick
	StreamInterval time.Duration // minimum spacing of websocket frames
	MaxSessions    int
	Viewport       models.Viewport
	PixelRatio     float64
	Style          render.Style
	Export         func(format string) *render.OutputOptions
	Layout         func() (physics.Layout, error) // called once per view
	DebugMode      bool
}

// Limits for the frame export endpoint
const (
	defaultSteps = 50
	maxSteps     = 2000
	maxDimension = 4096
)

// Server serves concept data, rendered frames and live websocket sessions
type Server struct {
	config   *Config
	provider ingest.Provider
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	baseCtx  context.Context

	mu       sync.RWMutex
	concepts map[string]*models.Concept // by lowercased name
	sessions map[string]*session
}

// New creates a server that loads concepts through provider
func New(config *Config, provider ingest.Provider) *Server {
	if config.Layout == nil {
		config.Layout = func() (physics.Layout, error) {
			return physics.NewForceDirectedLayout(physics.DefaultConfig()), nil
		}
	}
	if config.Export == nil {
		config.Export = render.NewDefaultOptions
	}
	if config.Viewport.Degenerate() {
		config.Viewport = models.Viewport{Width: 800, Height: 400}
	}

	s := &Server{
		config:   config,
		provider: provider,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:      http.NewServeMux(),
		baseCtx:  context.Background(),
		concepts: make(map[string]*models.Concept),
		sessions: make(map[string]*session),
	}

	// Register routes
	s.mux.HandleFunc("/", s.handleIndex())
	s.mux.HandleFunc("/health", s.handleHealth())
	s.mux.HandleFunc("/upload", s.handleUpload())
	s.mux.HandleFunc("/api/concept", s.handleAPIConcept())
	s.mux.HandleFunc("/api/snapshot", s.handleAPISnapshot())
	s.mux.HandleFunc("/frame", s.handleFrame())
	s.mux.HandleFunc("/ws", s.handleWebSocket())
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start launches the web server and blocks until ctx is canceled
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx

	// Start server with timeout protection
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on port %d...", s.config.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeSessions()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Concept returns the named concept, loading it through the provider on first use
func (s *Server) Concept(ctx context.Context, name string) (*models.Concept, error) {
	key := strings.ToLower(name)

	s.mu.RLock()
	c, ok := s.concepts[key]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	c, err := s.provider.Load(ctx, name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.concepts[key] = c
	s.mu.Unlock()
	return c, nil
}

// Replace swaps in a new version of a concept, e.g. after its file changed.
// Live sessions showing it switch to the new timeline.
func (s *Server) Replace(c *models.Concept) {
	key := strings.ToLower(c.Name)

	s.mu.Lock()
	for name, cached := range s.concepts {
		if strings.EqualFold(cached.Name, c.Name) {
			s.concepts[name] = c
		}
	}
	s.concepts[key] = c
	var affected []*session
	for _, sess := range s.sessions {
		if sess.concept == key {
			affected = append(affected, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range affected {
		sess.setTimeline(c.Timeline)
	}
}

// Sessions returns the number of live websocket sessions
func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) closeSessions() {
	s.mu.RLock()
	var all []*session
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	for _, sess := range all {
		sess.conn.Close()
	}
}

// handleIndex renders the main page
func (s *Server) handleIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, indexHTML)
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.Sessions()})
	}
}

// handleUpload processes uploaded dataset files
func (s *Server) handleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Parse multipart form
		if err := r.ParseMultipartForm(10 << 20); err != nil { // 10 MB limit
			http.Error(w, "Error parsing form: "+err.Error(), http.StatusBadRequest)
			return
		}

		file, handler, err := r.FormFile("dataFile")
		if err != nil {
			http.Error(w, "Error retrieving file: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()

		// Keep the original file name so the extension picks the processor and
		// the base name can serve as the concept name
		dir, err := os.MkdirTemp("", "echoes-upload-*")
		if err != nil {
			http.Error(w, "Error creating temp dir: "+err.Error(), http.StatusInternalServerError)
			return
		}
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, filepath.Base(handler.Filename))
		tempFile, err := os.Create(path)
		if err != nil {
			http.Error(w, "Error creating temp file: "+err.Error(), http.StatusInternalServerError)
			return
		}
		_, err = io.Copy(tempFile, file)
		tempFile.Close()
		if err != nil {
			http.Error(w, "Error saving file: "+err.Error(), http.StatusInternalServerError)
			return
		}

		concept, err := ingest.ProcessFile(path)
		if err != nil {
			http.Error(w, "Error processing file: "+err.Error(), http.StatusBadRequest)
			return
		}
		if name := r.FormValue("concept"); name != "" {
			concept.Name = name
		}
		s.Replace(concept)
		log.Printf("Uploaded %q (%d snapshots)", concept.Name, concept.Timeline.Len())

		http.Redirect(w, r, "/?concept="+url.QueryEscape(concept.Name), http.StatusSeeOther)
	}
}

// handleAPIConcept returns a concept with all of its snapshots
func (s *Server) handleAPIConcept() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.conceptFromRequest(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, ingest.ToFile(c))
	}
}

// SnapshotResponse is returned by /api/snapshot
type SnapshotResponse struct {
	Concept   string                `json:"concept"`
	Requested int                   `json:"requested"`
	Key       int                   `json:"key"`
	Keys      []int                 `json:"keys"`
	Snapshot  *models.GraphSnapshot `json:"snapshot"`
}

// handleAPISnapshot resolves a requested key to the nearest snapshot
func (s *Server) handleAPISnapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.conceptFromRequest(w, r)
		if !ok {
			return
		}

		requested, err := intParam(r, "key", 0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("key") == "" {
			_, requested, _ = c.Timeline.Range()
		}

		snapshot, err := c.Timeline.Resolve(requested)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, SnapshotResponse{
			Concept:   c.Name,
			Requested: requested,
			Key:       snapshot.Key,
			Keys:      c.Timeline.Keys(),
			Snapshot:  snapshot,
		})
	}
}

// handleFrame runs the simulation for a number of steps and renders the result
func (s *Server) handleFrame() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.conceptFromRequest(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		format := q.Get("format")
		if format == "" {
			format = "png"
		}
		renderer, err := render.GetRenderer(format)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		steps, err1 := intParam(r, "steps", defaultSteps)
		seed, err2 := intParam(r, "seed", 1)
		width, err3 := intParam(r, "width", int(s.config.Viewport.Width))
		height, err4 := intParam(r, "height", int(s.config.Viewport.Height))
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if steps < 0 || steps > maxSteps || width <= 0 || height <= 0 || width > maxDimension || height > maxDimension {
			http.Error(w, "steps, width or height out of range", http.StatusBadRequest)
			return
		}

		vp := models.Viewport{Width: float64(width), Height: float64(height)}
		view, err := s.newView(c, vp, physics.RandomPlacement(int64(seed)))
		if err != nil {
			http.Error(w, "Error creating view: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if q.Get("key") != "" {
			key, err := intParam(r, "key", 0)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if _, err := view.SetTimeKey(key); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		// This handler owns the view, so it drives it directly
		if err := view.Reset(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for i := 0; i < steps; i++ {
			view.Tick()
		}

		options := s.config.Export(format)
		options.Width, options.Height = vp.Width, vp.Height
		options.Title = fmt.Sprintf("%s · %d", c.Name, view.CurrentKey())
		output, err := renderer.Render(view.Frame(), options)
		if err != nil {
			http.Error(w, "Error generating visualization: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", render.ContentType(format))
		w.Header().Set("X-Echoes-Key", strconv.Itoa(view.CurrentKey()))
		w.Write(output)
	}
}

func (s *Server) newView(c *models.Concept, vp models.Viewport, placement physics.Placement) (*viewer.View, error) {
	layout, err := s.config.Layout()
	if err != nil {
		return nil, err
	}
	return viewer.New(c.Timeline, viewer.Options{
		Layout:    layout,
		Placement: placement,
		Style:     s.config.Style,
		Canvas:    render.NewSurface(vp, s.config.PixelRatio),
		Viewport:  vp,
	})
}

func (s *Server) conceptFromRequest(w http.ResponseWriter, r *http.Request) (*models.Concept, bool) {
	name := r.URL.Query().Get("concept")
	if name == "" {
		name = r.URL.Query().Get("name")
	}
	if name == "" {
		http.Error(w, "Missing concept", http.StatusBadRequest)
		return nil, false
	}

	c, err := s.Concept(r.Context(), name)
	if err != nil {
		http.Error(w, "Error loading concept: "+err.Error(), http.StatusBadGateway)
		return nil, false
	}
	return c, true
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
