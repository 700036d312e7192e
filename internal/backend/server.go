package backend

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

// Server handles HTTP requests for the pharmacy collaborators
type Server struct {
	service     *Service
	basicAuth   BasicAuth
	scanLimiter *rate.Limiter
	mux         *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewScanLimiter allows perMinute scans per minute with a burst of the same size.
// A zero or negative rate returns nil, meaning no limit.
func NewScanLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
}

// NewServer creates a new Server with default mux. scanLimiter may be nil.
func NewServer(service *Service, basicAuth BasicAuth, scanLimiter *rate.Limiter) *Server {
	return NewServerWithMux(service, basicAuth, scanLimiter, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, scanLimiter *rate.Limiter, mux *http.ServeMux) *Server {
	s := &Server{
		service:     service,
		basicAuth:   basicAuth,
		scanLimiter: scanLimiter,
		mux:         mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="MedEase"`)
			writeDetail(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// limitScans rejects scans above the configured rate
func (s *Server) limitScans(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.scanLimiter != nil && !s.scanLimiter.Allow() {
			slog.Warn("Scan rate limit exceeded", "remote", r.RemoteAddr)
			writeDetail(w, "Too many scans. Please wait a moment and try again.", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/prescriptions/scan", s.requireAuth(s.limitScans(s.handleScanPrescription)))

	s.mux.HandleFunc("POST /api/bills/{id}/confirm", s.requireAuth(s.handleConfirmBill))
	s.mux.HandleFunc("GET /api/bills/{id}/prescription", s.requireAuth(s.handleGetPrescriptionFile))
	s.mux.HandleFunc("GET /api/bills/{id}", s.requireAuth(s.handleGetBill))

	s.mux.HandleFunc("GET /api/inventory", s.requireAuth(s.handleInventory))

	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the server's routes wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
