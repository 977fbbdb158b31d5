// server.go - HTTP API for the IoTSentry node
package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload" // load .env before any env reads

	"iotsentry/core/ledger"
	"iotsentry/core/sentinel"
	"iotsentry/core/storage"
)

// Server exposes the security manager and chain over HTTP.
//
// All sensitive/configurable values come from environment variables, read
// at construction time: API_KEY guards admin endpoints, JWT_SECRET guards
// read endpoints, SERVER_PORT selects the listen port. An empty value
// disables the corresponding check (dev mode).
type Server struct {
	manager *sentinel.Manager
	chain   *ledger.Chain
	store   *storage.Store
	mux     *http.ServeMux

	apiKey     string
	jwtSecret  string
	serverPort string
}

// NewServer builds the server and registers all routes.
func NewServer(manager *sentinel.Manager, chain *ledger.Chain, store *storage.Store) *Server {
	s := &Server{
		manager:    manager,
		chain:      chain,
		store:      store,
		mux:        http.NewServeMux(),
		apiKey:     os.Getenv("API_KEY"),
		jwtSecret:  os.Getenv("JWT_SECRET"),
		serverPort: os.Getenv("SERVER_PORT"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Health and status are unauthenticated.
	s.mux.HandleFunc("/status", s.HandleStatus)
	s.mux.HandleFunc("/health/liveness", s.HandleLiveness)
	s.mux.HandleFunc("/health/readiness", s.HandleReadiness)
	s.mux.HandleFunc("/nodehealth", s.HandleNodeHealth)

	// Read API requires a bearer token; admin API additionally the API key.
	s.mux.HandleFunc("/api/chain/validate", s.withJWT(s.HandleChainValidate))
	s.mux.HandleFunc("/api/chain/info", s.withJWT(s.HandleChainInfo))
	s.mux.HandleFunc("/api/history", s.withJWT(s.HandleHistory))
	s.mux.HandleFunc("/api/access/request", s.withJWT(s.HandleAccessRequest))
	s.mux.HandleFunc("/api/firmware/validate", s.withJWT(s.HandleFirmwareValidate))

	s.mux.HandleFunc("/api/dids", s.withAPIKey(s.HandleDIDs))
	s.mux.HandleFunc("/api/permissions/grant", s.withAPIKey(s.HandlePermissionGrant))
	s.mux.HandleFunc("/api/permissions/revoke", s.withAPIKey(s.HandlePermissionRevoke))
	s.mux.HandleFunc("/api/firmware/register", s.withAPIKey(s.HandleFirmwareRegister))
}

// withAPIKey enforces the X-API-Key header on admin endpoints. An empty
// configured key disables the check (dev mode).
func (s *Server) withAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			log.Printf("[WARN] rejected admin request %s: bad API key", r.URL.Path)
			http.Error(w, "invalid API key", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// withJWT enforces an HS256 bearer token. An empty configured secret
// disables the check (dev mode).
func (s *Server) withJWT(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.jwtSecret != "" {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(s.jwtSecret), nil
			})
			if err != nil || !token.Valid {
				log.Printf("[WARN] rejected request %s: invalid JWT: %v", r.URL.Path, err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// ServeHTTP tags every request with an ID and dispatches to the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	w.Header().Set("X-Request-ID", reqID)
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	log.Printf("[API] %s %s reqID=%s took=%s", r.Method, r.URL.Path, reqID[:8], time.Since(start))
}

// Start runs the HTTP server on SERVER_PORT (default 8080). Blocks until
// the listener fails.
func (s *Server) Start() error {
	port := s.serverPort
	if port == "" {
		port = "8080"
	}
	addr := ":" + port
	log.Printf("[API] listening on %s", addr)
	return http.ListenAndServe(addr, s)
}
