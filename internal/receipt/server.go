package receipt

import (
	"net/http"
)

// Server handles HTTP requests for receipts.
type Server struct {
	service *Service
	auth    *Authenticator
	signer  *URLSigner
	mux     *http.ServeMux
}

// NewServer creates a new Server with a default mux.
func NewServer(service *Service, auth *Authenticator, signer *URLSigner) *Server {
	return NewServerWithMux(service, auth, signer, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing.
func NewServerWithMux(service *Service, auth *Authenticator, signer *URLSigner, mux *http.ServeMux) *Server {
	s := &Server{
		service: service,
		auth:    auth,
		signer:  signer,
		mux:     mux,
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers and answers preflight requests.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// requireAuth resolves the caller's user ID from the bearer token and hands
// it to the wrapped handler.
func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.auth.UserID(r)
		if err != nil {
			corsError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, userID)
	}
}

// registerRoutes registers all API routes on the server's mux.
// Routes must be registered from most specific to least specific to avoid conflicts.
func (s *Server) registerRoutes() {
	// Receipt pipeline and reads
	s.mux.HandleFunc("GET /api/receipts/{id}/download-url", s.corsMiddleware(s.requireAuth(s.handleDownloadURL)))
	s.mux.HandleFunc("GET /api/receipts/{id}/geometry", s.corsMiddleware(s.requireAuth(s.handleGetGeometry)))
	s.mux.HandleFunc("GET /api/receipts/{id}/items", s.corsMiddleware(s.requireAuth(s.handleGetItems)))
	s.mux.HandleFunc("GET /api/receipts/{id}/file", s.corsMiddleware(s.handleGetFile))
	s.mux.HandleFunc("POST /api/receipts", s.corsMiddleware(s.requireAuth(s.handleUploadReceipt)))
	s.mux.HandleFunc("GET /api/receipts", s.corsMiddleware(s.requireAuth(s.handleListReceipts)))

	// Signed upload URLs
	s.mux.HandleFunc("POST /api/upload-url", s.corsMiddleware(s.requireAuth(s.handleUploadURL)))
	s.mux.HandleFunc("PUT /api/uploads", s.corsMiddleware(s.handlePutUpload))

	// Members
	s.mux.HandleFunc("PATCH /api/receipts/{id}/members/{user_id}", s.corsMiddleware(s.requireAuth(s.handleUpdateMember)))
	s.mux.HandleFunc("POST /api/receipts/{id}/members", s.corsMiddleware(s.requireAuth(s.handleAddMember)))
	s.mux.HandleFunc("GET /api/receipts/{id}/members", s.corsMiddleware(s.requireAuth(s.handleGetMembers)))
	s.mux.HandleFunc("POST /api/members/claim", s.corsMiddleware(s.requireAuth(s.handleClaimPlaceholder)))

	// Shares
	s.mux.HandleFunc("DELETE /api/receipts/{id}/shares/{token}", s.corsMiddleware(s.requireAuth(s.handleDeactivateShare)))
	s.mux.HandleFunc("POST /api/receipts/{id}/shares", s.corsMiddleware(s.requireAuth(s.handleCreateShare)))
	s.mux.HandleFunc("GET /api/receipts/{id}/shares", s.corsMiddleware(s.requireAuth(s.handleListShares)))
	s.mux.HandleFunc("GET /api/shared/{token}", s.corsMiddleware(s.handleResolveShare))
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}
