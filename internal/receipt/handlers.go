package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/jdsanchez93/costco-receipt-parser/internal/ocr"
)

const maxUploadSize = int64(50 << 20) // high-resolution phone photos

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

func respondJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// serviceError maps a service failure onto a response. Contract violations
// and not-found lookups get their own statuses; everything else is internal.
func serviceError(w http.ResponseWriter, err error) {
	var contractErr *ocr.ContractError
	switch {
	case errors.As(err, &contractErr):
		respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// handleUploadReceipt accepts a multipart receipt image and runs the full
// pipeline on it.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request, userID string) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		respondError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		respondError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		respondError(w, http.StatusInternalServerError, "Error reading file")
		return
	}

	contentType := uploadContentType(header.Header.Get("Content-Type"), header.Filename)

	processed, err := s.service.ProcessReceipt(r.Context(), userID, data, contentType)
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		var contractErr *ocr.ContractError
		if errors.As(err, &contractErr) {
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, processed)
}

// uploadContentType normalizes the declared content type, falling back to
// the filename extension.
func uploadContentType(declared, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleListReceipts returns the receipts indexed for the caller.
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request, userID string) {
	records, err := s.service.ListUserReceipts(userID)
	if err != nil {
		slog.Error("Error listing receipts", "user_id", userID, "error", err)
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// handleGetItems returns the stored items of a receipt.
func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request, userID string) {
	items, err := s.service.GetItems(r.PathValue("id"))
	if err != nil {
		slog.Error("Error getting items", "error", err)
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// handleGetGeometry returns the stored summary-field geometry of a receipt.
func (s *Server) handleGetGeometry(w http.ResponseWriter, r *http.Request, userID string) {
	fields, err := s.service.GetGeometry(r.PathValue("id"))
	if err != nil {
		slog.Error("Error getting geometry", "error", err)
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, fields)
}

// handleDownloadURL issues a signed download grant for the caller's own
// receipt image.
func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request, userID string) {
	receiptID := r.PathValue("id")

	record, err := s.userReceipt(userID, receiptID)
	if err != nil {
		serviceError(w, err)
		return
	}

	exists, err := s.service.storage.Exists(record.ObjectKey)
	if err != nil {
		slog.Error("Error checking object", "key", record.ObjectKey, "error", err)
		serviceError(w, err)
		return
	}
	if !exists {
		respondError(w, http.StatusNotFound, "receipt image not found")
		return
	}

	grant, err := s.signer.SignDownload(userID, record.ObjectKey)
	if err != nil {
		slog.Error("Error signing download url", "error", err)
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, grant)
}

// handleGetFile serves a receipt image to a holder of a valid download
// token.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	key, err := s.signer.VerifyDownload(r.URL.Query().Get("token"))
	if err != nil {
		corsError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := s.service.GetReceiptFile(key)
	if err != nil {
		respondError(w, http.StatusNotFound, "receipt image not found")
		return
	}
	w.Header().Set("Content-Type", objectContentType(key))
	if _, err := w.Write(data); err != nil {
		slog.Error("Error writing receipt file", "key", key, "error", err)
	}
}

// objectContentType maps a stored object's extension back to the content
// type it was uploaded with.
func objectContentType(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// handleUploadURL issues a signed upload grant and the receipt ID the
// object will be stored under.
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request, userID string) {
	contentType := "image/jpeg"
	if r.Body != nil {
		var body struct {
			ContentType string `json:"content_type"`
		}
		// A malformed body just keeps the default.
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.ContentType != "" {
			contentType = body.ContentType
		}
	}

	ext, ok := contentTypeExtensions[contentType]
	if !ok {
		respondError(w, http.StatusBadRequest, "unsupported content type")
		return
	}

	receiptID := s.service.idGenerator.Generate()
	grant, err := s.signer.SignUpload(userID, ObjectKey(userID, receiptID, ext), contentType)
	if err != nil {
		slog.Error("Error signing upload url", "error", err)
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"receipt_id":   receiptID,
		"upload_url":   "/api/uploads?token=" + grant.Token,
		"expires_in":   grant.ExpiresIn,
		"content_type": grant.ContentType,
	})
}

// handlePutUpload stores the request body under the object key an upload
// token grants.
func (s *Server) handlePutUpload(w http.ResponseWriter, r *http.Request) {
	key, err := s.signer.VerifyUpload(r.URL.Query().Get("token"))
	if err != nil {
		corsError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize+1))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Error reading upload")
		return
	}
	if int64(len(data)) > maxUploadSize {
		respondError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
		return
	}

	if _, err := s.service.storage.Save(key, data); err != nil {
		slog.Error("Error saving upload", "key", key, "error", err)
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"object_key": key})
}

// handleAddMember adds an authenticated or placeholder member to a receipt.
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request, userID string) {
	var body struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
		Role        string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.DisplayName == "" {
		respondError(w, http.StatusBadRequest, "display_name is required")
		return
	}

	receiptID := r.PathValue("id")
	var member *MemberRecord
	var err error
	if body.UserID != "" {
		member, err = s.service.AddAuthenticatedMember(receiptID, body.UserID, body.DisplayName, body.Email, userID, body.Role)
	} else {
		member, err = s.service.AddPlaceholderMember(receiptID, body.DisplayName, userID)
	}
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			respondError(w, http.StatusConflict, "member already exists")
			return
		}
		slog.Error("Error adding member", "receipt_id", receiptID, "error", err)
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, member)
}

// handleGetMembers lists the members of a receipt.
func (s *Server) handleGetMembers(w http.ResponseWriter, r *http.Request, userID string) {
	members, err := s.service.GetMembers(r.PathValue("id"))
	if err != nil {
		slog.Error("Error getting members", "error", err)
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, members)
}

// handleUpdateMember updates a member's display name and/or email.
func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request, userID string) {
	var body struct {
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.DisplayName == "" && body.Email == "" {
		respondError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	member, err := s.service.UpdateMemberDetails(r.PathValue("id"), r.PathValue("user_id"), body.DisplayName, body.Email)
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, member)
}

// handleClaimPlaceholder converts a placeholder's memberships to the given
// authenticated user.
func (s *Server) handleClaimPlaceholder(w http.ResponseWriter, r *http.Request, userID string) {
	var body struct {
		PlaceholderID string `json:"placeholder_id"`
		DisplayName   string `json:"display_name"`
		Email         string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.PlaceholderID == "" {
		respondError(w, http.StatusBadRequest, "placeholder_id is required")
		return
	}

	claimed, err := s.service.ClaimPlaceholder(body.PlaceholderID, userID, body.DisplayName, body.Email)
	if err != nil {
		slog.Error("Error claiming placeholder", "placeholder_id", body.PlaceholderID, "error", err)
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, claimed)
}

// handleCreateShare issues a share token for a receipt.
func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request, userID string) {
	share, err := s.service.CreateShare(r.PathValue("id"), userID, 0)
	if err != nil {
		slog.Error("Error creating share", "error", err)
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, share)
}

// handleListShares lists the active shares of a receipt.
func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request, userID string) {
	shares, err := s.service.ListActiveShares(r.PathValue("id"))
	if err != nil {
		slog.Error("Error listing shares", "error", err)
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, shares)
}

// handleResolveShare resolves a share token to its receipt's items.
func (s *Server) handleResolveShare(w http.ResponseWriter, r *http.Request) {
	share, err := s.service.ResolveShare(r.PathValue("token"))
	if err != nil {
		serviceError(w, err)
		return
	}

	items, err := s.service.GetItems(share.ReceiptID)
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"share": share,
		"items": items,
	})
}

// handleDeactivateShare revokes a share token.
func (s *Server) handleDeactivateShare(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.service.DeactivateShare(r.PathValue("id"), r.PathValue("token")); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// userReceipt finds one receipt in the caller's index.
func (s *Server) userReceipt(userID, receiptID string) (*UserReceiptRecord, error) {
	records, err := s.service.ListUserReceipts(userID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ReceiptID == receiptID {
			return &records[i], nil
		}
	}
	return nil, ErrNotFound
}
