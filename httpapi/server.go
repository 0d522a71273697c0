// Package httpapi exposes the custody service and the ledger over HTTP.
//
// Routes:
//
//	GET  /                      service status
//	POST /uploadfile/           multipart field "file"
//	POST /deletefile/           {"filename": "..."}
//	POST /loadfile/             {"filename": "..."}, responds with the content
//	GET  /ledger/tip            latest block
//	GET  /ledger/blocks/{index} block by index
//	GET  /ledger/hash/{hash}    block by hash
//	GET  /ledger/anchor         latest on-chain anchor
//
// File routes require "Authorization: Bearer <token>".
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/bitfsorg/custody-go/anchor"
	"github.com/bitfsorg/custody-go/custody"
	"github.com/bitfsorg/custody-go/ledger"
	"github.com/bitfsorg/custody-go/token"
)

// multipartOverhead is allowed on top of the upload limit for form framing.
const multipartOverhead = 1 << 20

// Custodian is the file service behind the file routes. *custody.Service
// implements it.
type Custodian interface {
	Upload(ctx context.Context, rawToken, name, contentType string, r io.Reader) (*custody.Result, error)
	Retrieve(ctx context.Context, rawToken, name string) (*custody.Download, error)
	Delete(ctx context.Context, rawToken, name string) (*custody.Result, error)
}

// LedgerReader serves the read-only ledger routes. *ledger.Ledger
// implements it.
type LedgerReader interface {
	Tip(ctx context.Context) (*ledger.Block, error)
	BlockByIndex(ctx context.Context, index uint64) (*ledger.Block, error)
	BlockByHash(ctx context.Context, hash string) (*ledger.Block, error)
}

// AnchorReader reports the latest anchor. *anchor.Anchorer implements it.
type AnchorReader interface {
	Last() *anchor.Anchor
}

// Server holds the HTTP handlers.
type Server struct {
	files     Custodian
	ledger    LedgerReader
	anchors   AnchorReader
	maxUpload int64
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadSize limits upload request bodies.
func WithMaxUploadSize(n int64) Option {
	return func(s *Server) { s.maxUpload = n }
}

// WithAnchors enables GET /ledger/anchor.
func WithAnchors(a AnchorReader) Option {
	return func(s *Server) { s.anchors = a }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Server.
func New(files Custodian, chain LedgerReader, opts ...Option) *Server {
	s := &Server{
		files:     files,
		ledger:    chain,
		maxUpload: 64 << 20,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /uploadfile/", s.handleUpload)
	mux.HandleFunc("POST /deletefile/", s.handleDelete)
	mux.HandleFunc("POST /loadfile/", s.handleLoad)
	mux.HandleFunc("GET /ledger/tip", s.handleTip)
	mux.HandleFunc("GET /ledger/blocks/{index}", s.handleBlockByIndex)
	mux.HandleFunc("GET /ledger/hash/{hash}", s.handleBlockByHash)
	mux.HandleFunc("GET /ledger/anchor", s.handleAnchor)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

// fileResponse is the JSON body of the upload and delete routes.
type fileResponse struct {
	Message     string `json:"message"`
	Name        string `json:"name"`
	FileID      string `json:"file_id"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Digest      string `json:"digest"`
	BlockHash   string `json:"block_hash"`
	BlockIndex  uint64 `json:"block_index"`
	Outcome     string `json:"outcome"`
}

func newFileResponse(message string, res *custody.Result) fileResponse {
	return fileResponse{
		Message:     message,
		Name:        res.Name,
		FileID:      res.FileID,
		Size:        res.Size,
		ContentType: res.ContentType,
		Digest:      res.Digest,
		BlockHash:   res.Receipt.Hash,
		BlockIndex:  res.Receipt.Index,
		Outcome:     res.Receipt.Outcome.String(),
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"message": "custody service", "status": "ok"}
	if tip, err := s.ledger.Tip(r.Context()); err == nil {
		body["tip_index"] = tip.Index
		body["tip_hash"] = tip.Hash
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	raw, err := token.ExtractBearer(r.Header.Get("Authorization"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeError(w, r, fmt.Errorf("%w: missing form field \"file\"", ErrBadRequest))
			return
		}
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: %w", ErrBadRequest, err))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		if part.FileName() == "" {
			s.writeError(w, r, fmt.Errorf("%w: file has no name", ErrBadRequest))
			return
		}

		res, err := s.files.Upload(r.Context(), raw, part.FileName(), part.Header.Get("Content-Type"), part)
		_ = part.Close()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newFileResponse("file stored", res))
		return
	}
}

type fileRequest struct {
	Filename string `json:"filename"`
}

func decodeFileRequest(r *http.Request) (string, error) {
	var req fileRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if req.Filename == "" {
		return "", fmt.Errorf("%w: filename is required", ErrBadRequest)
	}
	return req.Filename, nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	raw, err := token.ExtractBearer(r.Header.Get("Authorization"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name, err := decodeFileRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.files.Delete(r.Context(), raw, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFileResponse("file deleted", res))
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	raw, err := token.ExtractBearer(r.Header.Get("Authorization"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name, err := decodeFileRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dl, err := s.files.Retrieve(r.Context(), raw, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer dl.Content.Close()

	h := w.Header()
	h.Set("Content-Type", dl.ContentType)
	h.Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Name}))
	h.Set("X-Custody-Digest", dl.Digest)
	h.Set("X-Custody-Block-Hash", dl.Receipt.Hash)
	h.Set("X-Custody-Block-Index", strconv.FormatUint(dl.Receipt.Index, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl.Content); err != nil {
		s.logger.Warn("content copy interrupted", "name", dl.Name, "error", err)
	}
}

func (s *Server) handleTip(w http.ResponseWriter, r *http.Request) {
	b, err := s.ledger.Tip(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBlockByIndex(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.ParseUint(r.PathValue("index"), 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: index must be an unsigned integer", ErrBadRequest))
		return
	}
	b, err := s.ledger.BlockByIndex(r.Context(), i)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBlockByHash(w http.ResponseWriter, r *http.Request) {
	b, err := s.ledger.BlockByHash(r.Context(), r.PathValue("hash"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleAnchor(w http.ResponseWriter, r *http.Request) {
	if s.anchors == nil {
		s.writeError(w, r, fmt.Errorf("%w: anchoring is disabled", ErrNotFound))
		return
	}
	a := s.anchors.Last()
	if a == nil {
		s.writeError(w, r, fmt.Errorf("%w: no anchor yet", ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, a)
}
