// Package custody is the file custody service: it stores, retrieves and
// deletes files and records every operation as a block in the ledger.
package custody

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/bitfsorg/custody-go/hashing"
	"github.com/bitfsorg/custody-go/index"
	"github.com/bitfsorg/custody-go/ledger"
	"github.com/bitfsorg/custody-go/storage"
	"github.com/bitfsorg/custody-go/token"
)

// UnknownExtension is recorded for names without an extension.
const UnknownExtension = "unknown"

// DefaultContentType is recorded when no type is given or guessable.
const DefaultContentType = "application/octet-stream"

// Recorder appends ledger blocks. *ledger.Ledger implements it.
type Recorder interface {
	CreateBlock(ctx context.Context, digest string, meta ledger.Metadata, callerKey string) (ledger.Receipt, error)
}

// Service is the custody business logic shared by the HTTP API and the CLI.
type Service struct {
	recorder Recorder
	index    index.Index
	store    storage.Store
	tokens   token.Verifier
	logger   *slog.Logger
	locks    *nameLocks
}

// Result describes a completed custody operation.
type Result struct {
	FileID      string
	Name        string
	Size        int64
	ContentType string
	Digest      string
	Receipt     ledger.Receipt
}

// Download is a retrieved file. The caller must close Content.
type Download struct {
	Result
	Content io.ReadCloser
}

// New creates a Service. A nil logger uses slog.Default().
func New(recorder Recorder, idx index.Index, store storage.Store, tokens token.Verifier, logger *slog.Logger) (*Service, error) {
	if recorder == nil || idx == nil || store == nil || tokens == nil {
		return nil, fmt.Errorf("%w: recorder, index, store and token verifier are required", ErrNilParam)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		recorder: recorder,
		index:    idx,
		store:    store,
		tokens:   tokens,
		logger:   logger,
		locks:    newNameLocks(),
	}, nil
}

// ValidateName rejects empty names and names that look like paths.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.ContainsAny(name, `/\`), name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: contains NUL", ErrInvalidName)
	}
	return nil
}

// Extension returns the extension of name without the dot, or
// UnknownExtension.
func Extension(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return UnknownExtension
	}
	return strings.ToLower(ext)
}

func contentTypeFor(name, given string) string {
	if given != "" {
		return given
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return DefaultContentType
}

func (s *Service) authorize(rawToken string) (*token.Claims, error) {
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return claims, nil
}

// digestObject hashes the stored content of id.
func (s *Service) digestObject(id string) (string, *storage.Object, error) {
	rc, obj, err := s.store.Open(id)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()
	digest, err := hashing.DigestStream(rc)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return digest, obj, nil
}

func metadataFor(obj *storage.Object, op string) ledger.Metadata {
	return ledger.Metadata{
		ledger.MetaName:      obj.Name,
		ledger.MetaSize:      obj.Size,
		ledger.MetaMIMEType:  obj.ContentType,
		ledger.MetaExtension: Extension(obj.Name),
		ledger.MetaFileID:    obj.ID,
		ledger.MetaOperation: op,
	}
}

func resultFor(obj *storage.Object, digest string, receipt ledger.Receipt) Result {
	return Result{
		FileID:      obj.ID,
		Name:        obj.Name,
		Size:        obj.Size,
		ContentType: obj.ContentType,
		Digest:      digest,
		Receipt:     receipt,
	}
}

func (s *Service) logDegraded(op string, res Result) {
	if res.Receipt.Outcome == ledger.PersistedUnindexed {
		s.logger.Warn("custody operation recorded without cross reference",
			"operation", op, "name", res.Name, "block_hash", res.Receipt.Hash, "error", res.Receipt.IndexErr)
	}
}

// Upload stores a new file under name and records a "store" block. The
// stored blob is removed again if the block could not be persisted.
func (s *Service) Upload(ctx context.Context, rawToken, name, contentType string, r io.Reader) (*Result, error) {
	claims, err := s.authorize(rawToken)
	if err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(name)
	defer unlock()

	exists, err := s.index.FileExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, name)
	}

	obj, err := s.store.Put(name, contentTypeFor(name, contentType), r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	success := false
	defer func() {
		if !success {
			if derr := s.store.Delete(obj.ID); derr != nil {
				s.logger.Error("rollback of stored blob failed", "file_id", obj.ID, "error", derr)
			}
		}
	}()

	digest, _, err := s.digestObject(obj.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	receipt, err := s.recorder.CreateBlock(ctx, digest, metadataFor(obj, index.OpStore), claims.ValidatorKey)
	if err != nil {
		return nil, err
	}
	success = true

	res := resultFor(obj, digest, receipt)
	s.logDegraded(index.OpStore, res)
	s.logger.Info("file stored", "name", name, "file_id", obj.ID, "size", obj.Size, "block_index", receipt.Index)
	return &res, nil
}

// resolve maps name to its stored object and current digest.
func (s *Service) resolve(ctx context.Context, name string) (string, *storage.Object, error) {
	if err := ValidateName(name); err != nil {
		return "", nil, err
	}
	id, err := s.index.ResolveFileID(ctx, name)
	if errors.Is(err, index.ErrFileNotFound) {
		return "", nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	digest, obj, err := s.digestObject(id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: %s: content missing for %s", ErrFileNotFound, name, id)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return digest, obj, nil
}

// Retrieve opens the content of name, records a "retrieve" block and
// returns the content. No block is recorded when the content cannot be opened.
func (s *Service) Retrieve(ctx context.Context, rawToken, name string) (*Download, error) {
	claims, err := s.authorize(rawToken)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(name)
	defer unlock()

	digest, obj, err := s.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	// A retrieve block is recorded only for content that could be opened.
	rc, _, err := s.store.Open(obj.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s: content missing for %s", ErrFileNotFound, name, obj.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	receipt, err := s.recorder.CreateBlock(ctx, digest, metadataFor(obj, index.OpRetrieve), claims.ValidatorKey)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}

	res := resultFor(obj, digest, receipt)
	s.logDegraded(index.OpRetrieve, res)
	s.logger.Info("file retrieved", "name", name, "file_id", obj.ID, "block_index", receipt.Index)
	return &Download{Result: res, Content: rc}, nil
}

// Delete records a "delete" block for name and then removes its content.
func (s *Service) Delete(ctx context.Context, rawToken, name string) (*Result, error) {
	claims, err := s.authorize(rawToken)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(name)
	defer unlock()

	digest, obj, err := s.resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	receipt, err := s.recorder.CreateBlock(ctx, digest, metadataFor(obj, index.OpDelete), claims.ValidatorKey)
	if err != nil {
		return nil, err
	}

	res := resultFor(obj, digest, receipt)
	if err := s.store.Delete(obj.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return &res, fmt.Errorf("%w: block recorded but content not removed: %w", ErrStorage, err)
	}
	s.logDegraded(index.OpDelete, res)
	s.logger.Info("file deleted", "name", name, "file_id", obj.ID, "block_index", receipt.Index)
	return &res, nil
}
