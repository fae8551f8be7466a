// Package upload validates claim documents, stages them locally while the wizard is in
// progress and promotes them to durable storage.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"flightclaim/internal/domain"
)

// DefaultMaxBytes is the largest accepted document.
const DefaultMaxBytes int64 = 10 << 20

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrStoreFailed     = errors.New("upload failed")
)

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// Validator checks size and sniffed content type. The client-declared type is ignored.
type Validator struct {
	MaxBytes int64
	Allowed  []string
}

func (v Validator) maxBytes() int64 {
	if v.MaxBytes > 0 {
		return v.MaxBytes
	}
	return DefaultMaxBytes
}

func (v Validator) allowed(ct string) bool {
	if len(v.Allowed) == 0 {
		_, ok := extensions[ct]
		return ok
	}
	for _, a := range v.Allowed {
		if a == ct {
			return true
		}
	}
	return false
}

// Read consumes r up to the size limit and returns the content and its sniffed type.
func (v Validator) Read(r io.Reader) ([]byte, string, error) {
	limit := v.maxBytes()
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, limit)
	}
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if !v.allowed(ct) {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}
	return data, ct, nil
}

// Store persists a validated document and returns its durable URL.
type Store interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// DiskStore writes documents into Dir and serves them under PublicURL. With a Signer the
// returned URLs carry a token granting read access to that one document.
type DiskStore struct {
	Dir       string
	PublicURL string
	Signer    *LinkSigner
}

func (s DiskStore) Put(ctx context.Context, name, _ string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	pending, err := renameio.NewPendingFile(filepath.Join(s.Dir, name))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	defer func() { _ = pending.Cleanup() }()
	if _, err := io.Copy(pending, r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	base := strings.TrimRight(s.PublicURL, "/")
	if s.Signer != nil {
		return s.Signer.link(base, name)
	}
	return base + "/" + name, nil
}

// Open returns a stored document by name. Names with path elements are rejected.
func (s DiskStore) Open(name string) (*os.File, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, os.ErrNotExist
	}
	return os.Open(filepath.Join(s.Dir, name))
}

// Service ties validation, staging and storage together.
type Service struct {
	Validator  Validator
	Store      Store
	StagingDir string
}

func objectName(contentType string) string {
	return uuid.NewString() + extensions[contentType]
}

// Upload validates r and stores it directly.
func (s Service) Upload(ctx context.Context, r io.Reader) (string, error) {
	data, ct, err := s.Validator.Read(r)
	if err != nil {
		return "", err
	}
	return s.Save(ctx, data, ct)
}

// Save stores already validated content.
func (s Service) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	return s.Store.Put(ctx, objectName(contentType), contentType, bytes.NewReader(data))
}

// Stage validates r and keeps it in the staging directory until Promote.
func (s Service) Stage(r io.Reader, filename string) (domain.PendingFile, error) {
	data, ct, err := s.Validator.Read(r)
	if err != nil {
		return domain.PendingFile{}, err
	}
	if err := os.MkdirAll(s.StagingDir, 0o700); err != nil {
		return domain.PendingFile{}, fmt.Errorf("stage upload: %w", err)
	}
	path := filepath.Join(s.StagingDir, objectName(ct))
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return domain.PendingFile{}, fmt.Errorf("stage upload: %w", err)
	}
	return domain.PendingFile{
		Path:        path,
		Filename:    filepath.Base(filename),
		ContentType: ct,
		Size:        int64(len(data)),
	}, nil
}

// Promote moves a staged file to the store and removes the staged copy.
func (s Service) Promote(ctx context.Context, p domain.PendingFile) (string, error) {
	if !s.staged(p.Path) {
		return "", fmt.Errorf("%w: %s is not a staged file", ErrStoreFailed, p.Path)
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	url, err := s.Store.Put(ctx, objectName(p.ContentType), p.ContentType, f)
	_ = f.Close()
	if err != nil {
		return "", err
	}
	_ = os.Remove(p.Path)
	return url, nil
}

// Discard removes a staged file that no draft references any more. Paths outside the
// staging directory are left alone.
func (s Service) Discard(p domain.PendingFile) error {
	if !s.staged(p.Path) {
		return nil
	}
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Touch refreshes the modification time of a staged file still held by a live draft.
func (s Service) Touch(p domain.PendingFile, now time.Time) error {
	if !s.staged(p.Path) {
		return nil
	}
	if err := os.Chtimes(p.Path, now, now); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// SweepStaging removes staged files not modified within maxAge and returns how many
// were removed.
func (s Service) SweepStaging(maxAge time.Duration, now time.Time) (int, error) {
	if s.StagingDir == "" || maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.StagingDir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sweep staging: %w", err)
	}
	removed := 0
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(s.StagingDir, ent.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (s Service) staged(path string) bool {
	if s.StagingDir == "" {
		return false
	}
	rel, err := filepath.Rel(s.StagingDir, path)
	return err == nil && rel == filepath.Base(path) && !strings.HasPrefix(rel, ".")
}
