// Package admin holds the admin-only operations: uploading documents to the
// knowledge base and resetting it.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/portfolia/console/pkg/gateway"
)

// Gateway is the part of the backend the admin console uses.
type Gateway interface {
	UploadFile(ctx context.Context, name, contentType string, r io.Reader) (*gateway.UploadResponse, error)
	ResetDocuments(ctx context.Context) error
	Stats(ctx context.Context) (gateway.Stats, error)
}

// AccessChecker reports whether the current session may use admin operations.
type AccessChecker interface {
	IsAdmin() bool
}

// UploadResult describes a successful upload.
type UploadResult struct {
	FileName    string
	ChunksAdded int
}

// Status is the line shown to the user after the upload.
func (r UploadResult) Status() string {
	return fmt.Sprintf("Successfully uploaded: %s (%d chunks)", r.FileName, r.ChunksAdded)
}

// Console runs admin operations. Upload and reset each allow one call in
// flight; they do not block each other.
type Console struct {
	gw     Gateway
	access AccessChecker
	logger *slog.Logger

	mu        sync.Mutex
	uploading bool
	resetting bool
	armed     bool
}

// NewConsole returns a Console gated by access.
func NewConsole(gw Gateway, access AccessChecker, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{gw: gw, access: access, logger: logger}
}

// Upload sends the file at path to the knowledge base.
func (c *Console) Upload(ctx context.Context, path string) (UploadResult, error) {
	if !c.access.IsAdmin() {
		return UploadResult{}, ErrForbidden
	}
	if !c.begin(&c.uploading) {
		return UploadResult{}, ErrBusy
	}
	defer c.end(&c.uploading)

	name := filepath.Base(path)
	contentType, err := detectType(path)
	if err != nil {
		if errors.Is(err, ErrUnsupportedType) {
			return UploadResult{}, &UploadError{Message: fmt.Sprintf("Unsupported file: %s. Supports PDF, TXT, MD", name), Err: err}
		}
		return UploadResult{}, &UploadError{Message: fmt.Sprintf("Could not read %s", name), Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return UploadResult{}, &UploadError{Message: fmt.Sprintf("Could not read %s", name), Err: err}
	}
	defer f.Close()

	c.logger.Info("Uploading document", "file", name, "contentType", contentType)
	resp, err := c.gw.UploadFile(ctx, name, contentType, f)
	if err != nil {
		c.logger.Error("Upload failed", "file", name, "error", err)
		return UploadResult{}, &UploadError{Message: gateway.Detail(err, uploadFailedMessage), Err: err}
	}

	res := UploadResult{FileName: name, ChunksAdded: resp.ChunksAdded}
	c.logger.Info("Upload complete", "file", name, "chunks", res.ChunksAdded)
	return res, nil
}

// Uploading reports whether an upload is in flight.
func (c *Console) Uploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploading
}

// ArmReset is the warning step: the user has seen what a reset does and may
// now confirm it.
func (c *Console) ArmReset() error {
	if !c.access.IsAdmin() {
		return ErrForbidden
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resetting {
		return ErrBusy
	}
	c.armed = true
	return nil
}

// CancelReset backs out of the confirmation step.
func (c *Console) CancelReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = false
}

// ResetArmed reports whether the confirmation step is open.
func (c *Console) ResetArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Resetting reports whether a reset is in flight.
func (c *Console) Resetting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetting
}

// ConfirmReset irreversibly clears the knowledge base. It only calls the
// backend when ArmReset was called first, and disarms either way.
func (c *Console) ConfirmReset(ctx context.Context) (string, error) {
	if !c.access.IsAdmin() {
		return "", ErrForbidden
	}

	c.mu.Lock()
	if c.resetting {
		c.mu.Unlock()
		return "", ErrBusy
	}
	if !c.armed {
		c.mu.Unlock()
		return "", ErrResetNotConfirmed
	}
	c.armed = false
	c.resetting = true
	c.mu.Unlock()
	defer c.end(&c.resetting)

	c.logger.Warn("Resetting knowledge base")
	if err := c.gw.ResetDocuments(ctx); err != nil {
		c.logger.Error("Reset failed", "error", err)
		return "", &ResetError{Message: resetFailedMessage, Err: err}
	}
	return resetDoneMessage, nil
}

// Stats returns the backend's document statistics.
func (c *Console) Stats(ctx context.Context) (gateway.Stats, error) {
	if !c.access.IsAdmin() {
		return nil, ErrForbidden
	}
	return c.gw.Stats(ctx)
}

func (c *Console) begin(flag *bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if *flag {
		return false
	}
	*flag = true
	return true
}

func (c *Console) end(flag *bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*flag = false
}
