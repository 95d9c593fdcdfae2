package admin

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolia/console/pkg/gateway"
)

type fakeAccess bool

func (f fakeAccess) IsAdmin() bool { return bool(f) }

type fakeGateway struct {
	mu          sync.Mutex
	uploads     []string
	contentType string
	body        string
	resets      int
	uploadErr   error
	resetErr    error
	block       chan struct{}
}

func (f *fakeGateway) UploadFile(ctx context.Context, name, contentType string, r io.Reader) (*gateway.UploadResponse, error) {
	data, _ := io.ReadAll(r)
	f.mu.Lock()
	f.uploads = append(f.uploads, name)
	f.contentType = contentType
	f.body = string(data)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &gateway.UploadResponse{ChunksAdded: 7}, nil
}

func (f *fakeGateway) ResetDocuments(ctx context.Context) error {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	return f.resetErr
}

func (f *fakeGateway) Stats(ctx context.Context) (gateway.Stats, error) {
	return gateway.Stats{"documents": 2}, nil
}

func (f *fakeGateway) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalPDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

func TestUpload_Success(t *testing.T) {
	gw := &fakeGateway{}
	c := NewConsole(gw, fakeAccess(true), nil)

	res, err := c.Upload(context.Background(), writeFile(t, "notes.md", "# About me\n\nGeomatics engineer."))
	require.NoError(t, err)

	assert.Equal(t, UploadResult{FileName: "notes.md", ChunksAdded: 7}, res)
	assert.Equal(t, "Successfully uploaded: notes.md (7 chunks)", res.Status())
	assert.Equal(t, "text/markdown", gw.contentType)
	assert.Equal(t, "# About me\n\nGeomatics engineer.", gw.body)
	assert.False(t, c.Uploading())
}

func TestUpload_AcceptsPDFAndText(t *testing.T) {
	gw := &fakeGateway{}
	c := NewConsole(gw, fakeAccess(true), nil)

	_, err := c.Upload(context.Background(), writeFile(t, "cv.pdf", minimalPDF))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", gw.contentType)

	_, err = c.Upload(context.Background(), writeFile(t, "bio.txt", "plain text"))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", gw.contentType)
}

func TestUpload_RejectsDisallowedTypesWithoutNetwork(t *testing.T) {
	gw := &fakeGateway{}
	c := NewConsole(gw, fakeAccess(true), nil)

	cases := map[string]string{
		"photo.png":    "\x89PNG\r\n\x1a\n",
		"fake.pdf":     "just text pretending",
		"binary.txt":   "\x00\x01\x02\x03\x04\xff\xfe",
		"no_extension": "text",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Upload(context.Background(), writeFile(t, name, content))
			var upErr *UploadError
			require.ErrorAs(t, err, &upErr)
			assert.ErrorIs(t, err, ErrUnsupportedType)
		})
	}
	assert.Zero(t, gw.uploadCount())
}

func TestUpload_GatewayFailure(t *testing.T) {
	gw := &fakeGateway{uploadErr: &gateway.APIError{Op: "upload", StatusCode: 400, Detail: "Empty document"}}
	c := NewConsole(gw, fakeAccess(true), nil)

	_, err := c.Upload(context.Background(), writeFile(t, "a.txt", "x"))
	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "Empty document", upErr.Message)

	gw.uploadErr = errors.New("connection reset")
	_, err = c.Upload(context.Background(), writeFile(t, "b.txt", "x"))
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "Upload failed. Check backend.", upErr.Message)
}

func TestUpload_GuestForbidden(t *testing.T) {
	gw := &fakeGateway{}
	c := NewConsole(gw, fakeAccess(false), nil)

	_, err := c.Upload(context.Background(), writeFile(t, "a.txt", "x"))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, gw.uploadCount())
}

func TestUpload_SingleFlight(t *testing.T) {
	gw := &fakeGateway{block: make(chan struct{})}
	c := NewConsole(gw, fakeAccess(true), nil)
	path := writeFile(t, "a.txt", "x")

	done := make(chan error)
	go func() {
		_, err := c.Upload(context.Background(), path)
		done <- err
	}()
	require.Eventually(t, func() bool { return gw.uploadCount() == 1 }, time.Second, time.Millisecond)

	_, err := c.Upload(context.Background(), path)
	assert.ErrorIs(t, err, ErrBusy)

	// Reset is not blocked by an upload in flight.
	require.NoError(t, c.ArmReset())
	_, err = c.ConfirmReset(context.Background())
	require.NoError(t, err)

	close(gw.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, gw.uploadCount())
}

func TestReset_RequiresConfirmation(t *testing.T) {
	gw := &fakeGateway{}
	c := NewConsole(gw, fakeAccess(true), nil)

	_, err := c.ConfirmReset(context.Background())
	assert.ErrorIs(t, err, ErrResetNotConfirmed)
	assert.Zero(t, gw.resets)

	require.NoError(t, c.ArmReset())
	c.CancelReset()
	_, err = c.ConfirmReset(context.Background())
	assert.ErrorIs(t, err, ErrResetNotConfirmed)
	assert.Zero(t, gw.resets)

	require.NoError(t, c.ArmReset())
	assert.True(t, c.ResetArmed())
	status, err := c.ConfirmReset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Knowledge base has been completely reset.", status)
	assert.Equal(t, 1, gw.resets)
	assert.False(t, c.ResetArmed(), "confirmation is single use")

	_, err = c.ConfirmReset(context.Background())
	assert.ErrorIs(t, err, ErrResetNotConfirmed)
	assert.Equal(t, 1, gw.resets)
}

func TestReset_Failure(t *testing.T) {
	gw := &fakeGateway{resetErr: &gateway.APIError{Op: "reset", StatusCode: 500, Detail: "qdrant down"}}
	c := NewConsole(gw, fakeAccess(true), nil)

	require.NoError(t, c.ArmReset())
	_, err := c.ConfirmReset(context.Background())
	var resetErr *ResetError
	require.ErrorAs(t, err, &resetErr)
	assert.Equal(t, "Reset failed. Check backend.", resetErr.Message)
	assert.False(t, c.Resetting())
}

func TestReset_GuestForbidden(t *testing.T) {
	gw := &fakeGateway{}
	c := NewConsole(gw, fakeAccess(false), nil)

	assert.ErrorIs(t, c.ArmReset(), ErrForbidden)
	_, err := c.ConfirmReset(context.Background())
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = c.Stats(context.Background())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, gw.resets)
}

func TestStats(t *testing.T) {
	c := NewConsole(&fakeGateway{}, fakeAccess(true), nil)
	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats["documents"])
}
