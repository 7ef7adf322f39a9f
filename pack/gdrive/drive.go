package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// File is the subset of Drive file metadata returned to the assistant.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// Drive is the storage surface the pack needs.
type Drive interface {
	// List returns files matching a Drive query.
	List(ctx context.Context, query string) ([]File, error)

	// Rename changes a file's name.
	Rename(ctx context.Context, id, name string) error

	// Delete removes a file.
	Delete(ctx context.Context, id string) error

	// Download writes the file content to w and returns its name.
	Download(ctx context.Context, id string, w io.Writer) (string, error)

	// Upload creates a file in a parent folder.
	Upload(ctx context.Context, name, parent string, r io.Reader) (File, error)
}

// ErrNotConfigured is returned when the pack has no Drive connection.
var ErrNotConfigured = errors.New("google drive not configured")

type unconfigured struct{}

func (unconfigured) List(context.Context, string) ([]File, error) { return nil, ErrNotConfigured }
func (unconfigured) Rename(context.Context, string, string) error  { return ErrNotConfigured }
func (unconfigured) Delete(context.Context, string) error          { return ErrNotConfigured }
func (unconfigured) Download(context.Context, string, io.Writer) (string, error) {
	return "", ErrNotConfigured
}
func (unconfigured) Upload(context.Context, string, string, io.Reader) (File, error) {
	return File{}, ErrNotConfigured
}

// Service implements Drive with the Drive v3 API.
type Service struct {
	svc *drive.Service
}

// ServiceConfig configures the Drive API client.
type ServiceConfig struct {
	// CredentialsFile is the OAuth client secret JSON.
	CredentialsFile string

	// TokenFile holds the user's stored token.
	TokenFile string
}

// NewService connects with the stored user token.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	ts, err := TokenSource(ctx, cfg.CredentialsFile, cfg.TokenFile)
	if err != nil {
		return nil, err
	}
	return NewServiceWithOptions(ctx, option.WithTokenSource(ts))
}

// NewServiceWithOptions creates a service from raw client options.
func NewServiceWithOptions(ctx context.Context, opts ...option.ClientOption) (*Service, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return &Service{svc: svc}, nil
}

// List implements Drive.
func (s *Service) List(ctx context.Context, query string) ([]File, error) {
	files := make([]File, 0)
	call := s.svc.Files.List().Q(query).Fields("nextPageToken, files(id, name, mimeType)").Context(ctx)
	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			files = append(files, File{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// Rename implements Drive.
func (s *Service) Rename(ctx context.Context, id, name string) error {
	if _, err := s.svc.Files.Update(id, &drive.File{Name: name}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Delete implements Drive.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.svc.Files.Delete(id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Download implements Drive.
func (s *Service) Download(ctx context.Context, id string, w io.Writer) (string, error) {
	meta, err := s.svc.Files.Get(id).Fields("name").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get file: %w", err)
	}

	resp, err := s.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return meta.Name, nil
}

// Upload implements Drive.
func (s *Service) Upload(ctx context.Context, name, parent string, r io.Reader) (File, error) {
	f, err := s.svc.Files.Create(&drive.File{Name: name, Parents: []string{parent}}).
		Media(r).
		Fields("id, name, mimeType").
		Context(ctx).
		Do()
	if err != nil {
		return File{}, fmt.Errorf("failed to upload file: %w", err)
	}
	return File{ID: f.Id, Name: f.Name, MimeType: f.MimeType}, nil
}

// quote escapes a value for use inside a single-quoted Drive query string.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
