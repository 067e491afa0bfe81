package models

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SourceKind distinguishes local uploads from remote video links
type SourceKind string

const (
	SourceLocalFile SourceKind = "file"
	SourceRemoteURL SourceKind = "url"
)

// Source is the input of a queue item: a LocalFile or a RemoteReference
type Source interface {
	Kind() SourceKind
	Label() string
	Empty() bool
}

// Hosting providers accepted for remote references
var videoURLPattern = regexp.MustCompile(`(?i)(youtube\.com/.*[?&]v=|youtu\.be/|rutube\.ru/)`)

// LocalFile is a file read into memory for a multipart upload
type LocalFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

// NewLocalFile builds a LocalFile, guessing the MIME type from the extension and then the content
func NewLocalFile(name string, data []byte) LocalFile {
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if mimeType == "" && len(data) > 0 {
		mimeType = http.DetectContentType(data)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return LocalFile{Name: filepath.Base(name), MIMEType: mimeType, Data: data}
}

// LoadLocalFile reads path from disk
func LoadLocalFile(path string) (LocalFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LocalFile{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return LocalFile{}, &ValidationError{"source", fmt.Sprintf("%s is empty", filepath.Base(path))}
	}
	return NewLocalFile(path, data), nil
}

func (f LocalFile) Kind() SourceKind { return SourceLocalFile }
func (f LocalFile) Label() string    { return f.Name }
func (f LocalFile) Empty() bool      { return f.Name == "" || len(f.Data) == 0 }

// Extension returns the lower-cased extension without the dot
func (f LocalFile) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
}

// RemoteReference is a link to a video on a supported hosting provider
type RemoteReference struct {
	URL string
}

// NewRemoteReference validates raw against the provider allow-list
func NewRemoteReference(raw string) (RemoteReference, error) {
	if err := ValidateVideoURL(raw); err != nil {
		return RemoteReference{}, err
	}
	return RemoteReference{URL: strings.TrimSpace(raw)}, nil
}

// ValidateVideoURL checks that raw is an http(s) link to YouTube or Rutube
func ValidateVideoURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &ValidationError{"url", "required"}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{"url", "must be an http(s) link"}
	}
	if !videoURLPattern.MatchString(raw) {
		return &ValidationError{"url", "only YouTube and Rutube links are supported"}
	}
	return nil
}

func (r RemoteReference) Kind() SourceKind { return SourceRemoteURL }
func (r RemoteReference) Label() string    { return r.URL }
func (r RemoteReference) Empty() bool      { return strings.TrimSpace(r.URL) == "" }
