package models

import (
	"fmt"
	"sort"
	"strings"
)

// Service describes one remote processing operation
type Service struct {
	Key        string            `json:"key"`
	Title      string            `json:"title"`
	UploadPath string            `json:"upload_path"`
	URLPath    string            `json:"url_path,omitempty"`
	Extensions []string          `json:"extensions"`
	Fields     map[string]string `json:"fields,omitempty"` // defaults sent with every request
}

var videoExtensions = []string{"mp4", "avi", "mov", "mkv", "webm", "mpeg", "mpg"}

// Services is the catalog of operations exposed by the remote API
var Services = []Service{
	{
		Key:        "ppt-analysis",
		Title:      "Presentation analysis",
		UploadPath: "/api/ppt-analysis",
		Extensions: []string{"ppt", "pptx"},
	},
	{
		Key:        "document-analysis",
		Title:      "Document analysis",
		UploadPath: "/api/document-analysis",
		Extensions: []string{"doc", "docx", "pdf", "epub"},
		Fields:     map[string]string{"detail_level": "medium"},
	},
	{
		Key:        "image-ocr",
		Title:      "Image OCR",
		UploadPath: "/api/image-ocr",
		Extensions: []string{"jpg", "jpeg", "png", "tiff", "bmp"},
	},
	{
		Key:        "translate-document",
		Title:      "Document translation",
		UploadPath: "/api/translate-document",
		Extensions: []string{"pdf", "docx", "pptx"},
		Fields:     map[string]string{"dest_lang": "ro"},
	},
	{
		Key:        "translate-audio",
		Title:      "Audio translation",
		UploadPath: "/api/translate-audio",
		Extensions: []string{"mp3", "wav", "m4a", "ogg", "flac"},
		Fields:     map[string]string{"dest_lang": "ro"},
	},
	{
		Key:        "translate-video",
		Title:      "Video translation",
		UploadPath: "/api/translate-video",
		URLPath:    "/api/translate-video-url",
		Extensions: videoExtensions,
		Fields:     map[string]string{"dest_lang": "ro"},
	},
	{
		Key:        "subtitle-ro",
		Title:      "Romanian subtitles",
		UploadPath: "/api/subtitle-ro",
		URLPath:    "/api/subtitle-ro-url",
		Extensions: videoExtensions,
		Fields:     map[string]string{"attach": "soft", "detail_level": "medium"},
	},
	{
		Key:        "redub-video",
		Title:      "Video redub",
		UploadPath: "/api/redub-video",
		URLPath:    "/api/redub-video-url",
		Extensions: videoExtensions,
		Fields:     map[string]string{"dest_lang": "ro"},
	},
}

// LookupService finds a catalog entry by key
func LookupService(key string) (Service, error) {
	for _, s := range Services {
		if s.Key == key {
			return s, nil
		}
	}
	return Service{}, &ValidationError{"service", fmt.Sprintf("unknown service %q", key)}
}

// AcceptsFile reports whether the file extension is supported by the service
func (s Service) AcceptsFile(name string) bool {
	ext := LocalFile{Name: name}.Extension()
	for _, e := range s.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// SupportsURL reports whether the service takes remote video links
func (s Service) SupportsURL() bool {
	return s.URLPath != ""
}

// ValidateSource checks that src can be submitted to this service
func (s Service) ValidateSource(src Source) error {
	if src == nil || src.Empty() {
		return &ValidationError{"source", "required"}
	}
	switch v := src.(type) {
	case LocalFile:
		if !s.AcceptsFile(v.Name) {
			return &ValidationError{"source", fmt.Sprintf("%s does not accept .%s files (allowed: %s)",
				s.Key, v.Extension(), strings.Join(s.Extensions, ", "))}
		}
	case RemoteReference:
		if !s.SupportsURL() {
			return &ValidationError{"source", fmt.Sprintf("%s does not accept links", s.Key)}
		}
		return ValidateVideoURL(v.URL)
	default:
		return &ValidationError{"source", fmt.Sprintf("unsupported source kind %q", src.Kind())}
	}
	return nil
}

// MergeFields layers request fields over the service defaults
func (s Service) MergeFields(fields map[string]string) map[string]string {
	merged := make(map[string]string, len(s.Fields)+len(fields))
	for k, v := range s.Fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

// ServiceKeys returns the sorted catalog keys
func ServiceKeys() []string {
	keys := make([]string, 0, len(Services))
	for _, s := range Services {
		keys = append(keys, s.Key)
	}
	sort.Strings(keys)
	return keys
}
