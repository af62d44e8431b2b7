package middleware

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

// Input validation and sanitization utilities

const (
	MaxFilenameLength = 255
	DefaultLimit      = 10
	MaxLimit          = 100
)

// ValidateAnalysisID checks that id is a UUID.
func ValidateAnalysisID(id string) error {
	if id == "" {
		return eris.Wrap(domain.ErrInvalidInput, "analysis id cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return eris.Wrapf(domain.ErrInvalidInput, "invalid analysis id %q", id)
	}
	return nil
}

// ValidateFilename rejects empty names, paths and control characters.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return eris.Wrap(domain.ErrInvalidInput, "filename cannot be empty")
	}
	if !utf8.ValidString(name) {
		return eris.Wrap(domain.ErrInvalidInput, "filename is not valid UTF-8")
	}
	if len(name) > MaxFilenameLength {
		return eris.Wrapf(domain.ErrInvalidInput, "filename longer than %d bytes", MaxFilenameLength)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name || name == "." || name == ".." {
		return eris.Wrap(domain.ErrInvalidInput, "filename must not contain a path")
	}
	if SanitizeString(name) != name {
		return eris.Wrap(domain.ErrInvalidInput, "invalid characters in filename")
	}
	return nil
}

// ValidateStorageID checks the blob handle shape; ownership is checked by
// the service.
func ValidateStorageID(handle string) error {
	if handle == "" {
		return eris.Wrap(domain.ErrInvalidInput, "storage id cannot be empty")
	}
	if strings.Contains(handle, "..") || strings.HasPrefix(handle, "/") || SanitizeString(handle) != handle {
		return eris.Wrap(domain.ErrInvalidInput, "invalid storage id")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// ParseLimit reads a limit query value. Empty means default.
func ParseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Wrapf(domain.ErrInvalidInput, "invalid limit %q", raw)
	}
	return ValidateLimit(n), nil
}
