package services

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Codes carried by FileValidationError.
const (
	CodeNoFile           = "NO_FILE"
	CodeFileNotFound     = "FILE_NOT_FOUND"
	CodeInvalidExtension = "INVALID_EXTENSION"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeInvalidEncoding  = "INVALID_ENCODING"
)

// FileValidationError means a file was refused before parsing.
type FileValidationError struct {
	Message string
	Code    string
}

func (e *FileValidationError) Error() string { return e.Message }

// ValidateBibFile reads and validates a bibliography from disk.
func ValidateBibFile(path string, maxBytes int64) (string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", &FileValidationError{Message: fmt.Sprintf("BibTeX file not found: %s", path), Code: CodeFileNotFound}
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", &FileValidationError{Message: fmt.Sprintf("%s is a directory", path), Code: CodeNoFile}
	}
	if err := checkNameAndSize(path, info.Size(), maxBytes); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return ValidateBibContent(path, data, maxBytes)
}

// ValidateBibContent checks extension, size and encoding of an uploaded
// bibliography and returns it as UTF-8 text. A byte-order mark selects
// UTF-8 or UTF-16 decoding and is dropped. Empty content is valid.
func ValidateBibContent(name string, data []byte, maxBytes int64) (string, error) {
	if err := checkNameAndSize(name, int64(len(data)), maxBytes); err != nil {
		return "", err
	}
	if !hasUTF16BOM(data) && !utf8.Valid(data) {
		return "", &FileValidationError{Message: "file is not valid UTF-8 text", Code: CodeInvalidEncoding}
	}
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	decoded, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return "", &FileValidationError{Message: fmt.Sprintf("could not decode %s: %v", filepath.Base(name), err), Code: CodeInvalidEncoding}
	}
	return string(decoded), nil
}

func hasUTF16BOM(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xff, 0xfe}) || bytes.HasPrefix(data, []byte{0xfe, 0xff})
}

func checkNameAndSize(name string, size, maxBytes int64) error {
	if !strings.EqualFold(filepath.Ext(name), ".bib") {
		return &FileValidationError{Message: "Only .bib files are allowed", Code: CodeInvalidExtension}
	}
	if maxBytes > 0 && size > maxBytes {
		return &FileValidationError{
			Message: fmt.Sprintf("file is %d bytes, maximum is %d", size, maxBytes),
			Code:    CodeFileTooLarge,
		}
	}
	return nil
}
