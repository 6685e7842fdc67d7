package message

import (
	"strings"

	"chatrelay/internal/pkg/errs"
)

const (
	// MaxFileSizeMB is the maximum allowed decoded file size in megabytes.
	MaxFileSizeMB = 5

	// MaxFileSize is the maximum allowed decoded file size in bytes.
	MaxFileSize = MaxFileSizeMB * 1024 * 1024
)

// DeclaresFile reports whether the message carries a file payload.
func (m *Message) DeclaresFile() bool {
	return m.HasFile || m.FileData != ""
}

// DecodedSize returns the number of bytes encoded in fileData.
// fileData is either plain base64 or a data URL; a data URL without the ";base64" marker
// carries its payload as-is. Whitespace is ignored.
func DecodedSize(fileData string) int64 {
	payload := fileData
	isBase64 := true

	if strings.HasPrefix(payload, "data:") {
		header, rest, found := strings.Cut(payload, ",")
		if !found {
			return 0
		}
		payload = rest
		isBase64 = strings.HasSuffix(header, ";base64")
	}

	if !isBase64 {
		return int64(len(payload))
	}

	n := 0
	padding := 0
	for i := 0; i < len(payload); i++ {
		switch c := payload[i]; c {
		case ' ', '\t', '\r', '\n':
		case '=':
			padding++
			n++
		default:
			n++
		}
	}

	size := int64(n)*3/4 - int64(padding)
	if size < 0 {
		return 0
	}
	return size
}

// ValidateFileSize rejects a message whose declared file decodes to more than limit bytes.
func ValidateFileSize(m *Message, limit int64) *errs.CustomError {
	if !m.DeclaresFile() {
		return nil
	}

	if DecodedSize(m.FileData) > limit {
		return errs.NewError(errs.ErrFileSizeTooLarge, limit/(1024*1024))
	}

	return nil
}
