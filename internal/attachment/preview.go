package attachment

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Preview reads an image fully into memory for the client-side confirmation
// step before upload. It verifies the bytes actually look like the declared
// image format (magic numbers), so a mislabeled file is caught before any
// network traffic.
func Preview(contentType string, r io.Reader) ([]byte, error) {
	ct := normalizeContentType(contentType)
	if !strings.HasPrefix(ct, "image/") {
		return nil, &ValidationError{Reason: "preview is only available for images"}
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("attachment preview read: %w", err)
	}
	if int64(len(data)) > MaxSizeBytes {
		return nil, &ValidationError{Reason: "file exceeds the 5 MB limit"}
	}
	if !matchImageMagic(ct, data) {
		return nil, &ValidationError{Reason: "file content does not match its image type"}
	}
	return data, nil
}

func matchImageMagic(contentType string, head []byte) bool {
	switch contentType {
	case "image/jpeg":
		return len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF
	case "image/png":
		return len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	case "image/gif":
		return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
	case "image/webp":
		return len(head) >= 12 && bytes.Equal(head[8:12], []byte("WEBP"))
	}
	return false
}
