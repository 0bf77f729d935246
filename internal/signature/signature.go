// Package signature confirms that uploaded bytes carry the magic-byte prefix
// of the MIME type the caller declared. It never guesses a type from content.
package signature

import "bytes"

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEWEBP = "image/webp"
	MIMEPDF  = "application/pdf"
)

// WEBP only checks the RIFF container prefix, so any RIFF file passes.
var signatures = map[string][]byte{
	MIMEJPEG: {0xFF, 0xD8, 0xFF},
	MIMEPNG:  {0x89, 0x50, 0x4E, 0x47},
	MIMEGIF:  {0x47, 0x49, 0x46},
	MIMEWEBP: {0x52, 0x49, 0x46, 0x46},
	MIMEPDF:  {0x25, 0x50, 0x44, 0x46},
}

// Matches reports whether data starts with the signature registered for
// declaredMIMEType. Unknown types and buffers shorter than the signature
// never match.
func Matches(data []byte, declaredMIMEType string) bool {
	sig, ok := signatures[declaredMIMEType]
	if !ok {
		return false
	}
	return bytes.HasPrefix(data, sig)
}

// Supported reports whether the declared type is on the upload allow-list.
func Supported(declaredMIMEType string) bool {
	_, ok := signatures[declaredMIMEType]
	return ok
}

// IsPDF reports whether the declared type routes to the PDF extractor.
func IsPDF(declaredMIMEType string) bool {
	return declaredMIMEType == MIMEPDF
}

// IsImage reports whether the declared type is a supported image type.
func IsImage(declaredMIMEType string) bool {
	return Supported(declaredMIMEType) && !IsPDF(declaredMIMEType)
}

// SupportedTypes lists the allow-list in a stable order.
func SupportedTypes() []string {
	return []string{MIMEJPEG, MIMEPNG, MIMEGIF, MIMEWEBP, MIMEPDF}
}
