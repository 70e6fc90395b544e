// Package mimetype infers an image MIME type from a file name.
package mimetype

import (
	"path/filepath"
	"strings"

	"github.com/jo-hoe/imagecaptioner/internal/common"
)

var byExtension = map[string]string{
	".jpg":  common.MimeImageJPEG,
	".jpeg": common.MimeImageJPEG,
	".png":  common.MimeImagePNG,
	".gif":  common.MimeImageGIF,
	".webp": common.MimeImageWebP,
}

// FromPath maps the lowercased extension of path to a MIME type.
// Unknown or missing extensions yield application/octet-stream.
func FromPath(path string) string {
	if mt, ok := byExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return common.MimeOctetStream
}

// Effective returns declared when it is non-empty and otherwise falls back to FromPath.
// A declared application/octet-stream is kept as is.
func Effective(declared, path string) string {
	if d := strings.TrimSpace(declared); d != "" {
		return d
	}
	return FromPath(path)
}
