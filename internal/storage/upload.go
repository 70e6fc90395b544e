package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jo-hoe/imagecaptioner/internal/common"
	"github.com/jo-hoe/imagecaptioner/internal/util"
)

// ErrMissingFile is returned when the request carries no image part.
var ErrMissingFile = errors.New("no image file uploaded")

// UploadedImage describes an upload persisted to the scratch directory.
// The file at Path is owned by the request that created it and must not be used after its cleanup ran.
type UploadedImage struct {
	Path             string
	DeclaredMimeType string // as sent by the client; may be empty
	OriginalFilename string
	SizeBytes        int64
}

// Uploader handles storing temporary uploads on disk.
type Uploader struct {
	baseDir string
}

// NewUploader creates an uploader that stores to baseDir/uploads.
func NewUploader(baseDir string) *Uploader {
	return &Uploader{baseDir: filepath.Join(baseDir, common.UploadsDirName)}
}

// Dir returns the directory uploads are written to.
func (u *Uploader) Dir() string {
	return u.baseDir
}

// SaveMultipartImage stores an uploaded file under a generated unique name.
// No content validation is done; size is bounded by the request body cap.
// It returns the stored image and a cleanup function deleting the file; the caller must invoke it.
func (u *Uploader) SaveMultipartImage(fileHeader *multipart.FileHeader) (UploadedImage, func() error, error) {
	if fileHeader == nil {
		return UploadedImage{}, nil, ErrMissingFile
	}

	if err := os.MkdirAll(u.baseDir, 0o750); err != nil {
		return UploadedImage{}, nil, fmt.Errorf("ensure uploads dir: %w", err)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return UploadedImage{}, nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer func() { _ = src.Close() }()

	dstPath := filepath.Join(u.baseDir, util.NewID()+safeExtension(fileHeader.Filename))
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return UploadedImage{}, nil, fmt.Errorf("create tmp file: %w", err)
	}

	n, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dstPath)
		return UploadedImage{}, nil, fmt.Errorf("copy upload: %w", err)
	}

	img := UploadedImage{
		Path:             dstPath,
		DeclaredMimeType: strings.TrimSpace(fileHeader.Header.Get(common.HeaderContentType)),
		OriginalFilename: filepath.Base(fileHeader.Filename),
		SizeBytes:        n,
	}
	cleanup := func() error {
		return os.Remove(dstPath)
	}
	return img, cleanup, nil
}

var reExtension = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// safeExtension keeps the client's extension so extension-based MIME lookup still works on the stored file.
func safeExtension(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if !reExtension.MatchString(ext) {
		return ""
	}
	return ext
}
