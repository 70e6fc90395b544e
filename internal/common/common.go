package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderGoogAPIKey    = "x-goog-api-key" // #nosec G101 - header name constant, not a credential
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	ContentTypeJSON     = "application/json"
)

// API paths
const (
	PathHealthz  = "/healthz"
	PathCaption  = "/api/v1/caption"
	PathRequests = PathCaption + "/requests"
)

// Multipart form fields
const (
	FormFieldImage = "image"
)

// Client-visible error messages
const (
	ErrMsgNoImage         = "No image file uploaded"
	ErrMsgCaptionFailed   = "Failed to generate caption"
	ErrMsgBodyTooLarge    = "Request body too large"
	ErrMsgInternal        = "internal error"
	ErrMsgRequestNotFound = "not found"
)

// Defaults and limits
const (
	DefaultQueueCapacity  = 128
	DefaultCleanupWorkers = 2
	DefaultBodyLimit      = "10mb"
	DefaultPort           = "3000"
	SQLiteBusyTimeoutMS   = 5000
)

// MIME types
const (
	MimeImagePNG    = "image/png"
	MimeImageJPEG   = "image/jpeg"
	MimeImageGIF    = "image/gif"
	MimeImageWebP   = "image/webp"
	MimeOctetStream = "application/octet-stream"
)

// Subdirectory names
const (
	UploadsDirName = "uploads"
	AppDirName     = "imagecaptioner"
)
