package forwarder

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/shineum/mail2telegram/internal/telegram"
)

// defaultMIMEType is assumed for files whose extension is not recognized.
const defaultMIMEType = "application/octet-stream"

// extraTypes fills gaps in the built-in table, which only knows a handful of
// web types unless the host ships /etc/mime.types.
var extraTypes = map[string]string{
	".bmp":  "image/bmp",
	".heic": "image/heic",
	".heif": "image/heif",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".3gp":  "video/3gpp",
}

func init() {
	for ext, typ := range extraTypes {
		if mime.TypeByExtension(ext) == "" {
			_ = mime.AddExtensionType(ext, typ)
		}
	}
}

// Classify returns the media kind an attachment is uploaded as, based on
// the MIME type implied by its filename extension.
func Classify(filename string) telegram.MediaKind {
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if mimeType == "" {
		mimeType = defaultMIMEType
	}

	mainType, _, _ := strings.Cut(mimeType, "/")
	switch mainType {
	case "image":
		return telegram.MediaPhoto
	case "video":
		return telegram.MediaVideo
	default:
		return telegram.MediaDocument
	}
}
