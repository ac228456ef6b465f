package filebrowser

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"example.com/fileshare/internal/config"
)

// defaultMimeTypes is consulted before Go's mime.TypeByExtension so that
// answers do not depend on the host's mime.types files.
var defaultMimeTypes = map[string]string{
	".aac":  "audio/aac",
	".apng": "image/apng",
	".avif": "image/avif",
	".avi":  "video/x-msvideo",
	".bmp":  "image/bmp",
	".bz2":  "application/x-bzip2",
	".css":  "text/css; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".epub": "application/epub+zip",
	".flac": "audio/flac",
	".flv":  "video/x-flv",
	".gz":   "application/gzip",
	".gif":  "image/gif",
	".go":   "text/plain; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".ico":  "image/vnd.microsoft.icon",
	".ini":  "text/plain; charset=utf-8",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".js":   "text/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".log":  "text/plain; charset=utf-8",
	".m4a":  "audio/mp4",
	".md":   "text/markdown; charset=utf-8",
	".mid":  "audio/midi",
	".mjs":  "text/javascript; charset=utf-8",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".mpeg": "video/mpeg",
	".odp":  "application/vnd.oasis.opendocument.presentation",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".odt":  "application/vnd.oasis.opendocument.text",
	".oga":  "audio/ogg",
	".ogg":  "video/ogg",
	".ogv":  "video/ogg",
	".opus": "audio/opus",
	".otf":  "font/otf",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".rar":  "application/vnd.rar",
	".rtf":  "application/rtf",
	".sh":   "application/x-sh",
	".svg":  "image/svg+xml",
	".tar":  "application/x-tar",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".toml": "text/plain; charset=utf-8",
	".ttf":  "font/ttf",
	".txt":  "text/plain; charset=utf-8",
	".wav":  "audio/wav",
	".weba": "audio/webm",
	".webm": "video/webm",
	".webp": "image/webp",
	".wmv":  "video/x-ms-wmv",
	".woff": "font/woff",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xml":  "application/xml; charset=utf-8",
	".yaml": "text/plain; charset=utf-8",
	".yml":  "text/plain; charset=utf-8",
	".zip":  "application/zip",
	".7z":   "application/x-7z-compressed",
}

const defaultOctetStreamMimeType = "application/octet-stream"

// MimeTypeResolver maps file names to Content-Type values.
type MimeTypeResolver struct {
	customMimeTypes map[string]string
}

// NewMimeTypeResolver merges the inline mime_types map with the JSON file at
// mime_types_path; file entries win. A nil config yields the built-in table only.
func NewMimeTypeResolver(cfg *config.BrowserConfig) (*MimeTypeResolver, error) {
	resolver := &MimeTypeResolver{customMimeTypes: make(map[string]string)}
	if cfg == nil {
		return resolver, nil
	}
	for ext, mimeType := range cfg.MimeTypes {
		resolver.customMimeTypes[strings.ToLower(ext)] = mimeType
	}
	if cfg.MimeTypesPath != nil && *cfg.MimeTypesPath != "" {
		fromFile, err := LoadCustomMimeTypesFromFile(*cfg.MimeTypesPath)
		if err != nil {
			return nil, &config.ConfigError{
				FilePath: *cfg.MimeTypesPath,
				Message:  "failed to load custom MIME types",
				Err:      err,
			}
		}
		for ext, mimeType := range fromFile {
			resolver.customMimeTypes[ext] = mimeType
		}
	}
	return resolver, nil
}

// GetMimeType resolves filePath by extension: custom mappings, then the
// built-in table, then mime.TypeByExtension, then application/octet-stream.
func (r *MimeTypeResolver) GetMimeType(filePath string) string {
	var custom map[string]string
	if r != nil {
		custom = r.customMimeTypes
	}
	return ResolveMimeType(filepath.Ext(filePath), custom)
}

// LoadCustomMimeTypesFromFile reads a JSON object of extension to MIME type.
// Extensions must start with '.', types must be non-empty; keys are lowercased.
func LoadCustomMimeTypesFromFile(filePath string) (map[string]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIME types file %q: %w", filePath, err)
	}

	var parsedMimeTypes map[string]string
	if err := json.Unmarshal(data, &parsedMimeTypes); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from MIME types file %q: %w", filePath, err)
	}

	customMimeTypes := make(map[string]string, len(parsedMimeTypes))
	for ext, mimeType := range parsedMimeTypes {
		if !strings.HasPrefix(ext, ".") {
			return nil, fmt.Errorf("invalid extension %q in MIME types file %q: must start with a '.'", ext, filePath)
		}
		if mimeType == "" {
			return nil, fmt.Errorf("empty MIME type for extension %q in MIME types file %q", ext, filePath)
		}
		customMimeTypes[strings.ToLower(ext)] = mimeType
	}
	return customMimeTypes, nil
}

// ResolveMimeType determines the MIME type for extension (with its leading dot).
func ResolveMimeType(extension string, customUserMappings map[string]string) string {
	if extension == "" {
		return defaultOctetStreamMimeType
	}
	ext := strings.ToLower(extension)

	if mimeType, ok := customUserMappings[ext]; ok {
		return mimeType
	}
	if mimeType, ok := defaultMimeTypes[ext]; ok {
		return mimeType
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	return defaultOctetStreamMimeType
}

// FileKind groups MIME types by how they can be previewed and which icon they get.
type FileKind int

const (
	KindOther FileKind = iota
	KindImage
	KindVideo
	KindAudio
	KindPDF
	KindDocument
	KindSpreadsheet
	KindPresentation
	KindText
)

// Classify returns the FileKind of a Content-Type value; parameters are ignored.
func Classify(contentType string) FileKind {
	mt, _, _ := strings.Cut(contentType, ";")
	mt = strings.ToLower(strings.TrimSpace(mt))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "video/"):
		return KindVideo
	case strings.HasPrefix(mt, "audio/"):
		return KindAudio
	case mt == "application/pdf":
		return KindPDF
	case mt == "application/msword",
		mt == "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		mt == "application/vnd.oasis.opendocument.text",
		mt == "application/rtf":
		return KindDocument
	case mt == "application/vnd.ms-excel",
		mt == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		mt == "application/vnd.oasis.opendocument.spreadsheet":
		return KindSpreadsheet
	case mt == "application/vnd.ms-powerpoint",
		mt == "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		mt == "application/vnd.oasis.opendocument.presentation":
		return KindPresentation
	case strings.HasPrefix(mt, "text/"), mt == "application/json", mt == "application/xml":
		return KindText
	default:
		return KindOther
	}
}

// Icon returns the glyph shown next to files of this kind.
func (k FileKind) Icon() string {
	switch k {
	case KindImage:
		return "🖼️"
	case KindVideo:
		return "🎞️"
	case KindAudio:
		return "🎵"
	case KindSpreadsheet:
		return "📊"
	case KindPresentation:
		return "📽️"
	default:
		return "📄"
	}
}
