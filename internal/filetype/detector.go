package filetype

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// DefaultSizeWarning is the upload size above which a warning is raised.
const DefaultSizeWarning int64 = 20 << 20

// Kind groups the accepted sources by how they are processed.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindUnknown  Kind = "unknown"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct {
	sizeWarning int64
}

// New creates a detector that warns above sizeWarning bytes (<= 0 uses the
// default).
func New(sizeWarning int64) *Detector {
	if sizeWarning <= 0 {
		sizeWarning = DefaultSizeWarning
	}
	return &Detector{sizeWarning: sizeWarning}
}

// Detect detects the actual file type using magic bytes, not the filename or
// the client-supplied content type.
func (d *Detector) Detect(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Bool("supported", info.Supported).Int("bytes", len(data)).Msg("detected file type")
	return info
}

// DetectFile is Detect for a file on disk.
func (d *Detector) DetectFile(path string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	d.classify(info)
	return info, nil
}

// classify marks the whitelisted formats as supported
func (d *Detector) classify(info *FileTypeInfo) {
	// mimetype may append parameters (e.g. "text/plain; charset=utf-8")
	base := info.MIMEType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	switch base {
	case "image/png":
		info.Kind = KindImage
		info.Supported = true
		info.Description = "PNG image"

	case "image/jpeg":
		info.Kind = KindImage
		info.Supported = true
		info.Description = "JPEG image"

	case "application/pdf":
		info.Kind = KindDocument
		info.Supported = true
		info.Description = "PDF document"

	default:
		info.Kind = KindUnknown
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}

// IsImage reports whether the source can be composed into pages.
func (i *FileTypeInfo) IsImage() bool { return i.Supported && i.Kind == KindImage }

// IsDocument reports whether the source can be opened in the page editor.
func (i *FileTypeInfo) IsDocument() bool { return i.Supported && i.Kind == KindDocument }

// OversizeWarning returns a message when size exceeds the warning threshold.
// Large sources are still processed.
func (d *Detector) OversizeWarning(size int64) (string, bool) {
	if size <= d.sizeWarning {
		return "", false
	}
	return fmt.Sprintf("file is %.1f MB; processing may be slow", float64(size)/(1<<20)), true
}

// SizeWarning is the configured threshold in bytes.
func (d *Detector) SizeWarning() int64 { return d.sizeWarning }
