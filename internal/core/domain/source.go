package domain

type SourceKind string

const (
	SourceImage    SourceKind = "image"
	SourceText     SourceKind = "text"
	SourceURL      SourceKind = "url"
	SourceDocument SourceKind = "document"
)

// SourceDescriptor is the tagged input of one pipeline run. Only the fields of
// its Kind are populated.
type SourceDescriptor struct {
	Kind       SourceKind
	Data       []byte
	MimeType   string
	Screenshot bool
	Body       string
	Address    string
}

func NewImageSource(data []byte, mimeType string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceImage, Data: data, MimeType: mimeType}
}

func NewScreenshotSource(data []byte, mimeType string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceImage, Data: data, MimeType: mimeType, Screenshot: true}
}

func NewTextSource(body string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceText, Body: body}
}

func NewURLSource(address string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceURL, Address: address}
}

func NewDocumentSource(data []byte, mimeType string) SourceDescriptor {
	return SourceDescriptor{Kind: SourceDocument, Data: data, MimeType: mimeType}
}

// SourceType reports the stored source type for items produced from this source.
func (s SourceDescriptor) SourceType() SourceType {
	switch s.Kind {
	case SourceImage:
		if s.Screenshot {
			return SourceTypeScreenshot
		}
		return SourceTypePhoto
	case SourceURL:
		return SourceTypeURL
	case SourceDocument:
		return SourceTypePDF
	default:
		return SourceTypeText
	}
}

type ContentKind string

const (
	ContentImage ContentKind = "image"
	ContentText  ContentKind = "text"
)

type ContentMetadata struct {
	LengthBytes    int    `json:"length_bytes"`
	OriginalLength int    `json:"original_length"`
	Method         string `json:"method"`
	Truncated      bool   `json:"truncated"`
	Cached         bool   `json:"cached,omitempty"`
	SourceURL      string `json:"source_url,omitempty"`
}

// AcquiredContent is what the acquirer hands to the prompter. Text is set for
// ContentText, Image and MimeType for ContentImage.
type AcquiredContent struct {
	Kind       ContentKind     `json:"kind"`
	Text       string          `json:"text,omitempty"`
	Image      []byte          `json:"-"`
	MimeType   string          `json:"mime_type,omitempty"`
	SourceType SourceType      `json:"source_type"`
	Metadata   ContentMetadata `json:"metadata"`
}
