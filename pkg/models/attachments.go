package models

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ImageFormat is a supported image attachment format.
type ImageFormat string

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
	ImageGIF  ImageFormat = "gif"
	ImageWEBP ImageFormat = "webp"
)

// DocumentFormat is a supported document attachment format.
type DocumentFormat string

const (
	DocPDF  DocumentFormat = "pdf"
	DocCSV  DocumentFormat = "csv"
	DocDOC  DocumentFormat = "doc"
	DocDOCX DocumentFormat = "docx"
	DocXLS  DocumentFormat = "xls"
	DocXLSX DocumentFormat = "xlsx"
	DocHTML DocumentFormat = "html"
	DocTXT  DocumentFormat = "txt"
	DocMD   DocumentFormat = "md"
)

// Image is a byte-oriented image attachment. Width and height are decoded
// from the image header where the stdlib has a decoder; WEBP dimensions are
// left at zero.
type Image struct {
	Content []byte            `json:"-"`
	Format  ImageFormat       `json:"format"`
	Width   int               `json:"width,omitempty"`
	Height  int               `json:"height,omitempty"`
	EXIF    map[string]string `json:"exif,omitempty"`

	// Base64 carries the content over the wire.
	Base64 string `json:"content,omitempty"`
}

// NewImage builds an Image from raw bytes, sniffing the format from the
// magic bytes and decoding dimensions where possible.
func NewImage(content []byte) (*Image, error) {
	format, ok := sniffImageFormat(content)
	if !ok {
		return nil, NewError(KindConversion, "unrecognized image format")
	}
	img := &Image{Content: content, Format: format}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(content)); err == nil {
		img.Width = cfg.Width
		img.Height = cfg.Height
	}
	return img, nil
}

// NewImageFromFile reads an image attachment from disk.
func NewImageFromFile(path string) (*Image, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}
	return NewImage(content)
}

// NewImageFromBase64 decodes a base64 payload into an Image.
func NewImageFromBase64(encoded string) (*Image, error) {
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, NewError(KindConversion, "invalid base64 image payload").WithCause(err)
	}
	return NewImage(content)
}

// ToBase64 returns the standard base64 encoding of the image bytes.
func (i *Image) ToBase64() string {
	return base64.StdEncoding.EncodeToString(i.Content)
}

// MediaType returns the MIME type for the image format.
func (i *Image) MediaType() string {
	return "image/" + string(i.Format)
}

func sniffImageFormat(content []byte) (ImageFormat, bool) {
	switch {
	case bytes.HasPrefix(content, []byte("\x89PNG\r\n\x1a\n")):
		return ImagePNG, true
	case bytes.HasPrefix(content, []byte("\xff\xd8\xff")):
		return ImageJPEG, true
	case bytes.HasPrefix(content, []byte("GIF87a")) || bytes.HasPrefix(content, []byte("GIF89a")):
		return ImageGIF, true
	case len(content) >= 12 && bytes.Equal(content[0:4], []byte("RIFF")) && bytes.Equal(content[8:12], []byte("WEBP")):
		return ImageWEBP, true
	}
	return "", false
}

// Document is a byte-oriented document attachment.
type Document struct {
	Content []byte         `json:"-"`
	Name    string         `json:"name"`
	Format  DocumentFormat `json:"format"`

	// Base64 carries the content over the wire.
	Base64 string `json:"content,omitempty"`
}

// NewDocument builds a Document, deriving the format from the file extension
// of name.
func NewDocument(content []byte, name string) (*Document, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch DocumentFormat(ext) {
	case DocPDF, DocCSV, DocDOC, DocDOCX, DocXLS, DocXLSX, DocHTML, DocTXT, DocMD:
		return &Document{Content: content, Name: name, Format: DocumentFormat(ext)}, nil
	}
	return nil, NewError(KindConversion, "unsupported document format: %q", ext)
}

// NewDocumentFromFile reads a document attachment from disk.
func NewDocumentFromFile(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}
	return NewDocument(content, filepath.Base(path))
}

// NewDocumentFromBase64 decodes a base64 payload into a Document.
func NewDocumentFromBase64(encoded, name string) (*Document, error) {
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, NewError(KindConversion, "invalid base64 document payload").WithCause(err)
	}
	return NewDocument(content, name)
}

// ToBase64 returns the standard base64 encoding of the document bytes.
func (d *Document) ToBase64() string {
	return base64.StdEncoding.EncodeToString(d.Content)
}
