package core

import "strings"

// Part represents a polymorphic segment of message content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// PartKind names the kind of a part. It doubles as the capability a model
// must support to accept the part.
type PartKind string

const (
	// PartText is a plain text segment.
	PartText PartKind = "text"
	// PartImage is an image segment.
	PartImage PartKind = "image"
)

// TextPart is a plain text content segment.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// ImagePart references an image either as a data URL or a remote URL.
type ImagePart struct {
	ImageType string // jpeg or png
	URL       string
}

func (ImagePart) isPart() {}

// NewImagePart derives the image type from a data URL prefix.
func NewImagePart(url string) ImagePart {
	imageType := "jpeg"
	if strings.HasPrefix(url, "data:image/png") || strings.HasSuffix(strings.ToLower(url), ".png") {
		imageType = "png"
	}
	return ImagePart{ImageType: imageType, URL: url}
}

// KindOfPart returns the kind of p.
func KindOfPart(p Part) PartKind {
	switch p.(type) {
	case ImagePart:
		return PartImage
	default:
		return PartText
	}
}
