package core

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
)

// ImageKind is the sniffed image container type.
type ImageKind string

const (
	ImagePNG  ImageKind = "png"
	ImageJPEG ImageKind = "jpeg"
	ImageGIF  ImageKind = "gif"
	ImageWEBP ImageKind = "webp"
)

var ErrUnknownImageKind = errors.New("unknown image type")

// DetectImageKind sniffs the magic bytes of the four image formats the chat
// front end accepts: png, jpeg, gif and webp.
func DetectImageKind(data []byte) (ImageKind, error) {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return ImagePNG, nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8}):
		return ImageJPEG, nil
	case bytes.HasPrefix(data, []byte("GIF89a")):
		return ImageGIF, nil
	case bytes.HasPrefix(data, []byte("RIFF")):
		if len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP")) {
			return ImageWEBP, nil
		}
		return "", ErrUnknownImageKind
	default:
		return "", ErrUnknownImageKind
	}
}

// EncodeImageDataURL wraps raw image bytes into the data URL form the
// multimodal chat API expects.
func EncodeImageDataURL(data []byte) (string, error) {
	kind, err := DetectImageKind(data)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("data:image/%s;base64,%s", kind, base64.StdEncoding.EncodeToString(data)), nil
}
