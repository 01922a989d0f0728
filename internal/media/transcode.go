package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"net/url"
	"path"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // registers the webp decoder
)

// ErrUnsupportedFormat is returned when a payload is not a decodable image.
var ErrUnsupportedFormat = errors.New("unsupported media format")

const fallbackExt = "png"

// encodable lists the extensions Transcode can write, keyed to the decoder
// format name that shares the codec.
var encodable = map[string]string{
	"jpg":  "jpeg",
	"jpeg": "jpeg",
	"png":  "png",
	"gif":  "gif",
	"bmp":  "bmp",
	"tif":  "tiff",
	"tiff": "tiff",
}

// canonicalExt maps decoder format names to their usual extension.
var canonicalExt = map[string]string{
	"jpeg": "jpg",
	"png":  "png",
	"gif":  "gif",
	"bmp":  "bmp",
	"tiff": "tiff",
}

// ExtensionFromURL returns the lower-cased extension of raw's path when it
// names a format Transcode can write, or "".
func ExtensionFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if _, ok := encodable[ext]; ok {
		return ext
	}
	return ""
}

// Transcode decodes data as an image and re-encodes it. The output format is
// urlExt when set, otherwise the decoded format, otherwise png.
func Transcode(data []byte, urlExt string) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	ext := urlExt
	if _, ok := encodable[ext]; !ok {
		ext = canonicalExt[format]
		if ext == "" {
			ext = fallbackExt
		}
	}
	var buf bytes.Buffer
	if err := encode(&buf, img, ext); err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", ext, err)
	}
	return buf.Bytes(), ext, nil
}

func encode(buf *bytes.Buffer, img image.Image, ext string) error {
	switch encodable[ext] {
	case "jpeg":
		return jpeg.Encode(buf, img, &jpeg.Options{Quality: 90})
	case "png":
		return png.Encode(buf, img)
	case "gif":
		return gif.Encode(buf, img, nil)
	case "bmp":
		return bmp.Encode(buf, img)
	case "tiff":
		return tiff.Encode(buf, img, nil)
	default:
		return fmt.Errorf("%w: no encoder for %q", ErrUnsupportedFormat, ext)
	}
}
