package yoloprep

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register the WebP decoder.
)

// imageSize returns the width and height of the image at path as displayed, i.e. with the EXIF
// orientation applied. LabelMe annotates the oriented image, so the raw size of a rotated JPEG
// would be wrong.
func imageSize(path string) (width, height int, err error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// imageFormat returns the image format name for path, from its contents if they can be decoded and
// from the file extension otherwise.
func imageFormat(path string) string {
	if _, format, err := decodeImageConfig(path); err == nil {
		return format
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".tif":
		return "tiff"
	default:
		return strings.TrimPrefix(ext, ".")
	}
}
