package yoloprep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// DefaultImageExts are the file extensions recognised as images.
var DefaultImageExts = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tiff", ".tif", ".webp"}

// orDefault returns l, or slog.Default() if l is nil.
func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// filesByExtInDir returns all regular files (or symlinks) found directly in directory dirPath whose
// lower-cased extension is one of exts, sorted by name. All files are returned if exts is empty.
func filesByExtInDir(dirPath string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read directory %q: %v", ErrInputRoot, dirPath, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		// Must be a regular file or a symlink and have one of the requested extensions.
		if !e.Type().IsRegular() && e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if len(exts) > 0 && !hasExt(e.Name(), exts) {
			continue
		}
		files = append(files, filepath.Join(dirPath, e.Name()))
	}

	return files, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// splitPath splits the given file path into the dir name, the base name without extension and the
// extension (without the dot).
func splitPath(path string) (dir, baseNoExt, ext string, err error) {
	dir, file := filepath.Split(path)
	ext = filepath.Ext(file)
	if ext == "" {
		return "", "", "", fmt.Errorf("missing file extension in %q", path)
	}

	dir = strings.TrimSuffix(dir, string(os.PathSeparator))
	baseNoExt = file[0 : len(file)-len(ext)]
	ext = ext[1:]

	return dir, baseNoExt, ext, nil
}

// mapFileNamesToPaths maps the base names of the given file paths, with the file type extensions
// stripped off, to the full path. The first path wins when two files share a base name.
func mapFileNamesToPaths(filePaths []string, logger *slog.Logger) map[string]string {
	mapping := make(map[string]string, len(filePaths))
	for _, path := range filePaths {
		_, baseNoExt, _, err := splitPath(path)
		if err != nil {
			logger.Warn("ignoring file", "file", path, "error", err)
			continue
		}
		if prev, ok := mapping[baseNoExt]; ok {
			logger.Warn("ambiguous image base name", "file", path, "using", prev)
			continue
		}
		mapping[baseNoExt] = path
	}

	return mapping
}

// labelParserFn parses a label file given the label and image file paths. The returned []error
// lists parts of the file that were skipped; a non-nil error skips the whole file.
type labelParserFn func(labelPath, imagePath string) (AnnotatedFile, []error, error)

// parseLabelsWithOneToOneImages matches label files in labelDir, with file extension labelFileExt
// (e.g. ".json") by file name to images in imageDir. It then invokes parse on these path pairs.
//
// Returns the list of file annotations obtained by applying parse to all label files, in label
// file name order, and the errors for all skipped files and shapes.
func parseLabelsWithOneToOneImages(labelDir, labelFileExt, imageDir string, parse labelParserFn,
	logger *slog.Logger) (AnnotatedFiles, []error, error) {

	// Get the label file paths.
	labelFiles, err := filesByExtInDir(labelDir, labelFileExt)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("parsing labels", "files", len(labelFiles), "dir", labelDir)

	// Find the image files and create a map from base file name without ext to path.
	imageFiles, err := filesByExtInDir(imageDir, DefaultImageExts...)
	if err != nil {
		return nil, nil, err
	}
	imagesByName := mapFileNamesToPaths(imageFiles, logger)

	var skipped []error
	skip := func(err error) {
		logger.Warn("skipping", "file", recordPath(err), "reason", Reason(err), "error", err)
		skipped = append(skipped, err)
	}

	data := make(AnnotatedFiles, 0, len(labelFiles))
	for _, labelPath := range labelFiles {
		// Find the corresponding image.
		_, baseNoExt, _, err := splitPath(labelPath)
		if err != nil {
			skip(newRecordError(ErrMalformedDocument, labelPath, err))
			continue
		}
		imagePath, found := imagesByName[baseNoExt]
		if !found {
			skip(newRecordError(ErrMissingImage, labelPath,
				fmt.Errorf("no image named %q in %s", baseNoExt, imageDir)))
			continue
		}

		// Parse the label file.
		fileData, partial, err := parse(labelPath, imagePath)
		for _, e := range partial {
			skip(e)
		}
		if err != nil {
			skip(err)
			continue
		}

		data = append(data, fileData)
	}

	return data, skipped, nil
}

// copyFile copies the file at src to dst, replacing dst. Transient failures are retried up to
// attempts times; a missing source or a permission problem fails immediately.
func copyFile(ctx context.Context, src, dst string, attempts uint) error {
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(
		func() error { return copyFileOnce(src, dst) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission)
		}),
	)
}

func copyFileOnce(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(in, &err)

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(out, &err)

	_, err = io.Copy(out, in)
	return err
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
