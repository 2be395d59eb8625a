package yoloprep

// Sequential image renaming.

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// RenameOptions configures RenameImages.
type RenameOptions struct {
	Start    int      // The first index.
	Padding  int      // Zero padding width, e.g. 3 for "000".
	SortBy   string   // "name" (case-insensitive) or "mtime".
	Exts     []string // Extensions to include; DefaultImageExts if empty.
	LabelDir string   // If set, matching .json label files here are renamed too.
	DryRun   bool     // Only compute the plan.
	Force    bool     // Proceed even if Padding cannot represent the largest index.
	Logger   *slog.Logger
}

// Rename is a single planned or performed rename.
type Rename struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// ErrRenameConflict is returned when a rename target belongs to a file outside the rename set.
var ErrRenameConflict = errors.New("rename target exists")

// RenameImages renames the images in dir to zero-padded sequential numbers, keeping the lower-cased
// extension. Returns the renames in order.
//
// All files are first moved to unique temporary names and then to their final names, so targets
// that are part of the rename set themselves cannot collide.
func RenameImages(dir string, opts RenameOptions) ([]Rename, error) {
	logger := orDefault(opts.Logger)
	exts := DefaultImageExts
	if len(opts.Exts) > 0 {
		exts = make([]string, 0, len(opts.Exts))
		for _, e := range opts.Exts {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			exts = append(exts, e)
		}
	}

	files, err := filesByExtInDir(dir, exts...)
	if err != nil {
		return nil, err
	}
	if err := sortFiles(files, opts.SortBy); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	if last := opts.Start + len(files) - 1; !opts.Force && opts.Padding > 0 &&
		float64(last) > math.Pow10(opts.Padding)-1 {
		return nil, fmt.Errorf("padding %d cannot represent index %d; increase the padding or"+
			" force the rename", opts.Padding, last)
	}

	// Plan the renames, including the label files.
	sources := make(map[string]bool, 2*len(files))
	var plan []Rename
	for i, f := range files {
		_, baseNoExt, ext, err := splitPath(f)
		if err != nil {
			return nil, err
		}
		newBase := fmt.Sprintf("%0*d", opts.Padding, opts.Start+i)
		plan = append(plan, Rename{From: f, To: filepath.Join(dir, newBase+"."+strings.ToLower(ext))})
		sources[f] = true

		if opts.LabelDir != "" {
			labelPath := filepath.Join(opts.LabelDir, baseNoExt+".json")
			if _, err := os.Stat(labelPath); err == nil {
				plan = append(plan, Rename{From: labelPath,
					To: filepath.Join(opts.LabelDir, newBase+".json")})
				sources[labelPath] = true
			}
		}
	}

	// Refuse to overwrite files that are not being renamed themselves.
	var conflicts []string
	for _, r := range plan {
		if _, err := os.Lstat(r.To); err == nil && !sources[r.To] {
			conflicts = append(conflicts, r.To)
		}
	}
	if len(conflicts) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrRenameConflict, strings.Join(conflicts, ", "))
	}

	if opts.DryRun {
		return plan, nil
	}

	// Step 1: move every source to a unique temporary name.
	id := uuid.NewString()[:8]
	temps := make([]string, len(plan))
	for i, r := range plan {
		temp := filepath.Join(filepath.Dir(r.From),
			fmt.Sprintf(".tmp_ren_%s_%d%s", id, i, filepath.Ext(r.To)))
		if err := os.Rename(r.From, temp); err != nil {
			rollback(plan[:i], temps[:i], logger)
			return nil, fmt.Errorf("failed to rename %q: %v", r.From, err)
		}
		temps[i] = temp
	}

	// Step 2: move the temporaries to their final names.
	for i, r := range plan {
		if err := os.Rename(temps[i], r.To); err != nil {
			logger.Error("rename failed; remaining files keep their temporary names",
				"file", temps[i], "target", r.To, "error", err)
			return plan[:i], fmt.Errorf("failed to rename %q to %q: %v", temps[i], r.To, err)
		}
	}

	logger.Info("renamed files", "dir", dir, "count", len(files), "start", opts.Start,
		"padding", opts.Padding)
	return plan, nil
}

// rollback moves temporaries back to their original names.
func rollback(plan []Rename, temps []string, logger *slog.Logger) {
	for i := range plan {
		if err := os.Rename(temps[i], plan[i].From); err != nil {
			logger.Error("rollback failed", "file", temps[i], "original", plan[i].From, "error", err)
		}
	}
}

func sortFiles(files []string, by string) error {
	switch by {
	case "", "name":
		sort.SliceStable(files, func(i, j int) bool {
			return strings.ToLower(filepath.Base(files[i])) < strings.ToLower(filepath.Base(files[j]))
		})
	case "mtime":
		mtimes := make(map[string]int64, len(files))
		for _, f := range files {
			info, err := os.Stat(f)
			if err != nil {
				return err
			}
			mtimes[f] = info.ModTime().UnixNano()
		}
		sort.SliceStable(files, func(i, j int) bool { return mtimes[files[i]] < mtimes[files[j]] })
	default:
		return fmt.Errorf("unknown sort order %q", by)
	}
	return nil
}
