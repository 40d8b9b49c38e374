package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	apierrors "github.com/tdevere/DevOpsApiClients/internal/errors"
)

const provenancePrefix = "Generated from "

func provenance(source string) string { return provenancePrefix + source }

// FileStatus is the outcome for one planned file.
type FileStatus string

const (
	StatusCreated   FileStatus = "created"
	StatusUpdated   FileStatus = "updated"
	StatusUnchanged FileStatus = "unchanged"
)

// WriteOptions controls how a FileSet is written.
type WriteOptions struct {
	// DryRun reports what would be written without touching the disk.
	DryRun bool
	// Overwrite replaces files generated from a different definition.
	Overwrite bool
}

// Written is one file in a write result.
type Written struct {
	Path   string
	Status FileStatus
}

// Result lists every file of a write in path order.
type Result struct {
	Files []Written
}

// Count returns how many files have the given status.
func (r Result) Count(status FileStatus) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

// Write writes set below root. Changed files are staged next to their
// destination and renamed into place only once every file has been staged,
// so a failure leaves previously generated files untouched.
func Write(ctx context.Context, root string, set *FileSet, opts WriteOptions) (Result, error) {
	var (
		res    Result
		staged []stagedFile
	)
	cleanup := func() {
		for _, s := range staged {
			os.Remove(s.tmp)
		}
	}

	for _, f := range set.Files() {
		if err := ctx.Err(); err != nil {
			cleanup()
			return Result{}, err
		}
		dest := filepath.Join(root, filepath.FromSlash(f.Path))
		status, existing, err := compare(dest, f.Content)
		if err != nil {
			cleanup()
			return Result{}, err
		}
		if status == StatusUpdated && f.Owner != "" && !opts.Overwrite && !ownedBy(existing, f.Owner) {
			cleanup()
			return Result{}, apierrors.Newf(apierrors.KindNameCollision,
				"%s was not generated from %s", f.Path, f.Owner).WithDetails("use -overwrite to replace it")
		}
		res.Files = append(res.Files, Written{Path: f.Path, Status: status})
		if status == StatusUnchanged || opts.DryRun {
			continue
		}
		tmp, err := stage(dest, f)
		if err != nil {
			cleanup()
			return Result{}, err
		}
		staged = append(staged, stagedFile{tmp: tmp, dest: dest})
	}

	for i, s := range staged {
		if err := os.Rename(s.tmp, s.dest); err != nil {
			// Files already renamed stay in place; only unrenamed staging
			// files are removed.
			for _, rest := range staged[i:] {
				os.Remove(rest.tmp)
			}
			return Result{}, fmt.Errorf("rename %s: %w", s.dest, err)
		}
	}
	return res, nil
}

type stagedFile struct {
	tmp  string
	dest string
}

func compare(dest string, content []byte) (FileStatus, []byte, error) {
	existing, err := os.ReadFile(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return StatusCreated, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", dest, err)
	}
	if xxhash.Sum64(existing) == xxhash.Sum64(content) && len(existing) == len(content) {
		return StatusUnchanged, existing, nil
	}
	return StatusUpdated, existing, nil
}

// ownedBy reports whether a generated file names source as its definition.
func ownedBy(existing []byte, source string) bool {
	return bytes.Contains(existing, []byte(provenance(source)+"\n"))
}

func stage(dest string, f File) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", dest, err)
	}
	mode := fs.FileMode(0o644)
	if f.Executable || strings.HasSuffix(dest, ".sh") {
		mode = 0o755
	}
	tmp := dest + ".adogen-" + uuid.NewString()
	if err := os.WriteFile(tmp, f.Content, mode); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("stage %s: %w", dest, err)
	}
	// WriteFile leaves the umask applied.
	if err := os.Chmod(tmp, mode); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("chmod %s: %w", dest, err)
	}
	return tmp, nil
}
