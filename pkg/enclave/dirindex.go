package enclave

import "sort"

// fileIndex is the view of the file store the directory index needs to
// answer emptiness and listing questions. The file store satisfies it.
type fileIndex interface {
	IsFile(path string) bool
	FilesIn(directory string) []string
}

// DirectoryIndex owns the set of existing directories. The root (empty
// path) is implicitly present and cannot be removed. Like the file store,
// the index relies on external serialization.
type DirectoryIndex struct {
	dirs  map[string]struct{}
	files fileIndex
}

// NewDirectoryIndex creates an index holding only the implicit root.
func NewDirectoryIndex(files fileIndex) *DirectoryIndex {
	return &DirectoryIndex{
		dirs:  make(map[string]struct{}),
		files: files,
	}
}

// Mkdir inserts a directory at path. The parent must already exist.
func (d *DirectoryIndex) Mkdir(path string) error {
	cleaned := CleanPath(path)
	if err := ValidatePath(cleaned); err != nil {
		return err
	}
	if d.IsDirectory(cleaned) {
		return &StoreError{
			Code:    ErrIsDirectory,
			Message: "directory already exists",
			Path:    cleaned,
		}
	}
	if d.files.IsFile(cleaned) {
		return &StoreError{
			Code:    ErrNotDirectory,
			Message: "a file with this name already exists",
			Path:    cleaned,
		}
	}
	if parent := ParentDirectory(cleaned); !d.IsDirectory(parent) {
		return &StoreError{
			Code:    ErrNotDirectory,
			Message: "parent is not a directory",
			Path:    cleaned,
		}
	}

	d.dirs[cleaned] = struct{}{}
	return nil
}

// Rmdir removes the directory at path. The directory must be empty: no
// file and no directory may have it as parent.
func (d *DirectoryIndex) Rmdir(path string) error {
	cleaned := CleanPath(path)
	if cleaned == "" {
		return &StoreError{
			Code:    ErrInvalidArgument,
			Message: "cannot remove the root directory",
		}
	}
	if _, exists := d.dirs[cleaned]; !exists {
		return &StoreError{
			Code:    ErrNotFound,
			Message: "directory not found",
			Path:    cleaned,
		}
	}
	if len(d.files.FilesIn(cleaned)) > 0 || d.hasSubdirectory(cleaned) {
		return &StoreError{
			Code:    ErrNotEmpty,
			Message: "directory not empty",
			Path:    cleaned,
		}
	}

	delete(d.dirs, cleaned)
	return nil
}

// IsDirectory reports whether path names a directory. The root always does.
func (d *DirectoryIndex) IsDirectory(path string) bool {
	cleaned := CleanPath(path)
	if cleaned == "" {
		return true
	}
	_, exists := d.dirs[cleaned]
	return exists
}

// Readdir lists the names directly inside path: subdirectories first in
// sorted order, then files in sorted order. The ordering is stable for the
// lifetime of a mount. Dot entries are not included; the kernel bridge
// injects them.
func (d *DirectoryIndex) Readdir(path string) ([]string, error) {
	cleaned := CleanPath(path)
	if !d.IsDirectory(cleaned) {
		return nil, &StoreError{
			Code:    ErrNotFound,
			Message: "directory not found",
			Path:    cleaned,
		}
	}

	var subdirs []string
	for dir := range d.dirs {
		if IsInDirectory(cleaned, dir) {
			subdirs = append(subdirs, RelativePath(cleaned, dir))
		}
	}
	sort.Strings(subdirs)

	return append(subdirs, d.files.FilesIn(cleaned)...), nil
}

// LoadFromFiles rebuilds the index from restored file paths: every proper
// prefix of a file path becomes a directory. Empty directories are not
// persisted, so this is the complete restore-time population.
func (d *DirectoryIndex) LoadFromFiles(paths []string) {
	d.dirs = make(map[string]struct{})
	for _, path := range paths {
		segments := SplitPath(path)
		prefix := ""
		for i := 0; i < len(segments)-1; i++ {
			if prefix == "" {
				prefix = segments[i]
			} else {
				prefix = prefix + "/" + segments[i]
			}
			d.dirs[prefix] = struct{}{}
		}
	}
}

// hasSubdirectory reports whether any directory is a direct child of path.
func (d *DirectoryIndex) hasSubdirectory(path string) bool {
	for dir := range d.dirs {
		if IsInDirectory(path, dir) {
			return true
		}
	}
	return false
}
