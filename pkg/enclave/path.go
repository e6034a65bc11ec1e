package enclave

import "strings"

// EntrySeparator is the byte used by the trusted-call transport to separate
// directory entry names inside a single readdir buffer. Paths containing it
// cannot cross the boundary, so they are rejected at normalization.
const EntrySeparator = byte(0x1C)

// CleanPath normalizes a path to its canonical internal form: no leading or
// trailing slash, no empty segments. The empty string names the root
// directory. Idempotent.
func CleanPath(path string) string {
	trimmed := strings.Trim(path, "/")
	for strings.Contains(trimmed, "//") {
		trimmed = strings.ReplaceAll(trimmed, "//", "/")
	}
	return trimmed
}

// SplitPath cleans the path and splits it into its segments. The root path
// yields no segments.
func SplitPath(path string) []string {
	cleaned := CleanPath(path)
	if cleaned == "" {
		return nil
	}
	return strings.Split(cleaned, "/")
}

// ParentDirectory returns the longest prefix of the cleaned path up to the
// last slash, or the empty string (the root) when no slash remains.
func ParentDirectory(path string) string {
	cleaned := CleanPath(path)
	index := strings.LastIndexByte(cleaned, '/')
	if index < 0 {
		return ""
	}
	return cleaned[:index]
}

// IsInDirectory reports whether path is a direct child of directory. The
// root (empty path) matches exactly the top-level entries.
func IsInDirectory(directory, path string) bool {
	dir := CleanPath(directory)
	child := CleanPath(path)
	if child == "" {
		return false
	}
	if dir == "" {
		return !strings.ContainsRune(child, '/')
	}
	if !strings.HasPrefix(child, dir+"/") {
		return false
	}
	return !strings.ContainsRune(child[len(dir)+1:], '/')
}

// RelativePath returns path with the directory prefix and one separator
// removed. Only meaningful when IsInDirectory(directory, path) holds; a
// path outside directory is returned cleaned but otherwise unchanged, and a
// deeper descendant keeps all of its segments below directory.
func RelativePath(directory, path string) string {
	dir := CleanPath(directory)
	child := CleanPath(path)
	if dir == "" {
		return child
	}
	if !strings.HasPrefix(child, dir+"/") {
		return child
	}
	return child[len(dir)+1:]
}

// ValidatePath checks that a cleaned path is expressible: every segment is
// non-empty and free of the transport entry separator.
func ValidatePath(path string) error {
	cleaned := CleanPath(path)
	if strings.IndexByte(cleaned, EntrySeparator) >= 0 {
		return &StoreError{
			Code:    ErrInvalidArgument,
			Message: "path contains reserved separator byte",
			Path:    cleaned,
		}
	}
	return nil
}
