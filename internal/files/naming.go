package files

import (
	"path"
	"strings"
)

// imageExts are matched case-sensitively: "photo.PNG" is not an image.
var imageExts = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"bmp":  {},
}

// isImage reports whether name carries one of the lowercase image extensions.
func isImage(name string) bool {
	_, ok := imageExts[strings.TrimPrefix(path.Ext(name), ".")]
	return ok
}

// sanitizeName replaces the first space only; later spaces are kept.
func sanitizeName(name string) string {
	return strings.Replace(name, " ", "_", 1)
}

// baseName drops any client-side directory, with either separator style,
// so "C:\\Users\\me\\dog.png" becomes "dog.png".
func baseName(name string) string {
	return name[strings.LastIndexAny(name, `/\`)+1:]
}

// validName reports whether name is a single, non-special path element.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
