package ingestion

import (
	"path"
	"strings"
)

// Route is the handling strategy picked for one uploaded item.
type Route int

const (
	RouteUnsupported Route = iota
	RouteDirectImage
	RouteArchive
)

func (r Route) String() string {
	switch r {
	case RouteDirectImage:
		return "image"
	case RouteArchive:
		return "archive"
	default:
		return "unsupported"
	}
}

const archiveExtension = ".zip"

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// Classify routes an item by the suffix of its name. Content is never
// inspected.
func Classify(filename string) Route {
	ext := extension(filename)
	if _, ok := imageExtensions[ext]; ok {
		return RouteDirectImage
	}
	if ext == archiveExtension {
		return RouteArchive
	}
	return RouteUnsupported
}

// extension returns the lower-cased extension of the last path element,
// accepting both slash styles.
func extension(name string) string {
	return strings.ToLower(path.Ext(baseName(name)))
}

func baseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasSuffix(name, "/") {
		return ""
	}
	return path.Base(name)
}

func isImageName(name string) bool {
	_, ok := imageExtensions[extension(name)]
	return ok
}

func contentTypeFor(ext string) string {
	if ct, ok := imageExtensions[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
