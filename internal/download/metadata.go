package download

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
)

// exifExtensions are file types that carry an EXIF block.
var exifExtensions = []string{".jpg", ".jpeg", ".tif", ".tiff", ".heic"}

// identifyingTags maps EXIF tags to the kind of information they leak.
var identifyingTags = map[string]string{
	"GPSLatitude":        "location",
	"GPSLongitude":       "location",
	"Make":               "camera",
	"Model":              "camera",
	"SerialNumber":       "device serial",
	"CameraSerialNumber": "device serial",
	"BodySerialNumber":   "device serial",
	"LensSerialNumber":   "device serial",
	"Artist":             "author",
	"Author":             "author",
	"Copyright":          "author",
	"XPAuthor":           "author",
	"HostComputer":       "host computer",
	"Software":           "software",
}

// HasMetadata reports whether a file name suggests an EXIF-capable format.
func HasMetadata(name string) bool {
	return slices.Contains(exifExtensions, strings.ToLower(filepath.Ext(name)))
}

// MetadataWarnings lists identifying EXIF tags found in data, one entry per
// tag in the form "kind: Tag=value". It returns nil when data carries no
// EXIF block.
func MetadataWarnings(data []byte) []string {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return nil
	}
	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil
	}

	var warnings []string
	seen := make(map[string]bool)
	for _, entry := range entries {
		kind, ok := identifyingTags[entry.TagName]
		if !ok || seen[entry.TagName] {
			continue
		}
		seen[entry.TagName] = true
		warnings = append(warnings, fmt.Sprintf("%s: %s=%s", kind, entry.TagName, entry.Formatted))
	}
	return warnings
}
