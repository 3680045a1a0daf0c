package utils

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LandmarksSuffix is appended to an image path to find its landmarks sidecar
const LandmarksSuffix = ".landmarks.json"

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// IsImageFile reports whether a path has an extension the loaders decode
func IsImageFile(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// Namer derives output paths from an input image path
type Namer struct {
	Dir    string
	Prefix string
	Suffix string
	// Format is the output extension; empty keeps the input's, or jpg
	Format string
}

// As returns a copy of n that writes format
func (n Namer) As(format string) Namer {
	n.Format = format
	return n
}

// Path names the output for input, e.g. out/p_model_tryon_sky-blue.png for
// Path("in/model.jpg", "Sky Blue"). Each tag is appended after the suffix.
func (n Namer) Path(input string, tags ...string) string {
	base := filepath.Base(input)
	ext := filepath.Ext(base)

	format := strings.ToLower(strings.TrimPrefix(n.Format, "."))
	if format == "" {
		format = strings.ToLower(strings.TrimPrefix(ext, "."))
	}
	if format == "" {
		format = "jpg"
	}

	var b strings.Builder
	b.WriteString(n.Prefix)
	b.WriteString(strings.TrimSuffix(base, ext))
	b.WriteString(n.Suffix)
	for _, t := range tags {
		if t = tag(t); t != "" {
			b.WriteByte('_')
			b.WriteString(t)
		}
	}
	b.WriteByte('.')
	b.WriteString(format)
	return filepath.Join(n.Dir, b.String())
}

// tag lowercases a label into a filename fragment
func tag(label string) string {
	label = strings.Trim(strings.TrimSpace(label), ".")
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		case ' ', '\t':
			return '-'
		}
		return r
	}, strings.ToLower(label))
}

// LandmarksSidecar returns the sidecar path for an image if the file exists.
// Both model.jpg.landmarks.json and model.landmarks.json are accepted.
func LandmarksSidecar(imagePath string) (string, bool) {
	for _, c := range []string{
		imagePath + LandmarksSuffix,
		strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + LandmarksSuffix,
	} {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// Inputs expands a CLI input into image paths. A directory is walked in
// lexical order, skipping hidden subdirectories; anything else, including a
// URL, is returned as is for the loader to resolve.
func Inputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsImageFile(p) {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}
