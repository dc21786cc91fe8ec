package scan

import (
	"path/filepath"
	"sort"
)

// extensionLanguages maps file extensions to language hints used when
// filtering plugins by supported language.
var extensionLanguages = map[string]string{
	".py":   "python",
	".go":   "go",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".sh":   "shell",
	".yaml": "yaml",
	".yml":  "yaml",
}

// KnownExtension reports whether the path's extension maps to a
// language hint. The CLI uses this to decide which files belong in a
// scan snapshot.
func KnownExtension(path string) bool {
	_, ok := extensionLanguages[filepath.Ext(path)]
	return ok
}

// DetectLanguages returns the sorted set of language hints present in
// the given files, derived from file extensions. Unknown extensions are
// ignored.
func DetectLanguages(files []SourceFile) []string {
	seen := make(map[string]bool)
	for _, f := range files {
		if lang, ok := extensionLanguages[filepath.Ext(f.Path)]; ok {
			seen[lang] = true
		}
	}
	langs := make([]string, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
