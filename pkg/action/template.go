package action

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/0xmhha/autowatch/pkg/config"
)

// Variables returns the template variables derived from c.
func Variables(c Context) map[string]string {
	ext := path.Ext(c.FilePath)
	name := strings.TrimSuffix(path.Base(c.FilePath), ext)

	return map[string]string{
		"file":  c.FilePath,
		"spec":  specName(c.FilePath, name),
		"dir":   path.Dir(c.FilePath),
		"name":  name,
		"ext":   ext,
		"event": c.EventKind,
		"root":  c.Root,
	}
}

// specName is the directory segment following "specs/", or the base name
// without extension when the path is not under a specs directory.
func specName(p, fallback string) string {
	parts := strings.Split(p, "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "specs" && i+1 < len(parts)-1 {
			return parts[i+1]
		}
	}
	return fallback
}

// Substitute resolves every placeholder in command.
func Substitute(command string, c Context) (string, error) {
	vars := Variables(c)
	return config.ExpandTemplate(command, func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	})
}

// checkCondition reports whether the rule's precondition holds. The
// returned reason explains a failed check.
func checkCondition(condition string, c Context) (bool, string) {
	switch condition {
	case "":
		return true, ""

	case config.ConditionNotDeleted:
		if c.EventKind == "deleted" {
			return false, "file was deleted"
		}
		return true, ""

	case config.ConditionFileExists:
		if _, err := os.Stat(absPath(c)); err != nil {
			return false, "file does not exist"
		}
		return true, ""

	case config.ConditionTestExists:
		if findTestFile(absPath(c)) == "" {
			return false, "no test file found"
		}
		return true, ""

	default:
		return false, "unknown condition " + condition
	}
}

// findTestFile returns the first sibling test file of path, or "".
func findTestFile(p string) string {
	dir := filepath.Dir(p)
	ext := filepath.Ext(p)
	name := strings.TrimSuffix(filepath.Base(p), ext)

	candidates := []string{
		name + "_test" + ext,
		name + ".test" + ext,
		name + ".spec" + ext,
		"test_" + name + ext,
	}
	for _, cand := range candidates {
		full := filepath.Join(dir, cand)
		if full == p {
			continue
		}
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			return full
		}
	}
	return ""
}

func absPath(c Context) string {
	if c.AbsPath != "" {
		return c.AbsPath
	}
	if c.Root != "" {
		return filepath.Join(c.Root, filepath.FromSlash(c.FilePath))
	}
	return filepath.FromSlash(c.FilePath)
}
