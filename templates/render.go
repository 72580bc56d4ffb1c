// Package templates expands variable-substitution templates into
// concrete config files, preserving the source file's metadata.
package templates

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Suffix marks a file in an app's data directory as a template. The
// rendered output is the sibling file with the suffix stripped.
const Suffix = ".template"

// Render expands every template in dir (non-recursive) against vars.
// Output files carry the template's permission bits and ownership.
// Substitution is best-effort: a placeholder with no matching variable
// is left as literal text and logged. Rendering is idempotent, and a
// directory with no templates is a no-op.
func Render(dir string, vars map[string]string, log *slog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Suffix) {
			continue
		}
		src := filepath.Join(dir, entry.Name())
		dst := strings.TrimSuffix(src, Suffix)
		if err := renderFile(src, dst, vars, log); err != nil {
			return err
		}
	}
	return nil
}

func renderFile(src, dst string, vars map[string]string, log *slog.Logger) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read template %s: %w", src, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat template %s: %w", src, err)
	}

	rendered := os.Expand(string(data), func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		log.Warn("unresolved template placeholder", "template", src, "placeholder", key)
		return "${" + key + "}"
	})

	// Metadata first so the output never exists with wrong mode.
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if err := out.Chmod(info.Mode().Perm()); err != nil {
		out.Close()
		return fmt.Errorf("failed to chmod %s: %w", dst, err)
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		if err := out.Chown(int(st.Uid), int(st.Gid)); err != nil {
			// Non-root invocations cannot chown; ownership then already
			// matches the invoking user.
			log.Debug("could not copy template ownership", "file", dst, "err", err)
		}
	}
	if _, err := out.WriteString(rendered); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	log.Debug("rendered template", "template", src, "output", dst)
	return nil
}
