package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivgotcrazy/jukey-sub001/errors"
)

// Limits for pipeline definition files
const (
	maxConfigSize = 1 << 20
	maxJSONDepth  = 32
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

func pathError(format string, args ...any) error {
	return errors.WrapInvalid(fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...),
		"Loader", "validateConfigPath", "path check")
}

// validateConfigPath accepts .json, .yaml and .yml files. Relative paths must
// resolve inside the working directory.
func validateConfigPath(path string) error {
	switch {
	case path == "":
		return pathError("empty config path")
	case len(path) > maxPathLen:
		return pathError("path too long: %d > %d", len(path), maxPathLen)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return pathError("pipeline definitions are JSON or YAML: %s", path)
	}

	if filepath.IsAbs(path) {
		if filepath.Clean(path) != path && strings.Contains(filepath.ToSlash(path), "..") {
			return pathError("path traversal not allowed: %s", path)
		}
		return nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return pathError("cannot resolve %s: %v", path, err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return pathError("cannot get working directory: %v", err)
	}
	if rel, err := filepath.Rel(cwd, abs); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return pathError("%s resolves outside the working directory", path)
	}
	return nil
}

// safeReadFile reads a definition file after checking its path, kind and size
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapInvalid(errors.Join(errors.ErrMissingConfig, err), "Loader", "safeReadFile", "stat "+path)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: not a regular file: %s", errors.ErrInvalidConfig, path),
			"Loader", "safeReadFile", "file type check")
	}
	if info.Size() > maxConfigSize {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %d bytes > %d", errors.ErrInvalidConfig, info.Size(), maxConfigSize),
			"Loader", "safeReadFile", "size check")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "safeReadFile", "read "+path)
	}
	return data, nil
}

// validateEnvVar rejects oversized values and values with NUL bytes
func validateEnvVar(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("null byte in environment variable %s", key)
	}
	return nil
}

// validateJSONDepth bounds object and array nesting before decoding
func validateJSONDepth(data []byte) error {
	depth := 0
	inString, escaped := false, false

	for _, b := range data {
		switch {
		case escaped:
			escaped = false
		case inString && b == '\\':
			escaped = true
		case b == '"':
			inString = !inString
		case inString:
		case b == '{' || b == '[':
			depth++
			if depth > maxJSONDepth {
				return fmt.Errorf("JSON nesting too deep: %d > %d", depth, maxJSONDepth)
			}
		case b == '}' || b == ']':
			depth--
			if depth < 0 {
				return fmt.Errorf("malformed JSON: unbalanced brackets")
			}
		}
	}

	if depth != 0 {
		return fmt.Errorf("malformed JSON: unclosed brackets (depth=%d)", depth)
	}
	return nil
}
