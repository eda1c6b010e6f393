package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/semlink/errors"
)

// Limits applied to configuration input
const (
	maxConfigSize = 1 << 20 // config files are small; 1MB is generous
	maxDepth      = 32
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

func rejectFile(path, reason string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s: %s", errors.ErrInvalidConfig, path, reason),
		"Loader", "LoadFile", "check config file")
}

// checkConfigPath accepts JSON and YAML files. Relative paths must not climb out of
// the working directory.
func checkConfigPath(path string) error {
	switch {
	case path == "":
		return rejectFile(path, "empty path")
	case len(path) > maxPathLen:
		return rejectFile(path[:32]+"...", fmt.Sprintf("path longer than %d bytes", maxPathLen))
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return rejectFile(path, "only .json, .yaml and .yml files are accepted")
	}

	if !filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return rejectFile(path, "relative path leaves the working directory")
		}
	}
	return nil
}

// readConfigFile reads a regular, size-bounded file that is not world-writable.
// Config files carry broker and store credentials.
func readConfigFile(path string) ([]byte, error) {
	if err := checkConfigPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadFile", "stat config file")
	}
	switch {
	case !info.Mode().IsRegular():
		return nil, rejectFile(path, "not a regular file")
	case info.Size() > maxConfigSize:
		return nil, rejectFile(path, fmt.Sprintf("%d bytes exceeds %d", info.Size(), maxConfigSize))
	case info.Mode().Perm()&0o002 != 0:
		return nil, rejectFile(path, "world-writable")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadFile", "read config file")
	}
	return data, nil
}

// writeConfigFile writes data readable by the owner only
func writeConfigFile(path string, data []byte) error {
	if err := checkConfigPath(path); err != nil {
		return err
	}
	if len(data) > maxConfigSize {
		return rejectFile(path, fmt.Sprintf("%d bytes exceeds %d", len(data), maxConfigSize))
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.WrapTransient(err, "Config", "SaveToFile", "write config file")
	}
	return nil
}

// checkEnvValue rejects oversized values and embedded NUL bytes
func checkEnvValue(key, value string) error {
	if len(value) > maxEnvVarLen {
		return errors.WrapInvalid(fmt.Errorf("%w: %s is %d bytes, limit %d", errors.ErrInvalidConfig, key, len(value), maxEnvVarLen),
			"Loader", "applyEnvOverrides", "check environment")
	}
	if strings.IndexByte(value, 0) >= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %s contains a NUL byte", errors.ErrInvalidConfig, key),
			"Loader", "applyEnvOverrides", "check environment")
	}
	return nil
}

func tooDeep() error {
	return fmt.Errorf("%w: nesting deeper than %d", errors.ErrParsingFailed, maxDepth)
}

// checkJSONDepth walks the token stream and fails on malformed input or nesting
// beyond maxDepth, before anything is decoded into maps
func checkJSONDepth(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > maxDepth {
				return tooDeep()
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unexpected end of input", errors.ErrParsingFailed)
	}
	return nil
}

// decodeYAML parses data into a node tree, checks its depth and decodes it into out.
// Aliases are not followed by the depth check.
func decodeYAML(data []byte, out any) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}
	if root.Kind == 0 {
		// empty document
		return nil
	}
	if nodeDepth(&root, 0) > maxDepth {
		return tooDeep()
	}
	if err := root.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}
	return nil
}

func nodeDepth(n *yaml.Node, depth int) int {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		depth++
	}
	deepest := depth
	for _, child := range n.Content {
		if d := nodeDepth(child, depth); d > deepest {
			deepest = d
		}
		if deepest > maxDepth {
			break
		}
	}
	return deepest
}
