package pipe

import (
	"fmt"
	"strings"
)

// Prefix is the reserved local namespace every pipe name starts with.
const Prefix = `\\.\pipe\`

// NormalizeName validates name and returns its registry key. The prefix is
// matched case-insensitively and the whole key is lower-cased, so
// `\\.\PiPe\Svc` and `\\.\pipe\svc` address the same endpoint set.
func NormalizeName(name string) (string, error) {
	if name == "" {
		return "", ErrPathNotFound
	}
	key := strings.ToLower(name)
	if !strings.HasPrefix(key, Prefix) {
		return "", fmt.Errorf("%w: %q lacks %s prefix", ErrNameInvalid, name, Prefix)
	}
	if len(key) == len(Prefix) {
		return "", fmt.Errorf("%w: %q has no name after prefix", ErrNameInvalid, name)
	}
	return key, nil
}

// ShortName strips the namespace prefix from a normalized key.
func ShortName(key string) string {
	return strings.TrimPrefix(key, Prefix)
}

// FullName turns a short name back into a pipe name.
func FullName(short string) string {
	if strings.HasPrefix(strings.ToLower(short), Prefix) {
		return short
	}
	return Prefix + short
}
