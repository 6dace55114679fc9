package cache

import "strings"

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

// defaultKeySerializer produces "{namespace}:{part}:{part}" keys.
// Parts are embedded verbatim; a part that itself contains the separator is
// kept as is so that "{service}:{key}" round-trips for keys like "a:b".
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey joins the namespace and parts with KeySeparator. Empty parts
// are skipped so a bare namespace never ends with a dangling separator.
func (s *defaultKeySerializer) SerializeKey(namespace string, parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	if namespace != "" {
		segments = append(segments, namespace)
	}
	for _, p := range parts {
		if p == "" {
			continue
		}
		segments = append(segments, p)
	}
	return strings.Join(segments, KeySeparator)
}

// NamespacePrefix returns the prefix shared by every key of namespace.
func NamespacePrefix(namespace string) string {
	return namespace + KeySeparator
}
