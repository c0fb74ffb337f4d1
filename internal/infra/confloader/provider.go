package confloader

import (
	"errors"
	"strings"
)

var errOverridesNotBytes = errors.New("confloader: overrides are read as a map")

// overrides is a koanf provider for dotted-key values such as
// {"server.http.addr": ":9090"}. Keys are expanded into nested maps so that
// they merge with file and env values on Unmarshal.
type overrides map[string]any

func (o overrides) ReadBytes() ([]byte, error) {
	return nil, errOverridesNotBytes
}

func (o overrides) Read() (map[string]any, error) {
	out := make(map[string]any, len(o))
	for key, v := range o {
		parts := strings.Split(key, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = v
	}
	return out, nil
}
