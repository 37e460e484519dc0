package confloader

import "errors"

// errMapReadBytes reports a ReadBytes call on the map provider; koanf uses
// Read for providers that hand back parsed maps.
var errMapReadBytes = errors.New("confloader: map provider has no byte form")

// mapProvider feeds an in-memory map to koanf. It carries the CLI flag
// overrides, which load last and therefore win over file and env values.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errMapReadBytes
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
