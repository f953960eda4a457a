package layout

import (
	"embed"
	"os"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

//go:embed builtin/*.toml
var builtinFS embed.FS

type layoutFile struct {
	Layouts []Layout `toml:"layout"`
}

// LoadTOML registers every [[layout]] table in data.
func (r *Registry) LoadTOML(data []byte) error {
	var file layoutFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return errors.Wrap(err, "layout parse failed")
	}
	for _, l := range file.Layouts {
		if err := r.Register(l); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) LoadFile(p string) error {
	data, err := os.ReadFile(p)
	if err != nil {
		return errors.Wrapf(err, "layout load failed (%s)", p)
	}
	if err := r.LoadTOML(data); err != nil {
		return errors.Wrapf(err, "layout file %s", p)
	}
	return nil
}

// Builtin returns a registry preloaded with the layouts this module speaks
// natively, with every reference resolved.
func Builtin() (*Registry, error) {
	r := NewRegistry()
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("builtin", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := r.LoadTOML(data); err != nil {
			return nil, errors.Wrapf(err, "builtin %s", e.Name())
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// MarshalTOMLFile renders l as a single [[layout]] table.
func (l Layout) MarshalTOMLFile() ([]byte, error) {
	return toml.Marshal(layoutFile{Layouts: []Layout{l}})
}
