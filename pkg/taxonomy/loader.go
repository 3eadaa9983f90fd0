package taxonomy

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// File is the on-disk YAML layout of a taxonomy.
//
// Example:
//
//	categories:
//	  - id: collective_we
//	    color: "#8ad6ff"
//	    phrases:
//	      - we're failing
//	      - we must act
type File struct {
	Categories []Category `yaml:"categories"`
}

// Load reads and validates the taxonomy YAML file at path.
func Load(path string) (*Taxonomy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: open %q: %w", path, err)
	}
	defer f.Close()

	t, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: parse %q: %w", path, err)
	}
	return t, nil
}

// LoadFromReader decodes taxonomy YAML from r and validates it. Unknown keys
// are rejected so that typos in hand-edited files surface early.
func LoadFromReader(r io.Reader) (*Taxonomy, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return New()
		}
		return nil, fmt.Errorf("taxonomy: decode yaml: %w", err)
	}
	return New(file.Categories...)
}

// Default returns the built-in taxonomy: four framing categories used when
// analysing climate-related speech (individualising language, collective
// "we", greenwashing vocabulary and moral metaphors).
func Default() *Taxonomy {
	t, err := LoadFromReader(bytes.NewReader(defaultYAML))
	if err != nil {
		panic("taxonomy: embedded default is invalid: " + err.Error())
	}
	return t
}
