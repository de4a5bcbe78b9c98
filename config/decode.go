package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-ini/ini"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type decoder func(data []byte) ([]rawSection, error)

// rule files are parsed according to their extension, TOML is the default
var decoders = map[string]decoder{
	".toml": decodeTOML,
	".ini":  decodeINI,
	".conf": decodeINI,
	".yaml": decodeYAML,
	".yml":  decodeYAML,
	".json": decodeJSON,
}

func decodeFile(path string) ([]rawSection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read rules")
	}
	dec, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		dec = decodeTOML
	}
	return dec(data)
}

var knownKeys = func() map[string]bool {
	keys := make(map[string]bool)
	typ := reflect.TypeOf(rawSection{})
	for i := 0; i < typ.NumField(); i++ {
		if name := typ.Field(i).Tag.Get("ini"); name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}()

func decodeTOML(data []byte) ([]rawSection, error) {
	var sections map[string]rawSection
	md, err := toml.Decode(string(data), &sections)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	var res []rawSection
	for _, key := range md.Keys() {
		if len(key) != 1 {
			continue
		}
		sec := sections[key[0]]
		sec.Name = key[0]
		res = append(res, sec)
	}
	return res, nil
}

func decodeINI(data []byte) ([]rawSection, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		UnescapeValueDoubleQuotes: true,
	}, data)
	if err != nil {
		return nil, err
	}
	var res []rawSection
	for _, sec := range file.Sections() {
		if sec.Name() == ini.DefaultSection {
			if keys := sec.KeyStrings(); len(keys) > 0 {
				return nil, fmt.Errorf("key %q outside of any section", keys[0])
			}
			continue
		}
		raw := rawSection{Name: sec.Name()}
		if err := MapToStruct(sec, &raw); err != nil {
			return nil, err
		}
		res = append(res, raw)
	}
	return res, nil
}

func decodeYAML(data []byte) ([]rawSection, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of sections", root.Line)
	}
	var res []rawSection
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		body := root.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: [%s]: expected a mapping", body.Line, name)
		}
		for j := 0; j+1 < len(body.Content); j += 2 {
			key := body.Content[j]
			if !knownKeys[key.Value] {
				return nil, fmt.Errorf("line %d: [%s]: unknown key %q",
					key.Line, name, key.Value)
			}
		}
		raw := rawSection{Name: name}
		if err := body.Decode(&raw); err != nil {
			return nil, errors.Wrapf(err, "[%s]", name)
		}
		res = append(res, raw)
	}
	return res, nil
}

func decodeJSON(data []byte) ([]rawSection, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, err
	}
	// objects have no order, sort for reproducible merges
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	var res []rawSection
	for _, name := range names {
		dec := json.NewDecoder(bytes.NewReader(sections[name]))
		dec.DisallowUnknownFields()
		raw := rawSection{Name: name}
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Wrapf(err, "[%s]", name)
		}
		res = append(res, raw)
	}
	return res, nil
}

func (l *extList) UnmarshalTOML(value any) error {
	return l.set(value)
}

func (l *extList) UnmarshalYAML(node *yaml.Node) error {
	var value any
	if err := node.Decode(&value); err != nil {
		return err
	}
	return l.set(value)
}

func (l *extList) UnmarshalJSON(data []byte) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	return l.set(value)
}
