package config

import (
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/teranos/artificer/errors"
)

// Check decodes a config file strictly over the defaults. It returns the keys
// the file sets that no setting reads (usually typos) and the validation
// error of the merged result.
func Check(path string) ([]string, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	var unknown []string
	for _, key := range md.Undecoded() {
		unknown = append(unknown, key.String())
	}
	sort.Strings(unknown)
	return unknown, cfg.Validate()
}
