package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const templateHeader = `# pipectl daemon configuration.
# Endpoint names may omit the \\.\pipe\ prefix. access: in | out | duplex.
# type: byte | message-byte | message-message. echo: disconnect | recreate |
# overlapped, or empty for idle listening instances. Buffer sizes of 0 mean 4096.
`

// Marshal renders cfg in the file layout Load reads.
func Marshal(cfg Config) ([]byte, error) {
	body, err := toml.Marshal(toFile(cfg))
	if err != nil {
		return nil, fmt.Errorf("config render failed: %w", err)
	}
	return body, nil
}

// Template is the commented default configuration.
func Template() (string, error) {
	body, err := Marshal(DefaultConfig())
	if err != nil {
		return "", err
	}
	return templateHeader + "\n" + string(body), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
