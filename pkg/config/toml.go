package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/sb-console/engine/pkg/errors"
)

// AuthMethod is the recognized value of the [azure_ad].auth_method key.
type AuthMethod string

const (
	AuthMethodConnectionString AuthMethod = "connection_string"
	AuthMethodDeviceCode       AuthMethod = "device_code"
	AuthMethodClientSecret     AuthMethod = "client_secret"
)

const tomlAuthSection = "azure_ad"

// LoadAuthMethod reads auth_method out of the [azure_ad] section of path
// without disturbing unrelated sections. A missing file or missing section
// yields ("", false) rather than an error, since callers treat that as "not
// configured yet".
func LoadAuthMethod(path string) (AuthMethod, bool, error) {
	doc, err := loadTOMLDocument(path)
	if err != nil {
		return "", false, err
	}
	section, ok := doc[tomlAuthSection].(map[string]any)
	if !ok {
		return "", false, nil
	}
	raw, ok := section["auth_method"].(string)
	if !ok {
		return "", false, nil
	}
	return AuthMethod(raw), true, nil
}

// SaveAuthMethod updates auth_method in the [azure_ad] section, creating the
// section if absent, and leaves every other section and key untouched.
func SaveAuthMethod(path string, method AuthMethod) error {
	doc, err := loadTOMLDocument(path)
	if err != nil {
		return err
	}

	section, ok := doc[tomlAuthSection].(map[string]any)
	if !ok {
		section = map[string]any{}
	}
	section["auth_method"] = string(method)
	doc[tomlAuthSection] = section

	f, err := os.Create(path)
	if err != nil {
		return errors.Configuration("failed to open config.toml for write", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(doc); err != nil {
		return errors.Configuration("failed to encode config.toml", err)
	}
	return nil
}

func loadTOMLDocument(path string) (map[string]any, error) {
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, errors.Configuration("failed to read config.toml", err)
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Configuration("failed to parse config.toml", err)
	}
	return doc, nil
}
