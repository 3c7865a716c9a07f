package config

import (
	_ "embed"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"
)

//go:embed default/config.yaml
var defaultConfigData []byte

// ConfigurationName is the file name Load expects inside a config
// directory.
const ConfigurationName = "config.yaml"

type Configuration struct {
	// Prompt is the template rendered before each input line.
	Prompt string `json:"prompt" validate:"required"`
	// HistoryFile stores readline history. Relative paths resolve
	// against the home directory; empty disables history.
	HistoryFile string `json:"history_file"`
	// Motd is printed once when the shell starts.
	Motd string `json:"motd"`
	// Color toggles colored job notifications.
	Color bool `json:"color"`
	// SessionLog is the path of the JSONL event log; empty disables it.
	SessionLog string `json:"session_log"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

// defaultConfig returns the embedded configuration. It panics on
// failure because that should never happen at runtime.
func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
