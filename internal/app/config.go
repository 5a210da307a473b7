package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/AlexxIT/framepump/pkg/shell"
	"github.com/AlexxIT/framepump/pkg/yaml"
)

const DefaultConfig = "framepump.yaml"

var ConfigPath string

// LoadConfig applies every config layer in order, later layers override earlier ones
func LoadConfig(v any) {
	for _, data := range configs {
		if err := yaml.Unmarshal(data, v); err != nil {
			Logger.Warn().Err(err).Msg("[app] read config")
		}
	}
}

var configs [][]byte

// initConfig support:
// - path to YAML file, env vars like ${HOME} or ${VAR:default} are replaced
// - raw YAML or JSON: {capture: {device: /dev/video2}}
// - dotted key: capture.size=1280x960
func initConfig(confs []string) {
	configs = nil
	ConfigPath = ""

	if confs == nil {
		confs = []string{DefaultConfig}
	}

	for _, conf := range confs {
		if len(conf) == 0 {
			continue
		}
		if conf[0] == '{' {
			configs = append(configs, []byte(conf))
		} else if data := parseConfString(conf); data != nil {
			configs = append(configs, data)
		} else {
			if ConfigPath == "" {
				ConfigPath = conf
			}

			data, _ = os.ReadFile(conf)
			if data == nil {
				continue
			}

			data = []byte(shell.ReplaceEnvVars(string(data)))
			configs = append(configs, data)
		}
	}

	if ConfigPath != "" {
		if !filepath.IsAbs(ConfigPath) {
			if cwd, err := os.Getwd(); err == nil {
				ConfigPath = filepath.Join(cwd, ConfigPath)
			}
		}
		Info["config_path"] = ConfigPath
	}
}

func parseConfString(s string) []byte {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return nil
	}

	items := strings.Split(s[:i], ".")
	if len(items) < 2 {
		return nil
	}

	// `log.level=trace` => `{log: {level: trace}}`
	var pre string
	var suf = s[i+1:]
	for _, item := range items {
		pre += "{" + item + ": "
		suf += "}"
	}

	return []byte(pre + suf)
}
