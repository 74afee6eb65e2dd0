package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ngfw-tools/ngpatch/ngfw"
	"github.com/spf13/viper"
)

const envPrefix = "NGPATCH"

var configFile string

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "the config file (default: ngpatch.yaml in . or $HOME/.config/ngpatch)")
	pf.StringP("model", "m", "", fmt.Sprintf("the scooter model (one of: %s)", strings.Join(ngfw.Models(), ", ")))
	pf.String("mode", "thumb", "the instruction set used for assembly (thumb or arm)")
	pf.String("log-level", "warning", "the log level (error, warning, info, debug, trace)")
	pf.String("log-file", "", "append the log to a file instead of stderr")
	pf.BoolP("verbose", "v", false, "same as --log-level=debug")

	for key, flag := range map[string]string{
		"model":     "model",
		"mode":      "mode",
		"log_level": "log-level",
		"log_file":  "log-file",
		"verbose":   "verbose",
	} {
		if err := viper.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() error {
	viper.SetConfigType("yaml")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("ngpatch")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ngpatch"))
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &nf) {
			return fmt.Errorf("could not read config: %w", err)
		}
	}
	return nil
}

// selections converts the patches config map into catalog selections, in
// catalog order. A value is either a boolean, a list of arguments, a single
// argument, or a comma-separated string of arguments.
func selections(cfg map[string]interface{}) ([]ngfw.Selection, error) {
	known := map[string]bool{}
	for _, pt := range ngfw.Patches() {
		known[pt.Name] = true
	}
	var unknown []string
	for name := range cfg {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) != 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("config: unknown patches: %s", strings.Join(unknown, ", "))
	}

	var sel []ngfw.Selection
	for _, pt := range ngfw.Patches() {
		v, ok := cfg[pt.Name]
		if !ok {
			continue
		}
		var args []string
		switch v := v.(type) {
		case nil:
		case bool:
			if !v {
				continue
			}
		case int, int64, float64:
			args = []string{fmt.Sprint(v)}
		case string:
			if v != "" {
				args = []string{v}
			}
		case []interface{}:
			for _, a := range v {
				args = append(args, fmt.Sprint(a))
			}
		default:
			return nil, fmt.Errorf("config: patches.%s: unsupported value %#v", pt.Name, v)
		}
		s := pt.Name
		if len(args) != 0 {
			s += "=" + strings.Join(args, ",")
		}
		x, err := ngfw.ParseSelection(s)
		if err != nil {
			return nil, fmt.Errorf("config: patches.%s: %w", pt.Name, err)
		}
		sel = append(sel, x)
	}
	return sel, nil
}

// configPatches returns the patches map from the config, which may also be
// given as a string (e.g. in the environment) like "region_free kers_multi=8,16,32".
func configPatches() map[string]interface{} {
	if s := viper.GetString("patches"); s != "" {
		m := map[string]interface{}{}
		for _, f := range strings.Fields(s) {
			name, args, _ := strings.Cut(f, "=")
			if args == "" {
				m[name] = true
			} else if n, err := strconv.Atoi(args); err == nil {
				m[name] = n
			} else {
				m[name] = args
			}
		}
		return m
	}
	return viper.GetStringMap("patches")
}
