package main

import (
	"errors"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type config struct {
	Listen        string
	Certificate   string
	PrivateKey    string
	ArchiveDirs   []string
	LogLevel      string
	LenientPrefix bool
	MaxMsgBytes   int
}

// loadConfig resolves settings from flags, then DGC_* environment variables,
// then an optional YAML file named by --config, then defaults.
func loadConfig(args []string) (config, error) {
	fs := pflag.NewFlagSet("dgcd", pflag.ContinueOnError)
	fs.String("config", "", "YAML config file")
	fs.String("listen", "127.0.0.1:7788", "gRPC listen address")
	fs.String("certificate", "", "issuer certificate (PEM or DER)")
	fs.String("private-key", "", "signing key (PEM); without it Sign is refused")
	fs.StringSlice("archive-dir", nil, "envelope archive directory (repeatable); in-memory when unset")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.Bool("lenient-prefix", false, "accept tokens without checking the HC1: prefix")
	fs.Int("max-msg-bytes", 4<<20, "maximum gRPC message size")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("DGC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return config{}, err
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return config{}, err
		}
	}

	cfg := config{
		Listen:        v.GetString("listen"),
		Certificate:   v.GetString("certificate"),
		PrivateKey:    v.GetString("private-key"),
		ArchiveDirs:   v.GetStringSlice("archive-dir"),
		LogLevel:      v.GetString("log-level"),
		LenientPrefix: v.GetBool("lenient-prefix"),
		MaxMsgBytes:   v.GetInt("max-msg-bytes"),
	}
	if cfg.Certificate == "" {
		return config{}, errors.New("dgcd: --certificate (or DGC_CERTIFICATE) is required")
	}
	return cfg, nil
}
