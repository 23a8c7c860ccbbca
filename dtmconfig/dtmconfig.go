// Package dtmconfig holds the DTM harness's test-run options and the
// on-disk configuration loaded for cmd/dtmd, following the evalgo-style
// viper config loading (file + flag + env overrides).
package dtmconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// TestOption carries the per-run ordering policy and timeout knobs spec §6
// recognizes.
type TestOption struct {
	WaitBothBeginAndEnd       bool
	SequentialOutputAction    bool
	SecondsWaitMessageTimeout uint64
	EnableCheck               bool
}

// DefaultTestOption returns the spec's documented defaults: no strict
// bracketing, no forced Output ordering, a several-second step timeout, and
// observed-history checking enabled.
func DefaultTestOption() TestOption {
	return TestOption{
		WaitBothBeginAndEnd:       false,
		SequentialOutputAction:    false,
		SecondsWaitMessageTimeout: 5,
		EnableCheck:               true,
	}
}

// WithWaitBothBeginAndEnd returns a copy of o with WaitBothBeginAndEnd set.
func (o TestOption) WithWaitBothBeginAndEnd(v bool) TestOption {
	o.WaitBothBeginAndEnd = v
	return o
}

// WithSequentialOutputAction returns a copy of o with SequentialOutputAction set.
func (o TestOption) WithSequentialOutputAction(v bool) TestOption {
	o.SequentialOutputAction = v
	return o
}

// WithSecondsWaitMessageTimeout returns a copy of o with the per-step
// timeout set.
func (o TestOption) WithSecondsWaitMessageTimeout(seconds uint64) TestOption {
	o.SecondsWaitMessageTimeout = seconds
	return o
}

// WithEnableCheck returns a copy of o with observed-history checking toggled.
func (o TestOption) WithEnableCheck(v bool) TestOption {
	o.EnableCheck = v
	return o
}

// HarnessConfig is the full configuration for a cmd/dtmd process: paths to
// the intermediate action database, the constant-mapping sidecar, the
// output database, the listen address, and the embedded TestOption.
type HarnessConfig struct {
	ModelDBPath  string
	ConstMapPath string
	OutDBPath    string
	ListenAddr   string
	LogLevel     string
	AutoName     string
	TestOption   TestOption
}

// Load reads configuration from configFile (if non-empty) and environment
// variables prefixed DTM_, in viper's precedence order (env > config file >
// default). It binds no command-line flags; callers such as cmd/dtmd apply
// flag overrides to the returned HarnessConfig themselves.
func Load(configFile string) (HarnessConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("DTM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("model_db", "")
	v.SetDefault("const_map", "")
	v.SetDefault("out_db", "")
	v.SetDefault("addr", ":7070")
	v.SetDefault("log_level", "info")
	v.SetDefault("auto_name", "dtm")
	v.SetDefault("wait_both_begin_and_end", false)
	v.SetDefault("sequential_output_action", false)
	v.SetDefault("seconds_wait_message_timeout", 5)
	v.SetDefault("enable_check", true)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return HarnessConfig{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := HarnessConfig{
		ModelDBPath:  v.GetString("model_db"),
		ConstMapPath: v.GetString("const_map"),
		OutDBPath:    v.GetString("out_db"),
		ListenAddr:   v.GetString("addr"),
		LogLevel:     v.GetString("log_level"),
		AutoName:     v.GetString("auto_name"),
		TestOption: TestOption{
			WaitBothBeginAndEnd:       v.GetBool("wait_both_begin_and_end"),
			SequentialOutputAction:    v.GetBool("sequential_output_action"),
			SecondsWaitMessageTimeout: uint64(v.GetInt64("seconds_wait_message_timeout")),
			EnableCheck:               v.GetBool("enable_check"),
		},
	}
	return cfg, nil
}
