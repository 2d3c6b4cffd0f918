// Package config holds the tunables of a playnet bank.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/solana-playground/playnet/pkg/cu"
	"github.com/solana-playground/playnet/pkg/features"
	"github.com/solana-playground/playnet/pkg/rent"
	"gopkg.in/yaml.v3"
)

const (
	DefaultGenesisSeed          = "playnet"
	DefaultAirdropLamports      = 1_000_000 * 1_000_000_000
	DefaultRecentBlockhashesMax = 150
)

var ErrInvalidConfig = errors.New("invalid playnet configuration")

// Config is the YAML form of a bank's parameters. Zero values in a file
// fall back to the defaults.
type Config struct {
	// GenesisSeed seeds the genesis blockhash.
	GenesisSeed string `yaml:"genesis_seed"`

	LamportsPerSignature uint64 `yaml:"lamports_per_signature"`
	AirdropLamports      uint64 `yaml:"airdrop_lamports"`

	ComputeUnitLimit          uint64 `yaml:"compute_unit_limit"`
	MaxInvokeStackHeight      uint64 `yaml:"max_invoke_stack_height"`
	MaxInstructionTraceLength uint64 `yaml:"max_instruction_trace_length"`

	// LoadedAccountsDataSizeLimit bounds the bytes a transaction may load.
	// 0 disables the check.
	LoadedAccountsDataSizeLimit uint64 `yaml:"loaded_accounts_data_size_limit"`

	// Features lists gate names active from genesis.
	Features []string `yaml:"features"`

	RecentBlockhashesMax int `yaml:"recent_blockhashes_max"`

	Rent *RentConfig `yaml:"rent,omitempty"`
}

type RentConfig struct {
	LamportsPerByteYear uint64  `yaml:"lamports_per_byte_year"`
	ExemptionThreshold  float64 `yaml:"exemption_threshold"`
	BurnPercent         byte    `yaml:"burn_percent"`
}

func Default() *Config {
	return &Config{
		GenesisSeed:               DefaultGenesisSeed,
		AirdropLamports:           DefaultAirdropLamports,
		ComputeUnitLimit:          cu.MaxComputeUnitLimit,
		MaxInvokeStackHeight:      cu.MaxInvokeStackHeight,
		MaxInstructionTraceLength: cu.MaxInstructionTraceLength,
		RecentBlockhashesMax:      DefaultRecentBlockhashesMax,
	}
}

// Load reads a YAML file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.GenesisSeed == "" {
		c.GenesisSeed = def.GenesisSeed
	}
	if c.AirdropLamports == 0 {
		c.AirdropLamports = def.AirdropLamports
	}
	if c.ComputeUnitLimit == 0 {
		c.ComputeUnitLimit = def.ComputeUnitLimit
	}
	if c.MaxInvokeStackHeight == 0 {
		c.MaxInvokeStackHeight = def.MaxInvokeStackHeight
	}
	if c.MaxInstructionTraceLength == 0 {
		c.MaxInstructionTraceLength = def.MaxInstructionTraceLength
	}
	if c.RecentBlockhashesMax == 0 {
		c.RecentBlockhashesMax = def.RecentBlockhashesMax
	}
}

func (c *Config) Validate() error {
	if c.ComputeUnitLimit > cu.MaxComputeUnitLimit {
		return fmt.Errorf("%w: compute_unit_limit %d exceeds %d", ErrInvalidConfig, c.ComputeUnitLimit, cu.MaxComputeUnitLimit)
	}
	if c.MaxInvokeStackHeight == 0 || c.MaxInstructionTraceLength == 0 {
		return fmt.Errorf("%w: stack height and trace length must be positive", ErrInvalidConfig)
	}
	if c.RecentBlockhashesMax < 1 || c.RecentBlockhashesMax > DefaultRecentBlockhashesMax {
		return fmt.Errorf("%w: recent_blockhashes_max must be within [1, %d]", ErrInvalidConfig, DefaultRecentBlockhashesMax)
	}
	for _, name := range c.Features {
		if _, ok := features.GateByName(name); !ok {
			return fmt.Errorf("%w: unknown feature %q", ErrInvalidConfig, name)
		}
	}
	if c.Rent != nil && c.Rent.BurnPercent > 100 {
		return fmt.Errorf("%w: burn_percent %d exceeds 100", ErrInvalidConfig, c.Rent.BurnPercent)
	}
	return nil
}

func (c *Config) ComputeBudget() cu.ComputeBudget {
	return cu.ComputeBudget{
		ComputeUnitLimit:          c.ComputeUnitLimit,
		MaxInvokeStackHeight:      c.MaxInvokeStackHeight,
		MaxInstructionTraceLength: c.MaxInstructionTraceLength,
	}
}

// FeatureSet activates every configured gate at slot 0.
func (c *Config) FeatureSet() *features.Features {
	f := features.NewFeaturesDefault()
	for _, name := range c.Features {
		if gate, ok := features.GateByName(name); ok {
			f.EnableFeature(gate, 0)
		}
	}
	return f
}

func (c *Config) RentParams() rent.Rent {
	if c.Rent == nil {
		return rent.Default()
	}
	return rent.Rent{
		LamportsPerByteYear: c.Rent.LamportsPerByteYear,
		ExemptionThreshold:  c.Rent.ExemptionThreshold,
		BurnPercent:         c.Rent.BurnPercent,
	}
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
