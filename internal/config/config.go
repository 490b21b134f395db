// Package config parses and validates the TOML chain configuration file
// described in spec.md §6.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// AccountConfig describes one account whose ETH/token balances are polled.
type AccountConfig struct {
	Name    string
	Address string
	Enabled bool
}

// ContractAccountConfig describes one account embedded under a contract,
// whose token balance against that contract is polled.
type ContractAccountConfig struct {
	Name    string
	Address string
	Enabled bool
}

// ContractConfig describes one ERC-20-shaped contract to poll.
type ContractConfig struct {
	Name                   string
	Address                string
	Decimals               *int
	TransferLookbackBlocks *int
	Accounts               []ContractAccountConfig
	Enabled                bool
}

// BlockchainConfig describes one chain to poll.
type BlockchainConfig struct {
	Name         string
	RPCURL       string
	PollInterval string
	Enabled      bool
	Accounts     []AccountConfig
	Contracts    []ContractConfig
}

// Identity returns the stable (name, rpc_url) cache key for this chain.
func (b BlockchainConfig) Identity() Identity {
	return Identity{Name: b.Name, RPCURL: b.RPCURL}
}

// Identity is the stable (name, rpc_url) cache key for a chain.
type Identity struct {
	Name   string
	RPCURL string
}

// rawDocument mirrors the TOML document shape before validation/defaulting.
type rawDocument struct {
	Blockchains []rawBlockchain `toml:"blockchains"`
}

type rawBlockchain struct {
	Name         string          `toml:"name"`
	RPCURL       string          `toml:"rpc_url"`
	PollInterval string          `toml:"poll_interval"`
	Enabled      *bool           `toml:"enabled"`
	Accounts     []rawAccount    `toml:"accounts"`
	Contracts    []rawContract   `toml:"contracts"`
}

type rawAccount struct {
	Name    string `toml:"name"`
	Address string `toml:"address"`
	Enabled *bool  `toml:"enabled"`
}

type rawContract struct {
	Name                   string       `toml:"name"`
	Address                string       `toml:"address"`
	Decimals               *int         `toml:"decimals"`
	TransferLookbackBlocks *int         `toml:"transfer_lookback_blocks"`
	Enabled                *bool        `toml:"enabled"`
	Accounts               []rawAccount `toml:"accounts"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func requireNonEmptyString(value, location string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must be a non-empty string", location)
	}
	return trimmed, nil
}

func requireAddress(value, location string) (string, error) {
	trimmed, err := requireNonEmptyString(value, location)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return "", fmt.Errorf("%s must be a 0x-prefixed hex address", location)
	}
	if len(trimmed) != 42 {
		return "", fmt.Errorf("%s must be a 42-character 0x-prefixed hex address", location)
	}
	return strings.ToLower(trimmed), nil
}

func coerceOptionalInt(value *int, location string, minimum int) (*int, error) {
	if value == nil {
		return nil, nil
	}
	if *value < minimum {
		return nil, fmt.Errorf("%s must be greater than or equal to %d", location, minimum)
	}
	return value, nil
}

// Load reads and validates the configuration file at path, substituting
// ${VAR} environment references in the raw text before TOML decoding.
func Load(path string) ([]BlockchainConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(raw))

	var doc rawDocument
	if _, err := toml.Decode(expanded, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return parseDocument(doc)
}

func parseDocument(doc rawDocument) ([]BlockchainConfig, error) {
	if len(doc.Blockchains) == 0 {
		return nil, nil
	}

	seenNames := make(map[string]bool)
	result := make([]BlockchainConfig, 0, len(doc.Blockchains))

	for i, entry := range doc.Blockchains {
		idx := i + 1
		bc, err := parseBlockchain(entry, idx)
		if err != nil {
			return nil, err
		}

		normalized := strings.ToLower(bc.Name)
		if seenNames[normalized] {
			return nil, fmt.Errorf("duplicate blockchain name %q detected", bc.Name)
		}
		seenNames[normalized] = true

		// Disabled blockchains are dropped here, at parse time, so they
		// never reach configured-chain counts or the poller (spec.md §3).
		if !bc.Enabled {
			continue
		}

		result = append(result, bc)
	}

	return result, nil
}

func parseBlockchain(entry rawBlockchain, idx int) (BlockchainConfig, error) {
	loc := fmt.Sprintf("blockchains[%d]", idx)

	name, err := requireNonEmptyString(entry.Name, loc+".name")
	if err != nil {
		return BlockchainConfig{}, err
	}

	rpcURL, err := requireNonEmptyString(entry.RPCURL, loc+".rpc_url")
	if err != nil {
		return BlockchainConfig{}, err
	}

	accounts, err := parseAccounts(entry.Accounts, loc)
	if err != nil {
		return BlockchainConfig{}, err
	}

	contracts, err := parseContracts(entry.Contracts, loc)
	if err != nil {
		return BlockchainConfig{}, err
	}

	return BlockchainConfig{
		Name:         name,
		RPCURL:       rpcURL,
		PollInterval: strings.TrimSpace(entry.PollInterval),
		Enabled:      boolOr(entry.Enabled, true),
		Accounts:     accounts,
		Contracts:    contracts,
	}, nil
}

func parseAccounts(entries []rawAccount, parentLoc string) ([]AccountConfig, error) {
	seen := make(map[string]bool)
	result := make([]AccountConfig, 0, len(entries))

	for i, entry := range entries {
		loc := fmt.Sprintf("%s.accounts[%d]", parentLoc, i+1)

		name, err := requireNonEmptyString(entry.Name, loc+".name")
		if err != nil {
			return nil, err
		}

		address, err := requireAddress(entry.Address, loc+".address")
		if err != nil {
			return nil, err
		}

		if seen[address] {
			return nil, fmt.Errorf("duplicate account address %q found in %s", address, parentLoc)
		}
		seen[address] = true

		result = append(result, AccountConfig{
			Name:    name,
			Address: address,
			Enabled: boolOr(entry.Enabled, true),
		})
	}

	return result, nil
}

func parseContracts(entries []rawContract, parentLoc string) ([]ContractConfig, error) {
	seen := make(map[string]bool)
	result := make([]ContractConfig, 0, len(entries))

	for i, entry := range entries {
		loc := fmt.Sprintf("%s.contracts[%d]", parentLoc, i+1)

		name, err := requireNonEmptyString(entry.Name, loc+".name")
		if err != nil {
			return nil, err
		}

		address, err := requireAddress(entry.Address, loc+".address")
		if err != nil {
			return nil, err
		}

		if seen[address] {
			return nil, fmt.Errorf("duplicate contract address %q found in %s", address, parentLoc)
		}
		seen[address] = true

		decimals, err := coerceOptionalInt(entry.Decimals, loc+".decimals", 0)
		if err != nil {
			return nil, err
		}

		lookback, err := coerceOptionalInt(entry.TransferLookbackBlocks, loc+".transfer_lookback_blocks", 1)
		if err != nil {
			return nil, err
		}

		accounts, err := parseAccountsAsContractAccounts(entry.Accounts, loc)
		if err != nil {
			return nil, err
		}

		result = append(result, ContractConfig{
			Name:                   name,
			Address:                address,
			Decimals:               decimals,
			TransferLookbackBlocks: lookback,
			Accounts:               accounts,
			Enabled:                boolOr(entry.Enabled, true),
		})
	}

	return result, nil
}

func parseAccountsAsContractAccounts(entries []rawAccount, parentLoc string) ([]ContractAccountConfig, error) {
	accts, err := parseAccounts(entries, parentLoc)
	if err != nil {
		return nil, err
	}
	result := make([]ContractAccountConfig, 0, len(accts))
	for _, a := range accts {
		result = append(result, ContractAccountConfig{Name: a.Name, Address: a.Address, Enabled: a.Enabled})
	}
	return result, nil
}

// EnabledAccounts returns only the enabled accounts of a blockchain.
func (b BlockchainConfig) EnabledAccounts() []AccountConfig {
	out := make([]AccountConfig, 0, len(b.Accounts))
	for _, a := range b.Accounts {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// EnabledContracts returns only the enabled contracts of a blockchain.
func (b BlockchainConfig) EnabledContracts() []ContractConfig {
	out := make([]ContractConfig, 0, len(b.Contracts))
	for _, c := range b.Contracts {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// EnabledAccounts returns only the enabled embedded accounts of a contract.
func (c ContractConfig) EnabledAccounts() []ContractAccountConfig {
	out := make([]ContractAccountConfig, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// DecimalsLabel returns the decimals label for metrics: override if given,
// else the configured fixed decimals, else the default.
func (c ContractConfig) DecimalsLabel(override *int) string {
	if override != nil {
		return strconv.Itoa(*override)
	}
	if c.Decimals != nil {
		return strconv.Itoa(*c.Decimals)
	}
	return strconv.Itoa(DefaultTokenDecimals)
}

// DefaultTokenDecimals is used when no decimals are known for a token.
const DefaultTokenDecimals = 0

// DefaultTransferLookbackBlocks is used when a contract has no configured span.
const DefaultTransferLookbackBlocks = 5000

// TransferLookbackSpan returns the effective lookback span for this contract.
func (c ContractConfig) TransferLookbackSpan() int {
	if c.TransferLookbackBlocks != nil {
		return *c.TransferLookbackBlocks
	}
	return DefaultTransferLookbackBlocks
}
