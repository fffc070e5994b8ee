// Package contracts manages the deployed contract address map shared by the
// deployment steps and the pages, and classifies errors surfaced by contract
// calls into a closed set of kinds.
package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/finverse/finverse/pkg/domain"
)

// Well-known contract names in the address map.
const (
	FishNFT      = "FishNFT"
	Vote         = "Vote"
	FishMetadata = "FishMetadata"
	FishMarket   = "FishMarket"
	RewardClaim  = "RewardClaim"
	CreatorBoost = "CreatorBoost"
)

// Dependencies lists, per contract, the contracts that must already be
// deployed before it.
var Dependencies = map[string][]string{
	CreatorBoost: {FishNFT},
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether s looks like a hex account address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// AddressBook is the in-memory view of the address map file.
type AddressBook struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	addresses map[string]string
}

// LoadAddressBook reads the address map at path. A missing file yields an
// empty book; an unparsable one is logged and treated as empty.
func LoadAddressBook(path string, logger *slog.Logger) (*AddressBook, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &AddressBook{path: path, logger: logger, addresses: map[string]string{}}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Path returns the backing file path.
func (b *AddressBook) Path() string { return b.path }

// Reload re-reads the file.
func (b *AddressBook) Reload() error {
	data, err := b.readFile()
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.addresses = data
	b.mu.Unlock()
	return nil
}

func (b *AddressBook) readFile() (map[string]string, error) {
	//nolint:gosec // path is configured by the operator
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}

	data := map[string]string{}
	if err := json.Unmarshal(raw, &data); err != nil {
		b.logger.Warn("could not parse address map, starting empty", "path", b.path, "error", err)
		return map[string]string{}, nil
	}
	return data, nil
}

// Addresses returns a copy of every entry.
func (b *AddressBook) Addresses() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.addresses))
	for k, v := range b.addresses {
		out[k] = v
	}
	return out
}

// Names returns the contract names present, sorted.
func (b *AddressBook) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.addresses))
	for k := range b.addresses {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Address looks up one contract.
func (b *AddressBook) Address(name string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	addr, ok := b.addresses[name]
	return addr, ok && addr != ""
}

// RequireAddress returns the address of name or an error telling the
// operator which contract to deploy first.
func (b *AddressBook) RequireAddress(name string) (string, error) {
	addr, ok := b.Address(name)
	if !ok {
		return "", fmt.Errorf("%w: %s address not found in %s. Deploy %s first",
			domain.ErrAddressNotFound, name, filepath.Base(b.path), name)
	}
	return addr, nil
}

// Set records the address of name, merging into whatever the file holds
// now, and rewrites the file with two-space indentation. Contracts listed in
// Dependencies must already be present.
func (b *AddressBook) Set(name, addr string) error {
	if name == "" {
		return fmt.Errorf("%w: contract name is empty", domain.ErrInvalidInput)
	}
	if !ValidAddress(addr) {
		return fmt.Errorf("%w: %q is not a contract address", domain.ErrInvalidInput, addr)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.readFile()
	if err != nil {
		return err
	}
	for _, dep := range Dependencies[name] {
		if data[dep] == "" {
			return fmt.Errorf("%w: %s address not found in %s. Deploy %s first",
				domain.ErrAddressNotFound, dep, filepath.Base(b.path), dep)
		}
	}

	data[name] = addr
	if err := writeAddressFile(b.path, data); err != nil {
		return err
	}
	b.addresses = data
	b.logger.Info("contract address recorded", "contract", name, "address", addr, "path", b.path)
	return nil
}

func writeAddressFile(path string, data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode address map: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".contracts-address-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write address map: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close address map: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
