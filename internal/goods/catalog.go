// Package goods holds the product knowledge base: reference price bands,
// per-call transaction limits, cargo footprints, and the waypoint traits
// where each good is usually sold. The catalog is static per planning
// cycle; an optional override file can retune it at runtime.
package goods

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/evanmiller2112/spacetraders-cc/internal/api"
)

// Band is a reference price range in credits per unit.
type Band struct {
	Min int64 `yaml:"min"`
	Max int64 `yaml:"max"`
}

// Info describes how one good trades: where to look for it, what it
// should cost, how many units a venue accepts per call, and how much
// hold space one unit takes.
type Info struct {
	Symbol           string
	PreferredTraits  []string
	Band             Band
	TransactionLimit int
	CargoPerUnit     int
}

// fallbackInfo is the conservative profile for goods the catalog does not
// know: any marketplace may carry them, prices up to the unknown-good
// ceiling pass, and small batches keep exposure down.
var fallbackInfo = Info{
	PreferredTraits:  []string{api.TraitMarketplace},
	Band:             Band{Min: 0, Max: 5000},
	TransactionLimit: 10,
	CargoPerUnit:     1,
}

// builtin is the seeded knowledge base of manufactured trade goods.
func builtin() map[string]Info {
	return map[string]Info{
		"ELECTRONICS": {
			PreferredTraits:  []string{api.TraitHighTech, api.TraitMarketplace},
			Band:             Band{Min: 1000, Max: 2000},
			TransactionLimit: 20,
			CargoPerUnit:     1,
		},
		"MACHINERY": {
			PreferredTraits:  []string{api.TraitIndustrial, api.TraitMarketplace},
			Band:             Band{Min: 800, Max: 1500},
			TransactionLimit: 15,
			CargoPerUnit:     1,
		},
		"MEDICINE": {
			PreferredTraits:  []string{api.TraitResearch, api.TraitMarketplace},
			Band:             Band{Min: 600, Max: 1200},
			TransactionLimit: 25,
			CargoPerUnit:     1,
		},
		"FOOD": {
			PreferredTraits:  []string{api.TraitAgricultural, api.TraitMarketplace},
			Band:             Band{Min: 300, Max: 800},
			TransactionLimit: 30,
			CargoPerUnit:     1,
		},
		"CLOTHING": {
			PreferredTraits:  []string{api.TraitMarketplace, api.TraitIndustrial},
			Band:             Band{Min: 400, Max: 900},
			TransactionLimit: 25,
			CargoPerUnit:     1,
		},
		"TOOLS": {
			PreferredTraits:  []string{api.TraitIndustrial, api.TraitMarketplace},
			Band:             Band{Min: 500, Max: 1000},
			TransactionLimit: 20,
			CargoPerUnit:     1,
		},
		"WEAPONS": {
			PreferredTraits:  []string{api.TraitMilitary, api.TraitIndustrial, api.TraitMarketplace},
			Band:             Band{Min: 1200, Max: 2500},
			TransactionLimit: 10,
			CargoPerUnit:     1,
		},
		"DRUGS": {
			PreferredTraits:  []string{api.TraitResearch, api.TraitMarketplace},
			Band:             Band{Min: 800, Max: 1800},
			TransactionLimit: 15,
			CargoPerUnit:     1,
		},
		"EQUIPMENT": {
			PreferredTraits:  []string{api.TraitIndustrial, api.TraitMarketplace},
			Band:             Band{Min: 600, Max: 1400},
			TransactionLimit: 15,
			CargoPerUnit:     1,
		},
		"JEWELRY": {
			PreferredTraits:  []string{api.TraitMarketplace},
			Band:             Band{Min: 1000, Max: 3000},
			TransactionLimit: 10,
			CargoPerUnit:     1,
		},
	}
}

// Catalog is the product knowledge base. Safe for concurrent use; the
// override watcher may swap entries while planners read.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]Info
}

// NewCatalog creates a catalog seeded with the built-in knowledge base.
func NewCatalog() *Catalog {
	return &Catalog{products: builtin()}
}

// Lookup returns the trading profile for a good. Unknown goods get the
// conservative fallback profile and known=false.
func (c *Catalog) Lookup(symbol string) (info Info, known bool) {
	c.mu.RLock()
	entry, ok := c.products[symbol]
	c.mu.RUnlock()

	if !ok {
		entry = fallbackInfo
	}
	entry.Symbol = symbol
	// Copy the trait slice so callers cannot alias catalog state.
	entry.PreferredTraits = append([]string(nil), entry.PreferredTraits...)
	return entry, ok
}

// Known reports whether the good is in the knowledge base.
func (c *Catalog) Known(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.products[symbol]
	return ok
}

// Symbols returns the cataloged good symbols, unordered.
func (c *Catalog) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	symbols := make([]string, 0, len(c.products))
	for symbol := range c.products {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// Reset restores the built-in knowledge base, dropping any overrides.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = builtin()
}

// overrideFile is the YAML shape of a catalog override file. Absent
// fields keep their current value.
type overrideFile struct {
	Products map[string]overrideEntry `yaml:"products"`
}

type overrideEntry struct {
	PreferredTraits  []string `yaml:"preferredTraits"`
	Band             *Band    `yaml:"priceBand"`
	TransactionLimit *int     `yaml:"transactionLimit"`
	CargoPerUnit     *int     `yaml:"cargoPerUnit"`
}

// LoadOverrides merges an override file into the catalog on top of the
// built-in table. Returns how many goods were touched.
func (c *Catalog) LoadOverrides(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read overrides: %w", err)
	}

	var file overrideFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("failed to parse overrides: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Rebuild from builtins so removing an override entry reverts it.
	c.products = builtin()
	for symbol, override := range file.Products {
		entry, ok := c.products[symbol]
		if !ok {
			entry = fallbackInfo
			entry.PreferredTraits = append([]string(nil), fallbackInfo.PreferredTraits...)
		}
		if len(override.PreferredTraits) > 0 {
			entry.PreferredTraits = override.PreferredTraits
		}
		if override.Band != nil {
			entry.Band = *override.Band
		}
		if override.TransactionLimit != nil {
			entry.TransactionLimit = *override.TransactionLimit
		}
		if override.CargoPerUnit != nil {
			entry.CargoPerUnit = *override.CargoPerUnit
		}
		c.products[symbol] = entry
	}
	return len(file.Products), nil
}
