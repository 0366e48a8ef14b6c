package memory

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/xid"
)

// LoadCatalog reads a YAML product catalog used to seed the in-memory store.
// Products without an id get a generated one; active defaults to true.
func LoadCatalog(path string) ([]domain.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memory: read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) ([]domain.Product, error) {
	var file struct {
		Products []yamlProduct `yaml:"products"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("memory: parse catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Products))
	products := make([]domain.Product, 0, len(file.Products))
	for i, entry := range file.Products {
		p := entry.Product
		p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
		p.Name = strings.TrimSpace(p.Name)
		p.Category = strings.TrimSpace(p.Category)
		if p.SKU == "" || p.Name == "" || p.Category == "" {
			return nil, fmt.Errorf("memory: catalog entry %d: sku, name and category are required", i)
		}
		if p.Quantity < 0 || p.MinStockLevel < 0 || p.PriceCents < 0 || p.CostPriceCents < 0 {
			return nil, fmt.Errorf("memory: catalog entry %d (%s): negative values are not allowed", i, p.SKU)
		}
		if _, dup := seen[p.SKU]; dup {
			return nil, fmt.Errorf("memory: catalog entry %d: duplicate sku %s", i, p.SKU)
		}
		seen[p.SKU] = struct{}{}
		if p.ID == "" {
			p.ID = xid.New("prod")
		}
		p.Active = entry.Active == nil || *entry.Active
		products = append(products, p)
	}
	return products, nil
}

type yamlProduct struct {
	domain.Product `yaml:",inline"`
	Active         *bool `yaml:"active"`
}
