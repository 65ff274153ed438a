package progress

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
)

// LoadPriceTable reads per-million-unit prices from a YAML file. Fields left
// at zero fall back to the default table, so a partial file only overrides
// what it names.
func LoadPriceTable(path string) (batch.PriceTable, error) {
	table := batch.DefaultPriceTable()

	data, err := os.ReadFile(path)
	if err != nil {
		return table, fmt.Errorf("read price table: %w", err)
	}

	var loaded batch.PriceTable

	unmarshalErr := yaml.Unmarshal(data, &loaded)
	if unmarshalErr != nil {
		return table, fmt.Errorf("unmarshal price table: %w", unmarshalErr)
	}

	if loaded.InputPerMillion > 0 {
		table.InputPerMillion = loaded.InputPerMillion
	}

	if loaded.OutputPerMillion > 0 {
		table.OutputPerMillion = loaded.OutputPerMillion
	}

	return table, nil
}
