package company

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// Company is a single record from the input dataset.
type Company struct {
	Name  string `json:"company"`
	About string `json:"about"`
}

// Companies is the full immutable list loaded at startup.
type Companies struct {
	Items []*Company
}

// LoadFromFile reads a JSON array of company records from the given path.
func LoadFromFile(path string) (*Companies, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "company: open input file %q", path)
	}
	defer file.Close()

	var items []*Company
	if err := json.NewDecoder(file).Decode(&items); err != nil {
		return nil, eris.Wrapf(err, "company: parse input file %q", path)
	}

	return &Companies{Items: items}, nil
}

func (c *Companies) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// Batches splits the list into contiguous groups of at most size items.
// The final batch holds the remainder. A non-positive size yields a single
// batch with everything in it.
func (c *Companies) Batches(size int) [][]*Company {
	if c.Len() == 0 {
		return nil
	}

	if size <= 0 {
		return [][]*Company{c.Items}
	}

	batches := make([][]*Company, 0, (len(c.Items)+size-1)/size)
	for start := 0; start < len(c.Items); start += size {
		end := start + size
		if end > len(c.Items) {
			end = len(c.Items)
		}
		batches = append(batches, c.Items[start:end])
	}

	return batches
}
