package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/spigell/company-scout/internal/ai"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"

	DefaultJSONFile = "sorted_company_scores.json"
	DefaultCSVFile  = "sorted_company_scores.csv"
)

var csvHeader = []string{"company_name", "score", "explanation"}

// Writer persists accumulated results to a single file. Every Save is a full
// rewrite of that file, which is what makes it usable as a checkpoint.
type Writer struct {
	format string
	path   string
}

// NewWriter builds a Writer for the given format. An empty path selects the
// fixed default filename for that format.
func NewWriter(format, path string) (*Writer, error) {
	switch format {
	case FormatJSON:
		if path == "" {
			path = DefaultJSONFile
		}
	case FormatCSV:
		if path == "" {
			path = DefaultCSVFile
		}
	default:
		return nil, eris.Errorf("report: unsupported output format %q", format)
	}

	return &Writer{format: format, path: path}, nil
}

func (w *Writer) Path() string {
	return w.path
}

// Save rewrites the output file with the provided results.
func (w *Writer) Save(results []ai.ScoredCompany) error {
	if w.format == FormatCSV {
		return w.saveCSV(results)
	}
	return w.saveJSON(results)
}

func (w *Writer) saveJSON(results []ai.ScoredCompany) error {
	file, err := os.Create(w.path)
	if err != nil {
		return eris.Wrapf(err, "report: create %q", w.path)
	}
	defer file.Close()

	if results == nil {
		results = []ai.ScoredCompany{}
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return eris.Wrapf(err, "report: encode %q", w.path)
	}

	return nil
}

func (w *Writer) saveCSV(results []ai.ScoredCompany) error {
	file, err := os.Create(w.path)
	if err != nil {
		return eris.Wrapf(err, "report: create %q", w.path)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return eris.Wrapf(err, "report: write header to %q", w.path)
	}

	for _, result := range results {
		row := []string{
			result.CompanyName,
			strconv.FormatFloat(result.Score, 'f', -1, 64),
			result.Explanation,
		}
		if err := writer.Write(row); err != nil {
			return eris.Wrapf(err, "report: write row to %q", w.path)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return eris.Wrapf(err, "report: flush %q", w.path)
	}

	return nil
}

// SortByScore orders results descending by score. The sort is stable, ties
// keep their arrival order.
func SortByScore(results []ai.ScoredCompany) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// Top returns the first n results, or all of them when fewer exist.
func Top(results []ai.ScoredCompany, n int) []ai.ScoredCompany {
	if n < 0 {
		n = 0
	}
	if n > len(results) {
		n = len(results)
	}
	return results[:n]
}
