package ai

import (
	"context"

	"github.com/spigell/company-scout/internal/company"
)

// ScoredCompany is a single company augmented with a model-assigned score.
type ScoredCompany struct {
	CompanyName string  `json:"company_name" mapstructure:"company_name"`
	Score       float64 `json:"score" mapstructure:"score"`
	Explanation string  `json:"explanation" mapstructure:"explanation"`
}

// Analysis is the parsed result of evaluating one batch.
type Analysis struct {
	Scores []ScoredCompany
	// Raw keeps the original model response for debugging.
	Raw string
}

// Analyzer evaluates one batch of companies against a target job title.
type Analyzer interface {
	Analyze(ctx context.Context, batch []*company.Company, job string, batchNum int) (*Analysis, error)
}
