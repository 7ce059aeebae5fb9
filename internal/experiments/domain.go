// Package experiments provides the experiment/item domain model and the
// creation saga that writes both under a partial-failure compensation
// scheme.
package experiments

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of an experiment.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Experiment is the primary resource. The creation saga writes it with
// status submitted; the downstream pricing-analysis process moves it through
// analyzing to completed or failed.
type Experiment struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Status           Status    `json:"status"`
	EstimatedCostUSD float64   `json:"estimatedCostUSD"`
	UserID           string    `json:"userId"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	Items            []Item    `json:"items,omitempty"`
}

// Item is a dependent resource; it exists only in relation to exactly one
// experiment.
type Item struct {
	ID               string    `json:"id"`
	ExperimentID     string    `json:"experimentId"`
	Name             string    `json:"name"`
	Quantity         float64   `json:"quantity"`
	Unit             string    `json:"unit"`
	EstimatedCostUSD *float64  `json:"estimatedCostUSD,omitempty"`
	Supplier         string    `json:"supplier,omitempty"`
	Catalog          string    `json:"catalog,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// CreateRequest is the create-experiment payload.
type CreateRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Items       []ItemInput `json:"items"`
}

// ItemInput is one requested line item.
type ItemInput struct {
	Name             string   `json:"name"`
	Quantity         float64  `json:"quantity"`
	Unit             string   `json:"unit"`
	EstimatedCostUSD *float64 `json:"estimatedCostUSD,omitempty"`
	Supplier         string   `json:"supplier,omitempty"`
	Catalog          string   `json:"catalog,omitempty"`
}

// Validate checks the payload before any store write happens.
func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	for i, item := range r.Items {
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("items[%d]: name is required", i)
		}
	}
	return nil
}

// TotalEstimatedCost sums the items' estimated costs, treating a missing
// value as zero.
func (r CreateRequest) TotalEstimatedCost() float64 {
	var total float64
	for _, item := range r.Items {
		if item.EstimatedCostUSD != nil {
			total += *item.EstimatedCostUSD
		}
	}
	return total
}
