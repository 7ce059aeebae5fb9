package experiments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/moeltae/sci-bom/internal/errors"
	"github.com/moeltae/sci-bom/internal/logging"
	"github.com/moeltae/sci-bom/internal/metrics"
)

// sagaState tracks the creation saga through its forward states and the
// compensation edge.
type sagaState string

const (
	statePreparingPrimary sagaState = "preparing-primary"
	statePrimaryCommitted sagaState = "primary-committed"
	stateDone             sagaState = "done"
	stateCompensated      sagaState = "compensated"
)

// compensationTimeout bounds the compensating delete when the request
// deadline has already fired after the primary insert committed.
const compensationTimeout = 5 * time.Second

// Service implements the experiment operations. It is stateless; the
// per-request Store (carrying the caller's scoped client) is passed per
// call.
type Service struct {
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

// NewService creates the experiments service.
func NewService(logger *logging.Logger, m *metrics.Metrics) *Service {
	return &Service{
		logger:  logger,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Create runs the creation saga: validate, insert the primary experiment
// record, batch-insert its items, and compensate with a delete of the
// primary if the batch fails. The batch insert is never retried and the
// compensating delete is attempted exactly once; if it fails too, the
// orphaned experiment is logged for the scheduled sweeper and the original
// failure is still reported.
func (s *Service) Create(ctx context.Context, store Store, ownerID string, req CreateRequest) (Experiment, *errors.ServiceError) {
	state := statePreparingPrimary

	if err := req.Validate(); err != nil {
		s.metrics.RecordSagaOutcome(metrics.SagaRejected)
		return Experiment{}, errors.BadRequest("Invalid input. Name, description, and items array are required.")
	}

	now := s.now().UTC()
	exp := Experiment{
		ID:               s.newID(),
		Name:             req.Name,
		Description:      req.Description,
		Status:           StatusSubmitted,
		EstimatedCostUSD: req.TotalEstimatedCost(),
		UserID:           ownerID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := store.InsertExperiment(ctx, exp)
	if err != nil {
		// Nothing committed yet; no compensation needed.
		s.logger.WithContext(ctx).WithError(err).
			WithField("saga_state", string(state)).
			Error("experiment insert failed")
		s.metrics.RecordSagaOutcome(metrics.SagaFailed)
		return Experiment{}, errors.Upstream("Failed to create experiment", err)
	}
	state = statePrimaryCommitted

	items := make([]Item, len(req.Items))
	for i, in := range req.Items {
		items[i] = Item{
			ID:               s.newID(),
			ExperimentID:     created.ID,
			Name:             in.Name,
			Quantity:         in.Quantity,
			Unit:             in.Unit,
			EstimatedCostUSD: in.EstimatedCostUSD,
			Supplier:         in.Supplier,
			Catalog:          in.Catalog,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}

	createdItems, err := store.InsertItems(ctx, items)
	if err != nil {
		s.compensate(ctx, store, created.ID, err)
		return Experiment{}, errors.Upstream("Failed to create items", err)
	}

	state = stateDone
	created.Items = createdItems
	s.metrics.RecordSagaOutcome(metrics.SagaCommitted)
	s.logger.WithContext(ctx).
		WithField("experiment_id", created.ID).
		WithField("item_count", len(createdItems)).
		WithField("saga_state", string(state)).
		Info("experiment created")
	return created, nil
}

// compensate deletes the committed primary record after a dependent-insert
// failure. Best effort: a secondary failure is logged with the orphaned ID
// and not retried within the request.
func (s *Service) compensate(ctx context.Context, store Store, experimentID string, cause error) {
	// The request deadline may already have fired; the compensation gets
	// its own short deadline so it is still attempted.
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if delErr := store.DeleteExperiment(compCtx, experimentID); delErr != nil {
		s.logger.WithContext(ctx).WithError(delErr).
			WithField("experiment_id", experimentID).
			WithField("saga_state", string(statePrimaryCommitted)).
			WithField("cause", cause.Error()).
			Error("compensating delete failed; experiment orphaned")
		s.metrics.RecordSagaOutcome(metrics.SagaOrphaned)
		return
	}

	s.logger.WithContext(ctx).WithError(cause).
		WithField("experiment_id", experimentID).
		WithField("saga_state", string(stateCompensated)).
		Error("item insert failed; experiment rolled back")
	s.metrics.RecordSagaOutcome(metrics.SagaCompensated)
}

// List returns the owner's experiments with nested items, newest first.
func (s *Service) List(ctx context.Context, store Store, ownerID string) ([]Experiment, *errors.ServiceError) {
	experiments, err := store.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("list experiments failed")
		return nil, errors.Upstream("Failed to fetch experiments", err)
	}
	if experiments == nil {
		experiments = []Experiment{}
	}
	return experiments, nil
}
