package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"admin-service/internal/models"
	"admin-service/internal/util"
)

var ErrLeadNotFound = gocql.ErrNotFound

// LeadRepository defines the durable lead operations
type LeadRepository interface {
	CreateLead(ctx context.Context, lead *models.Lead) error
	GetLeadByID(ctx context.Context, bucket int, leadID string) (*models.Lead, error)
	UpdateLeadStatus(ctx context.Context, lead *models.Lead, newStatus, assignedTo string) error
	ListLeadsByStatus(ctx context.Context, status string, limit int, pageState []byte) ([]*models.Lead, []byte, error)

	HealthCheck(ctx context.Context) error
}

type leadRepository struct {
	client *ScyllaClient
}

func NewLeadRepository(client *ScyllaClient) LeadRepository {
	return &leadRepository{client: client}
}

func (r *leadRepository) CreateLead(ctx context.Context, lead *models.Lead) error {
	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.CreateLead.Statement(),
		lead.LeadBucket, lead.LeadID, lead.Name, lead.Email, lead.PhoneHash,
		lead.PhoneEncrypted, lead.PhoneKeyID, lead.Course, lead.City,
		lead.Source, lead.Message, lead.Status, lead.AssignedTo,
		lead.CreatedAt, lead.UpdatedAt, lead.ContactedAt)

	batch.Query(r.client.Prepared.CreateLeadByStatus.Statement(),
		lead.Status, lead.CreatedAt, lead.LeadID, lead.LeadBucket,
		lead.Name, lead.Email, lead.Course, lead.City)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create lead",
			zap.String("lead_id", lead.LeadID),
			zap.String("course", lead.Course),
			zap.Error(err))
		return fmt.Errorf("failed to create lead: %w", err)
	}

	util.Info("Lead created",
		zap.String("lead_id", lead.LeadID),
		zap.String("course", lead.Course),
		zap.String("city", lead.City))
	return nil
}

func (r *leadRepository) GetLeadByID(ctx context.Context, bucket int, leadID string) (*models.Lead, error) {
	lead := &models.Lead{}

	err := r.client.Prepared.GetLeadByID.WithContext(ctx).Bind(bucket, leadID).Scan(
		&lead.LeadBucket, &lead.LeadID, &lead.Name, &lead.Email, &lead.PhoneHash,
		&lead.PhoneEncrypted, &lead.PhoneKeyID, &lead.Course, &lead.City,
		&lead.Source, &lead.Message, &lead.Status, &lead.AssignedTo,
		&lead.CreatedAt, &lead.UpdatedAt, &lead.ContactedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrLeadNotFound
		}
		util.Error("Failed to get lead",
			zap.String("lead_id", leadID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	return lead, nil
}

// UpdateLeadStatus moves the lead between status partitions: the main row
// is updated and the leads_by_status row is re-homed in a logged batch.
func (r *leadRepository) UpdateLeadStatus(ctx context.Context, lead *models.Lead, newStatus, assignedTo string) error {
	now := time.Now().UTC()
	var contactedAt *time.Time = lead.ContactedAt
	if newStatus == models.LeadStatusContacted && contactedAt == nil {
		contactedAt = &now
	}

	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.UpdateLeadStatus.Statement(),
		newStatus, assignedTo, now, contactedAt, lead.LeadBucket, lead.LeadID)

	batch.Query(r.client.Prepared.DeleteLeadByStatus.Statement(),
		lead.Status, lead.CreatedAt, lead.LeadID)

	batch.Query(r.client.Prepared.CreateLeadByStatus.Statement(),
		newStatus, lead.CreatedAt, lead.LeadID, lead.LeadBucket,
		lead.Name, lead.Email, lead.Course, lead.City)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to update lead status",
			zap.String("lead_id", lead.LeadID),
			zap.String("from", lead.Status),
			zap.String("to", newStatus),
			zap.Error(err))
		return fmt.Errorf("failed to update lead status: %w", err)
	}

	util.Info("Lead status updated",
		zap.String("lead_id", lead.LeadID),
		zap.String("from", lead.Status),
		zap.String("to", newStatus))
	return nil
}

func (r *leadRepository) ListLeadsByStatus(ctx context.Context, status string, limit int, pageState []byte) ([]*models.Lead, []byte, error) {
	query := r.client.Session.Query(`
		SELECT status, created_at, lead_id, lead_bucket, name, email, course, city
		FROM leads_by_status WHERE status = ?`, status).
		WithContext(ctx).
		PageSize(limit).
		PageState(pageState)

	iter := query.Iter()

	var leads []*models.Lead
	for {
		lead := &models.Lead{}
		if !iter.Scan(&lead.Status, &lead.CreatedAt, &lead.LeadID, &lead.LeadBucket,
			&lead.Name, &lead.Email, &lead.Course, &lead.City) {
			break
		}
		leads = append(leads, lead)
	}

	nextPageState := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to list leads by status: %w", err)
	}

	return leads, nextPageState, nil
}

func (r *leadRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
