package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"admin-service/internal/bucketing"
	"admin-service/internal/client"
	"admin-service/internal/encryption"
	"admin-service/internal/models"
	"admin-service/internal/repository/scylla"
	"admin-service/internal/util"
)

var (
	ErrLeadNotFound      = errors.New("lead not found")
	ErrInvalidLeadStatus = errors.New("invalid lead status")
	ErrSuspiciousInput   = errors.New("input contains suspicious content")
)

const leadIndex = "leads"

// LeadService manages enrollment leads: public capture, the admin workbench
// operations, search, and CSV export. Phone numbers are stored encrypted
// with a deterministic digest alongside for duplicate detection.
type LeadService struct {
	leadRepo   scylla.LeadRepository
	esClient   *client.ESClient
	encryption *encryption.Manager
	bucketing  *bucketing.Manager
	logger     *zap.Logger
}

func NewLeadService(
	leadRepo scylla.LeadRepository,
	esClient *client.ESClient,
	encryptionMgr *encryption.Manager,
	bucketingMgr *bucketing.Manager,
	logger *zap.Logger,
) *LeadService {
	return &LeadService{
		leadRepo:   leadRepo,
		esClient:   esClient,
		encryption: encryptionMgr,
		bucketing:  bucketingMgr,
		logger:     logger,
	}
}

// CreateLeadInput is the public capture form payload.
type CreateLeadInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Course  string `json:"course"`
	City    string `json:"city"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// CreateLead validates and persists a captured lead, then indexes a
// redacted copy for search. Indexing failures do not fail the capture.
func (s *LeadService) CreateLead(ctx context.Context, input CreateLeadInput) (*models.Lead, error) {
	if input.Name == "" || input.Phone == "" {
		return nil, fmt.Errorf("%w: name and phone are required", ErrInvalidInput)
	}
	for _, field := range []string{input.Name, input.Email, input.Course, input.City, input.Source, input.Message} {
		if util.ContainsSuspicious(field) {
			return nil, ErrSuspiciousInput
		}
	}

	envelope, err := s.encryption.EncryptField(ctx, input.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone: %w", err)
	}
	encrypted, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode phone envelope: %w", err)
	}

	now := time.Now().UTC()
	lead := &models.Lead{
		LeadBucket:     s.bucketing.GetLeadBucket(input.Phone),
		LeadID:         uuid.New().String(),
		Name:           util.SanitizeInput(input.Name),
		Email:          util.SanitizeInput(input.Email),
		PhoneHash:      phoneDigest(input.Phone),
		PhoneEncrypted: encrypted,
		PhoneKeyID:     envelope.KeyID,
		Course:         util.SanitizeInput(input.Course),
		City:           util.SanitizeInput(input.City),
		Source:         util.SanitizeInput(input.Source),
		Message:        util.SanitizeInput(input.Message),
		Status:         models.LeadStatusNew,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.leadRepo.CreateLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}

	if err := s.indexLead(ctx, lead); err != nil {
		s.logger.Warn("Failed to index lead",
			util.String("lead_id", lead.LeadID), util.ErrorField(err))
	}

	s.logger.Info("Lead captured",
		util.String("lead_id", lead.LeadID),
		util.String("course", lead.Course),
		util.String("source", lead.Source))

	return lead, nil
}

// GetLead returns a lead with its phone number decrypted for admin view.
func (s *LeadService) GetLead(ctx context.Context, leadBucket int, leadID string) (*models.Lead, string, error) {
	lead, err := s.leadRepo.GetLeadByID(ctx, leadBucket, leadID)
	if err != nil {
		if errors.Is(err, scylla.ErrLeadNotFound) {
			return nil, "", ErrLeadNotFound
		}
		return nil, "", fmt.Errorf("failed to get lead: %w", err)
	}

	phone, err := s.decryptPhone(ctx, lead)
	if err != nil {
		s.logger.Error("Failed to decrypt lead phone",
			util.String("lead_id", leadID), util.ErrorField(err))
		return lead, "", nil
	}

	return lead, phone, nil
}

// UpdateLeadStatus moves a lead through the pipeline and records the
// assigning admin.
func (s *LeadService) UpdateLeadStatus(ctx context.Context, leadBucket int, leadID string, status string, adminID string) (*models.Lead, error) {
	if !models.ValidLeadStatus(status) {
		return nil, ErrInvalidLeadStatus
	}

	lead, err := s.leadRepo.GetLeadByID(ctx, leadBucket, leadID)
	if err != nil {
		if errors.Is(err, scylla.ErrLeadNotFound) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	if err := s.leadRepo.UpdateLeadStatus(ctx, lead, status, adminID); err != nil {
		return nil, fmt.Errorf("failed to update lead status: %w", err)
	}

	// The repo needs the pre-update row to re-home the by-status entry, so
	// the in-memory lead is brought current only after the write succeeds.
	now := time.Now().UTC()
	lead.Status = status
	lead.AssignedTo = adminID
	lead.UpdatedAt = now
	if status == models.LeadStatusContacted && lead.ContactedAt == nil {
		lead.ContactedAt = &now
	}

	if err := s.indexLead(ctx, lead); err != nil {
		s.logger.Warn("Failed to reindex lead",
			util.String("lead_id", lead.LeadID), util.ErrorField(err))
	}

	return lead, nil
}

// BulkUpdateStatus applies a status change to a batch of leads
// concurrently. The first failure cancels the rest.
func (s *LeadService) BulkUpdateStatus(ctx context.Context, refs []models.LeadRef, status string, adminID string) error {
	if !models.ValidLeadStatus(status) {
		return ErrInvalidLeadStatus
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			_, err := s.UpdateLeadStatus(gctx, ref.LeadBucket, ref.LeadID, status, adminID)
			return err
		})
	}
	return g.Wait()
}

// ListLeadsByStatus pages through the status-partitioned table.
func (s *LeadService) ListLeadsByStatus(ctx context.Context, status string, pageSize int, pageState []byte) ([]*models.Lead, []byte, error) {
	if !models.ValidLeadStatus(status) {
		return nil, nil, ErrInvalidLeadStatus
	}
	return s.leadRepo.ListLeadsByStatus(ctx, status, pageSize, pageState)
}

// SearchLeads queries the redacted search index. Phone numbers are never
// present in the index, so results carry no contact details.
func (s *LeadService) SearchLeads(ctx context.Context, query string, size int) ([]map[string]interface{}, error) {
	if size <= 0 || size > 100 {
		size = 25
	}

	body := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"name^2", "email", "course", "city", "source", "message"},
			},
		},
		"sort": []map[string]interface{}{
			{"created_at": map[string]string{"order": "desc"}},
		},
	}

	if s.esClient == nil {
		return nil, errors.New("lead search unavailable: elasticsearch not configured")
	}
	res, err := s.esClient.Search(ctx, leadIndex, body)
	if err != nil {
		return nil, fmt.Errorf("lead search failed: %w", err)
	}

	return client.ParseSearchHits(res)
}

// ExportLeadsCSV streams all leads of a status as CSV with decrypted
// phone numbers. Restricted to editor roles at the handler layer.
func (s *LeadService) ExportLeadsCSV(ctx context.Context, status string) ([]byte, error) {
	if !models.ValidLeadStatus(status) {
		return nil, ErrInvalidLeadStatus
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"lead_id", "name", "email", "phone", "course", "city", "source", "status", "assigned_to", "created_at"}); err != nil {
		return nil, err
	}

	var pageState []byte
	for {
		refs, next, err := s.leadRepo.ListLeadsByStatus(ctx, status, 500, pageState)
		if err != nil {
			return nil, fmt.Errorf("failed to list leads for export: %w", err)
		}

		for _, ref := range refs {
			// The by-status projection carries no phone envelope, source,
			// or assignee; the export needs the full row.
			lead, err := s.leadRepo.GetLeadByID(ctx, ref.LeadBucket, ref.LeadID)
			if err != nil {
				if errors.Is(err, scylla.ErrLeadNotFound) {
					continue
				}
				return nil, fmt.Errorf("failed to load lead for export: %w", err)
			}

			phone := ""
			if plain, err := s.decryptPhone(ctx, lead); err == nil {
				phone = plain
			}
			record := []string{
				lead.LeadID,
				lead.Name,
				lead.Email,
				phone,
				lead.Course,
				lead.City,
				lead.Source,
				lead.Status,
				lead.AssignedTo,
				lead.CreatedAt.Format(time.RFC3339),
			}
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}

		if len(next) == 0 {
			break
		}
		pageState = next
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *LeadService) indexLead(ctx context.Context, lead *models.Lead) error {
	if s.esClient == nil {
		// Search is degraded, not the capture itself.
		return nil
	}
	doc := map[string]interface{}{
		"lead_bucket": lead.LeadBucket,
		"lead_id":     lead.LeadID,
		"name":        lead.Name,
		"email":       lead.Email,
		"course":      lead.Course,
		"city":        lead.City,
		"source":      lead.Source,
		"message":     lead.Message,
		"status":      lead.Status,
		"assigned_to": lead.AssignedTo,
		"created_at":  lead.CreatedAt.Format(time.RFC3339),
	}
	return s.esClient.IndexDocument(ctx, leadIndex, lead.LeadID, doc)
}

func (s *LeadService) decryptPhone(ctx context.Context, lead *models.Lead) (string, error) {
	var envelope encryption.EncryptedData
	if err := json.Unmarshal(lead.PhoneEncrypted, &envelope); err != nil {
		return "", fmt.Errorf("failed to decode phone envelope: %w", err)
	}
	return s.encryption.DecryptField(ctx, &envelope)
}

// phoneDigest is a deterministic digest used only for duplicate detection
// and bucket-stable lookup, never for display.
func phoneDigest(phone string) string {
	sum := sha256.Sum256([]byte("lead-phone:" + phone))
	return hex.EncodeToString(sum[:])
}
