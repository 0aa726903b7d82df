package service

import (
	"go.uber.org/zap"

	"admin-service/internal/activity"
	"admin-service/internal/bucketing"
	"admin-service/internal/client"
	"admin-service/internal/config"
	"admin-service/internal/encryption"
	"admin-service/internal/hashing"
	redisrepo "admin-service/internal/repository/redis"
	"admin-service/internal/repository/scylla"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	adminRepo     scylla.AdminRepository
	leadRepo      scylla.LeadRepository
	sessionStore  redisrepo.SessionStore
	esClient      *client.ESClient
	hasher        *hashing.Hasher
	encryptionMgr *encryption.Manager
	bucketingMgr  *bucketing.Manager
	activityLog   *activity.Logger
	cfg           *config.Config
	logger        *zap.Logger

	sessionService *SessionService
	leadService    *LeadService
	adminService   *AdminService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	adminRepo scylla.AdminRepository,
	leadRepo scylla.LeadRepository,
	sessionStore redisrepo.SessionStore,
	esClient *client.ESClient,
	hasher *hashing.Hasher,
	encryptionMgr *encryption.Manager,
	bucketingMgr *bucketing.Manager,
	activityLog *activity.Logger,
	cfg *config.Config,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		adminRepo:     adminRepo,
		leadRepo:      leadRepo,
		sessionStore:  sessionStore,
		esClient:      esClient,
		hasher:        hasher,
		encryptionMgr: encryptionMgr,
		bucketingMgr:  bucketingMgr,
		activityLog:   activityLog,
		cfg:           cfg,
		logger:        logger,
	}
}

// SessionService returns the session service instance (singleton)
func (f *ServiceFactory) SessionService() *SessionService {
	if f.sessionService == nil {
		f.sessionService = NewSessionService(
			f.adminRepo,
			f.sessionStore,
			f.activityLog,
			f.hasher,
			f.cfg,
			f.logger,
		)
	}
	return f.sessionService
}

// LeadService returns the lead service instance (singleton)
func (f *ServiceFactory) LeadService() *LeadService {
	if f.leadService == nil {
		f.leadService = NewLeadService(
			f.leadRepo,
			f.esClient,
			f.encryptionMgr,
			f.bucketingMgr,
			f.logger,
		)
	}
	return f.leadService
}

// AdminService returns the admin account service instance (singleton)
func (f *ServiceFactory) AdminService() *AdminService {
	if f.adminService == nil {
		f.adminService = NewAdminService(
			f.adminRepo,
			f.SessionService(),
			f.hasher,
			f.logger,
		)
	}
	return f.adminService
}

// Cleanup cleans up all services
func (f *ServiceFactory) Cleanup() {
	if f.sessionService != nil {
		f.sessionService.Cleanup()
	}
}
