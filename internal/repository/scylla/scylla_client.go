package scylla

import (
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"admin-service/internal/config"
	"admin-service/internal/util"
)

// PreparedStatements holds the statements the repositories actually use
type PreparedStatements struct {
	CreateAdmin          *gocql.Query
	GetAdminByUsername   *gocql.Query
	UpdateAdminLastLogin *gocql.Query
	UpdateAdminRole      *gocql.Query
	UpdateAdminPassword  *gocql.Query
	SetAdminActive       *gocql.Query

	CreateLead         *gocql.Query
	CreateLeadByStatus *gocql.Query
	GetLeadByID        *gocql.Query
	UpdateLeadStatus   *gocql.Query
	DeleteLeadByStatus *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 util.GetEnv("SCYLLA_CA_FILE", "/app/certs/ca.pem"),
			CertPath:               util.GetEnv("SCYLLA_CERT_FILE", "/app/certs/server.pem"),
			KeyPath:                util.GetEnv("SCYLLA_KEY_FILE", "/app/certs/server.key"),
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateAdmin = s.Session.Query(`
		INSERT INTO admins (
			username, admin_id, role, password_hash, is_active,
			failed_attempts, created_by, created_at, updated_at, last_login_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetAdminByUsername = s.Session.Query(`
		SELECT username, admin_id, role, password_hash, is_active,
			failed_attempts, created_by, created_at, updated_at, last_login_at
		FROM admins WHERE username = ?`)

	prepared.UpdateAdminLastLogin = s.Session.Query(`
		UPDATE admins SET last_login_at = ?, failed_attempts = 0, updated_at = ?
		WHERE username = ?`)

	prepared.UpdateAdminRole = s.Session.Query(`
		UPDATE admins SET role = ?, updated_at = ? WHERE username = ?`)

	prepared.UpdateAdminPassword = s.Session.Query(`
		UPDATE admins SET password_hash = ?, updated_at = ? WHERE username = ?`)

	prepared.SetAdminActive = s.Session.Query(`
		UPDATE admins SET is_active = ?, updated_at = ? WHERE username = ?`)

	prepared.CreateLead = s.Session.Query(`
		INSERT INTO leads (
			lead_bucket, lead_id, name, email, phone_hash, phone_encrypted,
			phone_key_id, course, city, source, message, status, assigned_to,
			created_at, updated_at, contacted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateLeadByStatus = s.Session.Query(`
		INSERT INTO leads_by_status (
			status, created_at, lead_id, lead_bucket, name, email, course, city
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetLeadByID = s.Session.Query(`
		SELECT lead_bucket, lead_id, name, email, phone_hash, phone_encrypted,
			phone_key_id, course, city, source, message, status, assigned_to,
			created_at, updated_at, contacted_at
		FROM leads WHERE lead_bucket = ? AND lead_id = ?`)

	prepared.UpdateLeadStatus = s.Session.Query(`
		UPDATE leads SET status = ?, assigned_to = ?, updated_at = ?, contacted_at = ?
		WHERE lead_bucket = ? AND lead_id = ?`)

	prepared.DeleteLeadByStatus = s.Session.Query(`
		DELETE FROM leads_by_status WHERE status = ? AND created_at = ? AND lead_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true
	return nil
}

// ExecuteBatch runs a batch with the session's consistency settings
func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

// HealthCheck verifies ScyllaDB connectivity
func (s *ScyllaClient) HealthCheck() error {
	var release string
	if err := s.Session.Query("SELECT release_version FROM system.local").Scan(&release); err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB session closed")
	}
}
