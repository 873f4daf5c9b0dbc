package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/deploytrack/internal/model"
	"github.com/edvin/deploytrack/internal/platform"
)

const infraMappingColumns = `id, account_id, app_id, service_id, service_name, env_id, env_name,
	kind, deployment_type, compute_provider_id,
	region, cluster_name, namespace, resource_group, organization, space, host_names,
	created_at, updated_at`

type InfraMappingService struct {
	db DB
}

func NewInfraMappingService(db DB) *InfraMappingService {
	return &InfraMappingService{db: db}
}

func (s *InfraMappingService) Create(ctx context.Context, m *model.InfraMapping) error {
	if m.ID == "" {
		m.ID = platform.NewID()
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO infra_mappings (id, account_id, app_id, service_id, service_name, env_id, env_name,
			kind, deployment_type, compute_provider_id,
			region, cluster_name, namespace, resource_group, organization, space, host_names,
			created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		m.ID, m.AccountID, m.AppID, m.ServiceID, m.ServiceName, m.EnvID, m.EnvName,
		m.Kind, m.DeploymentType, m.ComputeProviderID,
		m.Region, m.ClusterName, m.Namespace, m.ResourceGroup, m.Organization, m.Space, m.HostNames,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create infra mapping: %w", err)
	}
	return nil
}

func (s *InfraMappingService) GetByID(ctx context.Context, id string) (*model.InfraMapping, error) {
	var m model.InfraMapping
	err := s.db.QueryRow(ctx,
		`SELECT `+infraMappingColumns+` FROM infra_mappings WHERE id = $1`, id,
	).Scan(&m.ID, &m.AccountID, &m.AppID, &m.ServiceID, &m.ServiceName, &m.EnvID, &m.EnvName,
		&m.Kind, &m.DeploymentType, &m.ComputeProviderID,
		&m.Region, &m.ClusterName, &m.Namespace, &m.ResourceGroup, &m.Organization, &m.Space, &m.HostNames,
		&m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("infra mapping %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get infra mapping %s: %w", id, err)
	}
	return &m, nil
}

func (s *InfraMappingService) ListByApp(ctx context.Context, appID string) ([]model.InfraMapping, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+infraMappingColumns+` FROM infra_mappings WHERE app_id = $1 ORDER BY created_at`, appID)
	if err != nil {
		return nil, fmt.Errorf("list infra mappings for app %s: %w", appID, err)
	}
	defer rows.Close()

	var mappings []model.InfraMapping
	for rows.Next() {
		var m model.InfraMapping
		if err := rows.Scan(&m.ID, &m.AccountID, &m.AppID, &m.ServiceID, &m.ServiceName, &m.EnvID, &m.EnvName,
			&m.Kind, &m.DeploymentType, &m.ComputeProviderID,
			&m.Region, &m.ClusterName, &m.Namespace, &m.ResourceGroup, &m.Organization, &m.Space, &m.HostNames,
			&m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan infra mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (s *InfraMappingService) Delete(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM infra_mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete infra mapping %s: %w", id, err)
	}
	return nil
}
