package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taskdeck/taskdeck/internal/gateway"
)

// ProfilesCollection is the gateway collection holding role records.
const ProfilesCollection = "profiles"

// GatewayRoleStore persists role records through the remote gateway.
type GatewayRoleStore struct {
	client *gateway.Client
}

// NewGatewayRoleStore binds a role store to a gateway client.
func NewGatewayRoleStore(client *gateway.Client) *GatewayRoleStore {
	return &GatewayRoleStore{client: client}
}

// FindRole fetches the record for one identity.
func (s *GatewayRoleStore) FindRole(ctx context.Context, identityID string) (RoleRecord, bool, error) {
	rows, err := s.client.Select(ctx, ProfilesCollection, map[string]string{"identity_id": identityID})
	if err != nil {
		return RoleRecord{}, false, err
	}
	if len(rows) == 0 {
		return RoleRecord{}, false, nil
	}
	var rec RoleRecord
	if err := json.Unmarshal(rows[0], &rec); err != nil {
		return RoleRecord{}, false, fmt.Errorf("session: decode role record: %w", err)
	}
	return rec, true, nil
}

// CountRoles returns the number of role records in the system.
func (s *GatewayRoleStore) CountRoles(ctx context.Context) (int, error) {
	rows, err := s.client.Select(ctx, ProfilesCollection, nil)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// CreateRole persists a new role record.
func (s *GatewayRoleStore) CreateRole(ctx context.Context, rec RoleRecord) (RoleRecord, error) {
	raw, err := s.client.Insert(ctx, ProfilesCollection, rec)
	if err != nil {
		return RoleRecord{}, err
	}
	var out RoleRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		return RoleRecord{}, fmt.Errorf("session: decode role record: %w", err)
	}
	return out, nil
}
