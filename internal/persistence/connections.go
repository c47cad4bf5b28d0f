package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentforge/orchestrator-core/internal/tools"
)

// connectionRow mirrors one provider_connections row.
type connectionRow struct {
	ID             string `db:"id"`
	OrganizationID string `db:"organization_id"`
	Provider       string `db:"provider"`
	BaseURL        string `db:"base_url"`
	EncryptedToken []byte `db:"encrypted_token"`
	Nonce          []byte `db:"nonce"`
}

// Get implements tools.ConnectionStore (§4.7): resolves a tenant's
// encrypted credential for a provider. The token stays ciphertext until
// tools.DecryptToken runs it, scoped to a single dispatch call.
func (s *Store) Get(ctx context.Context, organizationID, provider string) (tools.Connection, error) {
	var row connectionRow
	err := s.sqlxDB.GetContext(ctx, &row, s.rebind(`
		SELECT id, organization_id, provider, base_url, encrypted_token, nonce
		FROM provider_connections
		WHERE organization_id = ? AND provider = ?
	`), organizationID, provider)
	if err != nil {
		if isNoRows(err) {
			return tools.Connection{}, fmt.Errorf("persistence: no connection for org %q provider %q", organizationID, provider)
		}
		return tools.Connection{}, fmt.Errorf("persistence: get connection: %w", err)
	}
	return tools.Connection{
		ID:             row.ID,
		Provider:       row.Provider,
		OrganizationID: row.OrganizationID,
		BaseURL:        row.BaseURL,
		EncryptedToken: row.EncryptedToken,
		Nonce:          row.Nonce,
	}, nil
}

// UpsertConnection writes (or replaces) a tenant's encrypted provider
// credential; the caller is responsible for calling tools.EncryptToken
// first — Store never sees a plaintext token.
func (s *Store) UpsertConnection(ctx context.Context, conn tools.Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO provider_connections (id, organization_id, provider, base_url, encrypted_token, nonce)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (organization_id, provider) DO UPDATE SET
			base_url = excluded.base_url,
			encrypted_token = excluded.encrypted_token,
			nonce = excluded.nonce
	`), conn.ID, conn.OrganizationID, conn.Provider, conn.BaseURL, conn.EncryptedToken, conn.Nonce)
	if err != nil {
		return fmt.Errorf("persistence: upsert connection: %w", err)
	}
	return nil
}

// DeleteConnection removes a tenant's connection for a provider, e.g. on
// credential revocation.
func (s *Store) DeleteConnection(ctx context.Context, organizationID, provider string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM provider_connections WHERE organization_id = ? AND provider = ?
	`), organizationID, provider)
	if err != nil {
		return fmt.Errorf("persistence: delete connection: %w", err)
	}
	return nil
}
