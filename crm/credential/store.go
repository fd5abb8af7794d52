// Package credential persists CRM OAuth credentials in Postgres. One row
// per (user, provider); a re-auth or token refresh upserts in place.
package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/socialscribe/scribe/crm/contract"
)

type Config struct {
	DSN string `envconfig:"DSN" split_words:"true" required:"true"`
}

type record struct {
	bun.BaseModel `bun:"table:crm_credentials,alias:c"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid"`
	UserID       uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	Provider     string     `bun:"provider,notnull"`
	AccessToken  string     `bun:"access_token,notnull"`
	RefreshToken string     `bun:"refresh_token"`
	ExpiresAt    *time.Time `bun:"expires_at"`
	InstanceURL  string     `bun:"instance_url"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

type Store struct {
	db *bun.DB
}

var _ contractx.CredentialStore = (*Store)(nil)

func NewStore(cfg Config) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return NewStoreWithDB(bun.NewDB(sqldb, pgdialect.New())), nil
}

func NewStoreWithDB(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, userID uuid.UUID, provider contractx.Provider) (*contractx.Credential, error) {
	var rec record
	err := s.db.NewSelect().
		Model(&rec).
		Where("c.user_id = ?", userID).
		Where("c.provider = ?", string(provider)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", contractx.ErrNoCredential, provider)
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	cred := toCredential(rec)
	return &cred, nil
}

// ListConnected returns the user's credentials in connection order,
// which is also the resolver's dispatch (and fan-out cap) order.
func (s *Store) ListConnected(ctx context.Context, userID uuid.UUID) ([]contractx.Credential, error) {
	var recs []record
	err := s.db.NewSelect().
		Model(&recs).
		Where("c.user_id = ?", userID).
		Order("c.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	creds := make([]contractx.Credential, 0, len(recs))
	for _, rec := range recs {
		creds = append(creds, toCredential(rec))
	}
	return creds, nil
}

// Save upserts on (user_id, provider). Concurrent refreshes of the same
// credential are not serialized; last writer wins and both tokens are
// valid, so the race is wasteful but safe.
func (s *Store) Save(ctx context.Context, cred *contractx.Credential) error {
	if cred == nil {
		return errors.New("nil credential")
	}
	if !cred.Provider.Valid() {
		return fmt.Errorf("%w: %s", contractx.ErrUnsupportedProvider, cred.Provider)
	}
	if cred.ID == uuid.Nil {
		cred.ID = uuid.New()
	}

	now := time.Now().UTC()
	rec := record{
		ID:           cred.ID,
		UserID:       cred.UserID,
		Provider:     string(cred.Provider),
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    cred.ExpiresAt,
		InstanceURL:  cred.InstanceURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.NewInsert().
		Model(&rec).
		On("CONFLICT (user_id, provider) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("expires_at = EXCLUDED.expires_at").
		Set("instance_url = EXCLUDED.instance_url").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func toCredential(rec record) contractx.Credential {
	return contractx.Credential{
		ID:           rec.ID,
		UserID:       rec.UserID,
		Provider:     contractx.Provider(rec.Provider),
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    rec.ExpiresAt,
		InstanceURL:  rec.InstanceURL,
	}
}
