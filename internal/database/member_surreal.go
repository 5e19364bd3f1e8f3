package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/freemember/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const memberTable = "member"

// memberRecord is the stored shape of a member. Times are unix seconds so
// comparisons can run inside SurrealQL; zero means unset.
type memberRecord struct {
	ID               *surrealmodels.RecordID `json:"id,omitempty"`
	MemberID         string                  `json:"member_id"`
	UniqueID         string                  `json:"unique_id"`
	GroupID          string                  `json:"group_id"`
	Username         string                  `json:"username"`
	ScreenName       string                  `json:"screen_name"`
	Email            string                  `json:"email"`
	Password         string                  `json:"password"`
	URL              string                  `json:"url"`
	Location         string                  `json:"location"`
	Occupation       string                  `json:"occupation"`
	Interests        string                  `json:"interests"`
	Bio              string                  `json:"bio"`
	ResetCode        string                  `json:"reset_code"`
	ResetCodeExpires int64                   `json:"reset_code_expires"`
	JoinDate         int64                   `json:"join_date"`
	LastLogin        int64                   `json:"last_login"`
	Custom           map[string]string       `json:"custom"`
}

func toRecord(m *domain.Member) memberRecord {
	r := memberRecord{
		MemberID:   m.ID,
		UniqueID:   m.UniqueID,
		GroupID:    m.GroupID,
		Username:   m.Username,
		ScreenName: m.ScreenName,
		Email:      m.Email,
		Password:   m.Password,
		URL:        m.URL,
		Location:   m.Location,
		Occupation: m.Occupation,
		Interests:  m.Interests,
		Bio:        m.Bio,
		ResetCode:  m.ResetCode,
		JoinDate:   m.JoinDate.Unix(),
		Custom:     m.Custom,
	}
	if m.ResetCodeExpires != nil {
		r.ResetCodeExpires = m.ResetCodeExpires.Unix()
	}
	if m.LastLogin != nil {
		r.LastLogin = m.LastLogin.Unix()
	}
	if r.Custom == nil {
		r.Custom = map[string]string{}
	}
	return r
}

func (r *memberRecord) toDomain() *domain.Member {
	m := &domain.Member{
		ID:         r.MemberID,
		UniqueID:   r.UniqueID,
		GroupID:    r.GroupID,
		Username:   r.Username,
		ScreenName: r.ScreenName,
		Email:      r.Email,
		Password:   r.Password,
		URL:        r.URL,
		Location:   r.Location,
		Occupation: r.Occupation,
		Interests:  r.Interests,
		Bio:        r.Bio,
		ResetCode:  r.ResetCode,
		JoinDate:   time.Unix(r.JoinDate, 0).UTC(),
		Custom:     r.Custom,
	}
	if r.ResetCodeExpires > 0 {
		t := time.Unix(r.ResetCodeExpires, 0).UTC()
		m.ResetCodeExpires = &t
	}
	if r.LastLogin > 0 {
		t := time.Unix(r.LastLogin, 0).UTC()
		m.LastLogin = &t
	}
	return m
}

// SurrealMemberStore encapsulates database operations for members using SurrealDB.
type SurrealMemberStore struct {
	db      *surrealdb.DB
	fields  []domain.CustomField
	timeout time.Duration
}

var _ domain.MemberRepository = (*SurrealMemberStore)(nil)

// NewSurrealMemberStore creates a new SurrealMemberStore.
func NewSurrealMemberStore(db *surrealdb.DB, fields []domain.CustomField, timeout time.Duration) *SurrealMemberStore {
	return &SurrealMemberStore{db: db, fields: fields, timeout: timeout}
}

func (s *SurrealMemberStore) findOne(ctx context.Context, where string, params map[string]any) (*domain.Member, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := "SELECT * FROM " + memberTable + " WHERE " + where
	rec, err := QueryOne[memberRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return rec.toDomain(), nil
}

func (s *SurrealMemberStore) FindByID(ctx context.Context, id string) (*domain.Member, error) {
	return s.findOne(ctx, "member_id = $member_id", map[string]any{"member_id": id})
}

func (s *SurrealMemberStore) FindByEmail(ctx context.Context, email string) (*domain.Member, error) {
	return s.findOne(ctx, "string::lowercase(email) = $email", map[string]any{"email": strings.ToLower(email)})
}

func (s *SurrealMemberStore) FindByUsername(ctx context.Context, username string) (*domain.Member, error) {
	return s.findOne(ctx, "string::lowercase(username) = $username", map[string]any{"username": strings.ToLower(username)})
}

// FindByResetCode only matches codes whose expiry lies in the future.
func (s *SurrealMemberStore) FindByResetCode(ctx context.Context, code string) (*domain.Member, error) {
	if code == "" {
		return nil, nil
	}
	return s.findOne(ctx, "reset_code = $code AND reset_code_expires > $now", map[string]any{
		"code": code,
		"now":  time.Now().Unix(),
	})
}

func (s *SurrealMemberStore) FindMembers(ctx context.Context, q domain.MemberQuery) ([]*domain.Member, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query, params := buildMemberQuery(q)
	recs, err := Query[memberRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Member, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toDomain())
	}
	return out, nil
}

// buildMemberQuery turns a MemberQuery into SurrealQL. Only whitelisted
// columns are interpolated; all values travel as parameters.
func buildMemberQuery(q domain.MemberQuery) (string, map[string]any) {
	var where []string
	params := map[string]any{}

	if len(q.MemberIDs) > 0 {
		where = append(where, "member_id IN $member_ids")
		params["member_ids"] = q.MemberIDs
	}
	if len(q.Usernames) > 0 {
		where = append(where, "string::lowercase(username) IN $usernames")
		params["usernames"] = lower(q.Usernames)
	}
	if len(q.Emails) > 0 {
		where = append(where, "string::lowercase(email) IN $emails")
		params["emails"] = lower(q.Emails)
	}
	if len(q.GroupIDs) > 0 {
		where = append(where, "group_id IN $group_ids")
		params["group_ids"] = q.GroupIDs
	}
	if q.ScreenName != "" {
		where = append(where, "string::lowercase(screen_name) = $screen_name")
		params["screen_name"] = strings.ToLower(q.ScreenName)
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM " + memberTable)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	col, desc := orderColumn(q)
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s", col, dir)

	if q.Limit > 0 {
		b.WriteString(" LIMIT $limit")
		params["limit"] = q.Limit
	}
	if q.Offset > 0 {
		b.WriteString(" START $start")
		params["start"] = q.Offset
	}
	return b.String(), params
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Create stores a new member after checking that neither the email nor the
// username is taken.
func (s *SurrealMemberStore) Create(ctx context.Context, m *domain.Member) (*domain.Member, error) {
	if existing, err := s.FindByEmail(ctx, m.Email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.ErrMemberExists
	}
	if existing, err := s.FindByUsername(ctx, m.Username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.ErrMemberExists
	}

	created := *m
	created.ID = uuid.NewString()
	created.UniqueID = uuid.NewString()
	if created.JoinDate.IsZero() {
		created.JoinDate = time.Now().UTC()
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := "CREATE " + memberTable + " CONTENT $data"
	rec, err := QueryOne[memberRecord](ctx, s.db, query, map[string]any{"data": toRecord(&created)})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create member", "email", m.Email, "error", err)
		return nil, fmt.Errorf("failed to create member: %w", err)
	}
	if rec == nil {
		return nil, errors.New("failed to create member: no record returned")
	}
	return rec.toDomain(), nil
}

// Update merges m into the stored member with the same member_id.
func (s *SurrealMemberStore) Update(ctx context.Context, m *domain.Member) error {
	if other, err := s.FindByEmail(ctx, m.Email); err != nil {
		return err
	} else if other != nil && other.ID != m.ID {
		return domain.ErrMemberExists
	}
	if other, err := s.FindByUsername(ctx, m.Username); err != nil {
		return err
	} else if other != nil && other.ID != m.ID {
		return domain.ErrMemberExists
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	query := "UPDATE " + memberTable + " MERGE $data WHERE member_id = $member_id"
	recs, err := Query[memberRecord](ctx, s.db, query, map[string]any{
		"data":      toRecord(m),
		"member_id": m.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to update member %s: %w", m.ID, err)
	}
	if len(recs) == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (s *SurrealMemberStore) MemberFields() []string {
	return append([]string(nil), domain.StandardFields...)
}

func (s *SurrealMemberStore) CustomFields() []domain.CustomField {
	return append([]domain.CustomField(nil), s.fields...)
}
