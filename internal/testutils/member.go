package testutils

import (
	"context"
	"testing"

	"github.com/nfrund/freemember/internal/domain"
	"github.com/nfrund/freemember/internal/password"
	"github.com/stretchr/testify/require"
)

// FastHasher uses the cheapest argon2id parameters the hasher accepts.
func FastHasher(t *testing.T) *password.Hasher {
	t.Helper()
	hasher, err := password.New(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	require.NoError(t, err)
	return hasher
}

// CreateMember stores a member in the default group with pass hashed by
// FastHasher.
func CreateMember(t *testing.T, repo domain.MemberRepository, email, username, pass string) *domain.Member {
	t.Helper()
	hash, err := FastHasher(t).Hash(pass)
	require.NoError(t, err)

	m, err := repo.Create(context.Background(), &domain.Member{
		Email:      email,
		Username:   username,
		ScreenName: username,
		Password:   hash,
		GroupID:    "members",
	})
	require.NoError(t, err)
	return m
}
