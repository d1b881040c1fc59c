package apps_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printpush/printpush/internal/apps"
	"github.com/printpush/printpush/internal/database"
)

// newPostgresRepository connects to TEST_DATABASE_URL and starts from an
// empty apps table. The test is skipped when the variable is unset.
func newPostgresRepository(t *testing.T) *apps.PostgresRepository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.MigratePostgres(ctx, pool))

	repo := apps.NewPostgresRepository(pool)
	require.NoError(t, repo.ReplaceAll(ctx, nil))
	return repo
}

func updateRepositories(t *testing.T) map[string]func(t *testing.T) apps.Repository {
	t.Helper()
	return map[string]func(t *testing.T) apps.Repository{
		"memory":   func(*testing.T) apps.Repository { return apps.NewInMemoryRepository() },
		"sqlite":   func(t *testing.T) apps.Repository { return newSQLiteRepository(t) },
		"postgres": func(t *testing.T) apps.Repository { return newPostgresRepository(t) },
	}
}

// Two registries over one store stand in for the API and worker processes:
// their mutexes are independent, so only Repository.Update keeps them apart.
func TestRepositories_UpdateSerializesSeparateRegistries(t *testing.T) {
	for name, open := range updateRepositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			registries := []*apps.Registry{
				apps.NewRegistry(apps.RegistryConfig{Repository: repo, Logger: zerolog.Nop()}),
				apps.NewRegistry(apps.RegistryConfig{Repository: repo, Logger: zerolog.Nop()}),
			}

			const perRegistry = 10
			var wg sync.WaitGroup
			for i, reg := range registries {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for n := range perRegistry {
						_, err := reg.Register(context.Background(), apps.RegisterRequest{
							Token:       fmt.Sprintf("T%d-%d", i, n),
							InstanceID:  fmt.Sprintf("dev%d-%d", i, n),
							DisplayName: "Pixel",
							Model:       "pixel8",
							AppVersion:  "1.0",
							AppBuild:    10,
							AppLanguage: "en",
						})
						assert.NoError(t, err)
					}
				}()
			}
			wg.Wait()

			list, err := repo.List(context.Background())
			require.NoError(t, err)
			assert.Len(t, list, 2*perRegistry)
		})
	}
}

func TestRepositories_UpdateAbortsOnError(t *testing.T) {
	for name, open := range updateRepositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			require.NoError(t, repo.Update(ctx, func(list []apps.AppInstance) ([]apps.AppInstance, error) {
				assert.Empty(t, list)
				return []apps.AppInstance{{Token: "A1", InstanceID: "dev1", DisplayName: "Pixel",
					Model: "pixel8", AppVersion: "1.0", AppBuild: 10, AppLanguage: "en"}}, nil
			}))

			errRejected := errors.New("rejected")
			err := repo.Update(ctx, func(list []apps.AppInstance) ([]apps.AppInstance, error) {
				assert.Equal(t, []string{"A1"}, apps.Tokens(list))
				return nil, errRejected
			})
			assert.ErrorIs(t, err, errRejected)

			list, err := repo.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"A1"}, apps.Tokens(list))
		})
	}
}
