// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zaakcentrum/zac/internal/store"
)

var (
	testPool      *pgxpool.Pool
	testContainer *tcpostgres.PostgresContainer
)

func TestPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Authorization PostgreSQL Suite")
}

var _ = BeforeSuite(func() {
	ctx := context.Background()
	var err error
	testContainer, err = tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("zac_test"),
		tcpostgres.WithUsername("zac"),
		tcpostgres.WithPassword("zac"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := testContainer.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	testPool, err = store.Open(ctx, connStr, 8)
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if testPool != nil {
		testPool.Close()
	}
	if testContainer != nil {
		_ = testContainer.Terminate(context.Background())
	}
})

// truncate empties every relation between specs.
func truncate(ctx context.Context) {
	_, err := testPool.Exec(ctx, `
		TRUNCATE access_requests, atomic_grant_assignments, atomic_grants,
			profile_assignments, profile_blueprint_grants, authorization_profiles,
			blueprint_grants, roles
	`)
	Expect(err).NotTo(HaveOccurred())
}
