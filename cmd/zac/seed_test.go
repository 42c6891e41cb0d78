// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaakcentrum/zac/internal/seed"
	"github.com/zaakcentrum/zac/pkg/errutil"
)

const seedFixture = "../../internal/seed/testdata/seed.yaml"

func TestSeedCmd_Validate(t *testing.T) {
	out, err := execute(t, nil, "seed", "--file", seedFixture, "--validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid: 2 roles, 1 profiles")
}

func TestSeedCmd_ValidateRejectsDuplicateRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: "1.0.0"
roles:
  - name: lezer
    permissions: ["zaken:inzien"]
  - name: lezer
    permissions: ["documenten:inzien"]
`), 0o600))

	_, err := execute(t, nil, "seed", "-f", path, "--validate")
	errutil.AssertErrorCode(t, err, seed.CodeInvalid)
}

func TestSeedCmd_MissingFile(t *testing.T) {
	_, err := execute(t, nil, "seed", "--file", filepath.Join(t.TempDir(), "nope.yaml"), "--validate")
	require.Error(t, err)
}

func TestSeedCmd_FileFlagRequired(t *testing.T) {
	_, err := execute(t, nil, "seed", "--validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file")
}

func TestSeedCmd_ConnectFailure(t *testing.T) {
	deps := &Deps{PoolFactory: func(context.Context, string, int32) (Pool, error) {
		return nil, errors.New("connection refused")
	}}

	_, err := execute(t, deps, "seed", "--file", seedFixture, "--database-url", "postgres://test")
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
}

func TestSeedCmd_TransactionFailure(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := execute(t, poolDeps(mock), "seed", "--file", seedFixture, "--database-url", "postgres://test")
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "file", seedFixture)
}
