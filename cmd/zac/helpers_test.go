// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package main

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/zaakcentrum/zac/internal/observability"
	"github.com/zaakcentrum/zac/internal/store"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, deps *Deps, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	cmd := newRootCmd(deps)
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, mock.ExpectationsWereMet()) })
	return mock
}

func poolDeps(mock pgxmock.PgxPoolIface) *Deps {
	return &Deps{
		PoolFactory: func(context.Context, string, int32) (Pool, error) {
			return mock, nil
		},
	}
}

type fakeMigrator struct {
	mu       sync.Mutex
	calls    []string
	status   store.Status
	upErr    error
	closeErr error
	steps    []int
	forced   []int
}

func (m *fakeMigrator) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *fakeMigrator) Up() error {
	m.record("up")
	return m.upErr
}

func (m *fakeMigrator) Down() error {
	m.record("down")
	return nil
}

func (m *fakeMigrator) Steps(n int) error {
	m.record("steps")
	m.steps = append(m.steps, n)
	return nil
}

func (m *fakeMigrator) Version() (uint, bool, error) {
	m.record("version")
	return m.status.Version, m.status.Dirty, nil
}

func (m *fakeMigrator) Force(v int) error {
	m.record("force")
	m.forced = append(m.forced, v)
	return nil
}

func (m *fakeMigrator) Status() (*store.Status, error) {
	m.record("status")
	st := m.status
	return &st, nil
}

func (m *fakeMigrator) Close() error {
	m.record("close")
	return m.closeErr
}

func (m *fakeMigrator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type fakeObservability struct {
	started  chan struct{}
	startErr error
	ready    observability.ReadinessChecker

	mu      sync.Mutex
	stopped bool
	build   string
}

func newFakeObservability() *fakeObservability {
	return &fakeObservability{started: make(chan struct{})}
}

func (o *fakeObservability) Start() (<-chan error, error) {
	if o.startErr != nil {
		return nil, o.startErr
	}
	close(o.started)
	return make(chan error), nil
}

func (o *fakeObservability) Stop(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	return nil
}

func (o *fakeObservability) Addr() string { return "127.0.0.1:9100" }

func (o *fakeObservability) SetBuildInfo(version, commit string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.build = version + "/" + commit
}

func (o *fakeObservability) Stopped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopped
}
