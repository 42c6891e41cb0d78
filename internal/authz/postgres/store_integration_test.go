// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/accessrequest"
	"github.com/zaakcentrum/zac/internal/authz/authztest"
	"github.com/zaakcentrum/zac/internal/authz/blueprint"
	"github.com/zaakcentrum/zac/internal/authz/confidentiality"
	"github.com/zaakcentrum/zac/internal/authz/decision"
	"github.com/zaakcentrum/zac/internal/authz/grant"
	"github.com/zaakcentrum/zac/internal/authz/permission"
	"github.com/zaakcentrum/zac/internal/authz/postgres"
	"github.com/zaakcentrum/zac/internal/authz/profile"
)

const catalogus = "https://openzaak.local/catalogi/api/v1/catalogussen/1"

var (
	today      = time.Date(2021, 1, 15, 12, 0, 0, 0, time.UTC)
	internCase = authz.Object{
		Type:            authz.ObjectTypeCase,
		Reference:       "https://openzaak.local/zaken/api/v1/zaken/intern",
		Domain:          catalogus,
		TypeDescription: "Melding openbare ruimte",
		Confidentiality: confidentiality.Intern,
	}
	geheimCase = authz.Object{
		Type:            authz.ObjectTypeCase,
		Reference:       "https://openzaak.local/zaken/api/v1/zaken/geheim",
		Domain:          catalogus,
		TypeDescription: "Melding openbare ruimte",
		Confidentiality: confidentiality.Geheim,
	}
	internPolicy = blueprint.CasePolicy{
		Catalogus:            catalogus,
		ZaaktypeOmschrijving: "Melding openbare ruimte",
		MaxVA:                confidentiality.Intern,
	}
)

func day(d time.Time) *time.Time {
	v := grant.Day(d)
	return &v
}

var _ = Describe("Store", func() {
	var (
		ctx     context.Context
		s       *postgres.Store
		svc     *grant.Service
		agg     *profile.Aggregator
		objects *authztest.Objects
		holders *authztest.RoleHolders
		engine  *decision.Engine
		sent    *authztest.Notifications
		flow    *accessrequest.Workflow
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncate(ctx)

		s = postgres.New(testPool)
		now := func() time.Time { return today }
		svc = grant.NewService(grant.ServiceConfig{Grants: s, Roles: s, Now: now})
		agg = profile.NewAggregator(profile.Config{Profiles: s, Grants: svc, Transactor: s})
		objects = authztest.NewObjects(internCase, geheimCase)
		holders = authztest.NewRoleHolders()
		engine = decision.NewEngine(decision.Config{Grants: svc, Objects: objects, RoleHolders: holders, Now: now})
		sent = &authztest.Notifications{}

		var err error
		flow, err = accessrequest.NewWorkflow(accessrequest.Config{
			Requests:   s,
			Grants:     svc,
			Transactor: s,
			Objects:    objects,
			Authorizer: engine,
			Notifier:   sent,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("roles", func() {
		It("rejects duplicate names and reflects permission changes immediately", func() {
			role, err := svc.CreateRole(ctx, "raadpleger", []string{permission.CaseView})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.CreateRole(ctx, "raadpleger", nil)
			Expect(authz.HasCode(err, authz.CodeRoleExists)).To(BeTrue())

			p, err := agg.CreateProfile(ctx, "raadplegers", []profile.GrantSpec{{Role: role, Policy: internPolicy}})
			Expect(err).NotTo(HaveOccurred())
			_, err = agg.AssignProfile(ctx, "medewerker", p.ID, today, nil)
			Expect(err).NotTo(HaveOccurred())

			target := internCase.Target()
			Expect(engine.HasPermission(ctx, authz.NewSubject("medewerker"), permission.CaseView, &target)).To(BeTrue())

			_, err = svc.SetRolePermissions(ctx, role.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.HasPermission(ctx, authz.NewSubject("medewerker"), permission.CaseView, &target)).To(BeFalse())
		})
	})

	Describe("blueprint grants", func() {
		It("reuses the stored grant for an equal policy", func() {
			role, err := svc.CreateRole(ctx, "behandelaar", []string{permission.CaseView})
			Expect(err).NotTo(HaveOccurred())

			first, err := svc.UpsertBlueprintGrant(ctx, role, authz.ObjectTypeCase, internPolicy)
			Expect(err).NotTo(HaveOccurred())
			second, err := svc.UpsertBlueprintGrant(ctx, role, authz.ObjectTypeCase, internPolicy)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ID).To(Equal(first.ID))
		})

		It("limits access by confidentiality", func() {
			role, err := svc.CreateRole(ctx, "behandelaar", []string{permission.CaseView})
			Expect(err).NotTo(HaveOccurred())
			p, err := agg.CreateProfile(ctx, "behandelaars", []profile.GrantSpec{{Role: role, Policy: internPolicy}})
			Expect(err).NotTo(HaveOccurred())
			_, err = agg.AssignProfile(ctx, "medewerker", p.ID, today, nil)
			Expect(err).NotTo(HaveOccurred())

			subj := authz.NewSubject("medewerker")
			intern, geheim := internCase.Target(), geheimCase.Target()
			Expect(engine.HasPermission(ctx, subj, permission.CaseView, &intern)).To(BeTrue())
			Expect(engine.HasPermission(ctx, subj, permission.CaseView, &geheim)).To(BeFalse())
		})

		It("honours profile validity windows at day granularity", func() {
			role, err := svc.CreateRole(ctx, "behandelaar", []string{permission.CaseView})
			Expect(err).NotTo(HaveOccurred())
			p, err := agg.CreateProfile(ctx, "behandelaars", []profile.GrantSpec{{Role: role, Policy: internPolicy}})
			Expect(err).NotTo(HaveOccurred())
			_, err = agg.AssignProfile(ctx, "medewerker", p.ID, today.AddDate(0, 0, -10), day(today))
			Expect(err).NotTo(HaveOccurred())

			active, err := s.ActiveBlueprintGrants(ctx, "medewerker", today.Add(11*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(HaveLen(1))

			active, err = s.ActiveBlueprintGrants(ctx, "medewerker", today.AddDate(0, 0, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeEmpty())
		})
	})

	Describe("atomic grants", func() {
		It("returns one row to concurrent upserts", func() {
			const workers = 8
			ids := make(chan string, workers)
			var wg sync.WaitGroup
			for range workers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					g, err := svc.UpsertAtomicGrant(ctx, authz.ObjectTypeCase, permission.CaseView, internCase.Reference)
					Expect(err).NotTo(HaveOccurred())
					ids <- g.ID.String()
				}()
			}
			wg.Wait()
			close(ids)

			seen := map[string]bool{}
			for id := range ids {
				seen[id] = true
			}
			Expect(seen).To(HaveLen(1))

			var rows int
			Expect(testPool.QueryRow(ctx, `SELECT count(*) FROM atomic_grants`).Scan(&rows)).To(Succeed())
			Expect(rows).To(Equal(1))
		})
	})

	Describe("access requests", func() {
		BeforeEach(func() {
			holders.Assign(internCase.Reference, authz.RoleKindBehandelaar, "behandelaar")
			role, err := svc.CreateRole(ctx, "toegangsbeheer", []string{permission.CaseHandleAccess})
			Expect(err).NotTo(HaveOccurred())
			p, err := agg.CreateProfile(ctx, "toegangsbeheerders", []profile.GrantSpec{{Role: role, Policy: internPolicy}})
			Expect(err).NotTo(HaveOccurred())
			_, err = agg.AssignProfile(ctx, "behandelaar", p.ID, today, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("approves a request and grants view access", func() {
			r, err := flow.Create(ctx, "medewerker", internCase.Target(), "dossier nodig")
			Expect(err).NotTo(HaveOccurred())

			_, err = flow.Create(ctx, "medewerker", internCase.Target(), "nogmaals")
			Expect(authz.IsDuplicateRequest(err)).To(BeTrue())

			handled, err := flow.Handle(ctx, r.ID, authz.NewSubject("behandelaar"), accessrequest.Handling{
				Result:     "approved",
				ValidUntil: day(today.AddDate(0, 1, 0)),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(handled.Result).To(Equal(accessrequest.ResultApproved))
			Expect(handled.ResultingAssignmentID).NotTo(BeNil())

			stored, err := s.GetAccessRequest(ctx, r.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Handler).To(Equal("behandelaar"))
			Expect(*stored.ResultingAssignmentID).To(Equal(*handled.ResultingAssignmentID))

			target := internCase.Target()
			Expect(engine.HasPermission(ctx, authz.NewSubject("medewerker"), permission.CaseView, &target)).To(BeTrue())
			Expect(sent.Sent()).To(HaveLen(1))
		})

		It("lets exactly one of two concurrent handlers win", func() {
			r, err := flow.Create(ctx, "medewerker", internCase.Target(), "")
			Expect(err).NotTo(HaveOccurred())

			results := make(chan error, 2)
			var wg sync.WaitGroup
			for _, result := range []string{"approved", "rejected"} {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := flow.Handle(ctx, r.ID, authz.NewSubject("behandelaar"), accessrequest.Handling{Result: result})
					results <- err
				}()
			}
			wg.Wait()
			close(results)

			var ok, handled int
			for err := range results {
				switch {
				case err == nil:
					ok++
				case authz.IsAlreadyHandled(err):
					handled++
				default:
					Fail("unexpected error: " + err.Error())
				}
			}
			Expect(ok).To(Equal(1))
			Expect(handled).To(Equal(1))
		})

		It("rolls the approval back when the request cannot be marked", func() {
			r, err := flow.Create(ctx, "medewerker", internCase.Target(), "")
			Expect(err).NotTo(HaveOccurred())

			_, err = testPool.Exec(ctx, `UPDATE access_requests SET result = 'rejected' WHERE id = $1`, r.ID.String())
			Expect(err).NotTo(HaveOccurred())

			err = s.InTransaction(ctx, func(ctx context.Context) error {
				g, err := svc.UpsertAtomicGrant(ctx, authz.ObjectTypeCase, permission.CaseView, internCase.Reference)
				if err != nil {
					return err
				}
				if _, err := svc.AssignAtomicGrant(ctx, "medewerker", g, grant.ReasonAccessRequest, "", today, nil); err != nil {
					return err
				}
				r.Result = accessrequest.ResultApproved
				return s.MarkAccessRequestHandled(ctx, r)
			})
			Expect(authz.IsAlreadyHandled(err)).To(BeTrue())

			var assignments int
			Expect(testPool.QueryRow(ctx, `SELECT count(*) FROM atomic_grant_assignments`).Scan(&assignments)).To(Succeed())
			Expect(assignments).To(BeZero())
		})

		It("accepts one of several concurrent requests for the same case", func() {
			results := make(chan error, 4)
			var wg sync.WaitGroup
			for range 4 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := flow.Create(ctx, "medewerker", internCase.Target(), "")
					results <- err
				}()
			}
			wg.Wait()
			close(results)

			var ok int
			for err := range results {
				if err == nil {
					ok++
					continue
				}
				Expect(authz.IsDuplicateRequest(err)).To(BeTrue(), err.Error())
			}
			Expect(ok).To(Equal(1))

			pending, err := s.ListPendingAccessRequests(ctx, "medewerker", internCase.Reference)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
		})

		It("removes direct access granted the same day", func() {
			_, err := flow.GrantAccess(ctx, authz.NewSubject("behandelaar"), "medewerker", internCase.Target(), "", today, nil)
			Expect(err).NotTo(HaveOccurred())

			ended, err := flow.RevokeAccess(ctx, authz.NewSubject("behandelaar"), "medewerker", internCase.Target(), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(ended).To(HaveLen(1))

			active, err := s.ActiveAtomicAssignments(ctx, "medewerker", today)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeEmpty())

			var assignments int
			Expect(testPool.QueryRow(ctx, `SELECT count(*) FROM atomic_grant_assignments`).Scan(&assignments)).To(Succeed())
			Expect(assignments).To(BeZero())
		})

		It("lists pending requests in request order", func() {
			_, err := flow.Create(ctx, "medewerker", internCase.Target(), "")
			Expect(err).NotTo(HaveOccurred())
			_, err = flow.Create(ctx, "collega", internCase.Target(), "")
			Expect(err).NotTo(HaveOccurred())

			pending, err := flow.PendingForObject(ctx, authz.NewSubject("behandelaar"), internCase.Target())
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(2))

			mine, err := flow.PendingFor(ctx, "collega")
			Expect(err).NotTo(HaveOccurred())
			Expect(mine).To(HaveLen(1))
		})
	})
})
