package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"Disparo/internal/model"
	"Disparo/internal/model/dto"
	pkgerrors "Disparo/pkg/errors"
)

type fakeCampaignRepo struct {
	campaign      *model.Campaign
	created       []*model.Campaign
	statusUpdates []model.CampaignStatus
	stats         dto.LeadStats
}

func (f *fakeCampaignRepo) Create(ctx context.Context, campaign *model.Campaign) error {
	campaign.ID = int64(len(f.created) + 1)
	f.created = append(f.created, campaign)
	return nil
}

func (f *fakeCampaignRepo) GetByTenant(ctx context.Context, tenantID string, id int64) (*model.Campaign, error) {
	if f.campaign == nil || f.campaign.TenantID != tenantID {
		return nil, nil
	}
	return f.campaign, nil
}

func (f *fakeCampaignRepo) UpdateStatus(ctx context.Context, id int64, status model.CampaignStatus) error {
	f.statusUpdates = append(f.statusUpdates, status)
	f.campaign.Status = status
	return nil
}

func (f *fakeCampaignRepo) LeadStats(ctx context.Context, campaignID int64) (dto.LeadStats, error) {
	return f.stats, nil
}

type fakeLeadRepo struct {
	created    []model.CampaignLead
	batchSizes []int
	pending    []model.CampaignLead
}

func (f *fakeLeadRepo) CreateInBatches(ctx context.Context, leads []model.CampaignLead, batchSize int) error {
	f.created = append(f.created, leads...)
	f.batchSizes = append(f.batchSizes, batchSize)
	return nil
}

func (f *fakeLeadRepo) ListByCampaign(ctx context.Context, campaignID int64) ([]model.CampaignLead, error) {
	return f.created, nil
}

func (f *fakeLeadRepo) ListPendingByCampaign(ctx context.Context, campaignID int64) ([]model.CampaignLead, error) {
	return f.pending, nil
}

type fakeEnqueuer struct {
	msgs    []model.CampaignSendMessage
	failAt  int // 1-based，0 表示不失败
	current int
}

func (f *fakeEnqueuer) PublishCampaignSend(ctx context.Context, msg model.CampaignSendMessage) error {
	f.current++
	if f.failAt > 0 && f.current >= f.failAt {
		return errors.New("broker unavailable")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

type fakeLocker struct {
	denyLock bool
	locks    []string
	unlocks  []string
}

func (f *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if f.denyLock {
		return false, nil
	}
	f.locks = append(f.locks, key)
	return true, nil
}

func (f *fakeLocker) Unlock(ctx context.Context, key string) error {
	f.unlocks = append(f.unlocks, key)
	return nil
}

type campaignFixture struct {
	campaigns *fakeCampaignRepo
	leads     *fakeLeadRepo
	queue     *fakeEnqueuer
	locker    *fakeLocker
	s         *CampaignService
}

func newCampaignFixture() *campaignFixture {
	fx := &campaignFixture{
		campaigns: &fakeCampaignRepo{},
		leads:     &fakeLeadRepo{},
		queue:     &fakeEnqueuer{},
		locker:    &fakeLocker{},
	}
	quota := newTestQuotaService(newFakeUsageStore(), 40)
	fx.s = NewCampaignService(fx.campaigns, fx.leads, quota, fx.queue)
	fx.s.locker = fx.locker
	return fx
}

func pendingCampaign(tenantID string) *model.Campaign {
	c := &model.Campaign{
		TenantID:   tenantID,
		Name:       "Promo",
		Channel:    "whatsapp",
		Message:    "Oi {{name}}",
		InstanceID: "inst-1",
		Status:     model.CampaignStatusPending,
	}
	c.ID = 1
	return c
}

func TestCreateCampaignValidations(t *testing.T) {
	fx := newCampaignFixture()
	ctx := context.Background()

	_, err := fx.s.Create(ctx, "t1", dto.CreateCampaignRequest{
		Name: "x", Message: "hi", InstanceID: "inst-1",
	})
	if !errors.Is(err, pkgerrors.LeadListEmpty) {
		t.Errorf("expected LeadListEmpty, got %v", err)
	}

	_, err = fx.s.Create(ctx, "t1", dto.CreateCampaignRequest{
		Name: "x", InstanceID: "inst-1",
		Leads: []dto.LeadInput{{Number: "5511999999999"}},
	})
	if !errors.Is(err, pkgerrors.MessageRequired) {
		t.Errorf("expected MessageRequired, got %v", err)
	}

	_, err = fx.s.Create(ctx, "t1", dto.CreateCampaignRequest{
		Name: "x", Message: "hi",
		Leads: []dto.LeadInput{{Number: "5511999999999"}},
	})
	if !errors.Is(err, pkgerrors.InstanceRequired) {
		t.Errorf("expected InstanceRequired, got %v", err)
	}
}

func TestCreateCampaignPersistsLeads(t *testing.T) {
	fx := newCampaignFixture()

	campaign, err := fx.s.Create(context.Background(), "t1", dto.CreateCampaignRequest{
		Name:       "Promo",
		Message:    "Oi {{name}}",
		InstanceID: "inst-1",
		Leads: []dto.LeadInput{
			{Name: "Ana", Number: "5511999990001"},
			{Number: "5511999990002"},
		},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if campaign.Status != model.CampaignStatusPending {
		t.Errorf("new campaign must be pending, got %s", campaign.Status)
	}
	if campaign.Channel != "whatsapp" {
		t.Errorf("channel should default to whatsapp, got %s", campaign.Channel)
	}
	if len(fx.leads.created) != 2 {
		t.Fatalf("expected 2 leads persisted, got %d", len(fx.leads.created))
	}
	for _, lead := range fx.leads.created {
		if lead.Status != model.LeadStatusPending {
			t.Errorf("lead must start pending, got %s", lead.Status)
		}
		if lead.CampaignID != campaign.ID {
			t.Errorf("lead bound to wrong campaign: %d", lead.CampaignID)
		}
	}
}

func TestStartPendingCampaignEnqueuesAllLeads(t *testing.T) {
	fx := newCampaignFixture()
	fx.campaigns.campaign = pendingCampaign("t1")
	for i := int64(1); i <= 3; i++ {
		lead := model.CampaignLead{CampaignID: 1, Number: "551199999000" + string(rune('0'+i)), Status: model.LeadStatusPending}
		lead.ID = i
		fx.leads.pending = append(fx.leads.pending, lead)
	}

	if err := fx.s.Start(context.Background(), "t1", 1); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if len(fx.queue.msgs) != 3 {
		t.Fatalf("expected 3 enqueued tasks, got %d", len(fx.queue.msgs))
	}
	for i, msg := range fx.queue.msgs {
		if msg.IsFirst != (i == 0) {
			t.Errorf("IsFirst must be set on exactly the first task, task %d got %v", i, msg.IsFirst)
		}
		if msg.BatchID == "" || msg.BatchID != fx.queue.msgs[0].BatchID {
			t.Errorf("all tasks must share one batch id")
		}
		if msg.TenantID != "t1" || msg.InstanceID != "inst-1" {
			t.Errorf("task missing campaign context: %+v", msg)
		}
	}
	if fx.campaigns.campaign.Status != model.CampaignStatusRunning {
		t.Errorf("campaign should be running, got %s", fx.campaigns.campaign.Status)
	}
	if len(fx.locker.unlocks) != 1 {
		t.Errorf("start lock should be released, unlocks=%v", fx.locker.unlocks)
	}
}

func TestStartPausedCampaignOnlyResumes(t *testing.T) {
	fx := newCampaignFixture()
	fx.campaigns.campaign = pendingCampaign("t1")
	fx.campaigns.campaign.Status = model.CampaignStatusPaused

	if err := fx.s.Start(context.Background(), "t1", 1); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	if len(fx.queue.msgs) != 0 {
		t.Errorf("resume must not enqueue new tasks, got %d", len(fx.queue.msgs))
	}
	if fx.campaigns.campaign.Status != model.CampaignStatusRunning {
		t.Errorf("campaign should be running after resume, got %s", fx.campaigns.campaign.Status)
	}
}

func TestStartRejectsWrongStates(t *testing.T) {
	for _, status := range []model.CampaignStatus{
		model.CampaignStatusRunning,
		model.CampaignStatusCompleted,
		model.CampaignStatusFailed,
	} {
		fx := newCampaignFixture()
		fx.campaigns.campaign = pendingCampaign("t1")
		fx.campaigns.campaign.Status = status

		err := fx.s.Start(context.Background(), "t1", 1)
		if !errors.Is(err, pkgerrors.CampaignNotStartable) {
			t.Errorf("status %s: expected CampaignNotStartable, got %v", status, err)
		}
	}
}

func TestStartLockedCampaignRejected(t *testing.T) {
	fx := newCampaignFixture()
	fx.campaigns.campaign = pendingCampaign("t1")
	fx.locker.denyLock = true

	err := fx.s.Start(context.Background(), "t1", 1)
	if !errors.Is(err, pkgerrors.CampaignStartLocked) {
		t.Fatalf("expected CampaignStartLocked, got %v", err)
	}
}

func TestStartRevertsToPendingOnEnqueueFailure(t *testing.T) {
	fx := newCampaignFixture()
	fx.campaigns.campaign = pendingCampaign("t1")
	lead := model.CampaignLead{CampaignID: 1, Number: "5511999990001", Status: model.LeadStatusPending}
	lead.ID = 1
	lead2 := lead
	lead2.ID = 2
	fx.leads.pending = []model.CampaignLead{lead, lead2}
	fx.queue.failAt = 2

	err := fx.s.Start(context.Background(), "t1", 1)
	if err == nil {
		t.Fatal("expected enqueue failure to surface")
	}
	if fx.campaigns.campaign.Status != model.CampaignStatusPending {
		t.Errorf("campaign should revert to pending so start can be retried, got %s", fx.campaigns.campaign.Status)
	}
}

func TestStartUnknownCampaign(t *testing.T) {
	fx := newCampaignFixture()

	err := fx.s.Start(context.Background(), "t1", 99)
	if !errors.Is(err, pkgerrors.CampaignNotFound) {
		t.Fatalf("expected CampaignNotFound, got %v", err)
	}
}

func TestStartEnforcesTenantIsolation(t *testing.T) {
	fx := newCampaignFixture()
	fx.campaigns.campaign = pendingCampaign("t1")

	err := fx.s.Start(context.Background(), "other-tenant", 1)
	if !errors.Is(err, pkgerrors.CampaignNotFound) {
		t.Fatalf("cross-tenant access must look like not found, got %v", err)
	}
}

func TestPauseOnlyRunningCampaign(t *testing.T) {
	fx := newCampaignFixture()
	fx.campaigns.campaign = pendingCampaign("t1")
	fx.campaigns.campaign.Status = model.CampaignStatusRunning

	if err := fx.s.Pause(context.Background(), "t1", 1); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if fx.campaigns.campaign.Status != model.CampaignStatusPaused {
		t.Errorf("campaign should be paused, got %s", fx.campaigns.campaign.Status)
	}

	err := fx.s.Pause(context.Background(), "t1", 1)
	if !errors.Is(err, pkgerrors.CampaignNotPausable) {
		t.Fatalf("pausing a paused campaign should fail, got %v", err)
	}
}

func TestGetCampaignIncludesStats(t *testing.T) {
	fx := newCampaignFixture()
	fx.campaigns.campaign = pendingCampaign("t1")
	fx.campaigns.stats = dto.LeadStats{Total: 10, Pending: 4, Sent: 5, Failed: 1}

	result, err := fx.s.Get(context.Background(), "t1", 1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if result.LeadStats.Total != 10 || result.LeadStats.Sent != 5 {
		t.Errorf("unexpected stats: %+v", result.LeadStats)
	}
}
