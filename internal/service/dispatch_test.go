package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"Disparo/internal/model"
	pkgerrors "Disparo/pkg/errors"
	"Disparo/pkg/logger"
	"Disparo/pkg/whatsapp"
)

func init() {
	logger.Init()
}

type fakeCampaignStore struct {
	campaign      *model.Campaign
	getErr        error
	pending       int64
	statusUpdates []model.CampaignStatus
}

func (f *fakeCampaignStore) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	return f.campaign, f.getErr
}

func (f *fakeCampaignStore) UpdateStatus(ctx context.Context, id int64, status model.CampaignStatus) error {
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

func (f *fakeCampaignStore) CountPendingLeads(ctx context.Context, campaignID int64) (int64, error) {
	return f.pending, nil
}

type fakeLeadStore struct {
	lead    *model.CampaignLead
	sent    []int64
	failed  map[int64]string
	invalid map[int64]string
}

func newFakeLeadStore(lead *model.CampaignLead) *fakeLeadStore {
	return &fakeLeadStore{
		lead:    lead,
		failed:  make(map[int64]string),
		invalid: make(map[int64]string),
	}
}

func (f *fakeLeadStore) GetByID(ctx context.Context, id int64) (*model.CampaignLead, error) {
	return f.lead, nil
}

func (f *fakeLeadStore) MarkSent(ctx context.Context, id int64) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeLeadStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	f.failed[id] = reason
	return nil
}

func (f *fakeLeadStore) MarkInvalid(ctx context.Context, id int64, reason string) error {
	f.invalid[id] = reason
	return nil
}

type fakeContactStore struct {
	contact   *model.Contact
	byNumber  map[string]*model.Contact
	lookups   []string
	contacted []int64
}

func (f *fakeContactStore) FindByNumber(ctx context.Context, tenantID, number string) (*model.Contact, error) {
	f.lookups = append(f.lookups, number)
	if f.byNumber != nil {
		return f.byNumber[number], nil
	}
	return f.contact, nil
}

func (f *fakeContactStore) MarkContacted(ctx context.Context, tenantID string, contactID int64, instanceID string) error {
	f.contacted = append(f.contacted, contactID)
	return nil
}

type fakeQuota struct {
	err   error
	calls int
}

func (f *fakeQuota) Reserve(ctx context.Context, instanceID, feature string, amount int) error {
	f.calls++
	return f.err
}

type fakeScheduler struct {
	delays []time.Duration
	msgs   []model.CampaignSendMessage
	err    error
}

func (f *fakeScheduler) RescheduleCampaignSend(ctx context.Context, msg model.CampaignSendMessage, delay time.Duration) error {
	f.delays = append(f.delays, delay)
	f.msgs = append(f.msgs, msg)
	return f.err
}

type dispatchFixture struct {
	campaigns *fakeCampaignStore
	leads     *fakeLeadStore
	contacts  *fakeContactStore
	quota     *fakeQuota
	provider  *whatsapp.MockClient
	scheduler *fakeScheduler
	slept     []time.Duration
	d         *Dispatcher
}

func testDispatchConfig() DispatchConfig {
	return DispatchConfig{
		PacingMin:       30 * time.Second,
		PacingMax:       300 * time.Second,
		PauseBackoff:    5 * time.Minute,
		QuotaBackoff:    24 * time.Hour,
		ColdStages:      map[string]bool{"NOVO": true, "LEAD": true},
		DefaultLeadName: "Contato",
	}
}

func newDispatchFixture() *dispatchFixture {
	fx := &dispatchFixture{
		campaigns: &fakeCampaignStore{
			campaign: &model.Campaign{Status: model.CampaignStatusRunning},
			pending:  3,
		},
		leads:     newFakeLeadStore(&model.CampaignLead{Status: model.LeadStatusPending}),
		contacts:  &fakeContactStore{},
		quota:     &fakeQuota{},
		provider:  whatsapp.NewMockClient(),
		scheduler: &fakeScheduler{},
	}
	fx.campaigns.campaign.ID = 10
	fx.leads.lead.ID = 77

	fx.d = NewDispatcher(fx.campaigns, fx.leads, fx.contacts, fx.quota, fx.provider, fx.scheduler, testDispatchConfig())
	fx.d.sleep = func(ctx context.Context, delay time.Duration) error {
		fx.slept = append(fx.slept, delay)
		return nil
	}
	fx.d.randInt = func(n int) int { return 0 }
	return fx
}

func testMessage() model.CampaignSendMessage {
	return model.CampaignSendMessage{
		MessageID:  "m1",
		CampaignID: 10,
		LeadID:     77,
		TenantID:   "tenant-1",
		InstanceID: "inst-1",
		Number:     "+55 (11) 98765-4321",
		LeadName:   "Maria",
		Message:    "Oi {{name}}, tudo bem?",
		IsFirst:    true,
	}
}

func assertSkip(t *testing.T, err error) {
	t.Helper()
	if !pkgerrors.IsSkipMessageError(err) {
		t.Fatalf("expected skip error, got %v", err)
	}
}

func TestProcessSendsFirstMessageWithoutPacing(t *testing.T) {
	fx := newDispatchFixture()

	if err := fx.d.Process(context.Background(), testMessage()); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if fx.provider.CallCount() != 1 {
		t.Fatalf("expected 1 provider call, got %d", fx.provider.CallCount())
	}
	call := fx.provider.Calls[0]
	if call.Number != "5511987654321" {
		t.Errorf("number not normalized: %q", call.Number)
	}
	if call.Text != "Oi Maria, tudo bem?" {
		t.Errorf("template not rendered: %q", call.Text)
	}
	if len(fx.slept) != 0 {
		t.Errorf("first message of a batch should not be paced, slept %v", fx.slept)
	}
	if fx.quota.calls != 1 {
		t.Errorf("expected one quota reservation, got %d", fx.quota.calls)
	}
	if len(fx.leads.sent) != 1 || fx.leads.sent[0] != 77 {
		t.Errorf("lead not marked sent: %v", fx.leads.sent)
	}
}

func TestProcessPacesNonFirstMessages(t *testing.T) {
	fx := newDispatchFixture()
	msg := testMessage()
	msg.IsFirst = false

	if err := fx.d.Process(context.Background(), msg); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(fx.slept) != 1 {
		t.Fatalf("expected one pacing sleep, got %v", fx.slept)
	}
	if fx.slept[0] < 30*time.Second || fx.slept[0] > 300*time.Second {
		t.Errorf("pacing delay out of range: %v", fx.slept[0])
	}
}

func TestProcessDropsTerminalCampaign(t *testing.T) {
	for _, status := range []model.CampaignStatus{model.CampaignStatusCompleted, model.CampaignStatusFailed} {
		fx := newDispatchFixture()
		fx.campaigns.campaign.Status = status

		assertSkip(t, fx.d.Process(context.Background(), testMessage()))

		if fx.provider.CallCount() != 0 {
			t.Errorf("status %s: provider should not be called", status)
		}
		if len(fx.scheduler.delays) != 0 {
			t.Errorf("status %s: terminal campaign must not be rescheduled", status)
		}
	}
}

func TestProcessReschedulesPausedCampaign(t *testing.T) {
	fx := newDispatchFixture()
	fx.campaigns.campaign.Status = model.CampaignStatusPaused

	assertSkip(t, fx.d.Process(context.Background(), testMessage()))

	if len(fx.scheduler.delays) != 1 || fx.scheduler.delays[0] != 5*time.Minute {
		t.Fatalf("expected 5m reschedule, got %v", fx.scheduler.delays)
	}
	if fx.provider.CallCount() != 0 {
		t.Error("paused campaign must not send")
	}
	if fx.scheduler.msgs[0].MessageID != "m1" {
		t.Errorf("rescheduled message changed unexpectedly: %+v", fx.scheduler.msgs[0])
	}
}

func TestProcessDropsMissingCampaign(t *testing.T) {
	fx := newDispatchFixture()
	fx.campaigns.campaign = nil

	assertSkip(t, fx.d.Process(context.Background(), testMessage()))

	if fx.provider.CallCount() != 0 {
		t.Error("missing campaign must not send")
	}
}

func TestProcessSkipsAlreadyProcessedLead(t *testing.T) {
	fx := newDispatchFixture()
	fx.leads.lead.Status = model.LeadStatusSent

	assertSkip(t, fx.d.Process(context.Background(), testMessage()))

	if fx.provider.CallCount() != 0 {
		t.Error("processed lead must not be sent again")
	}
	if fx.quota.calls != 0 {
		t.Error("skipped lead must not consume quota")
	}
}

func TestProcessSkipsEngagedContact(t *testing.T) {
	fx := newDispatchFixture()
	fx.contacts.contact = &model.Contact{Stage: "CONTACTED"}
	fx.contacts.contact.ID = 5

	assertSkip(t, fx.d.Process(context.Background(), testMessage()))

	if fx.provider.CallCount() != 0 {
		t.Error("engaged contact must not be messaged")
	}
	// 标记完成阻止重投，但不发送
	if len(fx.leads.sent) != 1 {
		t.Errorf("lead should be marked sent to stop redelivery: %v", fx.leads.sent)
	}
}

func TestProcessSendsToColdStageContact(t *testing.T) {
	fx := newDispatchFixture()
	fx.contacts.contact = &model.Contact{Stage: "NOVO"}
	fx.contacts.contact.ID = 5

	if err := fx.d.Process(context.Background(), testMessage()); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if fx.provider.CallCount() != 1 {
		t.Fatal("cold stage contact should be messaged")
	}
	if len(fx.contacts.contacted) != 1 || fx.contacts.contacted[0] != 5 {
		t.Errorf("contact not advanced after send: %v", fx.contacts.contacted)
	}
}

func TestProcessColdStageMatchIgnoresCase(t *testing.T) {
	for _, stage := range []string{"novo", "Lead", "NoVo"} {
		t.Run(stage, func(t *testing.T) {
			fx := newDispatchFixture()
			fx.contacts.contact = &model.Contact{Stage: stage}
			fx.contacts.contact.ID = 5

			if err := fx.d.Process(context.Background(), testMessage()); err != nil {
				t.Fatalf("Process returned error: %v", err)
			}
			if fx.provider.CallCount() != 1 {
				t.Errorf("cold contact with stage %q was not messaged", stage)
			}
		})
	}
}

// 联系人以归一化号码入库，门控和发后推进都必须用同一个键查询
func TestProcessContactLookupsUseNormalizedNumber(t *testing.T) {
	const normalized = "5511987654321"

	t.Run("engaged contact gates formatted number", func(t *testing.T) {
		fx := newDispatchFixture()
		engaged := &model.Contact{Stage: "CONTACTED"}
		engaged.ID = 5
		fx.contacts.byNumber = map[string]*model.Contact{normalized: engaged}

		assertSkip(t, fx.d.Process(context.Background(), testMessage()))

		if fx.provider.CallCount() != 0 {
			t.Error("engaged contact slipped past the stage gate")
		}
		if len(fx.contacts.lookups) != 1 || fx.contacts.lookups[0] != normalized {
			t.Errorf("gate must look up the normalized number: %v", fx.contacts.lookups)
		}
	})

	t.Run("cold contact advances after send", func(t *testing.T) {
		fx := newDispatchFixture()
		cold := &model.Contact{Stage: "NOVO"}
		cold.ID = 5
		fx.contacts.byNumber = map[string]*model.Contact{normalized: cold}

		if err := fx.d.Process(context.Background(), testMessage()); err != nil {
			t.Fatalf("Process returned error: %v", err)
		}
		if len(fx.contacts.contacted) != 1 || fx.contacts.contacted[0] != 5 {
			t.Errorf("contact not advanced after send: %v", fx.contacts.contacted)
		}
		for _, n := range fx.contacts.lookups {
			if n != normalized {
				t.Errorf("lookup used non-normalized number %q", n)
			}
		}
	})
}

func TestPacingDelayRangeIsInclusive(t *testing.T) {
	fx := newDispatchFixture()

	fx.d.randInt = func(n int) int { return 0 }
	if got := fx.d.pacingDelay(); got != 30*time.Second {
		t.Errorf("lower bound: got %v, want 30s", got)
	}

	fx.d.randInt = func(n int) int { return n - 1 }
	if got := fx.d.pacingDelay(); got != 300*time.Second {
		t.Errorf("upper bound must be reachable: got %v, want 300s", got)
	}
}

func TestProcessQuotaExhaustedReschedules(t *testing.T) {
	fx := newDispatchFixture()
	fx.quota.err = fmt.Errorf("%w (remaining 0)", pkgerrors.QuotaExceeded)

	assertSkip(t, fx.d.Process(context.Background(), testMessage()))

	if len(fx.scheduler.delays) != 1 || fx.scheduler.delays[0] != 24*time.Hour {
		t.Fatalf("expected 24h reschedule, got %v", fx.scheduler.delays)
	}
	if fx.provider.CallCount() != 0 {
		t.Error("exhausted quota must not send")
	}
	if fx.leads.lead.Status != model.LeadStatusPending {
		t.Error("lead must stay pending when quota is exhausted")
	}
}

func TestProcessQuotaStoreFailureIsRetryable(t *testing.T) {
	fx := newDispatchFixture()
	fx.quota.err = errors.New("db down")

	err := fx.d.Process(context.Background(), testMessage())
	if err == nil || pkgerrors.IsSkipMessageError(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if fx.provider.CallCount() != 0 {
		t.Error("must not send on quota store failure")
	}
}

func TestProcessMissingPhoneFailsLead(t *testing.T) {
	fx := newDispatchFixture()
	msg := testMessage()
	msg.Number = "n/a"

	assertSkip(t, fx.d.Process(context.Background(), msg))

	if reason, ok := fx.leads.failed[77]; !ok || reason != "missing phone" {
		t.Errorf("expected lead failed with missing phone, got %v", fx.leads.failed)
	}
	if fx.provider.CallCount() != 0 {
		t.Error("must not call provider without a number")
	}
}

func TestProcessIncompletePayloadDropped(t *testing.T) {
	fx := newDispatchFixture()
	msg := testMessage()
	msg.Message = ""
	msg.Variations = nil

	assertSkip(t, fx.d.Process(context.Background(), msg))

	if fx.quota.calls != 0 {
		t.Error("incomplete payload must not consume quota")
	}
}

func TestProcessRecipientNotFoundMarksInvalid(t *testing.T) {
	fx := newDispatchFixture()
	fx.provider.FailWith = errors.New(`gateway error: status=400 body={"exists":false}`)

	err := fx.d.Process(context.Background(), testMessage())
	if err == nil || pkgerrors.IsSkipMessageError(err) {
		t.Fatalf("expected send error to propagate, got %v", err)
	}
	if _, ok := fx.leads.invalid[77]; !ok {
		t.Errorf("lead should be marked invalid: %v", fx.leads.invalid)
	}
	if len(fx.leads.failed) != 0 {
		t.Errorf("invalid lead must not be marked failed: %v", fx.leads.failed)
	}
}

func TestProcessGatewayErrorMarksFailed(t *testing.T) {
	fx := newDispatchFixture()
	fx.provider.FailNext = true

	err := fx.d.Process(context.Background(), testMessage())
	if err == nil || pkgerrors.IsSkipMessageError(err) {
		t.Fatalf("expected send error to propagate, got %v", err)
	}
	if _, ok := fx.leads.failed[77]; !ok {
		t.Errorf("lead should be marked failed: %v", fx.leads.failed)
	}
	if len(fx.leads.invalid) != 0 {
		t.Errorf("retryable failure must not mark invalid: %v", fx.leads.invalid)
	}
}

func TestProcessCompletesCampaignWhenNoPendingLeft(t *testing.T) {
	fx := newDispatchFixture()
	fx.campaigns.pending = 0

	if err := fx.d.Process(context.Background(), testMessage()); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(fx.campaigns.statusUpdates) != 1 || fx.campaigns.statusUpdates[0] != model.CampaignStatusCompleted {
		t.Errorf("campaign should be marked completed: %v", fx.campaigns.statusUpdates)
	}
}

func TestProcessPicksVariationAndRendersFallbackName(t *testing.T) {
	fx := newDispatchFixture()
	fx.d.randInt = func(n int) int { return 1 }
	msg := testMessage()
	msg.LeadName = ""
	msg.Message = ""
	msg.Variations = []string{"Oi {{name}}!", "Olá {{nome}}, novidades!"}

	if err := fx.d.Process(context.Background(), msg); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if fx.provider.Calls[0].Text != "Olá Contato, novidades!" {
		t.Errorf("unexpected rendered text: %q", fx.provider.Calls[0].Text)
	}
}
