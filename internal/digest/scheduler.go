// Package digest sends each configured recipient a scheduled summary of overdue and
// today's deadlines over WhatsApp.
package digest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"lexflow/internal/commander"
	"lexflow/internal/config"
	"lexflow/internal/domain"
)

const header = "☀️ Bom dia! Sua agenda:\n\n"

// Agenda renders the overdue-plus-today listing for a tenant, optionally for one user.
type Agenda interface {
	Agenda(ctx context.Context, tenantID, userID string) (string, error)
}

// Replier delivers and records one outgoing message.
type Replier interface {
	Send(ctx context.Context, out commander.Outgoing) (domain.Message, error)
}

// Result is the outcome for one recipient.
type Result struct {
	TenantID string
	Phone    string
	Status   string
	Error    string
}

// Scheduler runs the digest on a cron schedule.
type Scheduler struct {
	agenda  Agenda
	replies Replier
	cfg     config.DigestConfig
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	entryID cron.EntryID
	logger  *zap.Logger
}

func NewScheduler(agenda Agenda, replies Replier, cfg config.DigestConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("invalid digest timezone, using UTC", zap.String("timezone", cfg.Timezone), zap.Error(err))
		loc = time.UTC
	}
	return &Scheduler{
		agenda:  agenda,
		replies: replies,
		cfg:     cfg,
		cron:    cron.New(cron.WithLocation(loc)),
		logger:  logger,
	}
}

// Start registers the job and starts the cron runner. It is a no-op when the digest is
// disabled or already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if !s.cfg.Enabled {
		s.logger.Info("digest scheduler disabled")
		return nil
	}
	entryID, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.run(ctx)
	})
	if err != nil {
		return fmt.Errorf("digest schedule: %w", err)
	}
	s.entryID = entryID
	s.cron.Start()
	s.running = true
	s.logger.Info("digest scheduler started",
		zap.String("schedule", s.cfg.Schedule),
		zap.String("timezone", s.cfg.Timezone),
		zap.Int("recipients", len(s.cfg.Recipients)),
		zap.Time("next_run", s.cron.Entry(s.entryID).Next))
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("digest scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled run, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// RunNow sends the digest to every recipient immediately.
func (s *Scheduler) RunNow(ctx context.Context) []Result {
	results := make([]Result, 0, len(s.cfg.Recipients))
	for _, rcpt := range s.cfg.Recipients {
		results = append(results, s.deliver(ctx, rcpt))
	}
	return results
}

func (s *Scheduler) run(ctx context.Context) {
	for _, r := range s.RunNow(ctx) {
		if r.Error != "" {
			s.logger.Error("digest delivery failed",
				zap.String("tenant_id", r.TenantID),
				zap.String("phone", r.Phone),
				zap.String("error", r.Error))
			continue
		}
		s.logger.Info("digest delivered",
			zap.String("tenant_id", r.TenantID),
			zap.String("phone", r.Phone),
			zap.String("status", r.Status))
	}
}

func (s *Scheduler) deliver(ctx context.Context, rcpt config.DigestRecipient) Result {
	res := Result{TenantID: rcpt.TenantID, Phone: rcpt.Phone}
	userID := ""
	if rcpt.OnlyOwn {
		userID = rcpt.UserID
	}
	body, err := s.agenda.Agenda(ctx, rcpt.TenantID, userID)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	msg, err := s.replies.Send(ctx, commander.Outgoing{
		TenantID: rcpt.TenantID,
		Phone:    rcpt.Phone,
		Body:     header + body,
		UserID:   rcpt.UserID,
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Status = msg.DeliveryStatus
	if msg.DeliveryStatus == domain.DeliveryFailed {
		res.Error = msg.DeliveryError
	}
	return res
}
