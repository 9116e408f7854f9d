package digest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/dotsetgreg/jarvis/pkg/logger"
	"github.com/dotsetgreg/jarvis/pkg/memory"
)

const checkInterval = time.Minute

// Service sends a periodic usage digest to the operator chat, driven by a
// cron expression checked once a minute.
type Service struct {
	cron     string
	manager  *memory.Manager
	notifier memory.Notifier
	gron     gronx.Gronx

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewService(cron string, manager *memory.Manager, notifier memory.Notifier) (*Service, error) {
	g := gronx.New()
	if !g.IsValid(cron) {
		return nil, fmt.Errorf("invalid digest cron expression %q", cron)
	}
	return &Service{
		cron:     cron,
		manager:  manager,
		notifier: notifier,
		gron:     *g,
		stopCh:   make(chan struct{}),
	}, nil
}

func (s *Service) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		logger.InfoCF("digest", "Digest scheduler started", map[string]interface{}{
			"cron": s.cron,
		})

		for {
			select {
			case <-s.stopCh:
				return
			case now := <-ticker.C:
				due, err := s.gron.IsDue(s.cron, now)
				if err != nil {
					logger.WarnCF("digest", "Cron check failed", map[string]interface{}{
						"error": err.Error(),
					})
					continue
				}
				if due {
					s.sendDigest()
				}
			}
		}
	}()
}

func (s *Service) Stop() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	logger.InfoC("digest", "Digest scheduler stopped")
}

func (s *Service) sendDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users, turns, facts := s.manager.Counts(ctx)
	s.notifier.Notify("digest", fmt.Sprintf(
		"Daily digest: %d users, %d conversation turns, %d facts on record.",
		users, turns, facts,
	))
	logger.InfoCF("digest", "Digest sent", map[string]interface{}{
		"users": users,
		"turns": turns,
		"facts": facts,
	})
}
