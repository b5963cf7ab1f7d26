// Package scheduler fires calendar-based triggers (daily, weekly). A
// tick does no work of its own: the registered function just submits a
// job onto the dispatch loop, so a missed or failed submission is a
// missed broadcast, never a process error.
package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"annobot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"
}

type scheduleDef struct {
	name string
	spec string
	job  func()
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef
}

func New(cfg Config, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps config; a timezone change restarts cron and re-registers
// every definition.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c == nil {
		return
	}
	if oldTZ != newTZ {
		s.restartLocked()
	}
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// re-register existing defs (if any)
	for _, d := range s.defs {
		s.addLocked(d)
	}

	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()))
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	s.log.Info("scheduler stopped")
}

// AddCron registers job under a raw cron spec.
func (s *Service) AddCron(name, spec string, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return errors.New("scheduler not started")
	}
	d := scheduleDef{name: name, spec: spec, job: job}
	if err := s.addLocked(d); err != nil {
		return err
	}
	s.defs = append(s.defs, d)
	return nil
}

// AddDaily registers job at HH:MM every day (scheduler timezone).
func (s *Service) AddDaily(name string, atHHMM string, job func()) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", m, h), job)
}

// AddWeekly registers job at HH:MM on the given weekday (scheduler timezone).
func (s *Service) AddWeekly(name string, weekday time.Weekday, atHHMM string, job func()) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	dow := int(weekday) // Sunday=0
	return s.AddCron(name, fmt.Sprintf("%d %d * * %d", m, h, dow), job)
}

func (s *Service) addLocked(d scheduleDef) error {
	_, err := s.c.AddFunc(d.spec, func() {
		s.log.Debug("trigger fired", logx.String("trigger", d.name))
		d.job()
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", d.name, d.spec, err)
	}
	return nil
}

func (s *Service) restartLocked() {
	<-s.c.Stop().Done()
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, d := range s.defs {
		_ = s.addLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// ParseWeekday accepts "mon", "monday", etc. (config convenience).
func ParseWeekday(raw string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("invalid weekday %q", raw)
	}
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
