// Package schedule fires notification events from cron expressions and
// fixed intervals.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"notifyd/internal/notification"
	logx "notifyd/pkg/logx"

	"github.com/robfig/cron/v3"
)

// ExtraScheduleName is set on every scheduled firing.
const ExtraScheduleName = "schedule.name"

// Firer is the part of notification.Service a schedule drives.
type Firer interface {
	FireNotification(eventType, title, message string, icon []byte, extras map[string]any) *notification.Data
}

// Def is one configured trigger.
type Def struct {
	Name      string
	Schedule  string
	EventType string
	Title     string
	Message   string
	Timezone  string // IANA name; empty uses the service default
}

// EntryInfo is a point-in-time view of one schedule.
type EntryInfo struct {
	Name      string    `json:"name"`
	EventType string    `json:"event_type"`
	Spec      string    `json:"spec"`
	Source    string    `json:"source"`
	Next      time.Time `json:"next,omitempty"`
	Prev      time.Time `json:"prev,omitempty"`
	Fires     uint64    `json:"fires"`
	Skipped   uint64    `json:"skipped"`
}

type entry struct {
	def    Def
	spec   ParsedSpec
	id     cron.EntryID
	fires  atomic.Uint64
	skips  atomic.Uint64
	spread time.Duration
}

// Service owns a robfig/cron instance. Apply replaces the schedule set; Start
// and Stop control triggering.
//
// It is safe for concurrent use.
type Service struct {
	log    logx.Logger
	fire   Firer
	parser cron.Parser

	mu      sync.Mutex
	loc     *time.Location
	c       *cron.Cron
	entries map[string]*entry
}

func New(fire Firer, loc *time.Location, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		log:  log,
		fire: fire,
		loc:  loc,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]*entry{},
	}
}

// Validate parses every def without applying it.
func (s *Service) Validate(defs []Def) error {
	var errs []error
	seen := map[string]bool{}
	for _, d := range defs {
		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("schedule %q: duplicate name", d.Name))
		}
		seen[d.Name] = true
		if _, err := s.build(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) build(d Def) (*entry, error) {
	if strings.TrimSpace(d.EventType) == "" {
		return nil, fmt.Errorf("schedule %q: event type required", d.Name)
	}
	spec, err := ParseSchedule(d.Schedule)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", d.Name, err)
	}
	if spec.Kind == SpecCron {
		expr := spec.Cron
		if tz := strings.TrimSpace(d.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return nil, fmt.Errorf("schedule %q: timezone: %w", d.Name, err)
			}
			expr = "CRON_TZ=" + tz + " " + expr
		}
		if _, err := s.parser.Parse(expr); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", d.Name, err)
		}
		spec.Cron = expr
	}
	return &entry{def: d, spec: spec}, nil
}

// Apply replaces the schedule set. Invalid defs are logged and skipped.
// Fire counters survive for names that stay.
func (s *Service) Apply(defs []Def) {
	next := make(map[string]*entry, len(defs))
	for _, d := range defs {
		e, err := s.build(d)
		if err != nil {
			s.log.Warn("schedule skipped", logx.String("name", d.Name), logx.Err(err))
			continue
		}
		next[d.Name] = e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, e := range next {
		if old := s.entries[name]; old != nil {
			e.fires.Store(old.fires.Load())
			e.skips.Store(old.skips.Load())
		}
	}
	if s.c != nil {
		for _, e := range s.entries {
			s.c.Remove(e.id)
		}
		for _, e := range next {
			s.addLocked(e)
		}
	}
	s.entries = next
	s.log.Info("schedules applied", logx.Int("count", len(next)))
}

// Start begins triggering. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, e := range s.entries {
		s.addLocked(e)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.entries)))
}

// Stop stops triggering and waits for running jobs until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) addLocked(e *entry) {
	job := cron.FuncJob(func() { s.run(e) })
	if e.spec.Kind == SpecInterval {
		sched, spread := intervalWithSpread(e.spec.Every, time.Now().In(s.loc), e.def.Name)
		e.spread = spread
		e.id = s.c.Schedule(sched, job)
		return
	}
	id, err := s.c.AddJob(e.spec.Cron, job)
	if err != nil {
		// build already parsed the expression.
		s.log.Error("schedule add failed", logx.String("name", e.def.Name), logx.Err(err))
		return
	}
	e.id = id
}

func (s *Service) run(e *entry) {
	d := e.def
	data := s.fire.FireNotification(d.EventType, d.Title, d.Message, nil, map[string]any{ExtraScheduleName: d.Name})
	if data == nil {
		e.skips.Add(1)
		s.log.Debug("scheduled event inactive or unknown", logx.String("name", d.Name), logx.String("event", d.EventType))
		return
	}
	e.fires.Add(1)
	s.log.Debug("scheduled event fired", logx.String("name", d.Name), logx.String("event", d.EventType))
}

// RunNow fires the named schedule immediately.
func (s *Service) RunNow(name string) bool {
	s.mu.Lock()
	e := s.entries[name]
	s.mu.Unlock()
	if e == nil {
		return false
	}
	s.run(e)
	return true
}

func (s *Service) Snapshot() []EntryInfo {
	s.mu.Lock()
	out := make([]EntryInfo, 0, len(s.entries))
	for _, e := range s.entries {
		info := EntryInfo{
			Name:      e.def.Name,
			EventType: e.def.EventType,
			Spec:      e.def.Schedule,
			Source:    e.spec.Source,
			Fires:     e.fires.Load(),
			Skipped:   e.skips.Load(),
		}
		if s.c != nil && e.id != 0 {
			ce := s.c.Entry(e.id)
			info.Next, info.Prev = ce.Next, ce.Prev
		}
		out = append(out, info)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

const maxStartupSpread = 30 * time.Second

// spreadSchedule overrides the first run of an interval schedule so that
// many intervals configured together do not all fire at once.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

var spreadSeq atomic.Uint64

func intervalWithSpread(every time.Duration, now time.Time, tag string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	spreadMax := min(every, maxStartupSpread)
	if spreadMax <= 0 {
		return base, 0
	}
	f := fnv.New64a()
	_, _ = f.Write([]byte(tag))
	seed := time.Now().UnixNano() ^ int64(spreadSeq.Add(1)) ^ int64(f.Sum64())
	jitter := time.Duration(rand.New(rand.NewSource(seed)).Int63n(int64(spreadMax)))
	return &spreadSchedule{base: base, first: now.Add(every + jitter)}, jitter
}
