package recurring

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rocjay1/rm-recurring/internal/models"
)

// memStore is an in-memory ScheduleStore that versions rows like the real
// backends do.
type memStore struct {
	mu        sync.Mutex
	rows      map[string]models.RecurringSchedule
	order     []string
	version   int
	insertErr error
	findErr   error
	// unreadable is returned alongside the due set.
	unreadable []UnreadableSchedule
	// updateErr lets a test fail the advance of a given schedule.
	updateErr func(id string) error
	// findHook runs inside FindActiveDueOn before rows are read.
	findHook func()
	updates  int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]models.RecurringSchedule)}
}

func (m *memStore) nextETag() string {
	m.version++
	return fmt.Sprintf("v%d", m.version)
}

func (m *memStore) put(s models.RecurringSchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ETag = m.nextETag()
	if _, ok := m.rows[s.ID]; !ok {
		m.order = append(m.order, s.ID)
	}
	m.rows[s.ID] = s
}

func (m *memStore) get(id string) models.RecurringSchedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *memStore) InsertSchedule(ctx context.Context, s *models.RecurringSchedule) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[s.ID]; ok {
		return fmt.Errorf("schedule %s: %w", s.ID, ErrScheduleExists)
	}
	s.ETag = m.nextETag()
	m.rows[s.ID] = *s
	m.order = append(m.order, s.ID)
	return nil
}

func (m *memStore) FindActiveDueOn(ctx context.Context, today models.Date) ([]models.RecurringSchedule, []UnreadableSchedule, error) {
	if m.findHook != nil {
		m.findHook()
	}
	if m.findErr != nil {
		return nil, nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.RecurringSchedule
	for _, id := range m.order {
		s := m.rows[id]
		if s.IsActive && !s.NextDueDate.After(today) {
			due = append(due, s)
		}
	}
	return due, m.unreadable, nil
}

func (m *memStore) update(s *models.RecurringSchedule, adv models.ScheduleAdvance) error {
	if m.updateErr != nil {
		if err := m.updateErr(s.ID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.rows[s.ID]
	if !ok {
		return errors.New("schedule not found")
	}
	if current.ETag != s.ETag {
		return errors.New("schedule changed concurrently")
	}
	adv.Apply(&current)
	current.ETag = m.nextETag()
	m.rows[s.ID] = current
	s.ETag = current.ETag
	m.updates++
	return nil
}

func (m *memStore) UpdateAfterProcessing(ctx context.Context, s *models.RecurringSchedule, adv models.ScheduleAdvance) error {
	return m.update(s, adv)
}

func (m *memStore) UpdateAfterImmediateCreation(ctx context.Context, s *models.RecurringSchedule, adv models.ScheduleAdvance) error {
	return m.update(s, adv)
}

// memLedger records appended transactions.
type memLedger struct {
	mu      sync.Mutex
	entries []models.LedgerTransaction
	// failFor fails appends for the given schedule ids.
	failFor map[string]error
	// block makes appends wait for the context to finish.
	block bool
}

func (l *memLedger) AppendTransaction(ctx context.Context, tx models.LedgerTransaction) (string, error) {
	if l.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err, ok := l.failFor[tx.RecurringScheduleID]; ok {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	tx.ID = fmt.Sprintf("tx-%d", len(l.entries)+1)
	l.entries = append(l.entries, tx)
	return tx.ID, nil
}

func (l *memLedger) forSchedule(id string) []models.LedgerTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.LedgerTransaction
	for _, e := range l.entries {
		if e.RecurringScheduleID == id {
			out = append(out, e)
		}
	}
	return out
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type stubLocker struct {
	err      error
	locked   int
	unlocked int
}

func (s *stubLocker) TryLock(ctx context.Context) (func(), error) {
	if s.err != nil {
		return nil, s.err
	}
	s.locked++
	return func() { s.unlocked++ }, nil
}
