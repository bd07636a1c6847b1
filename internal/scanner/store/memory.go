package store

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/martpos/internal/clock"
	"github.com/smallbiznis/martpos/internal/scanner/domain"
)

type memoryEntry struct {
	mu         sync.Mutex
	removed    bool
	activation domain.Activation
	items      []domain.ScannedItem
	lastSeen   time.Time
	lastStamp  time.Time
}

// MemoryStore keeps activations in process. Each desktop session has its own
// mutex; the maps are only touched to find or drop an entry.
type MemoryStore struct {
	opts    Options
	clock   clock.Clock
	entries sync.Map // desktop session id -> *memoryEntry
	tokens  sync.Map // activation token -> desktop session id
	mobiles sync.Map // mobile session token -> desktop session id
}

func NewMemoryStore(opts Options, clk clock.Clock) *MemoryStore {
	return &MemoryStore{opts: opts.withDefaults(), clock: clk}
}

// lockEntry returns the entry for id locked, creating it when create is set.
// It returns nil when the entry does not exist and create is false.
func (s *MemoryStore) lockEntry(id string, create bool) *memoryEntry {
	for {
		var e *memoryEntry
		if create {
			v, _ := s.entries.LoadOrStore(id, &memoryEntry{})
			e = v.(*memoryEntry)
		} else {
			v, ok := s.entries.Load(id)
			if !ok {
				return nil
			}
			e = v.(*memoryEntry)
		}

		e.mu.Lock()
		if !e.removed {
			return e
		}
		// Lost a race with Deactivate or the janitor; look again.
		e.mu.Unlock()
	}
}

// lockIndexed finds the entry that key points to in index and returns it
// locked when match still holds for its activation.
func (s *MemoryStore) lockIndexed(index *sync.Map, key string, match func(domain.Activation) bool) (*memoryEntry, error) {
	if key == "" {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	v, ok := index.Load(key)
	if !ok {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	e := s.lockEntry(v.(string), false)
	if e == nil {
		index.CompareAndDelete(key, v)
		return nil, domain.ErrInvalidOrExpiredToken
	}
	if !e.activation.Active || !match(e.activation) {
		e.mu.Unlock()
		return nil, domain.ErrInvalidOrExpiredToken
	}
	return e, nil
}

// lockByToken returns the entry owning an unexpired activation token, locked,
// with the time read under the lock.
func (s *MemoryStore) lockByToken(token string) (*memoryEntry, time.Time, error) {
	e, err := s.lockIndexed(&s.tokens, token, func(a domain.Activation) bool {
		return a.Token == token
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	now := s.clock.Now()
	if !now.Before(e.activation.TokenExpiresAt) {
		s.tokens.CompareAndDelete(token, e.activation.DesktopSessionID)
		e.mu.Unlock()
		return nil, time.Time{}, domain.ErrInvalidOrExpiredToken
	}
	return e, now, nil
}

// lockByMobile is lockByToken for the current mobile binding.
func (s *MemoryStore) lockByMobile(mobileToken string) (*memoryEntry, time.Time, error) {
	e, err := s.lockIndexed(&s.mobiles, mobileToken, func(a domain.Activation) bool {
		return a.MobileSessionToken != nil && *a.MobileSessionToken == mobileToken
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	now := s.clock.Now()
	if !now.Before(e.activation.MobileExpiresAt) {
		s.mobiles.CompareAndDelete(mobileToken, e.activation.DesktopSessionID)
		e.mu.Unlock()
		return nil, time.Time{}, domain.ErrInvalidOrExpiredToken
	}
	return e, now, nil
}

func live(a domain.Activation, now time.Time) bool {
	return a.Active && now.Before(a.SessionExpiresAt)
}

// forgetCredentials must be called with e.mu held.
func (s *MemoryStore) forgetCredentials(id string, e *memoryEntry) {
	if e.activation.Token != "" {
		s.tokens.CompareAndDelete(e.activation.Token, id)
	}
	if e.activation.MobileSessionToken != nil {
		s.mobiles.CompareAndDelete(*e.activation.MobileSessionToken, id)
	}
}

// remove must be called with e.mu held.
func (s *MemoryStore) remove(id string, e *memoryEntry) {
	s.forgetCredentials(id, e)
	e.removed = true
	e.items = nil
	s.entries.CompareAndDelete(id, e)
}

func (s *MemoryStore) Activate(ctx context.Context, desktopID string, sessionExpiresAt time.Time) (domain.Activation, error) {
	if desktopID == "" {
		return domain.Activation{}, domain.ErrInvalidDesktopSession
	}
	token, err := NewToken()
	if err != nil {
		return domain.Activation{}, err
	}

	e := s.lockEntry(desktopID, true)
	defer e.mu.Unlock()

	now := s.clock.Now()
	if !now.Before(sessionExpiresAt) {
		s.remove(desktopID, e)
		return domain.Activation{}, domain.ErrInvalidDesktopSession
	}

	activatedAt := now
	if live(e.activation, now) {
		activatedAt = e.activation.ActivatedAt
	}
	s.forgetCredentials(desktopID, e)
	e.activation = domain.Activation{
		DesktopSessionID: desktopID,
		Active:           true,
		ActivatedAt:      activatedAt,
		SessionExpiresAt: sessionExpiresAt,
		Token:            token,
		TokenExpiresAt:   capAt(now.Add(s.opts.TokenTTL), sessionExpiresAt),
	}
	e.lastSeen = now
	s.tokens.Store(token, desktopID)

	return e.activation, nil
}

func (s *MemoryStore) Deactivate(ctx context.Context, desktopID string) error {
	e := s.lockEntry(desktopID, false)
	if e == nil {
		return nil
	}
	defer e.mu.Unlock()
	s.remove(desktopID, e)
	return nil
}

func (s *MemoryStore) CheckActive(ctx context.Context, desktopID string) (bool, error) {
	e := s.lockEntry(desktopID, false)
	if e == nil {
		return false, nil
	}
	defer e.mu.Unlock()
	return live(e.activation, s.clock.Now()), nil
}

func (s *MemoryStore) BindMobile(ctx context.Context, token string) (domain.Binding, error) {
	mobile, err := NewToken()
	if err != nil {
		return domain.Binding{}, err
	}
	e, now, err := s.lockByToken(token)
	if err != nil {
		return domain.Binding{}, err
	}
	defer e.mu.Unlock()

	a := &e.activation
	if a.MobileSessionToken != nil {
		s.mobiles.CompareAndDelete(*a.MobileSessionToken, a.DesktopSessionID)
	}
	a.MobileSessionToken = &mobile
	a.MobileExpiresAt = capAt(now.Add(s.opts.TokenTTL), a.SessionExpiresAt)
	s.mobiles.Store(mobile, a.DesktopSessionID)
	e.lastSeen = now

	return domain.Binding{
		DesktopSessionID:   a.DesktopSessionID,
		MobileSessionToken: mobile,
		ExpiresAt:          a.MobileExpiresAt,
	}, nil
}

func (s *MemoryStore) CheckMobile(ctx context.Context, mobileToken string) (string, error) {
	e, _, err := s.lockByMobile(mobileToken)
	if err != nil {
		return "", err
	}
	defer e.mu.Unlock()
	return e.activation.DesktopSessionID, nil
}

func (s *MemoryStore) Enqueue(ctx context.Context, desktopID string, item domain.ScannedItem) error {
	e := s.lockEntry(desktopID, false)
	if e == nil {
		return domain.ErrNotActive
	}
	defer e.mu.Unlock()

	now := s.clock.Now()
	if !live(e.activation, now) {
		return domain.ErrNotActive
	}
	_, err := s.append(e, item, now)
	return err
}

func (s *MemoryStore) EnqueueMobile(ctx context.Context, mobileToken string, item domain.ScannedItem) (domain.ScannedItem, error) {
	e, now, err := s.lockByMobile(mobileToken)
	if err != nil {
		return domain.ScannedItem{}, err
	}
	defer e.mu.Unlock()

	queued, err := s.append(e, item, now)
	if err != nil {
		return domain.ScannedItem{}, err
	}
	e.activation.MobileExpiresAt = capAt(now.Add(s.opts.TokenTTL), e.activation.SessionExpiresAt)
	return queued, nil
}

// append must be called with e.mu held. Stamps never go backwards within a
// queue.
func (s *MemoryStore) append(e *memoryEntry, item domain.ScannedItem, now time.Time) (domain.ScannedItem, error) {
	if len(e.items) >= s.opts.MaxQueue {
		return domain.ScannedItem{}, domain.ErrQueueFull
	}
	stamp := now
	if stamp.Before(e.lastStamp) {
		stamp = e.lastStamp
	}
	item.SubmittedAt = stamp
	if item.ID == "" {
		item.ID = newItemID(stamp)
	}
	item.Consumed = false

	e.items = append(e.items, item)
	e.lastStamp = stamp
	e.lastSeen = now
	return item, nil
}

func (s *MemoryStore) Drain(ctx context.Context, desktopID string) ([]domain.ScannedItem, error) {
	e := s.lockEntry(desktopID, false)
	if e == nil {
		return []domain.ScannedItem{}, nil
	}
	defer e.mu.Unlock()

	items := e.items
	e.items = nil
	e.lastSeen = s.clock.Now()
	if items == nil {
		return []domain.ScannedItem{}, nil
	}
	for i := range items {
		items[i].Consumed = true
	}
	return items, nil
}

// Sweep evicts activations that sat idle longer than the idle timeout or
// outlived their login session, and forgets expired credentials. It returns
// the number of evicted activations.
func (s *MemoryStore) Sweep(now time.Time) int {
	evicted := 0
	s.entries.Range(func(key, value any) bool {
		id := key.(string)
		e := value.(*memoryEntry)

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.removed {
			return true
		}
		a := e.activation
		if now.Sub(e.lastSeen) > s.opts.IdleTimeout || !live(a, now) {
			s.remove(id, e)
			evicted++
			return true
		}
		if a.Token != "" && !now.Before(a.TokenExpiresAt) {
			s.tokens.CompareAndDelete(a.Token, id)
		}
		if a.MobileSessionToken != nil && !now.Before(a.MobileExpiresAt) {
			s.mobiles.CompareAndDelete(*a.MobileSessionToken, id)
		}
		return true
	})
	return evicted
}

var _ domain.Store = (*MemoryStore)(nil)
