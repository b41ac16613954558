package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/labmgr/internal/auth"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/pkg/logger"
)

// Well-known profile sections. Any other key may be registered as well.
const (
	SectionBadge          = "badge"
	SectionUpcomingEvents = "upcoming_events"
	SectionRecentSessions = "recent_sessions"
)

// DefaultProfileSections are always reported, as present or absent.
var DefaultProfileSections = []string{SectionBadge, SectionUpcomingEvents, SectionRecentSessions}

// ProfileProvider loads one optional section of a profile. Returning a nil value marks
// the section absent for that account.
type ProfileProvider func(ctx context.Context, account *models.Account) (any, error)

// Profile is an account plus whatever optional sections could be assembled.
type Profile struct {
	Account  *models.Account `json:"account"`
	Sections map[string]any  `json:"sections"`
	Absent   []string        `json:"absent,omitempty"`
}

// ProfileService assembles profiles from optional subsystems looked up by key. A
// subsystem that is not registered, fails, or has nothing for the account is reported
// absent and never fails the profile.
type ProfileService struct {
	accounts *AccountService
	log      *zap.Logger

	mu        sync.RWMutex
	providers map[string]ProfileProvider
}

// NewProfileService constructs a ProfileService with no sections registered.
func NewProfileService(accounts *AccountService) (*ProfileService, error) {
	if accounts == nil {
		return nil, errors.New("profile service: account service is required")
	}
	return &ProfileService{
		accounts:  accounts,
		log:       logger.WithModule("profile"),
		providers: make(map[string]ProfileProvider),
	}, nil
}

// Register wires provider under key, replacing any previous one.
func (s *ProfileService) Register(key string, provider ProfileProvider) {
	key = strings.TrimSpace(key)
	if key == "" || provider == nil {
		return
	}
	s.mu.Lock()
	s.providers[key] = provider
	s.mu.Unlock()
}

// Lookup returns the provider for key.
func (s *ProfileService) Lookup(key string) (ProfileProvider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	provider, ok := s.providers[key]
	return provider, ok
}

// Keys lists the default sections plus every registered key, sorted.
func (s *ProfileService) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.providers)+len(DefaultProfileSections))
	keys := make([]string, 0, len(seen))
	for _, key := range DefaultProfileSections {
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for key := range s.providers {
		if _, ok := seen[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Get assembles the profile of accountID.
func (s *ProfileService) Get(ctx context.Context, accountID string) (*Profile, error) {
	ctx = ensureContext(ctx)

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	profile := &Profile{Account: account, Sections: make(map[string]any)}
	for _, key := range s.Keys() {
		provider, ok := s.Lookup(key)
		if !ok {
			profile.Absent = append(profile.Absent, key)
			continue
		}
		value, err := provider(ctx, account)
		if err != nil {
			s.log.Warn("profile section unavailable", zap.String("section", key), zap.String("account_id", account.ID), zap.Error(err))
			profile.Absent = append(profile.Absent, key)
			continue
		}
		if isNilSection(value) {
			profile.Absent = append(profile.Absent, key)
			continue
		}
		profile.Sections[key] = value
	}
	return profile, nil
}

func isNilSection(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case *models.Badge:
		return v == nil
	default:
		return false
	}
}

// BadgeSection reports the account's badge.
func BadgeSection() ProfileProvider {
	return func(_ context.Context, account *models.Account) (any, error) {
		if account.Badge == nil {
			return nil, nil
		}
		return account.Badge, nil
	}
}

// UpcomingEventsSection reports the account's approved future events.
func UpcomingEventsSection(events *EventRequestService, limit int) ProfileProvider {
	return func(ctx context.Context, account *models.Account) (any, error) {
		return events.Upcoming(ctx, account.ID, limit)
	}
}

// RecentSessionsSection reports the account's active login sessions.
func RecentSessionsSection(sessions *auth.SessionService, limit int) ProfileProvider {
	return func(ctx context.Context, account *models.Account) (any, error) {
		return sessions.ListActive(ctx, account.ID, limit)
	}
}
