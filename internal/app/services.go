package app

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	iauth "github.com/charlesng35/labmgr/internal/auth"
	"github.com/charlesng35/labmgr/internal/cache"
	"github.com/charlesng35/labmgr/internal/notify"
	"github.com/charlesng35/labmgr/internal/services"
)

const profileSectionLimit = 5

// Services bundles the domain services shared by the HTTP API and the admin CLI.
type Services struct {
	JWT            *iauth.JWTService
	Sessions       *iauth.SessionService
	Templates      *notify.Templates
	Cache          cache.Store
	Audit          *services.AuditService
	Accounts       *services.AccountService
	Auth           *services.AuthService
	Registrations  *services.RegistrationService
	PasswordResets *services.PasswordResetService
	Events         *services.EventRequestService
	Interest       *services.InterestService
	Profiles       *services.ProfileService
}

// NewServices wires every domain service against db. Notifications are handed to
// notifier; store backs the session cache, pending-count cache and rate limiting.
func NewServices(db *gorm.DB, cfg *Config, notifier services.Notifier, store cache.Store) (*Services, error) {
	if db == nil {
		return nil, errors.New("services: database handle must be provided")
	}
	if cfg == nil {
		return nil, errors.New("services: config must be provided")
	}
	if notifier == nil {
		return nil, errors.New("services: notifier must be provided")
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("services: jwt: %w", err)
	}

	sessionCfg := cfg.Auth.SessionServiceConfig()
	sessionCfg.Cache = iauth.NewSessionCache(store)
	sessions, err := iauth.NewSessionService(db, jwtSvc, sessionCfg)
	if err != nil {
		return nil, err
	}

	templates, err := notify.NewTemplates(cfg.Site())
	if err != nil {
		return nil, fmt.Errorf("services: templates: %w", err)
	}

	out := &Services{JWT: jwtSvc, Sessions: sessions, Templates: templates, Cache: store}

	if out.Audit, err = services.NewAuditService(db); err != nil {
		return nil, err
	}
	if out.Accounts, err = services.NewAccountService(db, out.Audit, sessions); err != nil {
		return nil, err
	}
	if out.Auth, err = services.NewAuthService(db, sessions, out.Audit, cfg.Auth.LockoutPolicy()); err != nil {
		return nil, err
	}

	var regOpts []services.RegistrationOption
	if store != nil {
		regOpts = append(regOpts, services.WithRegistrationCache(store))
	}
	if out.Registrations, err = services.NewRegistrationService(db, out.Audit, notifier, templates, regOpts...); err != nil {
		return nil, err
	}
	if out.PasswordResets, err = services.NewPasswordResetService(db, out.Audit, sessions, notifier, templates, cfg.Auth.ResetTTL()); err != nil {
		return nil, err
	}
	if out.Events, err = services.NewEventRequestService(db, out.Audit, notifier, templates); err != nil {
		return nil, err
	}
	if out.Interest, err = services.NewInterestService(db, out.Audit, notifier, templates); err != nil {
		return nil, err
	}

	if out.Profiles, err = services.NewProfileService(out.Accounts); err != nil {
		return nil, err
	}
	out.Profiles.Register(services.SectionBadge, services.BadgeSection())
	out.Profiles.Register(services.SectionUpcomingEvents, services.UpcomingEventsSection(out.Events, profileSectionLimit))
	out.Profiles.Register(services.SectionRecentSessions, services.RecentSessionsSection(sessions, profileSectionLimit))

	return out, nil
}
