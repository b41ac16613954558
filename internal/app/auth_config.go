package app

import (
	"time"

	"github.com/charlesng35/labmgr/internal/auth"
	"github.com/charlesng35/labmgr/internal/services"
)

const (
	defaultRefreshLength    = 48
	defaultPasswordResetTTL = time.Hour
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.RefreshTTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	length := c.Session.RefreshLength
	if length <= 0 {
		length = defaultRefreshLength
	}

	return auth.SessionConfig{
		RefreshTokenTTL: ttl,
		RefreshLength:   length,
	}
}

// LockoutPolicy converts the lockout settings into the login policy.
func (c AuthConfig) LockoutPolicy() services.LockoutPolicy {
	threshold := c.Lockout.Threshold
	if threshold <= 0 {
		threshold = services.DefaultMaxFailedAttempts
	}

	duration := c.Lockout.Duration
	if duration <= 0 {
		duration = services.DefaultLockoutDuration
	}

	return services.LockoutPolicy{
		MaxFailedAttempts: threshold,
		Duration:          duration,
	}
}

// ResetTTL returns how long password reset links stay valid.
func (c AuthConfig) ResetTTL() time.Duration {
	if c.PasswordResetTTL <= 0 {
		return defaultPasswordResetTTL
	}
	return c.PasswordResetTTL
}
