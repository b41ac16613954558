package services

import (
	"go.uber.org/zap"

	"github.com/charlesng35/labmgr/internal/notify"
)

// Notifier hands notification jobs to background delivery. Implementations must return
// immediately and never surface delivery failures.
type Notifier interface {
	Dispatch(job notify.Job) bool
}

var _ Notifier = (*notify.Dispatcher)(nil)

// dispatch composes a job and queues it on notifier. A composition failure is logged
// with the job kind and never reaches the calling operation. A nil notifier is a no-op.
func dispatch(notifier Notifier, log *zap.Logger, kind notify.Kind, compose func() (notify.Job, error)) {
	if notifier == nil {
		return
	}
	job, err := compose()
	if err != nil {
		if log != nil {
			log.Warn("compose notification failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		return
	}
	notifier.Dispatch(job)
}
