package provider

import (
	"time"

	"smsmock/internal/domain"
)

// Step is one entry in an entity's status progression. Delay is
// measured from the previous step; Reportable steps trigger a status
// callback when the entity has a callback URL.
type Step struct {
	Status     string
	Delay      time.Duration
	Reportable bool
}

// SequenceFor returns the ordered status progression for an entity
// kind and resolved outcome. The first step is always queued with no
// delay and no callback (it is the synchronous creation response); the
// last step is terminal. Reportable steps are spaced by delay.
func SequenceFor(kind domain.EntityKind, success bool, delay time.Duration) []Step {
	switch {
	case kind == domain.KindMessage && success:
		return []Step{
			{Status: domain.StatusQueued},
			{Status: domain.StatusSent, Delay: delay, Reportable: true},
			{Status: domain.StatusDelivered, Delay: delay, Reportable: true},
		}
	case kind == domain.KindCall && success:
		return []Step{
			{Status: domain.StatusQueued},
			{Status: domain.StatusRinging, Delay: delay, Reportable: true},
			{Status: domain.StatusInProgress, Delay: delay, Reportable: true},
			{Status: domain.StatusCompleted, Delay: delay, Reportable: true},
		}
	default:
		return []Step{
			{Status: domain.StatusQueued},
			{Status: domain.StatusFailed, Delay: delay, Reportable: true},
		}
	}
}
