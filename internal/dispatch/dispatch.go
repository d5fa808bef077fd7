package dispatch

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"smsmock/internal/domain"
	"smsmock/internal/provider"
	"smsmock/internal/repo"
)

const defaultDeliveryTimeout = 10 * time.Second

// Policy carries the timing and retry configuration for status
// progression and callback delivery.
type Policy struct {
	CallbacksEnabled bool
	StepDelay        time.Duration
	RetryAttempts    int // additional attempts after the first
	RetryDelay       time.Duration
	AccountSid       string
	DeliveryTimeout  time.Duration
}

// Dispatcher drives entities through their status sequences and hands
// reportable transitions to the retry coordinator. One goroutine per
// entity; callback delivery runs decoupled from status progression.
type Dispatcher struct {
	Repo   repo.Repo
	Policy Policy
	Client *http.Client
	Now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(r repo.Repo, p Policy) *Dispatcher {
	timeout := p.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		Repo:     r,
		Policy:   p,
		Client:   &http.Client{Timeout: timeout},
		Now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]struct{}),
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Start begins driving an entity through its sequence and returns
// immediately. A second Start for the same SID is a no-op: either the
// entity is still in flight, or it has already left the queued state.
// Returns false when the entity was not scheduled.
func (d *Dispatcher) Start(kind domain.EntityKind, sid, from, to string, callbackURL *string, success bool) bool {
	// Once Shutdown begins waiting, no new goroutines may join the group.
	if d.ctx.Err() != nil {
		return false
	}
	d.mu.Lock()
	if _, ok := d.inflight[sid]; ok {
		d.mu.Unlock()
		return false
	}
	d.inflight[sid] = struct{}{}
	d.mu.Unlock()

	status, err := d.currentStatus(kind, sid)
	if err != nil || status != domain.StatusQueued {
		d.mu.Lock()
		delete(d.inflight, sid)
		d.mu.Unlock()
		if err != nil {
			log.Printf("dispatch: lookup %s failed: %v", sid, err)
		}
		return false
	}

	d.wg.Add(1)
	go d.run(kind, sid, from, to, callbackURL, success)
	return true
}

// Shutdown cancels pending timers and waits for in-flight work, up to
// the deadline of ctx. Already-persisted statuses stay persisted;
// interrupted timers are not resumed on restart.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) currentStatus(kind domain.EntityKind, sid string) (string, error) {
	ctx := context.Background()
	if kind == domain.KindMessage {
		m, err := d.Repo.GetMessage(ctx, sid)
		return m.Status, err
	}
	c, err := d.Repo.GetCall(ctx, sid)
	return c.Status, err
}

func (d *Dispatcher) run(kind domain.EntityKind, sid, from, to string, callbackURL *string, success bool) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, sid)
		d.mu.Unlock()
	}()

	seq := provider.SequenceFor(kind, success, d.Policy.StepDelay)
	// The queued step was persisted synchronously at creation.
	for _, step := range seq[1:] {
		if !d.wait(step.Delay) {
			log.Printf("dispatch: shutdown, abandoning %s at %s", sid, step.Status)
			return
		}
		if err := d.applyStatus(kind, sid, step.Status); err != nil {
			// The step is not complete until persisted; stop here.
			log.Printf("dispatch: persist status %s for %s failed: %v", step.Status, sid, err)
			return
		}
		log.Printf("dispatch: %s %s status updated to %s", kind, sid, step.Status)
		if step.Reportable && callbackURL != nil && *callbackURL != "" && d.Policy.CallbacksEnabled {
			payload := d.payloadFor(kind, sid, from, to, step.Status)
			d.wg.Add(1)
			go func(target string, payload url.Values) {
				defer d.wg.Done()
				d.deliverWithRetry(target, payload)
			}(*callbackURL, payload)
		}
	}
}

// wait sleeps for delay, returning false if the dispatcher shut down
// before the delay elapsed.
func (d *Dispatcher) wait(delay time.Duration) bool {
	if delay <= 0 {
		return d.ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-d.ctx.Done():
		return false
	}
}

func (d *Dispatcher) applyStatus(kind domain.EntityKind, sid, status string) error {
	ctx := context.Background()
	now := d.now().UTC().Format(time.RFC3339)
	var err error
	var event domain.DeliveryEvent
	if kind == domain.KindMessage {
		err = d.Repo.UpdateMessageStatus(ctx, sid, status, now)
		event.MessageSid = &sid
	} else {
		err = d.Repo.UpdateCallStatus(ctx, sid, status, now)
		event.CallSid = &sid
	}
	if err != nil {
		return err
	}
	event.EventType = "status_update"
	event.Status = status
	event.CreatedAt = now
	_, err = d.Repo.InsertDeliveryEvent(ctx, event)
	return err
}

func (d *Dispatcher) payloadFor(kind domain.EntityKind, sid, from, to, status string) url.Values {
	payload := url.Values{}
	payload.Set("AccountSid", d.Policy.AccountSid)
	payload.Set("From", from)
	payload.Set("To", to)
	payload.Set("ApiVersion", "2010-04-01")
	if kind == domain.KindMessage {
		payload.Set("MessageSid", sid)
		payload.Set("MessageStatus", status)
	} else {
		payload.Set("CallSid", sid)
		payload.Set("CallStatus", status)
		payload.Set("Direction", "outbound-api")
	}
	return payload
}
