package livesync

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/vehiclecheck/internal/client/history"
	"github.com/dmitrijs2005/vehiclecheck/internal/client/models"
	"github.com/dmitrijs2005/vehiclecheck/internal/identity"
	"github.com/dmitrijs2005/vehiclecheck/internal/logging"
)

type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateUserResolved
	StateDataLive
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateUserResolved:
		return "user_resolved"
	case StateDataLive:
		return "data_live"
	case StateDetached:
		return "detached"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the allowed moves. Staying in UserResolved or DataLive
// is how record updates are applied.
var transitions = map[State][]State{
	StateIdle:           {StateAuthenticating, StateDetached},
	StateAuthenticating: {StateAuthenticating, StateUserResolved, StateDetached},
	StateUserResolved:   {StateAuthenticating, StateUserResolved, StateDataLive, StateDetached},
	StateDataLive:       {StateAuthenticating, StateDataLive, StateDetached},
	StateDetached:       {StateAuthenticating},
}

// CanTransition reports whether the pipeline may move from one state to
// another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// View is what a screen renders.
type View struct {
	State    State
	Identity *identity.Identity
	User     *models.UserRecord
	Records  []models.InspectionRecord
	Groups   []models.MonthGroup
	Summary  history.Summary
}

type event struct {
	kind     int
	gen      uint64
	identity *identity.Identity
	user     *models.UserRecord
	records  []models.InspectionRecord
}

const (
	evIdentity = iota
	evUser
	evRecords
)

// Pipeline chains session, user record and inspections for one screen.
// Callbacks from the sync components are queued and handled one at a time
// on the pipeline's own goroutine, so no handler ever runs re-entrantly.
type Pipeline struct {
	watcher     *SessionWatcher
	users       *UserRecordSync
	inspections *InspectionRecordSync
	listener    func(View)
	log         logging.Logger

	mu       sync.Mutex
	state    State
	view     View
	session  *Subscription
	userSub  *Subscription
	dataSub  *Subscription
	dataUser string
	userGen  uint64
	dataGen  uint64
	identGen uint64
	queue    []event
	signal   chan struct{}
	done     chan struct{}
}

func NewPipeline(w *SessionWatcher, users *UserRecordSync, inspections *InspectionRecordSync, listener func(View), l logging.Logger) *Pipeline {
	if l == nil {
		l = logging.Nop{}
	}
	if listener == nil {
		listener = func(View) {}
	}
	return &Pipeline{
		watcher:     w,
		users:       users,
		inspections: inspections,
		listener:    listener,
		log:         l.With("module", "pipeline"),
		state:       StateIdle,
	}
}

// Start attaches the pipeline. It returns a handle that detaches it; calling
// Start while attached returns the existing handle.
func (p *Pipeline) Start(ctx context.Context) *Subscription {
	p.mu.Lock()
	if p.state != StateIdle && p.state != StateDetached {
		s := p.session
		p.mu.Unlock()
		return s
	}
	p.setState(StateAuthenticating)
	p.view = View{State: StateAuthenticating}
	p.identGen++
	gen := p.identGen
	p.signal = make(chan struct{}, 1)
	p.done = make(chan struct{})
	signal, done := p.signal, p.done
	p.mu.Unlock()

	go p.loop(ctx, signal, done)

	watch := p.watcher.Watch(func(id *identity.Identity) {
		p.enqueue(event{kind: evIdentity, gen: gen, identity: id})
	})

	handle := newSubscription(func() {
		watch.Unsubscribe()
		p.detach()
	})

	p.mu.Lock()
	if gen != p.identGen {
		// Stopped while the watch was being set up.
		p.mu.Unlock()
		handle.Unsubscribe()
		return handle
	}
	p.session = handle
	p.mu.Unlock()
	return handle
}

// Stop detaches the pipeline and releases every subscription it holds.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()

	if session != nil {
		session.Unsubscribe()
		return
	}
	p.detach()
}

func (p *Pipeline) detach() {
	p.mu.Lock()
	if p.state == StateDetached || p.state == StateIdle {
		p.mu.Unlock()
		return
	}
	p.setState(StateDetached)
	p.identGen++
	p.userGen++
	p.dataGen++
	userSub, dataSub := p.userSub, p.dataSub
	p.userSub, p.dataSub, p.session = nil, nil, nil
	p.dataUser = ""
	p.queue = nil
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	p.view = View{State: StateDetached}
	view := p.view
	p.mu.Unlock()

	userSub.Unsubscribe()
	dataSub.Unsubscribe()
	p.publish(view)
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// setState must be called with p.mu held.
func (p *Pipeline) setState(to State) bool {
	if !CanTransition(p.state, to) {
		p.log.Debug(context.Background(), "transition rejected", "from", p.state.String(), "to", to.String())
		return false
	}
	p.state = to
	p.view.State = to
	return true
}

func (p *Pipeline) enqueue(e event) {
	p.mu.Lock()
	if p.done == nil {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, e)
	signal := p.signal
	p.mu.Unlock()

	select {
	case signal <- struct{}{}:
	default:
	}
}

func (p *Pipeline) loop(ctx context.Context, signal, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-signal:
		}

		for {
			p.mu.Lock()
			if len(p.queue) == 0 || p.done != done {
				p.mu.Unlock()
				break
			}
			e := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()

			switch e.kind {
			case evIdentity:
				p.onIdentity(ctx, e)
			case evUser:
				p.onUser(ctx, e)
			case evRecords:
				p.onRecords(e)
			}
		}
	}
}

func (p *Pipeline) onIdentity(ctx context.Context, e event) {
	p.mu.Lock()
	if e.gen != p.identGen || !p.setState(StateAuthenticating) {
		p.mu.Unlock()
		return
	}
	p.userGen++
	p.dataGen++
	userGen := p.userGen
	userSub, dataSub := p.userSub, p.dataSub
	p.userSub, p.dataSub = nil, nil
	p.dataUser = ""
	p.view = View{State: StateAuthenticating, Identity: e.identity}
	view := p.view
	p.mu.Unlock()

	userSub.Unsubscribe()
	dataSub.Unsubscribe()
	p.publish(view)

	if e.identity == nil {
		return
	}

	sub := p.users.Subscribe(ctx, e.identity, func(u *models.UserRecord) {
		p.enqueue(event{kind: evUser, gen: userGen, user: u})
	})

	p.mu.Lock()
	if userGen != p.userGen {
		p.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	p.userSub = sub
	p.mu.Unlock()

	p.watcher.Attach(sub)
}

func (p *Pipeline) onUser(ctx context.Context, e event) {
	p.mu.Lock()
	if e.gen != p.userGen {
		p.mu.Unlock()
		return
	}

	if e.user == nil {
		if p.state == StateAuthenticating && p.view.User == nil {
			p.mu.Unlock()
			return
		}
		p.dataGen++
		dataSub := p.dataSub
		p.dataSub = nil
		p.dataUser = ""
		p.setState(StateAuthenticating)
		p.view.User, p.view.Records, p.view.Groups, p.view.Summary = nil, nil, nil, history.Summary{}
		view := p.view
		p.mu.Unlock()

		dataSub.Unsubscribe()
		p.publish(view)
		return
	}

	p.view.User = e.user
	if p.state == StateAuthenticating {
		p.setState(StateUserResolved)
	}
	needData := p.dataUser != e.user.UserID
	var old *Subscription
	var dataGen uint64
	if needData {
		p.dataGen++
		dataGen = p.dataGen
		old = p.dataSub
		p.dataSub = nil
		p.dataUser = e.user.UserID
	}
	view := p.view
	p.mu.Unlock()

	p.publish(view)
	if !needData {
		return
	}
	old.Unsubscribe()

	sub := p.inspections.Subscribe(ctx, e.user.UserID, func(rs []models.InspectionRecord) {
		p.enqueue(event{kind: evRecords, gen: dataGen, records: rs})
	})

	p.mu.Lock()
	if dataGen != p.dataGen {
		p.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	p.dataSub = sub
	p.mu.Unlock()
}

func (p *Pipeline) onRecords(e event) {
	groups := history.Aggregate(e.records)
	summary := history.Summarize(groups)

	p.mu.Lock()
	if e.gen != p.dataGen || !p.setState(StateDataLive) {
		p.mu.Unlock()
		return
	}
	p.view.Records = e.records
	p.view.Groups = groups
	p.view.Summary = summary
	view := p.view
	p.mu.Unlock()

	p.publish(view)
}

func (p *Pipeline) publish(v View) {
	p.listener(v)
}
