package dialog

import "sync"

type key struct {
	user   string
	option string
}

// Registry keeps one open dialog per user and coaching option, so that
// concurrent submits from the same user share the in-flight guard.
type Registry struct {
	creator Creator
	experts Experts

	mu      sync.Mutex
	dialogs map[key]*Dialog
}

func NewRegistry(creator Creator, experts Experts) *Registry {
	return &Registry{
		creator: creator,
		experts: experts,
		dialogs: make(map[key]*Dialog),
	}
}

// Open returns the user's dialog for the option, creating it on first use.
func (r *Registry) Open(user, coachingOption string) *Dialog {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{user: user, option: coachingOption}
	d, ok := r.dialogs[k]
	if !ok {
		d = New(r.creator, r.experts, coachingOption, user)
		r.dialogs[k] = d
	}
	return d
}

// Close drops the dialog, e.g. after a successful submit navigated away.
// Closing a dialog with a submit in flight is ignored.
func (r *Registry) Close(user, coachingOption string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{user: user, option: coachingOption}
	if d, ok := r.dialogs[k]; ok && !d.Submitting() {
		delete(r.dialogs, k)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dialogs)
}
