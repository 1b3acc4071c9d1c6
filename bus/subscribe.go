package bus

import (
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

// MatchRule is the (sender?, interface?, member?, path?, arg0?)
// 5-tuple spec.md §4.3 "Signal dispatch algorithm" keys subscriptions
// and bus match rules by. An empty field matches anything.
type MatchRule struct {
	Sender    string
	Interface string
	Member    string
	Path      string
	Arg0      string
}

// key collapses the rule to a string suitable for reference-counting
// identical rules installed on the bus (spec.md: "Adding the first
// subscription whose tuple becomes a given rule sends AddMatch...").
func (m MatchRule) key() string {
	return m.Sender + "\x00" + m.Interface + "\x00" + m.Member + "\x00" + m.Path + "\x00" + m.Arg0
}

// matchOptions renders the rule as godbus MatchOptions for
// AddMatchSignal/RemoveMatchSignal.
func (m MatchRule) matchOptions() []dbus.MatchOption {
	var opts []dbus.MatchOption
	if m.Sender != "" {
		opts = append(opts, dbus.WithMatchSender(m.Sender))
	}
	if m.Interface != "" {
		opts = append(opts, dbus.WithMatchInterface(m.Interface))
	}
	if m.Member != "" {
		opts = append(opts, dbus.WithMatchMember(m.Member))
	}
	if m.Path != "" {
		opts = append(opts, dbus.WithMatchObjectPath(dbus.ObjectPath(m.Path)))
	}
	if m.Arg0 != "" {
		opts = append(opts, dbus.WithMatchArg(0, m.Arg0))
	}
	return opts
}

// matches reports whether an arriving signal satisfies every present
// component of the rule. Exact-string comparison; a present arg0 only
// matches when the signal's first body element is itself a string
// (spec.md §4.3).
func (m MatchRule) matches(sender string, path dbus.ObjectPath, iface, member string, body []any) bool {
	if m.Sender != "" && m.Sender != sender {
		return false
	}
	if m.Interface != "" && m.Interface != iface {
		return false
	}
	if m.Member != "" && m.Member != member {
		return false
	}
	if m.Path != "" && m.Path != string(path) {
		return false
	}
	if m.Arg0 != "" {
		if len(body) == 0 {
			return false
		}
		arg0, ok := body[0].(string)
		if !ok || arg0 != m.Arg0 {
			return false
		}
	}
	return true
}

// isSenderScoped reports whether this rule is pinned to a specific
// connection unique name (":1.17"-style), as opposed to a well-known
// name or no sender filter at all. Sender-scoped subscriptions are
// permanently orphaned across a reconnect (spec.md §4.3 "Re-open").
func isSenderScoped(sender string) bool {
	return strings.HasPrefix(sender, ":")
}

// SignalCallback receives a demultiplexed signal matching a
// subscription's MatchRule.
type SignalCallback func(sender string, path dbus.ObjectPath, iface, member string, body []any)

// SubscriptionID identifies an active SignalSubscribe registration.
// Non-zero and stable for the lifetime of the subscription (spec.md
// §3 invariant (d)).
type SubscriptionID uuid.UUID

func (id SubscriptionID) String() string { return uuid.UUID(id).String() }

type subscription struct {
	id       SubscriptionID
	rule     MatchRule
	callback SignalCallback
	loop     *Loop
}

// subscriptionTable is a Connection's signal dispatch state: the
// reference-counted set of match rules actually installed on the bus,
// and the ordered list of subscriber callbacks (order of registration
// is the order callbacks fire, per spec.md §4.3).
type subscriptionTable struct {
	mu        sync.Mutex
	subs      []*subscription
	ruleCount map[string]int
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{ruleCount: make(map[string]int)}
}

// add registers cb under rule, installing the match rule on the bus
// via install the first time this exact rule is seen.
func (t *subscriptionTable) add(rule MatchRule, cb SignalCallback, loop *Loop, install func(MatchRule) error) (SubscriptionID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := rule.key()
	if t.ruleCount[k] == 0 {
		if err := install(rule); err != nil {
			return SubscriptionID{}, err
		}
	}
	t.ruleCount[k]++

	sub := &subscription{id: SubscriptionID(uuid.New()), rule: rule, callback: cb, loop: loop}
	t.subs = append(t.subs, sub)
	return sub.id, nil
}

// remove drops the subscription with id, uninstalling its match rule
// from the bus via uninstall when the last reference is dropped.
func (t *subscriptionTable) remove(id SubscriptionID, uninstall func(MatchRule) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, sub := range t.subs {
		if sub.id != id {
			continue
		}
		t.subs = append(t.subs[:i], t.subs[i+1:]...)

		k := sub.rule.key()
		t.ruleCount[k]--
		if t.ruleCount[k] <= 0 {
			delete(t.ruleCount, k)
			return uninstall(sub.rule)
		}
		return nil
	}
	return localError(KindMatchRuleNotFound, "unknown subscription")
}

// dropOrphaned removes every sender-scoped subscription without
// touching the bus (the connection has just reopened under a new
// unique name and RemoveMatch would be meaningless); called after a
// successful reopen, before rules are reinstalled (spec.md §4.3).
func (t *subscriptionTable) dropOrphaned() {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.subs[:0]
	counts := make(map[string]int)
	for _, sub := range t.subs {
		if isSenderScoped(sub.rule.Sender) {
			continue
		}
		kept = append(kept, sub)
		counts[sub.rule.key()]++
	}
	t.subs = kept
	t.ruleCount = counts
}

// reinstall re-issues AddMatch for every distinct rule still present,
// called after a reopen (spec.md §4.3: "match rules are re-installed
// on reopen").
func (t *subscriptionTable) reinstall(install func(MatchRule) error) error {
	t.mu.Lock()
	rules := make([]MatchRule, 0, len(t.ruleCount))
	seen := make(map[string]bool)
	for _, sub := range t.subs {
		k := sub.rule.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		rules = append(rules, sub.rule)
	}
	t.mu.Unlock()

	for _, r := range rules {
		if err := install(r); err != nil {
			return err
		}
	}
	return nil
}

// dispatch runs every matching subscription's callback, in
// registration order, each on its own recorded Loop (or synchronously
// if the subscription carries no Loop).
func (t *subscriptionTable) dispatch(sender string, path dbus.ObjectPath, iface, member string, body []any) {
	t.mu.Lock()
	matched := make([]*subscription, 0, 4)
	for _, sub := range t.subs {
		if sub.rule.matches(sender, path, iface, member, body) {
			matched = append(matched, sub)
		}
	}
	t.mu.Unlock()

	for _, sub := range matched {
		cb, s, p, i, m, b := sub.callback, sender, path, iface, member, body
		if sub.loop != nil {
			sub.loop.post(func() { cb(s, p, i, m, b) })
			continue
		}
		cb(s, p, i, m, b)
	}
}
