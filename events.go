package ctree

import (
	"fmt"
	"slices"
	"sync"
)

// Event identifies a notification point.
type Event int

const (
	EvFlowchart       Event = iota // flowchart generated
	EvProlog                       // prolog analysis finished
	EvPreoptimized                 // microcode preoptimized
	EvLocopt                       // block level optimization finished
	EvPrealloc                     // variable preallocation begins
	EvGlbopt                       // global optimization finished
	EvStructural                   // structural analysis finished
	EvMaturity                     // tree maturity is changing; args: *Cfunc, Maturity
	EvInterr                       // internal error; args: *Failure
	EvCombine                      // combining instructions of a block
	EvPrintFunc                    // printing the tree; args: *Cfunc
	EvFuncPrinted                  // text generated; args: *Cfunc
	EvResolveStkaddrs              // stack addresses are about to be resolved
)

// User interface events.
const (
	EvOpenPseudocode Event = iota + 100 // pseudocode view opened
	EvSwitchPseudocode                  // view reloaded with another function
	EvRefreshPseudocode                 // view text refreshed
	EvClosePseudocode                   // view closing
	EvKeyboard                          // key pressed
	EvRightClick                        // right mouse click
	EvDoubleClick                       // double click
	EvCurpos                            // cursor moved
	EvCreateHint                        // hint requested
	EvTextReady                         // text ready for display
	EvPopulatingPopup                   // popup menu being built
)

var eventNames = map[Event]string{
	EvFlowchart:         "flowchart",
	EvProlog:            "prolog",
	EvPreoptimized:      "preoptimized",
	EvLocopt:            "locopt",
	EvPrealloc:          "prealloc",
	EvGlbopt:            "glbopt",
	EvStructural:        "structural",
	EvMaturity:          "maturity",
	EvInterr:            "interr",
	EvCombine:           "combine",
	EvPrintFunc:         "print_func",
	EvFuncPrinted:       "func_printed",
	EvResolveStkaddrs:   "resolve_stkaddrs",
	EvOpenPseudocode:    "open_pseudocode",
	EvSwitchPseudocode:  "switch_pseudocode",
	EvRefreshPseudocode: "refresh_pseudocode",
	EvClosePseudocode:   "close_pseudocode",
	EvKeyboard:          "keyboard",
	EvRightClick:        "right_click",
	EvDoubleClick:       "double_click",
	EvCurpos:            "curpos",
	EvCreateHint:        "create_hint",
	EvTextReady:         "text_ready",
	EvPopulatingPopup:   "populating_popup",
}

func (ev Event) String() string {
	if s, ok := eventNames[ev]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(ev))
}

// Handler receives events. A nonzero result is returned by Fire and stops
// the delivery to later subscribers.
type Handler interface {
	HandleEvent(ev Event, args ...any) int
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev Event, args ...any) int

func (f HandlerFunc) HandleEvent(ev Event, args ...any) int { return f(ev, args...) }

// SubID identifies a subscription.
type SubID uint64

type subscription struct {
	id SubID
	h  Handler
}

// Bus delivers events to subscribers in subscription order. A nil *Bus
// drops every event.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
	next SubID
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) Subscribe(h Handler) SubID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs = append(b.subs, subscription{id: b.next, h: h})
	return b.next
}

// Unsubscribe removes a subscription and reports whether it existed.
func (b *Bus) Unsubscribe(id SubID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.IndexFunc(b.subs, func(s subscription) bool { return s.id == id })
	if i < 0 {
		return false
	}
	b.subs = slices.Delete(b.subs, i, i+1)
	return true
}

// Fire delivers ev. Handlers may subscribe or unsubscribe while being
// called; the change applies to the next event.
func (b *Bus) Fire(ev Event, args ...any) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()
	for _, s := range subs {
		if r := s.h.HandleEvent(ev, args...); r != 0 {
			return r
		}
	}
	return 0
}
