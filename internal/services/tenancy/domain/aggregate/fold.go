package aggregate

import (
	"fmt"
	"sort"

	"github.com/louisbranch/tenantcore/internal/services/tenancy/domain/event"
)

// FoldTable dispatches events of one aggregate type to typed fold functions.
type FoldTable[S any] map[event.Kind]func(*S, event.Event) error

// On returns a fold entry that receives the decoded payload.
func On[S any, P event.Payload](fn func(*S, P)) func(*S, event.Event) error {
	return func(state *S, evt event.Event) error {
		payload, err := PayloadAs[P](evt)
		if err != nil {
			return err
		}
		fn(state, payload)
		return nil
	}
}

// Fold dispatches evt to its entry.
func (t FoldTable[S]) Fold(state *S, evt event.Event) error {
	fn, ok := t[evt.Kind]
	if !ok {
		return fmt.Errorf("no fold for event kind %s", evt.Kind)
	}
	return fn(state, evt)
}

// Kinds lists the kinds the table handles, sorted.
func (t FoldTable[S]) Kinds() []event.Kind {
	kinds := make([]event.Kind, 0, len(t))
	for kind := range t {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// MissingKinds reports kinds of aggregate with no entry in t.
func (t FoldTable[S]) MissingKinds(aggregate event.AggregateType) []event.Kind {
	var missing []event.Kind
	for _, kind := range event.KindsOf(aggregate) {
		if _, ok := t[kind]; !ok {
			missing = append(missing, kind)
		}
	}
	return missing
}

// OnEvent is On for folds that also read the envelope, such as its timestamp.
func OnEvent[S any, P event.Payload](fn func(*S, event.Event, P)) func(*S, event.Event) error {
	return func(state *S, evt event.Event) error {
		payload, err := PayloadAs[P](evt)
		if err != nil {
			return err
		}
		fn(state, evt, payload)
		return nil
	}
}
