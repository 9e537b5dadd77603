package tonobserve

import "github.com/certen/ton-relay/pkg/tonsub"

// ContractObserver is implemented by every typed contract wrapper above
// (BridgeContract, ElectionsContract, UserDataContract) that can decode a
// DomainEvent out of one of its own transactions.
type ContractObserver interface {
	ReadFromTransaction(tx tonsub.Transaction) (DomainEvent, bool)
}

// dispatchSubscription adapts a ContractObserver into a
// tonsub.TransactionsSubscription, forwarding every decoded DomainEvent
// onto events. Transactions that decode to nothing (not this contract's
// event, or an unrecognized function name) are silently skipped, matching
// the "event handlers never abort siblings" propagation policy in §7.
type dispatchSubscription struct {
	observer ContractObserver
	events   chan<- DomainEvent
}

func (d dispatchSubscription) HandleTransaction(info tonsub.BlockInfo, hash [32]byte, tx tonsub.Transaction) error {
	ev, ok := d.observer.ReadFromTransaction(tx)
	if !ok {
		return nil
	}
	select {
	case d.events <- ev:
	default:
		// A full channel means nobody is draining fast enough; drop rather
		// than block the shared dispatch goroutine, matching the "event
		// handlers never abort siblings" policy above.
	}
	return nil
}

// Observe registers observer against account on sub and returns a channel
// of every DomainEvent it decodes from that account's transactions, plus
// the subscription token so the caller can Unsubscribe on shutdown.
// buffer sizes the event channel; callers should pick something that
// comfortably absorbs a burst of transactions between drain cycles.
func Observe(sub *tonsub.Subscriber, account tonsub.AccountID, observer ContractObserver, buffer int, isAlive func() bool) (tonsub.SubscriptionToken, <-chan DomainEvent) {
	events := make(chan DomainEvent, buffer)
	token := sub.AddTransactionsSubscription(account, dispatchSubscription{observer: observer, events: events}, isAlive)
	return token, events
}
