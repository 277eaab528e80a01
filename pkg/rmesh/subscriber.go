package rmesh

import (
	"context"

	"github.com/sandia-minimega/redimux/internal/endpoint"
	"github.com/sandia-minimega/redimux/internal/message"
	"github.com/sandia-minimega/redimux/internal/pubsub"
	"github.com/sandia-minimega/redimux/internal/respval"
)

// Subscriber is the pub/sub view (spec.md 4.F "Pub/sub"): it maintains the
// reference-counted subscription table and issues the wire
// SUBSCRIBE/UNSUBSCRIBE commands only on the first subscriber / last
// unsubscriber for a channel.
type Subscriber struct {
	mux *Multiplexer
}

// Subscribe registers handler for channel, issuing the wire SUBSCRIBE only
// if this is the channel's first subscriber. The returned token is passed
// to Unsubscribe.
func (s *Subscriber) Subscribe(ctx context.Context, channel string, handler pubsub.Handler) (pubsub.HandlerToken, error) {
	return s.subscribe(ctx, pubsub.Key{Kind: pubsub.KindChannel, Channel: channel}, channel, message.CmdSubscribe, handler)
}

// PSubscribe registers handler for pattern, issuing PSUBSCRIBE on first use.
func (s *Subscriber) PSubscribe(ctx context.Context, pattern string, handler pubsub.Handler) (pubsub.HandlerToken, error) {
	return s.subscribe(ctx, pubsub.Key{Kind: pubsub.KindPattern, Channel: pattern}, pattern, message.CmdPSubscribe, handler)
}

// SSubscribe registers handler for a cluster shard channel, issuing
// SSUBSCRIBE on first use.
func (s *Subscriber) SSubscribe(ctx context.Context, channel string, handler pubsub.Handler) (pubsub.HandlerToken, error) {
	return s.subscribe(ctx, pubsub.Key{Kind: pubsub.KindShard, Channel: channel}, channel, message.CmdSSubscribe, handler)
}

func (s *Subscriber) subscribe(ctx context.Context, key pubsub.Key, wireArg string, cmd message.Command, handler pubsub.Handler) (pubsub.HandlerToken, error) {
	tok, first := s.mux.pubTable.Subscribe(key, handler)
	if !first {
		return tok, nil
	}
	ep, err := s.subscriptionEndpoint(key)
	if err != nil {
		s.mux.pubTable.Unsubscribe(key, tok)
		return 0, err
	}
	if err := sendSubscribeCommand(ctx, ep, cmd, wireArg); err != nil {
		s.mux.pubTable.Unsubscribe(key, tok)
		return 0, err
	}
	return tok, nil
}

// Unsubscribe removes tok from key's handler list, issuing the wire
// UNSUBSCRIBE/PUNSUBSCRIBE/SUNSUBSCRIBE only if it was the last handler.
func (s *Subscriber) Unsubscribe(ctx context.Context, key pubsub.Key, tok pubsub.HandlerToken) error {
	last := s.mux.pubTable.Unsubscribe(key, tok)
	if !last {
		return nil
	}
	ep, err := s.subscriptionEndpoint(key)
	if err != nil {
		return err
	}
	cmd := message.CmdUnsubscribe
	switch key.Kind {
	case pubsub.KindPattern:
		cmd = message.CmdPUnsubscribe
	case pubsub.KindShard:
		cmd = message.CmdSUnsubscribe
	}
	return sendSubscribeCommand(ctx, ep, cmd, key.Channel)
}

// subscriptionEndpoint picks the endpoint this subscriber's wire commands
// run against; standalone/primary-replica topologies subscribe against the
// primary, cluster topology against the shard owning the channel's slot
// when the channel participates in routing (shard channels) or any known
// node otherwise (classic pub/sub is cluster-wide).
func (s *Subscriber) subscriptionEndpoint(key pubsub.Key) (*endpoint.Endpoint, error) {
	if key.Kind == pubsub.KindShard {
		return s.mux.sel.Pick([]byte(key.Channel), 0)
	}
	return s.mux.sel.Pick(nil, 0)
}

func sendSubscribeCommand(ctx context.Context, ep *endpoint.Endpoint, cmd message.Command, arg string) error {
	var args [][]byte
	if arg != "" {
		args = [][]byte{[]byte(arg)}
	}
	// Fire-and-forget: the confirmation frame is routed to PushHandler on
	// the subscription bridge, never to this message's own In-flight slot
	// (internal/bridge readLoop).
	m := message.New(cmd, -1, message.FlagHighPriority|message.FlagFireAndForget, nil, args, respval.Void{})
	return ep.Subscription.Submit(ctx, m)
}
