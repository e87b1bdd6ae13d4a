// Package signaling routes WebRTC negotiation and call-control messages
// between two connections and tracks who is screen-sharing.
//
// The relay never looks inside SDP or ICE bodies: they are carried as
// pion types and forwarded as received. Like the chat state, a Relay is
// not goroutine-safe; ws.Hub calls it under its own lock.
package signaling

import (
	"errors"
	"sort"

	"github.com/pion/webrtc/v4"

	"github.com/chatcore/internal/logger"
)

// Outgoing event names produced by the relay itself. Negotiation
// messages keep the name they arrived with.
const (
	EventCallIncoming = "call-incoming"
	EventCallAnswered = "call-answered"
	EventCallRejected = "call-rejected"
	EventCallEnded    = "call-ended"
)

var ErrSelfCall = errors.New("cannot call yourself")

// Sender delivers one event to one connection. It returns false when the
// connection is not (or no longer) registered.
type Sender interface {
	Send(connID, event string, payload any) bool
}

// Signal is the payload delivered to the peer.
type Signal struct {
	FromID    string                     `json:"fromId"`
	Media     string                     `json:"media,omitempty"`
	Reason    string                     `json:"reason,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// Relay holds the only signaling state the server keeps: call legs
// (connection → peer) and active screen shares (connection → channel).
type Relay struct {
	out    Sender
	legs   map[string]string
	shares map[string]string
}

func NewRelay(out Sender) *Relay {
	return &Relay{
		out:    out,
		legs:   make(map[string]string),
		shares: make(map[string]string),
	}
}

// Forward passes a negotiation message (offer, answer, ICE candidate) to
// the target, tagged with the sender id. A vanished target is dropped.
func (r *Relay) Forward(event, from, to string, sig Signal) bool {
	sig.FromID = from
	if !r.out.Send(to, event, sig) {
		logger.Debugf("signal %s from=%s dropped: target %s gone", event, from, to)
		return false
	}
	return true
}

// Initiate rings the target. Calling an offline participant is silently
// dropped; the caller times out on its own.
func (r *Relay) Initiate(from, to, media string) error {
	if from == to {
		return ErrSelfCall
	}
	if peer, busy := r.legs[to]; busy && peer != from {
		r.out.Send(from, EventCallRejected, Signal{FromID: to, Reason: "busy"})
		return nil
	}
	if !r.out.Send(to, EventCallIncoming, Signal{FromID: from, Media: media}) {
		logger.Debugf("call from=%s to=%s dropped: target gone", from, to)
		return nil
	}
	r.link(from, to)
	logger.Infof("call ringing from=%s to=%s media=%s", from, to, media)
	return nil
}

// Answer accepts a ringing call from caller.
func (r *Relay) Answer(from, caller string) {
	if !r.out.Send(caller, EventCallAnswered, Signal{FromID: from}) {
		r.unlink(from, caller)
		return
	}
	r.link(from, caller)
	logger.Infof("call active %s <-> %s", caller, from)
}

// Reject declines a ringing call and forgets the legs.
func (r *Relay) Reject(from, caller string) {
	r.unlink(from, caller)
	r.out.Send(caller, EventCallRejected, Signal{FromID: from})
}

// End hangs up and forgets the legs.
func (r *Relay) End(from, peer string) {
	r.unlink(from, peer)
	r.out.Send(peer, EventCallEnded, Signal{FromID: from})
	logger.Infof("call ended by=%s peer=%s", from, peer)
}

// InCall returns the peer a connection is ringing or talking to.
func (r *Relay) InCall(connID string) (string, bool) {
	p, ok := r.legs[connID]
	return p, ok
}

func (r *Relay) link(a, b string) {
	r.legs[a] = b
	r.legs[b] = a
}

func (r *Relay) unlink(a, b string) {
	if r.legs[a] == b {
		delete(r.legs, a)
	}
	if r.legs[b] == a {
		delete(r.legs, b)
	}
}

// StartShare marks connID as sharing its screen in channelID. A previous
// share by the same connection is replaced; its channel is returned.
func (r *Relay) StartShare(connID, channelID string) (previous string, replaced bool) {
	previous, replaced = r.shares[connID]
	r.shares[connID] = channelID
	return previous, replaced && previous != channelID
}

// StopShare clears connID's share and returns the channel it was in.
func (r *Relay) StopShare(connID string) (string, bool) {
	ch, ok := r.shares[connID]
	if ok {
		delete(r.shares, connID)
	}
	return ch, ok
}

// Sharers lists the connections sharing in channelID, sorted.
func (r *Relay) Sharers(channelID string) []string {
	var out []string
	for conn, ch := range r.shares {
		if ch == channelID {
			out = append(out, conn)
		}
	}
	sort.Strings(out)
	return out
}

// DropChannel stops every share in a deleted channel and returns the
// affected connections.
func (r *Relay) DropChannel(channelID string) []string {
	conns := r.Sharers(channelID)
	for _, c := range conns {
		delete(r.shares, c)
	}
	return conns
}

// Disconnect tears down everything connID owned. The peer of an active
// or ringing call is told the call ended; the stopped share (if any) is
// returned so the caller can broadcast it to the channel audience.
func (r *Relay) Disconnect(connID string) (shareChannel string, wasSharing bool) {
	if peer, ok := r.legs[connID]; ok {
		r.unlink(connID, peer)
		r.out.Send(peer, EventCallEnded, Signal{FromID: connID, Reason: "disconnected"})
	}
	return r.StopShare(connID)
}
