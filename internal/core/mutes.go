package core

import "time"

// MuteRequestTTL is how long a mute-list forward waits for the server's answer.
const MuteRequestTTL = 10 * time.Second

// MuteRequest asks for a channel's mute list to be forwarded to Requester when it arrives.
type MuteRequest struct {
	Channel   string
	Requester string
	// ReplyTo is the channel the request was issued from, empty for private.
	ReplyTo string
	Created time.Time
}

// MuteQueue is the table of pending mute-list forwards. It is not synchronized;
// it lives inside State and is guarded by Shared.
type MuteQueue struct {
	now      func() time.Time
	requests []MuteRequest
}

// NewMuteQueue builds an empty queue. A nil clock means time.Now.
func NewMuteQueue(now func() time.Time) *MuteQueue {
	if now == nil {
		now = time.Now
	}
	return &MuteQueue{now: now}
}

// Add records a request stamped with the current time.
func (q *MuteQueue) Add(channel, requester, replyTo string) {
	q.requests = append(q.requests, MuteRequest{
		Channel:   channel,
		Requester: requester,
		ReplyTo:   replyTo,
		Created:   q.now(),
	})
}

// Drain removes every request for channel and returns those still worth answering:
// not expired and with the requester online.
func (q *MuteQueue) Drain(channel string, online func(name string) bool) []MuteRequest {
	now := q.now()
	var valid []MuteRequest
	kept := q.requests[:0]
	for _, req := range q.requests {
		if req.Channel != channel {
			kept = append(kept, req)
			continue
		}
		if now.Sub(req.Created) > MuteRequestTTL || !online(req.Requester) {
			continue
		}
		valid = append(valid, req)
	}
	q.requests = kept
	return valid
}

// Prune drops expired requests and those whose requester went offline.
func (q *MuteQueue) Prune(online func(name string) bool) int {
	now := q.now()
	kept := q.requests[:0]
	for _, req := range q.requests {
		if now.Sub(req.Created) > MuteRequestTTL || !online(req.Requester) {
			continue
		}
		kept = append(kept, req)
	}
	dropped := len(q.requests) - len(kept)
	q.requests = kept
	return dropped
}

// Len returns the number of pending requests.
func (q *MuteQueue) Len() int {
	return len(q.requests)
}
