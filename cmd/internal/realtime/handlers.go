package realtime

import (
	"context"
	"errors"
	"time"

	"huddle/cmd/internal/matching"
	"huddle/cmd/internal/queue"
	"huddle/cmd/internal/ratelimit"
	"huddle/cmd/internal/session"
	"huddle/cmd/security/token"
	v1 "huddle/shared/contracts/realtime/v1"
)

// handle decodes one inbound envelope and runs its handler.
func (g *WSGateway) handle(ctx context.Context, c *Client, env v1.Envelope, now time.Time) {
	joinLike := env.Type == v1.TypeJoinSession || env.Type == v1.TypeReconnectSession

	// Origins that keep failing joins are stopped before any lookup happens.
	if joinLike {
		if d := g.limiter.CheckPenalty(c.Origin, now); !d.Allowed {
			g.rejectRateLimited(ctx, c, "", ratelimit.RateLimitError{Op: ratelimit.Op(env.Type), RetryAfter: d.RetryAfter})
			return
		}
	}

	msg, err := v1.DecodeInbound(env)
	if err != nil {
		g.rejectInvalid(ctx, c, env.Type, err, joinLike, now)
		return
	}

	switch m := msg.(type) {
	case v1.CreateSession:
		g.onCreate(ctx, c, m, now)
	case v1.JoinSession:
		g.onJoin(ctx, c, m, now)
	case v1.ReconnectSession:
		g.onReconnect(ctx, c, m, now)
	case v1.StartSession:
		g.onStart(ctx, c, m, now)
	case v1.Swipe:
		g.onSwipe(ctx, c, m, now)
	case v1.ExpandQueue:
		g.onExpand(ctx, c, m, now)
	default:
		g.trySendError(ctx, c, v1.ErrCodeUnsupported, "unsupported type: "+msg.Type())
	}
}

func (g *WSGateway) onCreate(ctx context.Context, c *Client, m v1.CreateSession, now time.Time) {
	if !g.allow(ctx, c, ratelimit.OpCreate, "", now) {
		return
	}

	search := g.queue.NewSearch(session.Location{Lat: m.Location.Lat, Lng: m.Location.Lng}, m.Filters, m.Radius)
	initial, err := g.queue.InitialCandidates(ctx, search)
	if err != nil {
		// The session still starts empty; the host can expand later.
		g.log.Warn("queue.initial.fail", "origin", c.Origin, "err", err)
	}

	out, err := g.capacity.CreateSession(session.CreateInput{
		HostName:   m.Name,
		Candidates: initial,
		Search:     &search,
		Origin:     c.Origin,
		Now:        now,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrOriginQuota):
			g.audit.RateLimited(string(ratelimit.OpCreate), c.Origin, "", 0)
			g.metrics.RateLimited("quota")
			g.trySendError(ctx, c, v1.ErrCodeQuotaExceeded, "too many active sessions")
		case errors.Is(err, session.ErrInvalidName), errors.Is(err, session.ErrInvalidSearch):
			g.audit.ValidationFailed(m.Type(), c.Origin, "session", err.Error())
			g.trySendError(ctx, c, v1.ErrCodeInvalidPayload, err.Error())
		case errors.Is(err, session.ErrCodeSpaceExhausted):
			g.log.Error("session.create.fail", "err", err, "sessions", g.store.Len())
			g.trySendError(ctx, c, v1.ErrCodeUnavailable, "no session codes available")
		default:
			g.log.Error("session.create.fail", "err", err)
			g.trySendError(ctx, c, v1.ErrCodeInternal, "internal error")
		}
		return
	}

	att, err := g.attach(c, out.Snapshot.Code, out.ParticipantID, now)
	if err != nil {
		g.log.Error("session.attach.fail", "code", out.Snapshot.Code, "err", err)
		g.trySendError(ctx, c, v1.ErrCodeInternal, "internal error")
		return
	}
	g.sendGrant(ctx, c, v1.TypeSessionCreated, att, out.Token)
}

func (g *WSGateway) onJoin(ctx context.Context, c *Client, m v1.JoinSession, now time.Time) {
	if !g.allow(ctx, c, ratelimit.OpJoin, "", now) {
		return
	}

	out, err := g.store.Join(m.Code, m.Name, now)
	if err != nil {
		reason, ok := joinFailReason(err)
		if !ok {
			g.log.Error("session.join.fail", "code", m.Code, "err", err)
			g.trySendError(ctx, c, v1.ErrCodeInternal, "internal error")
			return
		}
		g.audit.AuthFailed(m.Type(), c.Origin, m.Code, reason)
		g.failJoin(ctx, c, m.Type(), now)
		return
	}

	att, err := g.attach(c, out.Snapshot.Code, out.ParticipantID, now)
	if err != nil {
		g.audit.AuthFailed(m.Type(), c.Origin, m.Code, "attach_failed")
		g.failJoin(ctx, c, m.Type(), now)
		return
	}

	g.sendGrant(ctx, c, v1.TypeSessionJoined, att, out.Token)
	if p, ok := findParticipant(att.Snapshot, att.ParticipantID); ok {
		g.broadcast(att.Snapshot.Code, v1.TypeParticipantJoined, v1.ParticipantPayload{Participant: participantView(p)}, c.ConnID)
	}
}

func (g *WSGateway) onReconnect(ctx context.Context, c *Client, m v1.ReconnectSession, now time.Time) {
	if !g.allow(ctx, c, ratelimit.OpReconnect, "", now) {
		return
	}

	p, err := g.tokens.Verify(m.Token, now)
	if err != nil {
		g.audit.Reconnect(c.Origin, "", "", false, "invalid_token")
		g.failJoin(ctx, c, m.Type(), now)
		return
	}

	att, err := g.attach(c, p.SessionCode, p.ParticipantID, now)
	if err != nil {
		reason, ok := joinFailReason(err)
		if !ok {
			reason = "attach_failed"
		}
		g.audit.Reconnect(c.Origin, p.SessionCode, p.ParticipantID, false, reason)
		g.failJoin(ctx, c, m.Type(), now)
		return
	}

	if att.IsHost && g.store.CancelHostGrace(p.SessionCode) {
		g.log.Info("session.host.returned", "code", p.SessionCode)
	}
	g.audit.Reconnect(c.Origin, p.SessionCode, p.ParticipantID, true, "")

	g.sendGrant(ctx, c, v1.TypeSessionReconnected, att, "")
	if pv, ok := findParticipant(att.Snapshot, att.ParticipantID); ok {
		g.broadcast(p.SessionCode, v1.TypeParticipantReconnected, v1.ParticipantPayload{Participant: participantView(pv)}, c.ConnID)
	}
}

func (g *WSGateway) onStart(ctx context.Context, c *Client, m v1.StartSession, now time.Time) {
	p, ok := g.authorize(ctx, c, m, now)
	if !ok {
		return
	}

	snap, err := g.store.Start(p.SessionCode, p.ParticipantID, now)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotHost):
			g.audit.AuthFailed(m.Type(), c.Origin, p.SessionCode, "not_host")
			g.metrics.AuthFailed(m.Type())
			g.trySendError(ctx, c, v1.ErrCodeNotHost, "only the host can start the session")
		case errors.Is(err, session.ErrInvalidTransition):
			g.trySendError(ctx, c, v1.ErrCodeInvalidTransition, "session already started")
		default:
			g.sendSessionError(ctx, c, m.Type(), err)
		}
		return
	}

	g.audit.Lifecycle("started", snap.Code, "")
	g.broadcast(snap.Code, v1.TypeSessionStarted, v1.SessionStartedPayload{Code: snap.Code}, "")
}

func (g *WSGateway) onSwipe(ctx context.Context, c *Client, m v1.Swipe, now time.Time) {
	p, ok := g.authorize(ctx, c, m, now)
	if !ok {
		return
	}
	if !g.allow(ctx, c, ratelimit.OpSwipe, p.SessionCode, now) {
		return
	}

	d, ok := session.ParseDecision(m.Decision)
	if !ok {
		g.audit.ValidationFailed(m.Type(), c.Origin, "decision", m.Decision)
		g.trySendError(ctx, c, v1.ErrCodeInvalidPayload, "decision must be accept or reject")
		return
	}

	var (
		res   matching.Result
		cand  session.Candidate
		items []session.Candidate
	)
	err := g.store.With(p.SessionCode, now, func(s *session.Session) error {
		r, err := g.engine.RecordDecision(s, p.ParticipantID, m.CandidateID, d, now)
		if err != nil {
			return err
		}
		res = r
		if r.Match != nil {
			cand, _ = s.Candidate(r.Match.CandidateID)
		}
		if r.QueueChanged {
			items = s.QueueItems()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, matching.ErrCandidateNotFound) {
			g.audit.ValidationFailed(m.Type(), c.Origin, "candidate_id", m.CandidateID)
		}
		g.sendSessionError(ctx, c, m.Type(), err)
		return
	}

	if res.Match != nil {
		g.metrics.MatchFound()
		g.broadcast(p.SessionCode, v1.TypeMatchFound, v1.MatchFoundPayload{
			Match:     matchView(*res.Match),
			Candidate: g.candidateView(cand),
		}, "")
	}
	if res.QueueChanged {
		g.metrics.Eliminated()
		g.broadcast(p.SessionCode, v1.TypeQueueUpdated, v1.QueueUpdatedPayload{
			Queue:      g.candidateViews(items),
			Eliminated: res.Eliminated,
		}, "")
	}
}

func (g *WSGateway) onExpand(ctx context.Context, c *Client, m v1.ExpandQueue, now time.Time) {
	p, ok := g.authorize(ctx, c, m, now)
	if !ok {
		return
	}
	if !g.allow(ctx, c, ratelimit.OpExpand, p.SessionCode, now) {
		return
	}

	res, err := g.queue.Expand(ctx, p.SessionCode, now)
	if err != nil {
		g.sendSessionError(ctx, c, m.Type(), err)
		return
	}
	g.metrics.Expanded(string(res.Outcome))

	if res.Outcome.Terminal() {
		if res.Completed {
			g.audit.Lifecycle("completed", p.SessionCode, string(res.Outcome))
		}
		g.broadcast(p.SessionCode, v1.TypeNoMoreCandidates, v1.NoMoreCandidatesPayload{
			Reason:    string(res.Outcome),
			Radius:    res.Radius,
			Completed: res.Completed,
		}, "")
		if len(res.Added) == 0 {
			return
		}
	}

	snap, err := g.store.Get(p.SessionCode, now)
	if err != nil {
		g.sendSessionError(ctx, c, m.Type(), err)
		return
	}
	added := make([]string, 0, len(res.Added))
	for _, a := range res.Added {
		added = append(added, a.ID)
	}
	g.broadcast(p.SessionCode, v1.TypeQueueUpdated, v1.QueueUpdatedPayload{
		Queue:  g.candidateViews(snap.Queue),
		Added:  added,
		Radius: res.Radius,
	}, "")
}

// ---- shared checks ----

// authorize requires msg's token to belong to the participant this
// connection is attached as. Expiry and forgery are reported identically.
func (g *WSGateway) authorize(ctx context.Context, c *Client, msg v1.Authenticated, now time.Time) (token.Payload, bool) {
	code, pid, bound := c.Identity()
	reason := "not_attached"
	if bound {
		p, err := g.tokens.Authorize(msg.AuthToken(), code, now)
		if err == nil && p.ParticipantID == pid {
			return p, true
		}
		reason = "invalid_token"
	}

	g.audit.AuthFailed(msg.Type(), c.Origin, code, reason)
	g.metrics.AuthFailed(msg.Type())
	g.trySendError(ctx, c, v1.ErrCodeUnauthorized, "unauthorized")
	return token.Payload{}, false
}

func (g *WSGateway) allow(ctx context.Context, c *Client, op ratelimit.Op, code string, now time.Time) bool {
	err := g.limiter.Check(op, c.Origin, code, now)
	if err == nil {
		return true
	}
	var rl ratelimit.RateLimitError
	if !errors.As(err, &rl) {
		rl = ratelimit.RateLimitError{Op: op}
	}
	g.rejectRateLimited(ctx, c, code, rl)
	return false
}

func (g *WSGateway) rejectRateLimited(ctx context.Context, c *Client, code string, rl ratelimit.RateLimitError) {
	op := string(rl.Op)
	g.log.Debug("ws.rate_limited", "conn_id", c.ConnID, "err", rl)
	g.audit.RateLimited(op, c.Origin, code, rl.RetryAfter)
	g.metrics.RateLimited(op)
	_ = g.send(ctx, c, v1.TypeError, v1.ErrorPayload{
		Code:         v1.ErrCodeRateLimited,
		Message:      "too many requests",
		RetryAfterMS: rl.RetryAfter.Milliseconds(),
	})
}

// rejectInvalid answers a payload that failed boundary validation. Join-like
// events pay the same penalty and delay as a failed lookup.
func (g *WSGateway) rejectInvalid(ctx context.Context, c *Client, typ string, err error, joinLike bool, now time.Time) {
	field := "payload"
	var ve v1.ValidationError
	if errors.As(err, &ve) {
		field = ve.Field
	}
	g.audit.ValidationFailed(typ, c.Origin, field, err.Error())

	if joinLike {
		g.limiter.Penalize(c.Origin, now)
		g.joinDelay(ctx)
	}
	g.trySendError(ctx, c, v1.ErrCodeInvalidPayload, err.Error())
}

// failJoin charges the origin's penalty budget, waits a random delay and
// answers with a generic failure.
func (g *WSGateway) failJoin(ctx context.Context, c *Client, op string, now time.Time) {
	g.limiter.Penalize(c.Origin, now)
	g.metrics.AuthFailed(op)
	g.joinDelay(ctx)
	g.trySendError(ctx, c, v1.ErrCodeJoinFailed, "unable to join session")
}

func (g *WSGateway) joinDelay(ctx context.Context) {
	t := time.NewTimer(jitter(g.cfg.JoinDelayMin, g.cfg.JoinDelayMax))
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func joinFailReason(err error) (string, bool) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "not_found", true
	case errors.Is(err, session.ErrParticipantNotFound):
		return "unknown_participant", true
	case errors.Is(err, session.ErrSessionFull):
		return "full", true
	case errors.Is(err, session.ErrNotJoinable):
		return "not_joinable", true
	case errors.Is(err, session.ErrInvalidName):
		return "invalid_name", true
	default:
		return "", false
	}
}

func (g *WSGateway) sendGrant(ctx context.Context, c *Client, typ string, att session.Attachment, tok string) {
	_ = g.send(ctx, c, typ, v1.SessionGrantPayload{
		ParticipantID: att.ParticipantID,
		IsHost:        att.IsHost,
		Token:         tok,
		Session:       g.sessionView(att.Snapshot, att.ParticipantID),
	})
}

// sendSessionError maps engine errors onto wire error codes.
func (g *WSGateway) sendSessionError(ctx context.Context, c *Client, op string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		g.trySendError(ctx, c, v1.ErrCodeUnavailable, "session not found")
	case errors.Is(err, session.ErrParticipantNotFound):
		g.trySendError(ctx, c, v1.ErrCodeUnauthorized, "unauthorized")
	case errors.Is(err, session.ErrNotActive):
		g.trySendError(ctx, c, v1.ErrCodeNotActive, "session is not active")
	case errors.Is(err, session.ErrAlreadyDecided):
		g.trySendError(ctx, c, v1.ErrCodeAlreadyDecided, "decision already recorded")
	case errors.Is(err, matching.ErrCandidateNotFound), errors.Is(err, matching.ErrNotInQueue):
		g.trySendError(ctx, c, v1.ErrCodeUnknownCandidate, "candidate is not in the queue")
	case errors.Is(err, queue.ErrExpansionInFlight):
		g.trySendError(ctx, c, v1.ErrCodeExpansionBusy, "an expansion is already running")
	case errors.Is(err, queue.ErrNoSource), errors.Is(err, queue.ErrFetch):
		g.log.Warn("queue.expand.fail", "op", op, "err", err)
		g.trySendError(ctx, c, v1.ErrCodeUnavailable, "candidate source unavailable")
	default:
		g.log.Error("session.op.fail", "op", op, "err", err)
		g.trySendError(ctx, c, v1.ErrCodeInternal, "internal error")
	}
}
