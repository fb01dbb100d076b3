package realtime

import (
	"net/url"

	"huddle/cmd/internal/session"
	v1 "huddle/shared/contracts/realtime/v1"
)

func (g *WSGateway) candidateView(c session.Candidate) v1.CandidateView {
	return v1.CandidateView{
		ID:         c.ID,
		Name:       c.Name,
		Categories: c.Categories,
		Rating:     c.Rating,
		PriceLevel: c.PriceLevel,
		Address:    c.Address,
		Location:   v1.Location{Lat: c.Location.Lat, Lng: c.Location.Lng},
		PhotoURL:   g.photoURL(c.PhotoRef),
	}
}

func (g *WSGateway) candidateViews(in []session.Candidate) []v1.CandidateView {
	out := make([]v1.CandidateView, 0, len(in))
	for _, c := range in {
		out = append(out, g.candidateView(c))
	}
	return out
}

// photoURL signs ref so the photo route can serve it without a session token.
func (g *WSGateway) photoURL(ref string) string {
	if ref == "" {
		return ""
	}
	q := url.Values{}
	q.Set("ref", ref)
	q.Set("sig", g.tokens.ResourceToken(ref))
	return g.cfg.PhotoPath + "?" + q.Encode()
}

func participantView(p session.ParticipantView) v1.ParticipantView {
	return v1.ParticipantView{
		ID:        p.ID,
		Name:      p.Name,
		IsHost:    p.IsHost,
		Connected: p.Connected,
	}
}

func matchView(m session.Match) v1.MatchView {
	return v1.MatchView{
		ID:             m.ID,
		CandidateID:    m.CandidateID,
		At:             m.At,
		ParticipantIDs: m.ParticipantIDs,
	}
}

// sessionView projects snap for participantID, whose cursor it carries.
func (g *WSGateway) sessionView(snap session.Snapshot, participantID string) v1.SessionView {
	v := v1.SessionView{
		Code:         snap.Code,
		Status:       string(snap.Status),
		HostID:       snap.HostID,
		ExpiresAt:    snap.ExpiresAt,
		Participants: make([]v1.ParticipantView, 0, len(snap.Participants)),
		Queue:        g.candidateViews(snap.Queue),
		Matches:      make([]v1.MatchView, 0, len(snap.Matches)),
	}
	for _, p := range snap.Participants {
		v.Participants = append(v.Participants, participantView(p))
		if p.ID == participantID {
			v.Cursor = p.LastSeenIndex
		}
	}
	for _, m := range snap.Matches {
		v.Matches = append(v.Matches, matchView(m))
	}
	if snap.Search != nil {
		v.Radius = snap.Search.Radius
	}
	return v
}

func findParticipant(snap session.Snapshot, participantID string) (session.ParticipantView, bool) {
	for _, p := range snap.Participants {
		if p.ID == participantID {
			return p, true
		}
	}
	return session.ParticipantView{}, false
}
