package v1

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func env(typ, payload string) Envelope {
	return Envelope{V: Version, Type: typ, ID: "x", TS: time.Now(), Payload: []byte(payload)}
}

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		e    Envelope
		ok   bool
	}{
		{name: "ok", e: Envelope{V: Version, Type: TypeSwipe}, ok: true},
		{name: "missing v", e: Envelope{Type: TypeSwipe}},
		{name: "wrong v", e: Envelope{V: "v0", Type: TypeSwipe}},
		{name: "missing type", e: Envelope{V: Version}},
		{name: "unknown type", e: Envelope{V: Version, Type: "message_send"}},
	}
	for _, tc := range cases {
		err := tc.e.Validate()
		if (err == nil) != tc.ok {
			t.Fatalf("%s: err=%v ok=%v", tc.name, err, tc.ok)
		}
	}

	if !IsInbound(TypeExpandQueue) || IsInbound(TypeMatchFound) {
		t.Fatalf("IsInbound misclassifies types")
	}
}

func TestDecodeInbound_Valid(t *testing.T) {
	t.Parallel()

	msg, err := DecodeInbound(env(TypeCreateSession, `{"name":"  Ana ","location":{"lat":52.5,"lng":13.4},"radius":1500,"filters":[" Pizza "]}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c, ok := msg.(CreateSession)
	if !ok || c.Name != "Ana" || c.Radius != 1500 || c.Filters[0] != "pizza" || c.Location.Lat != 52.5 {
		t.Fatalf("unexpected create: %#v", msg)
	}

	msg, err = DecodeInbound(env(TypeJoinSession, `{"code":" abc234 ","name":"Ben"}`))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if j := msg.(JoinSession); j.Code != "ABC234" {
		t.Fatalf("code not normalized: %q", j.Code)
	}

	msg, err = DecodeInbound(env(TypeSwipe, `{"token":"t","candidate_id":"c1","decision":"ACCEPT"}`))
	if err != nil {
		t.Fatalf("swipe: %v", err)
	}
	sw, ok := msg.(Authenticated)
	if !ok || sw.AuthToken() != "t" || msg.(Swipe).Decision != "accept" {
		t.Fatalf("unexpected swipe: %#v", msg)
	}

	for _, typ := range []string{TypeReconnectSession, TypeStartSession, TypeExpandQueue} {
		msg, err := DecodeInbound(env(typ, `{"token":"tok"}`))
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if msg.Type() != typ {
			t.Fatalf("Type()=%q want=%q", msg.Type(), typ)
		}
		if a, ok := msg.(Authenticated); !ok || a.AuthToken() != "tok" {
			t.Fatalf("%s must carry its token", typ)
		}
	}
}

func TestDecodeInbound_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		typ     string
		payload string
		field   string
	}{
		{name: "empty name", typ: TypeCreateSession, payload: `{"name":"  ","location":{"lat":1,"lng":1}}`, field: "name"},
		{name: "long name", typ: TypeCreateSession, payload: `{"name":"` + strings.Repeat("x", 25) + `","location":{"lat":1,"lng":1}}`, field: "name"},
		{name: "control name", typ: TypeJoinSession, payload: `{"code":"ABC234","name":"a\u0007b"}`, field: "name"},
		{name: "missing location", typ: TypeCreateSession, payload: `{"name":"Ana"}`, field: "location"},
		{name: "bad latitude", typ: TypeCreateSession, payload: `{"name":"Ana","location":{"lat":91,"lng":1}}`, field: "location"},
		{name: "bad longitude", typ: TypeCreateSession, payload: `{"name":"Ana","location":{"lat":1,"lng":-181}}`, field: "location"},
		{name: "small radius", typ: TypeCreateSession, payload: `{"name":"Ana","location":{"lat":1,"lng":1},"radius":50}`, field: "radius"},
		{name: "large radius", typ: TypeCreateSession, payload: `{"name":"Ana","location":{"lat":1,"lng":1},"radius":50001}`, field: "radius"},
		{name: "empty filter", typ: TypeCreateSession, payload: `{"name":"Ana","location":{"lat":1,"lng":1},"filters":[" "]}`, field: "filters"},
		{name: "short code", typ: TypeJoinSession, payload: `{"code":"ABC23","name":"Ana"}`, field: "code"},
		{name: "ambiguous code", typ: TypeJoinSession, payload: `{"code":"ABC2O1","name":"Ana"}`, field: "code"},
		{name: "missing token", typ: TypeStartSession, payload: `{}`, field: "token"},
		{name: "huge token", typ: TypeExpandQueue, payload: `{"token":"` + strings.Repeat("t", MaxTokenBytes+1) + `"}`, field: "token"},
		{name: "bad decision", typ: TypeSwipe, payload: `{"token":"t","candidate_id":"c","decision":"maybe"}`, field: "decision"},
		{name: "missing candidate", typ: TypeSwipe, payload: `{"token":"t","decision":"accept"}`, field: "candidate_id"},
		{name: "malformed", typ: TypeSwipe, payload: `{"token":`, field: "payload"},
		{name: "missing payload", typ: TypeReconnectSession, payload: ``, field: "payload"},
	}
	for _, tc := range cases {
		_, err := DecodeInbound(env(tc.typ, tc.payload))
		var ve ValidationError
		if !errors.As(err, &ve) || !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if ve.Field != tc.field {
			t.Fatalf("%s: field=%q want=%q", tc.name, ve.Field, tc.field)
		}
	}

	if _, err := DecodeInbound(env(TypeMatchFound, `{}`)); err == nil {
		t.Fatalf("outbound types must not decode as inbound")
	}
}
