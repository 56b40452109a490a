package invite

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zentalk/doubleratchet/pkg/drconfig"
	"github.com/zentalk/doubleratchet/pkg/event"
	"github.com/zentalk/doubleratchet/pkg/ratchet"
)

// acceptPayload is the inner DH-authenticated payload Accept builds
// and Listen recovers: spec.md §4.3 step 2, "{sessionKey: pub(sessionKey),
// deviceId?}".
type acceptPayload struct {
	SessionKey string  `json:"sessionKey"`
	DeviceID   *string `json:"deviceId,omitempty"`
}

// innerEnvelope is the unsigned "innerEvent" of spec.md §4.3 step 4:
// it travels only inside the outer envelope's ciphertext, so it needs
// no id/sig of its own.
type innerEnvelope struct {
	PubKey    event.PublicKey `json:"pubkey"`
	Content   string          `json:"content"`
	CreatedAt int64           `json:"created_at"`
}

// AcceptResult is what Accept hands back to the invitee: the session
// it just initialized as the initiator, and the envelope to publish.
type AcceptResult struct {
	Session  *ratchet.Session
	Envelope *event.Event
}

// Accept implements spec.md §4.3's invitee-side handshake exactly:
// generate a fresh session keypair, double-wrap it (identity-bound
// inner layer, then sharedSecret, then a one-shot sender key R), and
// initialize the invitee's session as initiator against the inviter's
// ephemeral public key.
func Accept(crypto ratchet.Crypto, bus event.Bus, inv *Invite, inviteeIdentityPriv ratchet.PrivateKey, deviceID *string, sessionName string) (*AcceptResult, error) {
	inviteeIdentityPub := crypto.Public(inviteeIdentityPriv)

	sessionPriv, sessionPub, err := crypto.Generate()
	if err != nil {
		return nil, fmt.Errorf("invite: accept: generate session key: %w", err)
	}

	payload := acceptPayload{SessionKey: hex.EncodeToString(sessionPub[:]), DeviceID: deviceID}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("invite: accept: marshal payload: %w", err)
	}

	convInvitee, err := crypto.DH(inviteeIdentityPriv, ratchet.PublicKey(inv.Inviter))
	if err != nil {
		return nil, fmt.Errorf("invite: accept: identity dh: %w", err)
	}
	dhEnc, err := crypto.Seal(convInvitee, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("invite: accept: seal identity layer: %w", err)
	}

	innerContent, err := crypto.Seal(inv.SharedSecret, dhEnc)
	if err != nil {
		return nil, fmt.Errorf("invite: accept: seal sharedSecret layer: %w", err)
	}
	inner := innerEnvelope{
		PubKey:    event.PublicKey(inviteeIdentityPub),
		Content:   hex.EncodeToString(innerContent),
		CreatedAt: time.Now().Unix(),
	}
	innerBytes, err := json.Marshal(inner)
	if err != nil {
		return nil, fmt.Errorf("invite: accept: marshal inner event: %w", err)
	}

	rPriv, rPub, err := crypto.Generate()
	if err != nil {
		return nil, fmt.Errorf("invite: accept: generate sender key R: %w", err)
	}
	convR, err := crypto.DH(rPriv, ratchet.PublicKey(inv.EphemeralPub))
	if err != nil {
		return nil, fmt.Errorf("invite: accept: R dh: %w", err)
	}
	envelopeCiphertext, err := crypto.Seal(convR, innerBytes)
	if err != nil {
		return nil, fmt.Errorf("invite: accept: seal envelope: %w", err)
	}

	envelope := &event.Event{
		PubKey:    event.PublicKey(rPub),
		Kind:      drconfig.KindInviteResponse,
		Content:   hex.EncodeToString(envelopeCiphertext),
		CreatedAt: ratchet.JitteredNow(),
		Tags:      []event.Tag{{"p", inv.EphemeralPub.Hex()}},
	}
	if err := envelope.Sign(ratchet.NewSigner(crypto, rPriv)); err != nil {
		return nil, fmt.Errorf("invite: accept: sign envelope: %w", err)
	}

	session, err := ratchet.New(crypto, bus, ratchet.PublicKey(inv.EphemeralPub), sessionPriv, true, inv.SharedSecret, sessionName)
	if err != nil {
		return nil, fmt.Errorf("invite: accept: init session: %w", err)
	}

	return &AcceptResult{Session: session, Envelope: envelope}, nil
}

// SessionHandler is invoked by Listen with the newly constructed
// responder session, the invitee's identity public key, and the
// optional deviceId the invitee announced.
type SessionHandler func(session *ratchet.Session, inviteeIdentityPub event.PublicKey, deviceID *string)

// ListenState tracks the maxUses/usedBy bookkeeping spec.md §4.3's
// "rationale" paragraph describes: "limiting uses enforces maxUses by
// tracking usedBy identities; once full, new responses are silently
// ignored." It is mutated by Listen's dispatch callback, so callers
// that want use-limiting MUST share one ListenState across the
// lifetime of a single Invite.
type ListenState struct {
	MaxUses int
	UsedBy  map[event.PublicKey]bool
}

// NewListenState returns a ListenState allowing up to maxUses distinct
// invitee identities (0 means unlimited).
func NewListenState(maxUses int) *ListenState {
	return &ListenState{MaxUses: maxUses, UsedBy: make(map[event.PublicKey]bool)}
}

func (ls *ListenState) admit(inviteeIdentityPub event.PublicKey) bool {
	if ls.UsedBy[inviteeIdentityPub] {
		return true
	}
	if ls.MaxUses > 0 && len(ls.UsedBy) >= ls.MaxUses {
		return false
	}
	ls.UsedBy[inviteeIdentityPub] = true
	return true
}

// Listen implements spec.md §4.3's inviter-side handshake: subscribe
// for InviteResponse events addressed ("#p") to inviterEphemeralPub,
// peel the three AEAD layers in reverse, and construct the responder
// session. inv.ExpiresAt, if set, is checked before any session is
// constructed (SPEC_FULL §4.3 supplement). state may be nil to skip
// maxUses enforcement.
func Listen(crypto ratchet.Crypto, bus event.Bus, inv *Invite, inviterIdentityPriv ratchet.PrivateKey, inviterEphemeralPriv *ratchet.PrivateKey, state *ListenState, onSession SessionHandler) (event.Unsubscribe, error) {
	if inviterEphemeralPriv == nil {
		return nil, ErrMissingCapability
	}

	filter := event.Filter{
		Kinds: []uint16{drconfig.KindInviteResponse},
		Tags:  map[string][]string{"p": {inv.EphemeralPub.Hex()}},
	}

	unsub := bus.Subscribe(filter, func(e *event.Event) {
		if inv.ExpiresAt != nil && e.CreatedAt > *inv.ExpiresAt {
			return
		}
		if !e.Verify(ratchet.NewVerifier(crypto)) {
			return
		}
		envelopeCiphertext, err := hex.DecodeString(e.Content)
		if err != nil {
			return
		}
		convR, err := crypto.DH(*inviterEphemeralPriv, ratchet.PublicKey(e.PubKey))
		if err != nil {
			return
		}
		innerBytes, err := crypto.Open(convR, envelopeCiphertext)
		if err != nil {
			return
		}
		var inner innerEnvelope
		if err := json.Unmarshal(innerBytes, &inner); err != nil {
			return
		}
		inviteeIdentityPub := inner.PubKey

		innerContent, err := hex.DecodeString(inner.Content)
		if err != nil {
			return
		}
		dhEnc, err := crypto.Open(inv.SharedSecret, innerContent)
		if err != nil {
			return
		}
		convInviter, err := crypto.DH(inviterIdentityPriv, ratchet.PublicKey(inviteeIdentityPub))
		if err != nil {
			return
		}
		payloadBytes, err := crypto.Open(convInviter, dhEnc)
		if err != nil {
			return
		}

		payload, ok := parseAcceptPayload(payloadBytes)
		if !ok {
			return
		}
		sessionKeyPub, err := event.ParsePublicKeyHex(payload.SessionKey)
		if err != nil {
			return
		}

		if state != nil && !state.admit(inviteeIdentityPub) {
			return
		}

		session, err := ratchet.New(crypto, bus, ratchet.PublicKey(sessionKeyPub), *inviterEphemeralPriv, false, inv.SharedSecret, e.ID)
		if err != nil {
			return
		}
		onSession(session, inviteeIdentityPub, payload.DeviceID)
	})
	return unsub, nil
}

// parseAcceptPayload parses payload JSON, falling back to treating the
// raw decrypted bytes as a bare hex sessionKey string — spec.md §4.3's
// "parse JSON (fallback: treat raw string as sessionKey)".
func parseAcceptPayload(b []byte) (acceptPayload, bool) {
	var payload acceptPayload
	if err := json.Unmarshal(b, &payload); err == nil && payload.SessionKey != "" {
		return payload, true
	}
	raw := string(b)
	if _, err := hex.DecodeString(raw); err != nil {
		return acceptPayload{}, false
	}
	return acceptPayload{SessionKey: raw}, true
}
