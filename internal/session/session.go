// Package session implements the partner-then-user login handshake,
// clock-skew correction, and token lifecycle spec.md §4.4 describes: the
// single choke point every RPC call goes through, so tokens and
// timeOffset stay consistent across the sequential calls spec.md §5
// requires.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kaelwave/wavetuner/internal/cipher"
	"github.com/kaelwave/wavetuner/internal/codec"
	"github.com/kaelwave/wavetuner/internal/errs"
	"github.com/kaelwave/wavetuner/internal/transport"
)

// state is the auth state machine spec.md §4.4 describes.
type state int

const (
	stateUnauth state = iota
	statePartnerAuthed
	stateUserAuthed
)

// Partner holds the fixed client identity, including the in/out key
// strings the Session keys its cipher pair from exactly once at init
// (spec.md §3 invariant), and the partner token/id the first login step
// returns.
type Partner struct {
	User      string
	Password  string
	Device    string
	InKey     string
	OutKey    string
	ID        string
	AuthToken string
}

// User holds the per-user identity issued on top of the partner
// identity.
type User struct {
	ListenerID string
	AuthToken  string
	Name       string
}

// Endpoint configures where RPC calls go.
type Endpoint struct {
	Scheme       string // defaults to "https"; tests may override to "http"
	RpcHost      string
	RpcPath      string
	TLSPort      int
	HTTPProxy    string
	ControlProxy string
	CABundle     string
}

// Session is the auth state machine plus the HTTP/cipher plumbing every
// RPC call is issued through.
type Session struct {
	mu sync.Mutex // session.lock (spec.md §5): guards authTokens and timeOffset

	state      state
	partner    Partner
	user       User
	timeOffset int64 // seconds; subtracted from local time to form each request's syncTime

	endpoint Endpoint
	ciphers  *cipher.Pair
	http     *transport.Client

	reauth singleflight.Group
}

// New builds a Session. The cipher pair is keyed exactly once here, from
// partner.InKey/OutKey, per spec.md §3's invariant.
func New(partner Partner, endpoint Endpoint, httpClient *transport.Client) (*Session, error) {
	pair, err := cipher.NewPair(partner.InKey, partner.OutKey)
	if err != nil {
		return nil, err
	}
	return &Session{
		partner:  partner,
		endpoint: endpoint,
		ciphers:  pair,
		http:     httpClient,
	}, nil
}

// IsUserAuthed reports whether the user login step has completed.
func (s *Session) IsUserAuthed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateUserAuthed
}

// ListenerID returns the authenticated user's listener id, if any.
func (s *Session) ListenerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.ListenerID
}

// syncTime returns wallClockSeconds - timeOffset, per spec.md's GLOSSARY.
func (s *Session) syncTime() int64 {
	return time.Now().Unix() - s.timeOffset
}

// Login drives the full partner-then-user handshake (spec.md §4.4).
func (s *Session) Login(ctx context.Context) error {
	if err := s.partnerLogin(ctx); err != nil {
		return err
	}
	return s.userLogin(ctx)
}

// partnerLogin performs the plaintext JSON partner step over TLS,
// decrypts the returned syncTime, and stores the partner authToken/id.
func (s *Session) partnerLogin(ctx context.Context) error {
	body, err := codec.BuildBody(map[string]any{
		"username":    s.partner.User,
		"password":    s.partner.Password,
		"deviceModel": s.partner.Device,
		"version":     "5",
		"includeUrls": true,
	}, false, "", 0)
	if err != nil {
		return err
	}

	raw, err := s.post(ctx, "auth.partnerLogin", body, false, false)
	if err != nil {
		return err
	}

	var result struct {
		PartnerAuthToken string `json:"partnerAuthToken"`
		PartnerID        string `json:"partnerId"`
		SyncTime         string `json:"syncTime"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return errs.Wrap(errs.KindProtocol, "invalid partnerLogin response", err)
	}

	offset, err := s.decryptSyncTime(result.SyncTime)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.partner.AuthToken = result.PartnerAuthToken
	s.partner.ID = result.PartnerID
	s.timeOffset = offset
	s.state = statePartnerAuthed
	s.mu.Unlock()

	slog.Info("session: partner login complete", "partner_id", result.PartnerID, "time_offset", offset)
	return nil
}

// decryptSyncTime decrypts hexSyncTime with the in-cipher, drops the
// first 4 bytes, parses the remaining ASCII digits as Unix seconds, and
// returns localNow - serverTime as the timeOffset (spec.md §4.4/§8).
func (s *Session) decryptSyncTime(hexSyncTime string) (int64, error) {
	decrypted, err := s.ciphers.In.DecryptFromHex(hexSyncTime)
	if err != nil {
		return 0, err
	}
	if len(decrypted) < 4 {
		return 0, errs.New(errs.KindProtocol, "syncTime payload too short")
	}
	digits := strings.TrimRight(string(decrypted[4:]), "\x00")
	serverTime, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, errs.Wrap(errs.KindProtocol, "invalid syncTime digits", err)
	}
	return time.Now().Unix() - serverTime, nil
}

// userLogin performs the encrypted JSON user step over TLS and stores
// the user authToken/listenerId.
func (s *Session) userLogin(ctx context.Context) error {
	s.mu.Lock()
	partnerAuthToken := s.partner.AuthToken
	sync := s.syncTime()
	username, password := s.partner.User, s.partner.Password
	s.mu.Unlock()

	body, err := codec.BuildBody(map[string]any{
		"loginType":        "user",
		"username":         username,
		"password":         password,
		"partnerAuthToken": partnerAuthToken,
		"syncTime":         sync,
	}, false, "", 0)
	if err != nil {
		return err
	}

	raw, err := s.post(ctx, "auth.userLogin", body, true, true)
	if err != nil {
		return err
	}

	var result struct {
		UserAuthToken string `json:"userAuthToken"`
		ListenerID    string `json:"listenerId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return errs.Wrap(errs.KindProtocol, "invalid userLogin response", err)
	}

	s.mu.Lock()
	s.user.AuthToken = result.UserAuthToken
	s.user.ListenerID = result.ListenerID
	s.state = stateUserAuthed
	s.mu.Unlock()

	slog.Info("session: user login complete", "listener_id", result.ListenerID)
	return nil
}

// post is the low-level send: it builds the URL, optionally encrypts the
// body with the out-cipher, issues the HTTP call, and parses the
// envelope. encrypted controls body encryption; duringUserLogin enables
// the InvalidPartnerLogin remap.
func (s *Session) post(ctx context.Context, method string, body []byte, encrypted, duringUserLogin bool) (json.RawMessage, error) {
	s.mu.Lock()
	partnerID := s.partner.ID
	var userAuthTok, listenerID string
	if s.state == stateUserAuthed {
		userAuthTok = s.user.AuthToken
		listenerID = s.user.ListenerID
	}
	s.mu.Unlock()

	scheme := s.endpoint.Scheme
	if scheme == "" {
		scheme = "https"
	}
	url := codec.BuildURL(codec.URLParams{
		Scheme:      scheme,
		Host:        s.endpoint.RpcHost,
		Port:        s.endpoint.TLSPort,
		Path:        s.endpoint.RpcPath,
		Method:      method,
		PartnerID:   partnerID,
		UserAuthTok: userAuthTok,
		ListenerID:  listenerID,
	})

	payload := body
	if encrypted {
		payload = []byte(s.ciphers.Out.EncryptToHex(body))
	}

	resp, err := s.http.Do(ctx, transport.Request{
		Method:     http.MethodPost,
		URL:        url,
		Body:       payload,
		Headers:    map[string]string{"Content-Type": "text/plain"},
		UseControl: true,
	})
	if err != nil {
		return nil, err
	}
	return codec.ParseEnvelope(resp.Body, duringUserLogin)
}

// Call is the single choke point every authed RPC operation goes
// through: it injects syncTime/userAuthToken via the body params,
// encrypts, posts, and on InvalidAuthToken performs exactly one silent
// re-auth + retry of the original call (spec.md §4.4/§7).
func (s *Session) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	raw, err := s.callOnce(ctx, method, params)
	if err == nil {
		return raw, nil
	}
	if !errs.IsInvalidAuthToken(err) {
		return nil, err
	}

	slog.Warn("session: auth token expired, re-authenticating", "method", method)
	if _, reErr, _ := s.reauth.Do("reauth", func() (any, error) {
		return nil, s.Login(ctx)
	}); reErr != nil {
		return nil, errs.Wrap(errs.KindServer, "re-authentication failed", reErr)
	}

	raw, retryErr := s.callOnce(ctx, method, params)
	if retryErr != nil {
		if errs.IsInvalidAuthToken(retryErr) {
			return nil, errs.New(errs.KindServer, "auth token invalid after re-authentication")
		}
		return nil, retryErr
	}
	return raw, nil
}

func (s *Session) callOnce(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if !s.IsUserAuthed() {
		return nil, errs.New(errs.KindLocal, "call requires a user-authenticated session")
	}
	s.mu.Lock()
	userAuthTok := s.user.AuthToken
	sync := s.syncTime()
	s.mu.Unlock()

	body, err := codec.BuildBody(params, true, userAuthTok, sync)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, method, body, true, false)
}

// CallPlaintext issues a user-authed call whose body must stay plaintext
// JSON even though it carries auth fields, for operations like
// changeSettings that spec.md §4.6 special-cases.
func (s *Session) CallPlaintext(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if !s.IsUserAuthed() {
		return nil, errs.New(errs.KindLocal, "call requires a user-authenticated session")
	}
	s.mu.Lock()
	userAuthTok := s.user.AuthToken
	sync := s.syncTime()
	s.mu.Unlock()

	body, err := codec.BuildBody(params, true, userAuthTok, sync)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, method, body, false, false)
}

// Close zeroes credential material before the Session is discarded
// (spec.md §5/§9: "credentials memory is zeroed before release").
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partner.Password = ""
	s.partner.AuthToken = ""
	s.user.AuthToken = ""
}
