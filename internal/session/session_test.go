package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaelwave/wavetuner/internal/cipher"
	"github.com/kaelwave/wavetuner/internal/errs"
	"github.com/kaelwave/wavetuner/internal/transport"
)

const (
	testInKey  = "R=U!LH$O"
	testOutKey = "6#26FRL$"
)

// encryptedSyncTime builds the hex blob partnerLogin returns: 4 junk
// bytes (spec.md §8 says only the suffix carries the timestamp) followed
// by the decimal ASCII seconds, encrypted with the in-key.
func encryptedSyncTime(t *testing.T, seconds int64) string {
	t.Helper()
	h, err := cipher.New(testInKey)
	require.NoError(t, err)
	plain := append([]byte{0xAA, 0xBB, 0xCC, 0xDD}, []byte(fmt.Sprintf("%d", seconds))...)
	return h.EncryptToHex(plain)
}

// fakeService models the minimal request/response cycle of the real
// endpoint for partnerLogin, userLogin, and one authed echo method.
func fakeService(t *testing.T, serverTime int64) *httptest.Server {
	t.Helper()
	outCipher, err := cipher.New(testOutKey)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/services/json", func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Query().Get("method")
		body, _ := readAll(r)

		switch method {
		case "auth.partnerLogin":
			writeOK(w, map[string]any{
				"partnerAuthToken": "partner-tok",
				"partnerId":        "p1",
				"syncTime":         encryptedSyncTime(t, serverTime),
			})
		case "auth.userLogin":
			plain, derr := outCipher.DecryptFromHex(string(body))
			require.NoError(t, derr)
			assert.Contains(t, string(plain), "partnerAuthToken")
			writeOK(w, map[string]any{
				"userAuthToken": "user-tok",
				"listenerId":    "l1",
			})
		case "user.echo":
			authTok := r.URL.Query().Get("auth_token")
			if authTok != "user-tok" {
				writeFail(w, errs.CodeInvalidAuthToken, "auth token expired")
				return
			}
			writeOK(w, map[string]any{"echoed": true})
		default:
			t.Fatalf("unexpected method %q", method)
		}
	})
	return httptest.NewServer(mux)
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func writeOK(w http.ResponseWriter, result map[string]any) {
	raw, _ := json.Marshal(result)
	fmt.Fprintf(w, `{"stat":"ok","result":%s}`, raw)
}

func writeFail(w http.ResponseWriter, code int, message string) {
	fmt.Fprintf(w, `{"stat":"fail","code":%d,"message":%q}`, code, message)
}

func newTestSession(t *testing.T, srv *httptest.Server) *Session {
	t.Helper()
	u := strings.TrimPrefix(srv.URL, "http://")
	host, port := splitHostPort(u)

	httpClient, err := transport.New(transport.Settings{Timeout: 2 * time.Second})
	require.NoError(t, err)

	s, err := New(
		Partner{User: "pu", Password: "pp", Device: "dev", InKey: testInKey, OutKey: testOutKey},
		Endpoint{Scheme: "http", RpcHost: host, RpcPath: "/services/json", TLSPort: port},
		httpClient,
	)
	require.NoError(t, err)
	return s
}

func splitHostPort(hostport string) (string, int) {
	idx := strings.LastIndex(hostport, ":")
	host := hostport[:idx]
	port := 0
	fmt.Sscanf(hostport[idx+1:], "%d", &port)
	return host, port
}

func TestLogin_SetsTimeOffsetAndTokens(t *testing.T) {
	now := time.Now().Unix()
	srv := fakeService(t, now-5) // server is 5s "behind" local clock
	defer srv.Close()

	s := newTestSession(t, srv)
	err := s.Login(context.Background())
	require.NoError(t, err)
	assert.True(t, s.IsUserAuthed())
	assert.Equal(t, "l1", s.ListenerID())
	assert.InDelta(t, 5, s.timeOffset, 2)
}

func TestCall_ReauthenticatesOnInvalidAuthToken(t *testing.T) {
	srv := fakeService(t, time.Now().Unix())
	defer srv.Close()

	s := newTestSession(t, srv)
	require.NoError(t, s.Login(context.Background()))

	// Simulate token expiry: the server rejects this token, so Call
	// should transparently re-authenticate and retry once.
	s.mu.Lock()
	s.user.AuthToken = "stale"
	s.mu.Unlock()

	raw, err := s.Call(context.Background(), "user.echo", map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "echoed")
}

func TestDecryptSyncTime_MatchesCipherRoundTrip(t *testing.T) {
	s := &Session{}
	pair, err := cipher.NewPair(testInKey, testOutKey)
	require.NoError(t, err)
	s.ciphers = pair

	hexBlob := encryptedSyncTime(t, 1700000000)
	offset, err := s.decryptSyncTime(hexBlob)
	require.NoError(t, err)
	assert.Equal(t, time.Now().Unix()-1700000000, offset)
}

func TestCallPlaintext_RequiresUserAuth(t *testing.T) {
	s := &Session{}
	_, err := s.CallPlaintext(context.Background(), "user.setQuickMix", nil)
	require.Error(t, err)
	e, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.KindLocal, e.Kind)
}

func TestClose_ZeroesCredentials(t *testing.T) {
	s := &Session{partner: Partner{Password: "secret", AuthToken: "ptok"}, user: User{AuthToken: "utok"}}
	s.Close()
	assert.Empty(t, s.partner.Password)
	assert.Empty(t, s.partner.AuthToken)
	assert.Empty(t, s.user.AuthToken)
}
