package ccc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ancwrd1/snx-rs-sub001/internal/model"
)

func TestAuthenticateContinueThenDone(t *testing.T) {
	var step int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		step++
		if step == 1 {
			w.Write([]byte(`(CCCserverResponse
				:ResponseHeader (:id (1) :type (Authenticate) :ReturnCode (0))
				:ResponseData (:session_id (S1) :authn_status (continue) :factor_type (PasswordInput)))`))
			return
		}
		w.Write([]byte(`(CCCserverResponse
			:ResponseHeader (:id (1) :type (ChallengeCode) :ReturnCode (0))
			:ResponseData (:session_id (S1) :authn_status (done) :active_key (K1)))`))
	}))
	defer srv.Close()

	c := New(srv.Listener.Addr().String(), true)
	c.httpClient = srv.Client()

	res, err := c.Authenticate(context.Background(), "vpn", "alice", "secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if res.SessionID != "S1" {
		t.Fatalf("session id = %q, want S1", res.SessionID)
	}
	pending, ok := res.State.(model.PendingChallenge)
	if !ok {
		t.Fatalf("state = %#v, want PendingChallenge", res.State)
	}
	if pending.Challenge.Type != model.MfaPasswordInput {
		t.Fatalf("challenge type = %q", pending.Challenge.Type)
	}

	res2, err := c.ChallengeCode(context.Background(), res.SessionID, "123456")
	if err != nil {
		t.Fatalf("challenge_code: %v", err)
	}
	done, ok := res2.State.(model.Authenticated)
	if !ok {
		t.Fatalf("state = %#v, want Authenticated", res2.State)
	}
	if done.ActiveKey != "K1" {
		t.Fatalf("active key = %q, want K1", done.ActiveKey)
	}
}

func TestPostReturnsProtocolErrorOnNonZeroReturnCode(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`(CCCserverResponse
			:ResponseHeader (:id (1) :type (Authenticate) :ReturnCode (1) :ReturnMessage ("bad credentials"))
			:ResponseData ())`))
	}))
	defer srv.Close()

	c := New(srv.Listener.Addr().String(), true)
	c.httpClient = srv.Client()

	_, err := c.Authenticate(context.Background(), "vpn", "alice", "wrong")
	if err == nil {
		t.Fatal("expected error on non-zero ReturnCode")
	}
}

func TestGetServerInfoMemoizes(t *testing.T) {
	var calls int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`(CCCserverResponse
			:ResponseHeader (:id (1) :type (get_server_info) :ReturnCode (0))
			:ResponseData (:login_options_data (:login_options_list (:0 (:id (vpn) :factors ())))))`))
	}))
	defer srv.Close()

	c := New(srv.Listener.Addr().String(), true)
	c.httpClient = srv.Client()

	info1, err := c.GetServerInfo(context.Background())
	if err != nil {
		t.Fatalf("get_server_info: %v", err)
	}
	info2, err := c.GetServerInfo(context.Background())
	if err != nil {
		t.Fatalf("get_server_info (cached): %v", err)
	}
	if info1 != info2 {
		t.Fatalf("expected cached pointer to be reused")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (memoized)", calls)
	}
	if len(info1.LoginOptions) != 1 || info1.LoginOptions[0].ID != "vpn" {
		t.Fatalf("unexpected login options: %#v", info1.LoginOptions)
	}
}

func TestGetIpsecKeysParsesAsymmetricSaMaterial(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`(CCCserverResponse
			:ResponseHeader (:id (1) :type (RequestIpsecKeys) :ReturnCode (0))
			:ResponseData (
				:om_addr (10.0.0.5)
				:lifetime (3600)
				:client_encsa (:spi (0x1001) :enc_alg (AES-256-CBC) :auth_alg (HMAC-SHA256) :enc_key (aabbcc) :auth_key (ddeeff) :esn (true))
				:client_decsa (:spi (0x2002) :enc_alg (AES-256-CBC) :auth_alg (HMAC-SHA256) :enc_key (112233) :auth_key (445566) :esn (false))))`))
	}))
	defer srv.Close()

	c := New(srv.Listener.Addr().String(), true)
	c.httpClient = srv.Client()

	keys, err := c.GetIpsecKeys(context.Background(), "S1")
	if err != nil {
		t.Fatalf("get_ipsec_keys: %v", err)
	}

	session := keys.Session
	if session.InnerIPv4 != "10.0.0.5" || session.Lifetime != 3600 {
		t.Fatalf("unexpected session: %#v", session)
	}

	if session.EspOut.Spi != 0x1001 || session.EspIn.Spi != 0x2002 {
		t.Fatalf("spis = out:%x in:%x, want out:1001 in:2002", session.EspOut.Spi, session.EspIn.Spi)
	}
	if session.EspOut.Spi == session.EspIn.Spi {
		t.Fatal("EspIn and EspOut must be asymmetric")
	}
	if string(session.EspOut.EncKey) != "\xaa\xbb\xcc" || string(session.EspIn.EncKey) != "\x11\x22\x33" {
		t.Fatalf("unexpected enc keys: out=%x in=%x", session.EspOut.EncKey, session.EspIn.EncKey)
	}
	if !session.EspOut.ESN || session.EspIn.ESN {
		t.Fatalf("esn flags = out:%v in:%v, want out:true in:false", session.EspOut.ESN, session.EspIn.ESN)
	}
}

func TestGetClientSettingsParsesUpdatedPoliciesRanges(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`(CCCserverResponse
			:ResponseHeader (:id (1) :type (ClientSettings) :ReturnCode (0))
			:ResponseData (
				:ipaddr (10.0.0.5)
				:subnet (10.0.0.0/8)
				:updated_policies (:range (:0 (:from (192.168.1.0) :to (192.168.1.255)) :1 (:from (10.1.0.0) :to (10.1.0.255))))
				:dns_servers (8.8.8.8)
				:dns_suffix (example.com)))`))
	}))
	defer srv.Close()

	c := New(srv.Listener.Addr().String(), true)
	c.httpClient = srv.Client()

	settings, err := c.GetClientSettings(context.Background(), "S1", "K1")
	if err != nil {
		t.Fatalf("get_client_settings: %v", err)
	}
	if len(settings.Ranges) != 2 {
		t.Fatalf("ranges = %#v, want 2 entries", settings.Ranges)
	}
	if settings.Ranges[0].Start.String() != "192.168.1.0" || settings.Ranges[0].End.String() != "192.168.1.255" {
		t.Fatalf("unexpected first range: %#v", settings.Ranges[0])
	}
}
