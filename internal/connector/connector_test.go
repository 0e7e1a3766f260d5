package connector

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ancwrd1/snx-rs-sub001/internal/ccc"
	"github.com/ancwrd1/snx-rs-sub001/internal/model"
	"github.com/ancwrd1/snx-rs-sub001/internal/platform"
	"github.com/ancwrd1/snx-rs-sub001/internal/tunnelevent"
)

func TestSSLConnectorAuthenticateContinueThenDone(t *testing.T) {
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

	params := &model.TunnelParams{
		ServerName:       srv.Listener.Addr().String(),
		LoginType:        "vpn",
		UserName:         "alice",
		IgnoreServerCert: true,
	}
	connector := NewSSLConnector(params)

	session, err := connector.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, ok := session.State.(model.PendingChallenge); !ok {
		t.Fatalf("state = %#v, want PendingChallenge", session.State)
	}

	session, err = connector.ChallengeCode(context.Background(), session, "000000")
	if err != nil {
		t.Fatalf("challenge_code: %v", err)
	}
	done, ok := session.State.(model.Authenticated)
	if !ok {
		t.Fatalf("state = %#v, want Authenticated", session.State)
	}
	if done.ActiveKey != "K1" {
		t.Fatalf("active key = %q, want K1", done.ActiveKey)
	}
}

func TestComputeRoutesFiltersIgnored(t *testing.T) {
	settings := &ccc.ClientSettings{Subnet: "192.168.1.0/24"}
	params := &model.TunnelParams{IgnoreRoutes: model.StringList{"10.0.0.0/8"}}

	routes := computeRoutes(settings, params)
	if len(routes) != 1 || routes[0].String() != "192.168.1.0/24" {
		t.Fatalf("routes = %v, want [192.168.1.0/24]", routes)
	}

	settings2 := &ccc.ClientSettings{Subnet: "10.1.0.0/24"}
	routes2 := computeRoutes(settings2, params)
	if len(routes2) != 0 {
		t.Fatalf("routes2 = %v, want empty (filtered by ignore_routes)", routes2)
	}
}

func TestComputeRoutesPrefersUpdatedPoliciesRangesOverSubnet(t *testing.T) {
	settings := &ccc.ClientSettings{
		Subnet: "0.0.0.0/0",
		Ranges: []platform.AddressRange{
			{Start: net.ParseIP("192.168.1.0"), End: net.ParseIP("192.168.1.255")},
			{Start: net.ParseIP("10.1.0.0"), End: net.ParseIP("10.1.0.255")},
		},
	}
	params := &model.TunnelParams{IgnoreRoutes: model.StringList{"10.0.0.0/8"}}

	routes := computeRoutes(settings, params)
	if len(routes) != 1 || routes[0].String() != "192.168.1.0/24" {
		t.Fatalf("routes = %v, want [192.168.1.0/24]", routes)
	}
}

func TestIPsecConnectorHandleTunnelEventRekeyChecksFetchesFreshKeys(t *testing.T) {
	var calls int
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`(CCCserverResponse
			:ResponseHeader (:id (1) :type (RequestIpsecKeys) :ReturnCode (0))
			:ResponseData (
				:om_addr (10.0.0.5)
				:lifetime (3600)
				:client_encsa (:spi (0x10) :enc_alg (AES-256-CBC) :auth_alg (HMAC-SHA256) :enc_key (aa) :auth_key (bb))
				:client_decsa (:spi (0x20) :enc_alg (AES-256-CBC) :auth_alg (HMAC-SHA256) :enc_key (cc) :auth_key (dd))))`))
	}))
	defer srv.Close()

	c := NewIPsecConnector(&model.TunnelParams{ServerName: srv.Listener.Addr().String(), IgnoreServerCert: true})
	session := &model.VpnSession{CCCSessionID: "S1"}

	cmd, err := c.HandleTunnelEvent(context.Background(), session, tunnelevent.Event{Kind: tunnelevent.RekeyCheck})
	if err != nil {
		t.Fatalf("handle_tunnel_event: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if cmd == nil || cmd.Kind != tunnelevent.ReKey {
		t.Fatalf("cmd = %#v, want ReKey", cmd)
	}
	if cmd.Session == nil || cmd.Session.EspIn.Spi != 0x20 || cmd.Session.EspOut.Spi != 0x10 {
		t.Fatalf("unexpected rekey session: %#v", cmd.Session)
	}
}

func TestIPsecConnectorHandleTunnelEventIgnoresOtherEvents(t *testing.T) {
	c := NewIPsecConnector(&model.TunnelParams{ServerName: "unused"})
	session := &model.VpnSession{CCCSessionID: "S1"}

	cmd, err := c.HandleTunnelEvent(context.Background(), session, tunnelevent.Event{Kind: tunnelevent.Connected})
	if err != nil {
		t.Fatalf("handle_tunnel_event: %v", err)
	}
	if cmd != nil {
		t.Fatalf("cmd = %#v, want nil for non-rekey events", cmd)
	}
}
