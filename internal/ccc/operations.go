package ccc

import (
	"context"
	"encoding/hex"
	"net"
	"strconv"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
	"github.com/ancwrd1/snx-rs-sub001/internal/model"
	"github.com/ancwrd1/snx-rs-sub001/internal/platform"
	"github.com/ancwrd1/snx-rs-sub001/internal/sexpr"
)

// ServerInfo is the gateway metadata returned by get_server_info.
type ServerInfo struct {
	LoginOptions []model.LoginOption
}

// GetServerInfo fetches and memoizes the gateway's login options; repeated
// calls return the cached result without another round trip.
func (c *Client) GetServerInfo(ctx context.Context) (*ServerInfo, error) {
	c.infoOnce.Do(func() {
		c.info, c.infoErr = c.fetchServerInfo(ctx)
	})
	return c.info, c.infoErr
}

func (c *Client) fetchServerInfo(ctx context.Context) (*ServerInfo, error) {
	req := sexpr.Obj("get_server_info",
		sexpr.Field("client_type", sexpr.Val("TRAC")),
	)
	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	var opts []model.LoginOption
	optionsTree, ok := resp.Path("login_options_data:login_options_list")
	if ok {
		for _, item := range treeItems(optionsTree) {
			opts = append(opts, parseLoginOption(item))
		}
	}
	return &ServerInfo{LoginOptions: opts}, nil
}

func parseLoginOption(t sexpr.Tree) model.LoginOption {
	id := sexpr.GetString(t, "id")

	var factors []model.LoginFactor
	factorsTree, ok := t.Get("factors")
	if ok {
		for _, item := range treeItems(factorsTree) {
			factors = append(factors, parseLoginFactor(item))
		}
	}
	return model.LoginOption{ID: id, Factors: factors}
}

func parseLoginFactor(t sexpr.Tree) model.LoginFactor {
	factor := model.LoginFactor{
		Type:          model.FactorType(sexpr.GetString(t, "factor_type")),
		DisplayLabels: map[string]model.LoginDisplayLabel{},
	}
	labelsTree, ok := t.Get("custom_display_labels")
	if !ok {
		return factor
	}
	for _, m := range labelsTree.Object {
		factor.DisplayLabels[m.Key] = model.LoginDisplayLabel{
			Header: sexpr.GetString(m.Value, "header"),
			Prompt: sexpr.GetString(m.Value, "prompt"),
		}
	}
	return factor
}

// AuthResult is the normalized outcome of authenticate / challenge_code.
type AuthResult struct {
	SessionID string
	State     model.SessionState
}

// Authenticate begins a login sequence against the given login option,
// submitting the first-factor credential (username/password or an empty
// value for certificate/SAML/otp flows that prompt separately).
func (c *Client) Authenticate(ctx context.Context, loginType, username, password string) (*AuthResult, error) {
	payload := sexpr.Obj("Authenticate",
		sexpr.Field("client_type", sexpr.Val("TRAC")),
		sexpr.Field("selected_login_option", sexpr.Val(loginType)),
		sexpr.Field("username", sexpr.Val(username)),
		sexpr.Field("password", sexpr.Val(password)),
	)
	resp, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	return parseAuthResponse(resp)
}

// ChallengeCode submits a follow-up MFA factor (OTP, SAML assertion, etc.)
// against an in-progress session.
func (c *Client) ChallengeCode(ctx context.Context, sessionID, code string) (*AuthResult, error) {
	payload := sexpr.Obj("ChallengeCode",
		sexpr.Field("session_id", sexpr.Val(sessionID)),
		sexpr.Field("client_type", sexpr.Val("TRAC")),
		sexpr.Field("code", sexpr.Val(code)),
	)
	resp, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	return parseAuthResponse(resp)
}

func parseAuthResponse(resp sexpr.Tree) (*AuthResult, error) {
	sessionID := sexpr.GetString(resp, "session_id")
	status := sexpr.GetString(resp, "authn_status")

	switch status {
	case "continue":
		challenge := model.MfaChallenge{
			Type:   model.MfaType(sexpr.GetString(resp, "factor_type")),
			Prompt: sexpr.GetString(resp, "prompt"),
		}
		return &AuthResult{
			SessionID: sessionID,
			State:     model.PendingChallenge{Challenge: challenge},
		}, nil
	case "done":
		return &AuthResult{
			SessionID: sessionID,
			State:     model.Authenticated{ActiveKey: sexpr.GetString(resp, "active_key")},
		}, nil
	default:
		return nil, apperror.Newf(apperror.Auth, "ccc: unexpected authn_status %q", status)
	}
}

// ClientSettings carries the office-mode address assignment and routing
// policy returned by get_client_settings.
type ClientSettings struct {
	OfficeMode  string
	Subnet      string
	Ranges      []platform.AddressRange
	DNSServers  model.StringList
	DNSSuffixes model.StringList
}

// GetClientSettings fetches the office-mode network configuration for an
// authenticated session.
func (c *Client) GetClientSettings(ctx context.Context, sessionID, activeKey string) (*ClientSettings, error) {
	payload := sexpr.Obj("ClientSettings",
		sexpr.Field("session_id", sexpr.Val(sessionID)),
		sexpr.Field("active_key", sexpr.Val(activeKey)),
	)
	resp, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &ClientSettings{
		OfficeMode:  sexpr.GetString(resp, "ipaddr"),
		Subnet:      sexpr.GetString(resp, "subnet"),
		Ranges:      parseAddressRanges(resp),
		DNSServers:  model.ParseStringList(sexpr.GetString(resp, "dns_servers")),
		DNSSuffixes: model.ParseStringList(sexpr.GetString(resp, "dns_suffix")),
	}, nil
}

// parseAddressRanges reads the office-mode "updated_policies:range" list, a
// sequence of {from, to} address pairs the gateway hands out in place of (or
// alongside) the single "subnet" field.
func parseAddressRanges(resp sexpr.Tree) []platform.AddressRange {
	rangeList, ok := resp.Path("updated_policies:range")
	if !ok {
		return nil
	}

	var ranges []platform.AddressRange
	for _, item := range treeItems(rangeList) {
		from := net.ParseIP(sexpr.GetString(item, "from"))
		to := net.ParseIP(sexpr.GetString(item, "to"))
		if from == nil || to == nil {
			continue
		}
		ranges = append(ranges, platform.AddressRange{Start: from, End: to})
	}
	return ranges
}

// treeItems returns the child nodes of t regardless of whether the parser
// resolved it to an Array (sequential "0","1",... keys) or left it an
// Object (e.g. a single non-indexed entry).
func treeItems(t sexpr.Tree) []sexpr.Tree {
	if t.Kind == sexpr.KindArray {
		return t.Array
	}
	items := make([]sexpr.Tree, 0, len(t.Object))
	for _, m := range t.Object {
		items = append(items, m.Value)
	}
	return items
}

// IpsecKeys carries the ESP session keys handed out by get_ipsec_keys.
type IpsecKeys struct {
	Session *model.IpsecSession
}

// GetIpsecKeys requests the ESP SA material for an IPsec-mode tunnel. The
// gateway hands out two distinct SA bundles: "client_encsa" is the SA the
// client encrypts outbound traffic with (EspOut), "client_decsa" is the SA
// the client decrypts inbound traffic with (EspIn) — distinct SPIs and keys
// per direction, per the ingress/egress asymmetry invariant.
func (c *Client) GetIpsecKeys(ctx context.Context, sessionID string) (*IpsecKeys, error) {
	payload := sexpr.Obj("RequestIpsecKeys",
		sexpr.Field("session_id", sexpr.Val(sessionID)),
	)
	resp, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}

	lifetime, _ := sexpr.GetInt(resp, "lifetime")

	var espIn, espOut model.SaKeys
	if encsa, ok := resp.Get("client_encsa"); ok {
		espOut = parseSaKeys(encsa)
	}
	if decsa, ok := resp.Get("client_decsa"); ok {
		espIn = parseSaKeys(decsa)
	}

	session := &model.IpsecSession{
		InnerIPv4: sexpr.GetString(resp, "om_addr"),
		Lifetime:  lifetime,
		EspIn:     espIn,
		EspOut:    espOut,
	}
	return &IpsecKeys{Session: session}, nil
}

// parseSaKeys reads one direction's SA bundle: SPI (decimal or 0x-prefixed
// hex), hex-encoded encryption/authentication keys, and their algorithm
// identifiers.
func parseSaKeys(t sexpr.Tree) model.SaKeys {
	spi, _ := strconv.ParseUint(sexpr.GetString(t, "spi"), 0, 32)
	esn, _ := sexpr.GetBool(t, "esn")

	encKey, _ := hex.DecodeString(sexpr.GetString(t, "enc_key"))
	authKey, _ := hex.DecodeString(sexpr.GetString(t, "auth_key"))

	return model.SaKeys{
		Spi:     uint32(spi),
		EncKey:  encKey,
		AuthKey: authKey,
		EncAlg:  sexpr.GetString(t, "enc_alg"),
		AuthAlg: sexpr.GetString(t, "auth_alg"),
		ESN:     esn,
	}
}

// Signout best-effort notifies the gateway that the session is ending; the
// caller should not treat failure here as fatal to teardown.
func (c *Client) Signout(ctx context.Context, sessionID string) error {
	payload := sexpr.Obj("Signout",
		sexpr.Field("session_id", sexpr.Val(sessionID)),
	)
	_, err := c.post(ctx, payload)
	return err
}
