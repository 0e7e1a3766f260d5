// Package model holds the data types shared across the connector, tunnel
// drivers, and control-channel client: tunnel configuration, the gateway's
// advertised login recipe, session state, and IPsec key material.
package model

import "fmt"

// TunnelKind selects which transport modality a tunnel driver uses.
type TunnelKind string

const (
	TunnelSSL   TunnelKind = "ssl"
	TunnelIPsec TunnelKind = "ipsec"
)

// CertType identifies the client-certificate mechanism, if any.
type CertType string

const (
	CertNone  CertType = "none"
	CertPKCS8 CertType = "pkcs8"
	CertPKCS12 CertType = "pkcs12"
	CertHW    CertType = "hw"
)

// IPv6Policy controls whether IPv6 is suppressed during connection.
type IPv6Policy string

const (
	IPv6Disable IPv6Policy = "disable"
	IPv6Enable  IPv6Policy = "enable"
)

// TunnelParams is immutable user-supplied configuration, shared read-only
// across the connector and tunnel drivers once loaded.
type TunnelParams struct {
	ServerName       string
	TunnelType       TunnelKind
	LoginType        string
	UserName         string
	Password         *EncryptedString
	CertType         CertType
	CertPath         string
	CertPassword     *EncryptedString
	IkePort          int
	MTU              int
	IgnoreServerCert bool
	IgnoreRoutes     StringList
	NoKeepalive      bool
	IPv6             IPv6Policy
	DNSServers       StringList
	DNSSuffixes      StringList
	ServerPrompt     bool
}

// FactorType enumerates the shape of one MFA factor advertised by the
// server's login option.
type FactorType string

const (
	FactorPassword    FactorType = "password"
	FactorCertificate FactorType = "certificate"
	FactorSAML        FactorType = "saml"
)

// LoginDisplayLabel is the (header, prompt) pair a factor presents for the
// "password" label shape described in the login option.
type LoginDisplayLabel struct {
	Header string
	Prompt string
}

// LoginFactor is one step of a multi-step login sequence.
type LoginFactor struct {
	Type          FactorType
	DisplayLabels map[string]LoginDisplayLabel
}

// LoginOption is a server-advertised authentication recipe.
type LoginOption struct {
	ID      string
	Factors []LoginFactor
}

// PromptInfo is presented to the user for one factor in sequence.
type PromptInfo struct {
	Header string
	Prompt string
}

// PromptsFromOption walks the factors of opt in server-declared order and
// builds a PromptInfo for each factor that advertises a "password" display
// label; factors with no such label are skipped.
func PromptsFromOption(opt LoginOption) []PromptInfo {
	var prompts []PromptInfo
	for _, f := range opt.Factors {
		label, ok := f.DisplayLabels["password"]
		if !ok {
			continue
		}
		prompts = append(prompts, PromptInfo{Header: label.Header, Prompt: label.Prompt})
	}
	return prompts
}

// MfaType enumerates the kinds of multi-factor challenge the connector can
// surface to a caller.
type MfaType string

const (
	MfaUserNameInput MfaType = "UserNameInput"
	MfaPasswordInput MfaType = "PasswordInput"
	MfaOtpBrowser    MfaType = "OtpBrowser"
	MfaSamlBrowser   MfaType = "SamlBrowser"
)

// MfaChallenge describes one outstanding multi-factor prompt.
type MfaChallenge struct {
	Type   MfaType
	Prompt string
}

// SessionState is the sum type for VpnSession.State: either a pending
// challenge awaiting user input, or a fully authenticated session holding
// the gateway-issued active key.
type SessionState interface {
	isSessionState()
}

// PendingChallenge is a SessionState awaiting the next factor response.
type PendingChallenge struct {
	Challenge MfaChallenge
}

func (PendingChallenge) isSessionState() {}

// Authenticated is a terminal SessionState holding the active session key.
type Authenticated struct {
	ActiveKey string
}

func (Authenticated) isSessionState() {}

// SaKeys is the key material for one direction of an IPsec SA.
type SaKeys struct {
	Spi     uint32
	EncKey  []byte
	AuthKey []byte
	EncAlg  string
	AuthAlg string
	ESN     bool
}

// IpsecSession is the key material and addressing negotiated for an IPsec
// tunnel. EspIn and EspOut are asymmetric: distinct SPIs and keys.
type IpsecSession struct {
	InnerIPv4 string
	Lifetime  int
	EspIn     SaKeys
	EspOut    SaKeys
}

// VpnSession is the authenticated session context produced by a connector's
// authenticate/challenge_code calls. It is mutated only by re-issuing
// challenge responses and dropped at terminate.
type VpnSession struct {
	CCCSessionID string
	State        SessionState
	IpsecSession *IpsecSession
}

// ConnectionInfo carries the details exposed once a tunnel is connected.
// BytesIn/BytesOut are cumulative data-plane counters; a tunnel driver that
// cannot observe the data plane from userspace (the IPsec driver hands ESP
// off to the kernel's XFRM state) reports them as zero.
type ConnectionInfo struct {
	SinceUnixMillis int64
	Mode            TunnelKind
	BytesIn         uint64
	BytesOut        uint64
}

// ConnectionStatusKind enumerates the phases exposed to UIs over the status
// RPC surface.
type ConnectionStatusKind string

const (
	StatusDisconnected ConnectionStatusKind = "Disconnected"
	StatusConnecting   ConnectionStatusKind = "Connecting"
	StatusMfa          ConnectionStatusKind = "Mfa"
	StatusConnected    ConnectionStatusKind = "Connected"
)

// ConnectionStatus is the wire shape for status RPC responses.
type ConnectionStatus struct {
	Kind       ConnectionStatusKind `json:"kind"`
	Challenge  *MfaChallenge        `json:"challenge,omitempty"`
	Connection *ConnectionInfo      `json:"connection,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func (c ConnectionStatus) String() string {
	return fmt.Sprintf("ConnectionStatus(%s)", c.Kind)
}
