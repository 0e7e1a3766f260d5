// Package config loads TunnelParams from the gateway-style "key=value"
// configuration file (viper's "properties" config type), applying the
// same defaults and override precedence as the teacher's
// viper-over-cobra-flags setup.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
	"github.com/ancwrd1/snx-rs-sub001/internal/model"
)

// Load reads a properties-format config file (if path is non-empty) plus
// any previously-bound cobra flag overrides already present in v, and
// decodes the result into a TunnelParams.
func Load(v *viper.Viper, path string) (*model.TunnelParams, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("properties")
		if err := v.ReadInConfig(); err != nil {
			return nil, apperror.Wrap(apperror.Config, fmt.Sprintf("config: read %s", path), err)
		}
	}

	params := &model.TunnelParams{
		ServerName:       v.GetString("server-name"),
		TunnelType:       model.TunnelKind(defaultString(v.GetString("tunnel-type"), "ssl")),
		LoginType:        defaultString(v.GetString("login-type"), "vpn"),
		UserName:         v.GetString("user-name"),
		CertType:         model.CertType(defaultString(v.GetString("cert-type"), "none")),
		CertPath:         v.GetString("cert-path"),
		IkePort:          defaultInt(v.GetInt("ike-port"), 500),
		MTU:              defaultInt(v.GetInt("mtu"), 1400),
		IgnoreServerCert: v.GetBool("ignore-server-cert"),
		IgnoreRoutes:     model.ParseStringList(v.GetString("ignore-routes")),
		NoKeepalive:      v.GetBool("no-keepalive"),
		IPv6:             model.IPv6Policy(defaultString(v.GetString("ipv6"), "disable")),
		DNSServers:       model.ParseStringList(v.GetString("dns-servers")),
		DNSSuffixes:      model.ParseStringList(v.GetString("dns-suffixes")),
		ServerPrompt:     v.GetBool("server-prompt"),
	}

	if params.ServerName == "" {
		return nil, apperror.New(apperror.Config, "config: server-name is required")
	}

	password, err := model.DecodeBase64Password(v.GetString("password"))
	if err != nil {
		return nil, apperror.Wrap(apperror.Config, "config: decode password", err)
	}
	params.Password = password

	if certPassword := v.GetString("cert-password"); certPassword != "" {
		decoded, err := model.DecodeBase64Password(certPassword)
		if err != nil {
			return nil, apperror.Wrap(apperror.Config, "config: decode cert-password", err)
		}
		params.CertPassword = decoded
	}

	return params, nil
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
