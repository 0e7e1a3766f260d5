package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/ancwrd1/snx-rs-sub001/internal/model"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "snx-rs.conf")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesKnownFields(t *testing.T) {
	pw := base64.StdEncoding.EncodeToString([]byte("hunter2"))
	path := writeConfig(t, "server-name=vpn.example.com\n"+
		"login-type=vpn\n"+
		"user-name=alice\n"+
		"password="+pw+"\n"+
		"tunnel-type=ipsec\n"+
		"ignore-routes=10.0.0.0/8,172.16.0.0/12\n"+
		"dns-servers=1.1.1.1;8.8.8.8\n"+
		"ike-port=4500\n"+
		"ignore-server-cert=true\n")

	params, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if params.ServerName != "vpn.example.com" {
		t.Fatalf("server name = %q", params.ServerName)
	}
	if params.TunnelType != model.TunnelIPsec {
		t.Fatalf("tunnel type = %q", params.TunnelType)
	}
	if params.Password.Reveal() != "hunter2" {
		t.Fatalf("password = %q, want hunter2", params.Password.Reveal())
	}
	if len(params.IgnoreRoutes) != 2 || params.IgnoreRoutes[0] != "10.0.0.0/8" {
		t.Fatalf("ignore routes = %v", params.IgnoreRoutes)
	}
	if len(params.DNSServers) != 2 {
		t.Fatalf("dns servers = %v", params.DNSServers)
	}
	if params.IkePort != 4500 {
		t.Fatalf("ike port = %d, want 4500", params.IkePort)
	}
	if !params.IgnoreServerCert {
		t.Fatal("expected ignore-server-cert=true")
	}
}

func TestLoadRequiresServerName(t *testing.T) {
	path := writeConfig(t, "login-type=vpn\n")
	if _, err := Load(viper.New(), path); err == nil {
		t.Fatal("expected error for missing server-name")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server-name=vpn.example.com\n")
	params, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if params.TunnelType != model.TunnelSSL {
		t.Fatalf("default tunnel type = %q, want ssl", params.TunnelType)
	}
	if params.IkePort != 500 {
		t.Fatalf("default ike port = %d, want 500", params.IkePort)
	}
	if params.IPv6 != model.IPv6Disable {
		t.Fatalf("default ipv6 policy = %q, want disable", params.IPv6)
	}
}
