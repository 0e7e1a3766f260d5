// Package ccc implements the control-channel HTTP client (C2): it issues
// authenticate / challenge / client-settings / keys / signout requests
// against the gateway's "/clients/" endpoint, each wrapped as a
// "(CCCclientRequest ...)" S-expression.
package ccc

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
	"github.com/ancwrd1/snx-rs-sub001/internal/sexpr"
)

// Client talks to one gateway's CCC control endpoint over HTTPS.
type Client struct {
	serverName       string
	ignoreServerCert bool
	httpClient       *http.Client

	infoOnce sync.Once
	info     *ServerInfo
	infoErr  error
}

// New builds a Client for serverName. When ignoreServerCert is true, TLS
// certificate verification is disabled for this gateway.
func New(serverName string, ignoreServerCert bool) *Client {
	transport := &http.Transport{}
	if ignoreServerCert {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		serverName:       serverName,
		ignoreServerCert: ignoreServerCert,
		httpClient:       &http.Client{Transport: transport},
	}
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("https://%s/clients/", c.serverName)
}

// post wraps requestData in a CCCclientRequest S-expression (adding the
// RequestHeader), sends it, and returns the ResponseData subtree of the
// parsed CCCserverResponse, after validating ResponseHeader:ReturnCode == 0.
func (c *Client) post(ctx context.Context, requestData sexpr.Tree) (sexpr.Tree, error) {
	reqTree := sexpr.Obj("CCCclientRequest",
		sexpr.Field("RequestHeader", sexpr.Obj("", sexpr.Field("id", sexpr.Val("1")), sexpr.Field("type", requestTypeValue(requestData)))),
		sexpr.Field("RequestData", requestData),
	)
	body := sexpr.Format(reqTree)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader([]byte(body)))
	if err != nil {
		return sexpr.Tree{}, apperror.Wrap(apperror.Network, "ccc: build request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sexpr.Tree{}, apperror.Wrap(apperror.Network, "ccc: request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return sexpr.Tree{}, apperror.Wrap(apperror.Network, "ccc: read response", err)
	}

	tree, err := sexpr.Parse(string(raw))
	if err != nil {
		return sexpr.Tree{}, apperror.Wrap(apperror.Protocol, "ccc: malformed response", err)
	}

	code, _ := tree.Path("CCCserverResponse:ResponseHeader:ReturnCode")
	if v, ok := sexpr.OptionalInt(code); ok && v != 0 {
		msg, _ := tree.Path("CCCserverResponse:ResponseHeader:ReturnMessage")
		return sexpr.Tree{}, apperror.Newf(apperror.Protocol, "ccc: gateway returned code %d: %s", v, sexpr.OptionalString(msg))
	}

	respData, ok := tree.Path("CCCserverResponse:ResponseData")
	if !ok {
		return sexpr.Tree{}, apperror.New(apperror.Protocol, "ccc: missing ResponseData")
	}
	return respData, nil
}

// requestTypeValue is a placeholder hook kept for symmetry with the real
// protocol's RequestHeader:type field, which mirrors the request data's own
// object name.
func requestTypeValue(requestData sexpr.Tree) sexpr.Tree {
	return sexpr.Val(requestData.Name)
}
