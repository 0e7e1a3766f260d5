//go:build !linux

package platform

import (
	"context"

	"github.com/ancwrd1/snx-rs-sub001/internal/apperror"
	"github.com/ancwrd1/snx-rs-sub001/internal/model"
)

// UnsupportedConfigurator reports ConfigureError on every call. This
// spec's C6 contract (XFRM SA/policy installation, routing-table
// diversion, IPv6 suppression via sysctl) is Linux-specific; non-Linux
// platforms have no equivalent implementation here.
type UnsupportedConfigurator struct{}

// NewLinuxConfigurator's non-Linux counterpart; kept under the same
// constructor name shape so callers can build against platform.New()
// regardless of GOOS.
func NewUnsupportedConfigurator() *UnsupportedConfigurator {
	return &UnsupportedConfigurator{}
}

func (UnsupportedConfigurator) Configure(ctx context.Context, params ConfigureParams) error {
	return apperror.New(apperror.Configure, "platform: unsupported platform")
}

func (UnsupportedConfigurator) Rekey(ctx context.Context, session *model.IpsecSession) error {
	return apperror.New(apperror.Configure, "platform: unsupported platform")
}

func (UnsupportedConfigurator) Cleanup(ctx context.Context) error {
	return nil
}
