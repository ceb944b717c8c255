// Package database opens the report's database connection, either directly
// or through a kubectl port-forward tunnel that it owns for the lifetime of
// the session.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xlttj/chreport/pkg/config"
	"github.com/xlttj/chreport/pkg/k8s"
	"github.com/xlttj/chreport/pkg/logging"
)

var (
	ErrDirectConnectFailed = errors.New("direct connection failed")
	ErrToolUnavailable     = errors.New("kubectl unavailable")
	ErrTunnelSetupFailed   = errors.New("tunnel setup failed")
)

const pingTimeout = 30 * time.Second

// TunnelManager is the part of k8s.Manager the supervisor needs.
type TunnelManager interface {
	CheckTool(ctx context.Context) error
	Start(ctx context.Context, cfg config.TunnelConfig) (*k8s.Tunnel, error)
	Stop(t *k8s.Tunnel)
}

type Supervisor struct {
	Tunnels TunnelManager
	Open    func(Params) (*sql.DB, error)
}

func NewSupervisor(tunnels TunnelManager) *Supervisor {
	return &Supervisor{Tunnels: tunnels, Open: Open}
}

func paramsFor(cfg config.ConnectionConfig) Params {
	return Params{
		Driver:   cfg.Driver,
		Protocol: cfg.Protocol,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		Database: cfg.Database,
	}
}

// Connect opens a verified connection. In tunneled mode the tunnel is
// stopped again if anything after its start fails; on success it belongs to
// the returned Session.
func (s *Supervisor) Connect(ctx context.Context, cfg config.ConnectionConfig) (*Session, error) {
	params := paramsFor(cfg)
	if cfg.EffectiveMode() == config.ModeTunneled {
		return s.connectTunneled(ctx, cfg, params)
	}
	if cfg.Mode == config.ModeTunneled {
		logging.LogWarn("kubectl connection is disabled, falling back to a direct connection to %s", params.Addr())
	}

	logging.LogInfo("Connecting directly to %s (%s)", params.Addr(), params.Driver)
	db, err := s.openAndPing(ctx, params)
	if err != nil {
		logging.LogError("Direct connection to %s failed: %v", params.Addr(), err)
		return nil, fmt.Errorf("%w: %s: %w", ErrDirectConnectFailed, params.Addr(), err)
	}
	logging.LogInfo("Connected to %s", params.Addr())
	return NewSession(db, config.ModeDirect, params.Addr(), nil), nil
}

func (s *Supervisor) connectTunneled(ctx context.Context, cfg config.ConnectionConfig, params Params) (*Session, error) {
	if err := s.Tunnels.CheckTool(ctx); err != nil {
		logging.LogError("kubectl is not available: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrToolUnavailable, err)
	}

	tun, err := s.Tunnels.Start(ctx, *cfg.Tunnel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTunnelSetupFailed, err)
	}

	params.Host = "localhost"
	params.Port = tun.LocalPort()
	db, err := s.openAndPing(ctx, params)
	if err != nil {
		logging.LogError("Connection through tunnel localhost:%d failed: %v", params.Port, err)
		s.Tunnels.Stop(tun)
		return nil, fmt.Errorf("%w: connect through %s: %w", ErrTunnelSetupFailed, params.Addr(), err)
	}
	logging.LogInfo("Connected to %s through port-forward to %s", params.Addr(), cfg.Tunnel.Target())
	return NewSession(db, config.ModeTunneled, params.Addr(), func() { s.Tunnels.Stop(tun) }), nil
}

func (s *Supervisor) openAndPing(ctx context.Context, params Params) (*sql.DB, error) {
	db, err := s.Open(params)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
