// Package render provides the card renderers: a gRPC client for the remote
// rendering service and a local placeholder used when none is configured.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/pjsk-cards/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RenderCardMethod is the full gRPC method name of the card render call.
const RenderCardMethod = "/pjsk.render.v1.Renderer/RenderCard"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errEmptyImage               = errors.New("renderer returned an empty image")
)

// GrpcConfig holds configuration for the renderer client.
type GrpcConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcConfig returns default configuration for addr.
func DefaultGrpcConfig(addr string) GrpcConfig {
	return GrpcConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GrpcRenderer renders cards through the remote rendering service.
type GrpcRenderer struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// NewGrpcRenderer connects to the rendering service and waits until the
// connection is ready, so a bad address fails at startup.
func NewGrpcRenderer(cfg GrpcConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GrpcRenderer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer client for %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("renderer at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to card renderer", "address", cfg.Address)
	return &GrpcRenderer{conn: conn, addr: cfg.Address, logger: logger}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Render sends st to the rendering service and returns the PNG bytes.
func (g *GrpcRenderer) Render(ctx context.Context, st domain.RenderState) ([]byte, error) {
	req, err := encodeState(st)
	if err != nil {
		return nil, &domain.RenderError{Err: err}
	}

	resp := new(wrapperspb.BytesValue)
	if err := g.conn.Invoke(ctx, RenderCardMethod, req, resp); err != nil {
		g.logger.Debug("RenderCard call failed", "address", g.addr, "error", err)
		return nil, &domain.RenderError{Err: fmt.Errorf("render card: %w", err)}
	}
	if len(resp.GetValue()) == 0 {
		return nil, &domain.RenderError{Err: errEmptyImage}
	}
	return resp.GetValue(), nil
}

// Ready reports whether the connection is usable.
func (g *GrpcRenderer) Ready() bool {
	s := g.conn.GetState()
	return s == connectivity.Ready || s == connectivity.Idle
}

// Close closes the gRPC connection.
func (g *GrpcRenderer) Close() {
	if g.conn != nil {
		if err := g.conn.Close(); err != nil {
			g.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

func encodeState(st domain.RenderState) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"text":          st.Text,
		"font_size":     st.FontSize,
		"line_spacing":  st.LineSpacing,
		"curve_enabled": st.CurveEnabled,
		"offset_x":      st.OffsetX,
		"offset_y":      st.OffsetY,
		"role":          st.Character,
	})
}

func decodeState(s *structpb.Struct) domain.RenderState {
	f := s.GetFields()
	return domain.RenderState{
		Text:         f["text"].GetStringValue(),
		FontSize:     int(f["font_size"].GetNumberValue()),
		LineSpacing:  f["line_spacing"].GetNumberValue(),
		CurveEnabled: f["curve_enabled"].GetBoolValue(),
		OffsetX:      int(f["offset_x"].GetNumberValue()),
		OffsetY:      int(f["offset_y"].GetNumberValue()),
		Character:    f["role"].GetStringValue(),
	}
}
