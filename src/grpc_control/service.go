package grpc_control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"stock-cache/src/interfaces"
	"stock-cache/src/logger"
	"stock-cache/src/models"
	"stock-cache/src/provider"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DayLoader is the part of the cache the control service drives.
type DayLoader interface {
	EnsureDay(ctx context.Context, day time.Time) (bool, error)
	InstrumentCount() int
	Stats(ctx context.Context) (models.MStoreStats, error)
}

// SourceInfo describes the running provider.
type SourceInfo interface {
	Name() string
	Symbols() []string
}

// ControlService implements ControlServer
type ControlService struct {
	Cache    DayLoader
	Source   SourceInfo
	Location *time.Location
	Logger   *logger.Logger
}

var _ ControlServer = (*ControlService)(nil)

// NewControlService creates a new instance of ControlService. Backfill dates
// are read in loc.
func NewControlService(cache DayLoader, source SourceInfo, loc *time.Location, log *logger.Logger) *ControlService {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ControlService{
		Cache:    cache,
		Source:   source,
		Location: loc,
		Logger:   log,
	}
}

// -----------------------------------------------------------------------------

func (s *ControlService) Backfill(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	raw := strings.TrimSpace(req.GetValue())
	if raw == "" {
		return nil, status.Error(codes.InvalidArgument, "date is required")
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, s.Location)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "date %q is not YYYY-MM-DD", raw)
	}

	start := time.Now()
	ran, err := s.Cache.EnsureDay(ctx, day)
	switch {
	case errors.Is(err, provider.ErrNotImplemented):
		return nil, status.Errorf(codes.FailedPrecondition, "backfill of %s: %v", raw, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, status.FromContextError(err).Err()
	case err != nil:
		s.Logger.Error("gRPC: Backfill %s failed: %v", raw, err)
		return nil, status.Errorf(codes.Internal, "backfill of %s failed: %v", raw, err)
	}

	s.Logger.Info("gRPC: Backfill %s done (ran=%v) in %s", raw, ran, time.Since(start).Round(time.Millisecond))
	return structpb.NewStruct(map[string]interface{}{
		"date":     raw,
		"ran":      ran,
		"duration": time.Since(start).Round(time.Millisecond).String(),
	})
}

// -----------------------------------------------------------------------------

func (s *ControlService) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats, err := s.Cache.Stats(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "storage stats: %v", err)
	}

	symbols := s.Source.Symbols()
	subscribed := make([]interface{}, 0, len(symbols))
	for _, sym := range symbols {
		subscribed = append(subscribed, sym)
	}

	return structpb.NewStruct(map[string]interface{}{
		"provider":        s.Source.Name(),
		"instruments":     s.Cache.InstrumentCount(),
		"subscribed":      subscribed,
		"today_rows":      stats.TodayRows,
		"historical_rows": stats.HistoricalRows,
	})
}

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server hosts the control service on its own listener.
type Server struct {
	Addr   string
	Logger *logger.Logger
	grpc   *grpc.Server
}

var _ interfaces.IDataExchanger = (*Server)(nil)

func NewServer(cfg *models.MConfig, svc ControlServer, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	gs := grpc.NewServer(grpc.UnaryInterceptor(logUnary(log)))
	RegisterControlServer(gs, svc)
	return &Server{
		Addr:   fmt.Sprintf("%s:%d", cfg.GrpcHost, cfg.GrpcPort),
		Logger: log,
		grpc:   gs,
	}
}

// Start blocks serving on Addr.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.Logger.Info("Starting gRPC control on %s", s.Addr)
	return s.Serve(lis)
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop drains in-flight calls until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	return nil
}

// -----------------------------------------------------------------------------

func logUnary(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		log.Debug("gRPC %s -> %s", info.FullMethod, status.Code(err))
		return resp, err
	}
}
