// Package grpc 提供 gRPC 健康检查与反射服务
package grpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName 健康检查中登记的服务名
const ServiceName = "orderbridge.v1.OrderBridge"

// HealthServer 包装标准健康检查服务
type HealthServer struct {
	hs *health.Server
}

// NewHealthServer 在 s 上注册健康检查与反射服务，初始状态为 SERVING
func NewHealthServer(s *grpc.Server) *HealthServer {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{hs: hs}
}

// SetServing 切换服务状态
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus("", status)
	h.hs.SetServingStatus(ServiceName, status)
}

// Shutdown 关闭前将所有服务置为 NOT_SERVING
func (h *HealthServer) Shutdown() {
	h.hs.Shutdown()
}
