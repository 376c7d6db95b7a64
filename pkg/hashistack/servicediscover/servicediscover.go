package servicediscover

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"rewardtask-controlplane/pkg/config"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("servicediscover", fx.Invoke(registerConsul))

type ServiceRegistry interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

// registerConsul announces the HTTP server to consul for the lifetime of the
// app when CONSUL.ADDR is set.
func registerConsul(lc fx.Lifecycle, cfg *config.Config) error {
	if cfg.Consul.Addr == "" {
		return nil
	}

	host, err := os.Hostname()
	if err != nil {
		return err
	}
	service, err := NewRegistration(cfg, host)
	if err != nil {
		return err
	}

	client, err := api.NewClient(NewConfig(cfg))
	if err != nil {
		return err
	}
	var registry ServiceRegistry = NewConsulRegistry(client, service)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			zap.L().Info("registering with consul", zap.String("service_id", service.ID), zap.String("consul", cfg.Consul.Addr))
			return registry.Register(ctx)
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("deregistering from consul", zap.String("service_id", service.ID))
			return registry.Deregister(ctx)
		},
	})
	return nil
}

func NewConfig(cfg *config.Config) *api.Config {
	config := api.DefaultConfig()
	config.Address = cfg.Consul.Addr

	return config
}

// NewRegistration describes this instance, health checked through /readyz.
func NewRegistration(cfg *config.Config, host string) (*api.AgentServiceRegistration, error) {
	port, err := listenPort(cfg.Server.Addr)
	if err != nil {
		return nil, err
	}

	scheme := "http"
	if cfg.TLS.Enable {
		scheme = "https"
	}

	return &api.AgentServiceRegistration{
		ID:      fmt.Sprintf("%s-%s-%d", cfg.AppName, host, port),
		Name:    cfg.AppName,
		Address: host,
		Port:    port,
		Tags:    []string{cfg.AppEnv, cfg.AppVersion},
		Meta:    map[string]string{"version": cfg.AppVersion},
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("%s://%s/readyz", scheme, net.JoinHostPort(host, strconv.Itoa(port))),
			TLSSkipVerify:                  cfg.TLS.Enable,
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}, nil
}

// listenPort accepts "8080", ":8080" or "0.0.0.0:8080".
func listenPort(addr string) (int, error) {
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse server addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("parse server port %q: %w", p, err)
	}
	return port, nil
}

type ConsulRegistry struct {
	client  *api.Client
	service *api.AgentServiceRegistration
}

func NewConsulRegistry(client *api.Client, service *api.AgentServiceRegistration) *ConsulRegistry {
	return &ConsulRegistry{
		client:  client,
		service: service,
	}
}

func (r *ConsulRegistry) Register(ctx context.Context) error {
	return r.client.Agent().ServiceRegisterOpts(r.service, api.ServiceRegisterOpts{}.WithContext(ctx))
}

func (r *ConsulRegistry) Deregister(ctx context.Context) error {
	return r.client.Agent().ServiceDeregisterOpts(r.service.ID, (&api.QueryOptions{}).WithContext(ctx))
}
