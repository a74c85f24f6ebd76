package services

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes the subgraphs a plan may address.
//
//	services:
//	  accounts:
//	    url: grpc://accounts:50051
//	  reviews:
//	    url: http://reviews:4002/graphql
//	    headers: {x-tenant: acme}
//	transport:
//	  rpcTimeout: 3s
type Config struct {
	Services  map[string]ServiceConfig `yaml:"services"`
	Transport TransportConfig          `yaml:"transport"`
	// ProtoPackage is the proto package of the gRPC Subgraph contract.
	ProtoPackage string `yaml:"protoPackage"`
}

type ServiceConfig struct {
	// URL selects the transport by scheme: grpc:// or http(s)://.
	URL string `yaml:"url"`
	// Endpoints adds gRPC targets next to the host of URL.
	Endpoints []string          `yaml:"endpoints"`
	Headers   map[string]string `yaml:"headers"`
}

type TransportConfig struct {
	RPCTimeout          time.Duration `yaml:"rpcTimeout"`
	MaxConnsPerEndpoint int           `yaml:"maxConnsPerEndpoint"`
	HTTPTimeout         time.Duration `yaml:"httpTimeout"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes a YAML config. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Set adds or replaces the URL of a service, keeping its other settings.
func (c *Config) Set(name, url string) {
	if c.Services == nil {
		c.Services = map[string]ServiceConfig{}
	}
	sc := c.Services[name]
	sc.URL = url
	c.Services[name] = sc
}

// ParseServiceFlag splits a "name=url" flag value.
func ParseServiceFlag(v string) (name, url string, err error) {
	name, url, ok := strings.Cut(v, "=")
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	if !ok || name == "" || url == "" {
		return "", "", fmt.Errorf("invalid service %q: want name=url", v)
	}
	return name, url, nil
}
