package bootstrap

import (
	"strings"
	"testing"

	"github.com/molcalc/chemjobs/config"
)

func TestPostgresDSN(t *testing.T) {
	got := postgresDSN(config.DBConfig{
		Host: "db", Port: 5432, User: "chem", Password: "p@ss/word", Name: "chemjobs", SSLMode: "require",
	})
	want := "postgres://chem:p%40ss%2Fword@db:5432/chemjobs?sslmode=require"
	if got != want {
		t.Fatalf("postgresDSN() = %q, want %q", got, want)
	}
}

func TestNewRedisClient(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.RedisConfig
		wantDesc string
		wantErr  string
	}{
		{name: "host and port", cfg: config.RedisConfig{URI: "localhost:6379"}, wantDesc: "localhost:6379"},
		{name: "redis url", cfg: config.RedisConfig{URI: "redis://:secret@cache:6380/2"}, wantDesc: "cache:6380"},
		{name: "empty uri", cfg: config.RedisConfig{URI: "  "}, wantErr: "requires a URI"},
		{name: "bad url", cfg: config.RedisConfig{URI: "redis://cache:notaport"}, wantErr: "parse redis url"},
		{
			name:     "sentinel",
			cfg:      config.RedisConfig{UseSentinel: true, SentinelNodes: []string{"s1:26379"}, SentinelMasterName: "primary"},
			wantDesc: "sentinel:primary",
		},
		{name: "sentinel without nodes", cfg: config.RedisConfig{UseSentinel: true}, wantErr: "at least one sentinel node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, desc, err := newRedisClient(tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("newRedisClient() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("newRedisClient() error = %v", err)
			}
			defer client.Close()
			if desc != tt.wantDesc {
				t.Errorf("description = %q, want %q", desc, tt.wantDesc)
			}
			if strings.Contains(desc, "secret") {
				t.Errorf("description leaks the password: %q", desc)
			}
		})
	}
}

func TestConnectRedis_DisabledReturnsNilClient(t *testing.T) {
	client, err := ConnectRedis(DatabaseConfig{RedisConfig: config.RedisConfig{Enabled: false}})
	if err != nil || client != nil {
		t.Fatalf("ConnectRedis() = %v, %v; want nil, nil", client, err)
	}
}
