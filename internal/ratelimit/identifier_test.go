package ratelimit

import (
	"rpcguard/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveIdentifier(t *testing.T) {
	both := models.TrackingConfig{TrackUsers: true, TrackIPs: true}

	tests := []struct {
		name     string
		req      models.RPCRequest
		tracking models.TrackingConfig
		want     Identity
	}{
		{"user wins over ip", models.RPCRequest{UserID: "alice", ClientIP: "10.0.0.1"}, both, Identity{"alice", KindUser}},
		{"ip when no user", models.RPCRequest{ClientIP: "10.0.0.1"}, both, Identity{"10.0.0.1", KindIP}},
		{"user ignored when untracked", models.RPCRequest{UserID: "alice", ClientIP: "10.0.0.1"}, models.TrackingConfig{TrackIPs: true}, Identity{"10.0.0.1", KindIP}},
		{"ip ignored when untracked", models.RPCRequest{ClientIP: "10.0.0.1"}, models.TrackingConfig{TrackUsers: true}, Identity{AnonymousID, KindAnonymous}},
		{"nothing present", models.RPCRequest{}, both, Identity{AnonymousID, KindAnonymous}},
		{"nothing tracked", models.RPCRequest{UserID: "alice", ClientIP: "10.0.0.1"}, models.TrackingConfig{}, Identity{AnonymousID, KindAnonymous}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveIdentifier(tt.req, tt.tracking))
		})
	}
}
