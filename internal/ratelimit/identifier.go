package ratelimit

import "rpcguard/internal/models"

// ResolveIdentifier derives the tracking key for a request. A user ID wins over
// a client IP; if neither is tracked and present the request is anonymous.
func ResolveIdentifier(req models.RPCRequest, tracking models.TrackingConfig) Identity {
	if tracking.TrackUsers && req.UserID != "" {
		return Identity{ID: req.UserID, Kind: KindUser}
	}
	if tracking.TrackIPs && req.ClientIP != "" {
		return Identity{ID: req.ClientIP, Kind: KindIP}
	}
	return Identity{ID: AnonymousID, Kind: KindAnonymous}
}
