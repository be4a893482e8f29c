// Package auth mints and checks the bearer tokens that guard the tool bridge.
//
// Each browser connection gets its own token whose "sub" claim is the
// connection id. The agent runtime presents that token when it calls back
// into the bridge, and BearerMiddleware turns it back into the connection id
// so tool calls reach the right socket.
//
// Tokens are HS256 JWTs. When no secret is configured the gateway uses
// NewEphemeralVerifier, so tokens stop working after a restart; that only
// affects turns already in flight.
package auth
