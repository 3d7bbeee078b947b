// Package identity talks to the platform's identity endpoints: password login, token
// refresh and session logout.
//
// Requests and responses are JSON with camelCase fields. A successful login returns the
// full credential bundle unless the account still requires confirmation, in which case only
// a message is returned and no session exists yet.
//
// # Clients
//
//	c, err := identity.New("https://api.example.com")
//	result, err := c.Login(ctx, "ada@example.com", password)
//	tokens, err := c.Refresh(ctx, result.Bundle.Tokens.RefreshToken)
//
// Client implements refresh.Refresher and is normally handed to a refresh.Coordinator
// rather than called directly.
//
// # Custom Base Transport
//
// Configure a custom base transport (e.g., for proxies or tests):
//
//	c, err := identity.New(baseURL, identity.WithTransport(customTransport))
package identity
