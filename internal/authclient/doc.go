// Package authclient sends authenticated requests to the platform API.
//
// Transport attaches the stored access token to every request. When the API answers 401 it
// asks the shared refresh coordinator for new tokens and resends the request once; a second
// 401 is returned to the caller. Request bodies are buffered when needed so the resend can
// replay them.
//
// Client builds on Transport and adds the session lifecycle: login, logout and a local
// status view.
//
//	c, err := authclient.New(store, idp, coordinator, "https://api.example.com/v1")
//	req, err := c.NewRequest(ctx, http.MethodGet, "/matches?limit=10", nil)
//	resp, err := c.Do(req)
package authclient
