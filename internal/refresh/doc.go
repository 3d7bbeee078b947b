// Package refresh coordinates access token refreshes so that concurrent authentication
// failures produce a single request to the identity provider.
//
// A Coordinator is either idle or refreshing. The first caller to report a rejected token
// moves it to refreshing and performs the refresh; later callers queue behind it and are
// resumed, in arrival order, with the same outcome. On success the new tokens are merged
// into the credential store. On failure the store is cleared, every caller receives the
// error and the session end handler runs once.
//
// One Coordinator is created per process and shared by every authenticated transport.
package refresh
