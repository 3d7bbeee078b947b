package identity

// Default endpoint paths, relative to the identity provider base URL.
const (
	DefaultLoginPath   = "/auth/login"
	DefaultRefreshPath = "/auth/refresh"
	DefaultLogoutPath  = "/auth/logout"
)

// Endpoints defines the identity provider routes used by the client.
type Endpoints struct {
	Login   string
	Refresh string
	Logout  string
}

// DefaultEndpoints returns the routes served by the platform API.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:   DefaultLoginPath,
		Refresh: DefaultRefreshPath,
		Logout:  DefaultLogoutPath,
	}
}
