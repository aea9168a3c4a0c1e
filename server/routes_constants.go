package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteLogin        = "/login"
	RouteRegister     = "/register"
	RouteRefreshToken = "/refresh-token"
	RouteLogout       = "/logout"

	// Session Routes
	RouteLoggedInUser = "/logged-in-user"

	// Admin Routes
	RouteUser = "/users/{username}"

	RouteHealth = "/health"
)

// Cookie names shared with the client package.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// HeaderAuthReason carries the AUTH failure reason so clients can branch without
// parsing the body.
const HeaderAuthReason = "X-Auth-Reason"

const HeaderRequestID = "X-Request-ID"

const contentTypeJSON = "application/json"
