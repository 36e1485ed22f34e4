package api

// Route is a named remote endpoint. The path is relative to the API
// base URL; authenticated routes carry the session token.
type Route struct {
	Name          string
	Path          string
	Authenticated bool
}

var (
	RouteUser              = Route{Name: "user", Path: "users", Authenticated: true}
	RouteAccount           = Route{Name: "account", Path: "account", Authenticated: true}
	RouteAccountSettings   = Route{Name: "account_settings", Path: "account/settings", Authenticated: true}
	RouteAccountActivity   = Route{Name: "account_activity", Path: "account/activity", Authenticated: true}
	RouteAccountUsernames  = Route{Name: "account_usernames", Path: "account/usernames", Authenticated: true}
	RouteAccountData       = Route{Name: "account_data", Path: "account/data", Authenticated: true}
	RouteRelationsFriends  = Route{Name: "relations_friends", Path: "account/relations/friends", Authenticated: true}
	RouteRelationsRequests = Route{Name: "relations_requests", Path: "account/relations/requests", Authenticated: true}
	RouteRelationsBlocked  = Route{Name: "relations_blocked", Path: "account/relations/blocked", Authenticated: true}
	RouteChannels          = Route{Name: "channels", Path: "channels", Authenticated: true}
	RouteGlobal            = Route{Name: "global", Path: "global", Authenticated: false}
)
