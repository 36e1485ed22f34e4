package types

// GlobalData is the service-wide metadata shown on the landing screen.
type GlobalData struct {
	TotalPlayers  int
	OnlinePlayers int
	LatestVersion SemVer
	Notes         string
}

// EmptyGlobalData stands in when the service is disabled or the fetch
// failed and nothing cached exists.
var EmptyGlobalData = GlobalData{}

// UpdateAvailable reports whether the service advertises a release
// newer than the running client version.
func (g GlobalData) UpdateAvailable(current SemVer) bool {
	return g.LatestVersion.NewerThan(current)
}
