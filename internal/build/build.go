package build

// Version of colivrt. Set to tag in CI during release.
var Version = "0.0.0"

// UserAgent sent by the REST client and the realtime transport.
func UserAgent() string {
	return "colivrt/" + Version
}
