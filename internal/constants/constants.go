// Package constants defines application-wide constants and version information.
package constants

import "runtime"

// Version holds the application version information
const Version = "1.2-" + runtime.GOOS + "/" + runtime.GOARCH

// UserAgent is sent with every outbound vendor API request.
const UserAgent = "launchplanner/" + Version

// DefaultKeyErrorThreshold is the number of consecutive failures after which
// an API key is taken out of rotation.
const DefaultKeyErrorThreshold = 3
