package sampler

import (
	"os"
	"strings"
)

// EnvPermissions reads location grants from the environment. Headless
// deployments declare what the operator consented to; the mobile shells
// replace this with the platform permission dialogs.
type EnvPermissions struct{}

func (EnvPermissions) Foreground() error {
	if denied("LOCATION_ALLOW_FOREGROUND") {
		return ErrPermissionDenied
	}
	return nil
}

func (EnvPermissions) Background() error {
	if denied("LOCATION_ALLOW_BACKGROUND") {
		return ErrPermissionDenied
	}
	return nil
}

// Grants default to allowed; only an explicit "false"/"0" denies.
func denied(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "false" || v == "0" || v == "denied"
}
