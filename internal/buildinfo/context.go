// Package buildinfo contains build-time metadata separate from user configuration
package buildinfo

import (
	"fmt"

	"github.com/google/uuid"
)

// UnknownValue is reported for metadata the build did not inject.
const UnknownValue = "unknown"

// BuildInfo provides an interface for accessing build-time metadata.
type BuildInfo interface {
	// GetVersion returns the build version string
	GetVersion() string
	// GetBuildDate returns the build date string
	GetBuildDate() string
	// GetInstanceID returns the identifier of this process
	GetInstanceID() string
}

// Context contains build-time metadata that is not user-configurable.
// It is injected at application startup.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string

	// InstanceID identifies this process; it names the engine channel when
	// the configuration leaves it empty
	InstanceID string
}

// NewContext creates a Context with a fresh instance id.
func NewContext(version, buildDate string) *Context {
	return &Context{
		Version:    version,
		BuildDate:  buildDate,
		InstanceID: uuid.NewString(),
	}
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// GetInstanceID implements BuildInfo.GetInstanceID
func (c *Context) GetInstanceID() string {
	if c == nil || c.InstanceID == "" {
		return UnknownValue
	}
	return c.InstanceID
}

// Release is the release name reported to error telemetry.
func (c *Context) Release() string {
	return fmt.Sprintf("capturectl@%s", c.GetVersion())
}

// Channel returns the engine IPC channel name for this process.
func (c *Context) Channel() string {
	return "capturectl-" + c.GetInstanceID()
}

// String renders the version line printed by --version.
func (c *Context) String() string {
	return fmt.Sprintf("%s (built %s)", c.GetVersion(), c.GetBuildDate())
}
