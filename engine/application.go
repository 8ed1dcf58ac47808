package engine

// ApplicationConfig places the demo window. The device itself is configured
// by core.DeviceConfig.
type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// Path of the TOML device config. Empty uses the defaults.
	ConfigPath string
	// Stop after this many frames. Zero runs until the window closes.
	MaxFrames uint64
}
