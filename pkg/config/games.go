package config

import "fmt"

type SteamAppSpec struct {
	Name        string `json:"name"`
	AppID       int    `json:"app_id"`
	WindowClass string `json:"window_class"`
}

// fallback-registry, if nothing is specified in the config file
var defaultSteamApps = []SteamAppSpec{
	{Name: "Path of Exile", AppID: 238960, WindowClass: "steam_app_238960"},
	{Name: "Path of Exile 2", AppID: 2694490, WindowClass: "steam_app_2694490"},
}

func (c *Config) GetSteamApps() []SteamAppSpec {
	if c != nil && len(c.SteamApps) > 0 {
		return c.SteamApps
	}
	return defaultSteamApps
}

// WindowClasses lists the window classes the game may run under.
func (c *Config) WindowClasses() []string {
	apps := c.GetSteamApps()
	out := make([]string, 0, len(apps))

	for _, a := range apps {
		if a.WindowClass != "" {
			out = append(out, a.WindowClass)
		} else {
			out = append(out, fmt.Sprintf("steam_app_%d", a.AppID))
		}
	}

	return out
}

// WindowTitles lists the titles used when no class matches.
func (c *Config) WindowTitles() []string {
	if c.GameWindow == "" {
		return nil
	}
	return []string{c.GameWindow}
}
