package wm

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hyprClients = `[
	{"address": "0x1", "class": "firefox", "title": "Path of Exile wiki", "at": [0, 0], "size": [800, 600]},
	{"address": "0x2", "class": "steam_app_238960", "title": "Path of Exile", "at": [1920, 30], "size": [2560, 1410]}
]`

func TestFindHyprClientByClass(t *testing.T) {
	w, by, err := findHyprClient([]byte(hyprClients), []string{"STEAM_APP_238960"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "class", by)
	assert.Equal(t, "0x2", w.Address)
	assert.Equal(t, image.Rect(1920, 30, 4480, 1440), w.Bounds())
}

func TestFindHyprClientByTitle(t *testing.T) {
	w, by, err := findHyprClient([]byte(hyprClients), []string{"steam_app_2694490"}, []string{"path of exile"})
	require.NoError(t, err)
	assert.Equal(t, "title", by)
	// Clients are checked in compositor order, so the first title match wins.
	assert.Equal(t, "0x1", w.Address)
}

func TestFindHyprClientNoMatch(t *testing.T) {
	w, _, err := findHyprClient([]byte(hyprClients), []string{"nope"}, nil)
	require.NoError(t, err)
	assert.True(t, w.IsZero())

	w, _, err = findHyprClient(nil, []string{"nope"}, nil)
	require.NoError(t, err)
	assert.True(t, w.IsZero())

	_, _, err = findHyprClient([]byte("not json"), nil, nil)
	assert.Error(t, err)
}

func TestParseShellGeometry(t *testing.T) {
	var w Window
	require.NoError(t, parseShellGeometry("WINDOW=123\nX=10\nY=20\nWIDTH=1280\nHEIGHT=720\nSCREEN=0\n", &w))
	assert.Equal(t, image.Rect(10, 20, 1290, 740), w.Bounds())

	x, y := w.ToScreen(5, 7)
	assert.Equal(t, 15, x)
	assert.Equal(t, 27, y)

	assert.Error(t, parseShellGeometry("X=1\nY=2\n", &w))
	assert.Error(t, parseShellGeometry("X=a\nY=2\nWIDTH=1\nHEIGHT=1\n", &w))
}

func TestSelectBackend(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    backend
		wantErr bool
	}{
		{"hyprland", map[string]string{"XDG_SESSION_TYPE": "wayland", "HYPRLAND_INSTANCE_SIGNATURE": "abc"}, backendHyprland, false},
		{"other wayland", map[string]string{"XDG_SESSION_TYPE": "wayland"}, "", true},
		{"x11", map[string]string{"XDG_SESSION_TYPE": "x11"}, backendX11, false},
		{"display only", map[string]string{"DISPLAY": ":0"}, backendX11, false},
		{"headless", map[string]string{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectBackend(func(k string) string { return tt.env[k] })
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeWM struct{ focused Window }

func (f *fakeWM) Name() string { return "fake" }
func (f *fakeWM) FindWindow([]string, []string) (Window, error) {
	return Window{ID: "7", Class: "steam_app_238960"}, nil
}

func (f *fakeWM) FocusWindow(w Window) error {
	f.focused = w
	return nil
}

func TestManagerForwards(t *testing.T) {
	fake := &fakeWM{}
	m := NewManagerWith(fake)

	w, err := m.FindWindow([]string{"steam_app_238960"}, nil)
	require.NoError(t, err)
	require.NoError(t, m.FocusWindow(w))
	assert.Equal(t, "7", fake.focused.ID)
	assert.Equal(t, "fake", m.GetWMName())
}
