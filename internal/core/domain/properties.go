package domain

import "sort"

// Properties is the controller's persisted configuration. The credential
// fields round-trip through saveProperties but are never rendered.
type Properties struct {
	HostAddress   string
	KostalAddress string
	Threshold     float64
	PollDuration  int
	PlugName      string

	ApiKey         string `json:",omitempty"`
	DeconzUsername string `json:",omitempty"`
	DeconzPassword string `json:",omitempty"`
	KostalUsername string `json:",omitempty"`
	KostalPassword string `json:",omitempty"`
	KostalType     string `json:",omitempty"`
}

// Redacted returns a copy safe for logging.
func (p Properties) Redacted() Properties {
	for _, f := range []*string{&p.ApiKey, &p.DeconzPassword, &p.KostalPassword} {
		if *f != "" {
			*f = "*redacted*"
		}
	}
	return p
}

type LoginParams struct {
	Username string `json:"username"`
}

type AuthenticateParams struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	HostAddress string `json:"hostAddress"`
}

type SwitchLightParams struct {
	LightId string `json:"lightId"`
}

type LightState struct {
	On        bool `json:"on"`
	Reachable bool `json:"reachable"`
	Bri       int  `json:"bri,omitempty"`
}

type Light struct {
	Name         string     `json:"name"`
	Type         string     `json:"type,omitempty"`
	ModelId      string     `json:"modelid,omitempty"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	UniqueId     string     `json:"uniqueid,omitempty"`
	State        LightState `json:"state"`
}

// Lights maps the deCONZ light id to the light.
type Lights map[string]Light

// Names returns the light names sorted for display.
func (l Lights) Names() []string {
	names := make([]string, 0, len(l))
	for _, light := range l {
		names = append(names, light.Name)
	}
	sort.Strings(names)
	return names
}

// ByName returns the id and light with the given name.
func (l Lights) ByName(name string) (string, Light, bool) {
	for id, light := range l {
		if light.Name == name {
			return id, light, true
		}
	}
	return "", Light{}, false
}
