package diagnostics

import (
	"fmt"
	"strings"

	"github.com/chrissnell/launchplanner/internal/keys"
)

// Guide is a set of instructions for obtaining a service's API key
type Guide struct {
	Service     keys.Service `json:"service"`
	DisplayName string       `json:"display_name"`
	SignupURL   string       `json:"signup_url"`
	EnvVars     []string     `json:"env_vars"`
	Example     string       `json:"example"`
	Optional    bool         `json:"optional"`
	Notes       string       `json:"notes,omitempty"`
	Steps       []string     `json:"steps"`
}

// GuideFor returns the setup guide for a service
func GuideFor(svc keys.Service) (Guide, error) {
	info, ok := keys.Lookup(svc)
	if !ok {
		return Guide{}, fmt.Errorf("unknown service %q", svc)
	}

	g := Guide{
		Service:     svc,
		DisplayName: info.DisplayName,
		SignupURL:   info.SignupURL,
		EnvVars:     append([]string(nil), info.EnvVars...),
		Optional:    svc == keys.Census,
		Notes:       info.Notes,
	}
	if info.SecretVar != "" {
		g.EnvVars = append(g.EnvVars, info.SecretVar)
	}
	g.Example = exampleLines(info)

	g.Steps = []string{
		fmt.Sprintf("Sign up or log in at %s", info.SignupURL),
		"Create a key (or token) for this application",
		fmt.Sprintf("Add it to .env: %s", strings.ReplaceAll(g.Example, "\n", " and ")),
		fmt.Sprintf("Verify it with: keycheck test %s", svc),
	}
	return g, nil
}

// Guides returns the setup guides for every known service, sorted by service
func Guides() []Guide {
	var out []Guide
	for _, svc := range keys.AllServices() {
		g, err := GuideFor(svc)
		if err != nil {
			continue
		}
		out = append(out, g)
	}
	return out
}

func exampleLines(info keys.ServiceInfo) string {
	if len(info.EnvVars) == 0 {
		return ""
	}
	line := fmt.Sprintf("%s=your_%s_here", info.EnvVars[0], placeholderName(info.EnvVars[0]))
	if info.SecretVar != "" {
		line += fmt.Sprintf("\n%s=your_%s_here", info.SecretVar, placeholderName(info.SecretVar))
	}
	return line
}

func placeholderName(envVar string) string {
	return strings.ToLower(envVar)
}

// EnvTemplate renders a commented .env file listing every key variable
func EnvTemplate() string {
	var b strings.Builder
	b.WriteString("# API keys for launchplanner\n")
	b.WriteString("# Several keys per service: separate them with commas or use NAME_2 ... NAME_9\n")
	for _, g := range Guides() {
		b.WriteString("\n")
		fmt.Fprintf(&b, "# %s: %s\n", g.DisplayName, g.SignupURL)
		if g.Optional {
			b.WriteString("# optional\n")
		}
		for _, line := range strings.Split(g.Example, "\n") {
			fmt.Fprintln(&b, line)
		}
	}
	return b.String()
}
