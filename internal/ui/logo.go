package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const asciiLogo = `
     _                _    _                     _     
 ___| |__   __ _ _ __| | _| |__   ___ _ __   ___| |__  
/ __| '_ \ / _' | '__| |/ / '_ \ / _ \ '_ \ / __| '_ \ 
\__ \ | | | (_| | |  |   <| |_) |  __/ | | | (__| | | |
|___/_| |_|\__,_|_|  |_|\_\_.__/ \___|_| |_|\___|_| |_|
`

var logoGradient = []string{"#00BFFF", "#1E90FF", "#4169E1", "#8A2BE2", "#FF00FF"}

// GenerateLogo returns the gradient styled logo
func GenerateLogo() string {
	lines := strings.Split(strings.Trim(asciiLogo, "\n"), "\n")
	colored := make([]string, len(lines))
	for i, line := range lines {
		color := "#FFF"
		if i < len(logoGradient) {
			color = logoGradient[i]
		}
		colored[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Render(line)
	}
	return strings.Join(colored, "\n")
}
