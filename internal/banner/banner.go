package banner

import (
	"github.com/charmbracelet/lipgloss"
)

var bannerColor = lipgloss.Color("#7D56F4")

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(bannerColor).
		Bold(true)

	ascii := `
   ____  ________  ____  _____
  / __ \/  _/ __ \/ __ )/ ___/
 / / / // // / / / __  |\__ \
/ /_/ // // /_/ / /_/ /___/ /
\____/___/_____/_____//____/
  open iot database benchmark suite`

	return "\n" + style.Render(ascii) + "\n"
}
