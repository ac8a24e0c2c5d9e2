package logging

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

var bannerStyle = lipgloss.NewStyle().Bold(true)

// Say logs a status banner such as "🤖 ~ starting update ~".
func Say(log logrus.FieldLogger, message string) {
	log.Info(bannerStyle.Render("🤖 ~ " + message + " ~"))
}
