package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/deepresearch/pkg/domain"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("6"))

	labelStyle = lipgloss.NewStyle().
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Faint(true)
)

func renderError(err error) string {
	return errorStyle.Render("Error: ") + err.Error()
}

func renderInfo(msg string) string {
	return labelStyle.Render(msg)
}

func displayStatistics(stats *domain.Statistics, duration string) {
	fmt.Println(labelStyle.Render("\nStatistics:"))
	fmt.Printf("  Agent: %s\n", idStyle.Render(stats.Agent))
	if duration != "" {
		fmt.Printf("  Duration: %s\n", duration)
	}
	fmt.Printf("  Report: %d words, %d characters, %d lines\n",
		stats.WordCount, stats.CharCount, stats.LineCount)
}

func displayResult(result *domain.ResearchResult) {
	fmt.Println(successStyle.Render("\nResearch Completed"))
	fmt.Printf("Report saved to: %s\n", idStyle.Render(result.ReportPath))

	if result.Statistics != nil {
		duration := ""
		if result.Duration > 0 {
			duration = fmt.Sprintf("%.2f minutes", result.Duration.Minutes())
		}
		displayStatistics(result.Statistics, duration)
	}
}

func displayStatus(status *domain.InteractionStatus) {
	fmt.Printf("%s %s\n", labelStyle.Render("Interaction ID:"), idStyle.Render(status.InteractionID))
	fmt.Printf("%s %s\n", labelStyle.Render("Status:"), status.State)

	switch {
	case status.Completed():
		if status.Statistics != nil {
			displayStatistics(status.Statistics, "")
		}
		fmt.Println(successStyle.Render("\nResearch is complete!"))
		fmt.Printf("%s %s\n", labelStyle.Render("Fetch results:"),
			idStyle.Render("deepresearch fetch-results "+status.InteractionID))
	case status.Failed():
		fmt.Println(errorStyle.Render(fmt.Sprintf("\nError %s: %s", status.ErrorCode, status.ErrorMessage)))
	case status.Processing():
		fmt.Println(warnStyle.Render("\nResearch is still in progress..."))
	}
}
