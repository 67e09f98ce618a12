package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"autoship/internal/board"
)

func main() {
	workdir := flag.String("workdir", ".", "controller working directory to watch")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shipboard [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Shipboard is a live view of an autoship controller's sessions.\n")
		fmt.Fprintf(os.Stderr, "It polls the controller's state file and renders each session's\n")
		fmt.Fprintf(os.Stderr, "health, retry count, and last released version.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	p := tea.NewProgram(board.New(*workdir), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "shipboard: %v\n", err)
		os.Exit(1)
	}
}
