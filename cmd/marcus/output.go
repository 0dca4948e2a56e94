package main

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func printError(err error) {
	fmt.Printf("%s %v\n", red("error:"), err)
}

func printSuccess(msg string) {
	fmt.Println(green(msg))
}

func printField(label, value string) {
	fmt.Printf("  %s %s\n", bold(label+":"), value)
}

func printSectionHeader(title string) {
	fmt.Println(cyan(bold(title)))
}

func printDim(msg string) {
	fmt.Println(gray(msg))
}

func statusColor(status string) string {
	switch status {
	case "done":
		return green(status)
	case "blocked":
		return red(status)
	case "in_progress":
		return yellow(status)
	default:
		return blue(status)
	}
}
