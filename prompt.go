package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/AlecAivazis/survey/v2"
	"github.com/mattn/go-isatty"
)

// Prompter asks the user for drive field values. Tests substitute a fake.
type Prompter interface {
	Input(message, defaultValue string) (string, error)
	Password(message string) (string, error)
}

// surveyPrompter implements Prompter with survey.
type surveyPrompter struct{}

func (surveyPrompter) Input(message, defaultValue string) (string, error) {
	result := ""

	prompt := &survey.Input{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &result, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}

	return result, nil
}

func (surveyPrompter) Password(message string) (string, error) {
	result := ""

	prompt := &survey.Password{Message: message}
	if err := survey.AskOne(prompt, &result, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}

	return result, nil
}

// errNotInteractive is returned when a value is missing and stdin is not a
// terminal to prompt on.
var errNotInteractive = errors.New("stdin is not a terminal")

// noPrompter fails every prompt. It is used when stdin is not a terminal.
type noPrompter struct{}

func (noPrompter) Input(message, _ string) (string, error) {
	return "", fmt.Errorf("%s: %w", message, errNotInteractive)
}

func (noPrompter) Password(message string) (string, error) {
	return "", fmt.Errorf("%s: %w", message, errNotInteractive)
}

// defaultPrompter is replaced in tests.
var defaultPrompter = func() Prompter {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return surveyPrompter{}
	}

	return noPrompter{}
}

// openBrowser opens url in the default browser without waiting for it.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		switch {
		case commandExists("xdg-open"):
			cmd = exec.Command("xdg-open", url)
		case commandExists("wslview"):
			cmd = exec.Command("wslview", url)
		default:
			return errors.New("no browser opener found (tried xdg-open, wslview)")
		}
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("opening a browser is not supported on %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	// Reap the opener in the background.
	go cmd.Wait() //nolint:errcheck // exit status of the opener is irrelevant

	return nil
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)

	return err == nil
}
