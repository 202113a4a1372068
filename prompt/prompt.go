// Package prompt asks the operator questions on the terminal.
package prompt

import (
	"errors"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/mattn/go-isatty"
)

var (
	// ErrNotTerminal is returned when a question would have to be asked without a terminal.
	ErrNotTerminal = errors.New("stdin is not a terminal, unable to prompt")
	// ErrAborted is returned when the operator declines to continue.
	ErrAborted = errors.New("aborted at user request")
)

// Prompter asks yes/no questions and reads secrets.
type Prompter interface {
	Confirm(message string) (bool, error)
	Password(message string) (string, error)
}

type askFunc func(p survey.Prompt, response any, opts ...survey.AskOpt) error

// Survey is a Prompter reading from the process terminal.
type Survey struct {
	ask        askFunc
	isTerminal func() bool
}

func NewSurvey() *Survey {
	return &Survey{
		ask: survey.AskOne,
		isTerminal: func() bool {
			fd := os.Stdin.Fd()
			return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		},
	}
}

func (s *Survey) Confirm(message string) (bool, error) {
	if !s.isTerminal() {
		return false, ErrNotTerminal
	}
	var ok bool
	if err := s.ask(&survey.Confirm{Message: message}, &ok); err != nil {
		return false, askError(err)
	}
	return ok, nil
}

func (s *Survey) Password(message string) (string, error) {
	if !s.isTerminal() {
		return "", ErrNotTerminal
	}
	var value string
	if err := s.ask(&survey.Password{Message: message}, &value); err != nil {
		return "", askError(err)
	}
	return value, nil
}

// Require asks message and returns ErrAborted unless the operator agrees.
func Require(p Prompter, message string) error {
	ok, err := p.Confirm(message)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAborted
	}
	return nil
}

func askError(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return ErrAborted
	}
	return fmt.Errorf("unable to read answer: %w", err)
}
